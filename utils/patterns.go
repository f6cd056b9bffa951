package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

// PatternMatcher decides which walked paths are scanned. Include and
// exclude patterns are tried as basename globs and as regular expressions
// over the full path; an optional ignore file adds gitignore rules.
type PatternMatcher struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
	ignore       *IgnoreMatcher
}

func NewPatternMatcher(includePatterns, excludePatterns []string) *PatternMatcher {
	includePatterns = compact(includePatterns)
	excludePatterns = compact(excludePatterns)
	return &PatternMatcher{
		includeGlobs: includePatterns,
		includeRegex: compileRegex(includePatterns),
		excludeGlobs: excludePatterns,
		excludeRegex: compileRegex(excludePatterns),
	}
}

// WithIgnore attaches gitignore-style rules loaded from an ignore file.
func (m *PatternMatcher) WithIgnore(ignore *IgnoreMatcher) *PatternMatcher {
	m.ignore = ignore
	return m
}

// ShouldInclude reports whether a file found under root should be scanned.
func (m *PatternMatcher) ShouldInclude(root, path string) bool {
	if m == nil {
		return true
	}
	if m.ignore.Match(root, path, false) {
		return false
	}
	if (len(m.includeGlobs) > 0 || len(m.includeRegex) > 0) && !m.matches(path, m.includeGlobs, m.includeRegex) {
		return false
	}
	if (len(m.excludeGlobs) > 0 || len(m.excludeRegex) > 0) && m.matches(path, m.excludeGlobs, m.excludeRegex) {
		return false
	}
	return true
}

// SkipDir reports whether a directory under root should not be descended.
// Include patterns never prune directories.
func (m *PatternMatcher) SkipDir(root, dir string) bool {
	if m == nil || dir == root {
		return false
	}
	if m.ignore.Match(root, dir, true) {
		return true
	}
	for _, pattern := range m.excludeGlobs {
		if matched, _ := filepath.Match(pattern, filepath.Base(dir)); matched {
			return true
		}
	}
	return false
}

func (m *PatternMatcher) matches(path string, globs []string, regexes []*regexp.Regexp) bool {
	for _, pattern := range globs {
		matched, _ := filepath.Match(pattern, filepath.Base(path))
		if matched {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}

func compact(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
