package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreMatcher applies gitignore-syntax rules relative to a scan root.
// A nil matcher ignores nothing.
type IgnoreMatcher struct {
	matcher  gitignore.Matcher
	patterns int
}

// LoadIgnoreFile parses an ignore file. A missing file yields a nil
// matcher and no error.
func LoadIgnoreFile(path string) (*IgnoreMatcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}
	return NewIgnoreMatcher(patterns), nil
}

// NewIgnoreMatcher wraps already parsed patterns.
func NewIgnoreMatcher(patterns []gitignore.Pattern) *IgnoreMatcher {
	return &IgnoreMatcher{matcher: gitignore.NewMatcher(patterns), patterns: len(patterns)}
}

// ParseIgnoreLines is a convenience for callers holding rules in memory.
func ParseIgnoreLines(lines ...string) *IgnoreMatcher {
	patterns := make([]gitignore.Pattern, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return NewIgnoreMatcher(patterns)
}

// Len returns the number of loaded rules.
func (m *IgnoreMatcher) Len() int {
	if m == nil {
		return 0
	}
	return m.patterns
}

// Match reports whether path, located under root, is ignored.
func (m *IgnoreMatcher) Match(root, path string, isDir bool) bool {
	if m == nil || m.patterns == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return m.matcher.Match(strings.Split(filepath.ToSlash(rel), "/"), isDir)
}
