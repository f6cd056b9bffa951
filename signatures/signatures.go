package signatures

import (
	"path"
	"sort"
	"strings"

	"centinela/utils"

	"github.com/FastFilter/xorfilter"
	"github.com/cespare/xxhash/v2"
)

// MatchRule is one way a signature can identify an artifact. It is either
// an ExactDigest or a FilenameGlob.
type MatchRule interface {
	isMatchRule()
}

// ExactDigest matches a file whose content digest equals the value.
type ExactDigest string

// FilenameGlob matches when the file's base name fits any of the
// shell-style patterns.
type FilenameGlob []string

func (ExactDigest) isMatchRule()  {}
func (FilenameGlob) isMatchRule() {}

// Signature identifies a known suspicious artifact.
type Signature struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Rules       []MatchRule `json:"-"`
}

// Digest returns the signature's exact digest, if it has one.
func (s Signature) Digest() string {
	for _, rule := range s.Rules {
		if d, ok := rule.(ExactDigest); ok {
			return string(d)
		}
	}
	return ""
}

// Patterns returns every filename glob of the signature.
func (s Signature) Patterns() []string {
	var out []string
	for _, rule := range s.Rules {
		if g, ok := rule.(FilenameGlob); ok {
			out = append(out, g...)
		}
	}
	return out
}

// DemoDigest is the digest bundled with the demo signature. It is a
// placeholder value, not the hash of any real test file.
const DemoDigest = "275a021bbfb64843d0d600f1a114aa2b2c1b1b5f0985f07f8b5b3b2010c56d4"

// Builtin returns the demo signatures every store starts with.
func Builtin() []Signature {
	return []Signature{
		{
			ID:          "demo-test-malware",
			Description: "Test signature that matches the EICAR demo hash",
			Rules:       []MatchRule{ExactDigest(DemoDigest)},
		},
		{
			ID:          "suspicious-batch-naming",
			Description: "Matches batch files with names resembling installers",
			Rules:       []MatchRule{FilenameGlob{"setup*.bat", "update*.bat"}},
		},
	}
}

// Store is an in-memory signature set keyed by ID. It is not safe for
// concurrent use.
type Store struct {
	byID map[string]Signature

	// digests is a membership filter over every stored exact digest; nil
	// when no signature carries one or the filter could not be built.
	digests    *xorfilter.Xor8
	hasDigests bool
}

// New returns a store holding the built-in signatures.
func New() *Store {
	s := &Store{byID: make(map[string]Signature)}
	for _, sig := range Builtin() {
		s.byID[sig.ID] = sig
	}
	s.rebuild()
	return s
}

// Add inserts sig, replacing any signature with the same ID.
func (s *Store) Add(sig Signature) {
	s.byID[sig.ID] = sig
	s.rebuild()
}

// List returns a snapshot of all signatures ordered by ID.
func (s *Store) List() []Signature {
	out := make([]Signature, 0, len(s.byID))
	for _, sig := range s.byID {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many signatures are stored.
func (s *Store) Len() int { return len(s.byID) }

// FindMatches returns every signature whose exact digest equals digest or
// whose glob patterns match the base name of filename. Either argument may
// be empty; with both empty the result is empty. The result is never nil.
func (s *Store) FindMatches(digest, filename string) []Signature {
	matches := []Signature{}
	digest = strings.ToLower(strings.TrimSpace(digest))
	name := strings.ToLower(utils.BaseName(filename))
	if digest == "" && name == "" {
		return matches
	}
	checkDigest := digest != "" && s.mayContain(digest)

	for _, sig := range s.List() {
		if s.matches(sig, checkDigest, digest, name) {
			matches = append(matches, sig)
		}
	}
	return matches
}

func (s *Store) matches(sig Signature, checkDigest bool, digest, name string) bool {
	for _, rule := range sig.Rules {
		switch r := rule.(type) {
		case ExactDigest:
			if checkDigest && strings.ToLower(string(r)) == digest {
				return true
			}
		case FilenameGlob:
			if name == "" {
				continue
			}
			for _, pattern := range r {
				if ok, err := path.Match(strings.ToLower(pattern), name); err == nil && ok {
					return true
				}
			}
		}
	}
	return false
}

func (s *Store) mayContain(digest string) bool {
	if !s.hasDigests {
		return false
	}
	if s.digests == nil {
		return true
	}
	return s.digests.Contains(xxhash.Sum64String(digest))
}

func (s *Store) rebuild() {
	seen := make(map[uint64]struct{})
	keys := make([]uint64, 0, len(s.byID))
	for _, sig := range s.byID {
		for _, rule := range sig.Rules {
			d, ok := rule.(ExactDigest)
			if !ok || d == "" {
				continue
			}
			key := xxhash.Sum64String(strings.ToLower(string(d)))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	s.hasDigests = len(keys) > 0
	s.digests = nil
	if !s.hasDigests {
		return
	}
	if filter, err := xorfilter.Populate(keys); err == nil {
		s.digests = filter
	}
}
