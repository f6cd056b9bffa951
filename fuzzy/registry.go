package fuzzy

import (
	"sort"
	"strings"
)

// Hasher defines a fuzzy hashing implementation.
type Hasher interface {
	Name() string
	HashFile(path string) (string, error)
}

// Registry maps lower-cased hasher names to implementations.
type Registry struct {
	hashers map[string]Hasher
}

// NewRegistry returns a registry holding the given hashers.
func NewRegistry(hashers ...Hasher) *Registry {
	r := &Registry{hashers: map[string]Hasher{}}
	for _, h := range hashers {
		r.Register(h)
	}
	return r
}

// Default returns a registry with every built-in hasher.
func Default() *Registry {
	return NewRegistry(TLSHHasher{})
}

// Register adds a fuzzy hasher to the registry.
func (r *Registry) Register(hasher Hasher) {
	if hasher == nil {
		return
	}
	r.hashers[strings.ToLower(hasher.Name())] = hasher
}

// Lookup returns a registered hasher by name.
func (r *Registry) Lookup(name string) (Hasher, bool) {
	hasher, ok := r.hashers[strings.ToLower(name)]
	return hasher, ok
}

// Available returns the sorted names of registered hashers.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.hashers))
	for name := range r.hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
