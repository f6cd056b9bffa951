package fuzzy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type stubHasher struct{ name string }

func (s stubHasher) Name() string { return s.name }
func (s stubHasher) HashFile(string) (string, error) { return "stub", nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubHasher{name: "Stub"}, nil)
	if _, ok := r.Lookup("STUB"); !ok {
		t.Fatal("expected case-insensitive lookup")
	}
	if _, ok := r.Lookup("tlsh"); ok {
		t.Fatal("tlsh was not registered")
	}
	if got := Default().Available(); len(got) != 1 || got[0] != "tlsh" {
		t.Fatalf("unexpected default hashers: %v", got)
	}
}

func TestTLSHHashFile(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 64; i++ {
		b.WriteString("the quick brown fox jumps over the lazy dog ")
		b.WriteByte(byte('a' + i%26))
	}
	path := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	hash, err := TLSHHasher{}.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty tlsh digest")
	}

	small := filepath.Join(dir, "small.txt")
	if err := os.WriteFile(small, []byte("tiny"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := (TLSHHasher{}).HashFile(small); err == nil {
		t.Fatal("expected error for input below the tlsh minimum")
	}
	if _, err := (TLSHHasher{}).HashFile(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
