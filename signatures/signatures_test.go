package signatures

import (
	"fmt"
	"strings"
	"testing"
)

func ids(sigs []Signature) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.ID
	}
	return out
}

func TestFindMatchesWithoutCriteria(t *testing.T) {
	s := New()
	got := s.FindMatches("", "")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestFindMatchesExactDigest(t *testing.T) {
	s := New()
	got := s.FindMatches(DemoDigest, "")
	if len(got) != 1 || got[0].ID != "demo-test-malware" {
		t.Fatalf("expected demo signature, got %v", ids(got))
	}
	// digests compare case-insensitively
	if got := s.FindMatches(strings.ToUpper(DemoDigest), ""); len(got) != 1 {
		t.Fatalf("expected uppercase digest to match, got %v", ids(got))
	}
	if got := s.FindMatches(strings.Repeat("0", 64), ""); len(got) != 0 {
		t.Fatalf("expected no match for unknown digest, got %v", ids(got))
	}
}

func TestFindMatchesFilenameGlob(t *testing.T) {
	s := New()
	cases := []struct {
		filename string
		want     bool
	}{
		{"setup_installer.bat", true},
		{"/home/user/Downloads/update-now.bat", true},
		{`C:\Users\me\Desktop\SETUP.BAT`, true},
		{"setup.exe", false},
		{"/tmp/setup/readme.txt", false},
		{"mysetup.bat", false},
	}
	for _, tc := range cases {
		got := s.FindMatches("", tc.filename)
		if (len(got) == 1) != tc.want {
			t.Errorf("%s: expected match=%v, got %v", tc.filename, tc.want, ids(got))
		}
	}
}

func TestFindMatchesBothCriteria(t *testing.T) {
	s := New()
	got := s.FindMatches(DemoDigest, "setup.bat")
	if len(got) != 2 {
		t.Fatalf("expected both built-ins to match, got %v", ids(got))
	}
	if got[0].ID != "demo-test-malware" || got[1].ID != "suspicious-batch-naming" {
		t.Fatalf("unexpected order: %v", ids(got))
	}
}

func TestAddUpserts(t *testing.T) {
	s := New()
	before := s.Len()
	s.Add(Signature{
		ID:          "demo-test-malware",
		Description: "replaced",
		Rules:       []MatchRule{ExactDigest("abc123")},
	})
	if s.Len() != before {
		t.Fatalf("expected upsert to keep %d signatures, got %d", before, s.Len())
	}
	if got := s.FindMatches(DemoDigest, ""); len(got) != 0 {
		t.Fatalf("old digest should no longer match, got %v", ids(got))
	}
	got := s.FindMatches("ABC123", "")
	if len(got) != 1 || got[0].Description != "replaced" {
		t.Fatalf("expected replaced signature, got %+v", got)
	}
}

func TestAddManyDigests(t *testing.T) {
	s := New()
	for i := 0; i < 200; i++ {
		s.Add(Signature{ID: fmt.Sprintf("sig-%03d", i), Rules: []MatchRule{ExactDigest(fmt.Sprintf("%064x", i))}})
	}
	for i := 0; i < 200; i++ {
		if got := s.FindMatches(fmt.Sprintf("%064x", i), ""); len(got) != 1 {
			t.Fatalf("digest %d: expected one match, got %v", i, ids(got))
		}
	}
}

func TestStoreWithoutDigests(t *testing.T) {
	s := &Store{byID: map[string]Signature{}}
	s.Add(Signature{ID: "glob-only", Rules: []MatchRule{FilenameGlob{"*.scr"}}})
	if got := s.FindMatches(DemoDigest, "screen.SCR"); len(got) != 1 {
		t.Fatalf("expected glob match, got %v", ids(got))
	}
	if got := s.FindMatches(DemoDigest, ""); len(got) != 0 {
		t.Fatalf("expected no digest match, got %v", ids(got))
	}
}

func TestListSnapshot(t *testing.T) {
	s := New()
	list := s.List()
	if len(list) != 2 || list[0].ID != "demo-test-malware" || list[1].ID != "suspicious-batch-naming" {
		t.Fatalf("unexpected built-ins: %v", ids(list))
	}
	list[0].ID = "mutated"
	if s.List()[0].ID != "demo-test-malware" {
		t.Fatal("List must return a snapshot")
	}
	if list[1].Digest() != "" || len(list[1].Patterns()) != 2 {
		t.Fatalf("unexpected rule accessors: %q %v", list[1].Digest(), list[1].Patterns())
	}
}
