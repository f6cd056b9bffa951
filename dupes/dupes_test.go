package dupes

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"centinela/hasher"
)

func write(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFindDuplicatesScenario(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.txt", []byte("hello"))
	b := write(t, dir, "b.txt", []byte("hello"))
	c := write(t, dir, "c.txt", []byte("world"))

	groups, err := FindDuplicates([]string{a, b, c}, 1024)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d: %v", len(groups), groups)
	}
	for digest, paths := range groups {
		if len(paths) != 2 || paths[0] != a || paths[1] != b {
			t.Fatalf("unexpected members for %s: %v", digest, paths)
		}
		want, _ := hasher.File(a, 1024)
		if digest != want {
			t.Fatalf("expected digest %s, got %s", want, digest)
		}
	}
}

func TestReclaimable(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.txt", []byte("hello"))
	b := write(t, dir, "b.txt", []byte("hello"))
	c := write(t, dir, "c.txt", []byte("world"))

	d, err := NewDetector(1024, nil)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	res, err := d.Find(context.Background(), []string{a, b, c})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := Reclaimable(res.Groups); got != 5 {
		t.Fatalf("expected 5 reclaimable bytes, got %d", got)
	}

	groups := []Group{
		{Size: 10, Paths: []string{"x", "y", "z"}},
		{Size: 3, Paths: []string{"p", "q"}},
	}
	if got := Reclaimable(groups); got != 23 {
		t.Fatalf("expected 23, got %d", got)
	}
}

func TestGroupBySizeMembership(t *testing.T) {
	dir := t.TempDir()
	one := write(t, dir, "one", []byte("1"))
	two := write(t, dir, "two", []byte("22"))
	also := write(t, dir, "also-one", []byte("x"))
	missing := filepath.Join(dir, "missing")

	groups, skipped := GroupBySize([]string{one, two, missing, also})
	if len(skipped) != 1 || skipped[0].Path != missing {
		t.Fatalf("expected missing path to be skipped, got %v", skipped)
	}
	if !errors.Is(skipped[0].Err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", skipped[0].Err)
	}

	seen := map[string]int{}
	for _, paths := range groups {
		for _, p := range paths {
			seen[p]++
		}
	}
	for _, p := range []string{one, two, also} {
		if seen[p] != 1 {
			t.Fatalf("expected %s in exactly one group, found %d", p, seen[p])
		}
	}
	if seen[missing] != 0 {
		t.Fatal("missing path must not appear in any group")
	}
	if got := groups[1]; len(got) != 2 || got[0] != one || got[1] != also {
		t.Fatalf("unexpected size-1 group: %v", got)
	}
}

func TestGroupBySizeSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	_, skipped := GroupBySize([]string{dir})
	if len(skipped) != 1 {
		t.Fatalf("expected directory to be skipped, got %v", skipped)
	}
}

func TestFindUsesHeadPrefilter(t *testing.T) {
	dir := t.TempDir()
	base := bytes.Repeat([]byte("a"), 64)
	other := bytes.Repeat([]byte("b"), 64)
	tail := append(append([]byte(nil), base[:32]...), other[:32]...)

	a := write(t, dir, "a.bin", base)
	b := write(t, dir, "b.bin", base)
	c := write(t, dir, "c.bin", other)
	// same head as a and b, different tail
	d := write(t, dir, "d.bin", append(append([]byte(nil), base[:16]...), tail[16:]...))

	det, err := NewDetector(16, nil)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	res, err := det.Find(context.Background(), []string{a, b, c, d})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("expected one group, got %+v", res.Groups)
	}
	g := res.Groups[0]
	if len(g.Paths) != 2 || g.Paths[0] != a || g.Paths[1] != b || g.Size != 64 {
		t.Fatalf("unexpected group: %+v", g)
	}
	if len(res.Skipped) != 0 {
		t.Fatalf("expected no skips, got %v", res.Skipped)
	}
}

func TestFindNeverGroupsSingleFile(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.txt", []byte("same"))

	res, err := FindDuplicates([]string{a, a}, 8)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("a file must not be its own duplicate: %v", res)
	}
}

func TestFindRecordsSkips(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.txt", []byte("same"))
	b := write(t, dir, "b.txt", []byte("same"))
	missing := filepath.Join(dir, "gone.txt")

	det, _ := NewDetector(8, nil)
	res, err := det.Find(context.Background(), []string{a, missing, b})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(res.Groups) != 1 {
		t.Fatalf("expected one group, got %+v", res.Groups)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Path != missing {
		t.Fatalf("expected skip for missing file, got %v", res.Skipped)
	}
}

func TestFindCancelled(t *testing.T) {
	dir := t.TempDir()
	a := write(t, dir, "a.txt", []byte("same"))
	b := write(t, dir, "b.txt", []byte("same"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	det, _ := NewDetector(8, nil)
	_, err := det.Find(ctx, []string{a, b})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewDetectorRejectsBlockSize(t *testing.T) {
	if _, err := NewDetector(0, nil); !errors.Is(err, hasher.ErrInvalidBlockSize) {
		t.Fatalf("expected ErrInvalidBlockSize, got %v", err)
	}
	if _, err := FindDuplicates(nil, -1); err == nil {
		t.Fatal("expected error for negative block size")
	}
}

func TestFindIgnoresLinksToTheSameFile(t *testing.T) {
	dir := t.TempDir()
	target := write(t, dir, "z.bin", []byte("payload"))
	soft := filepath.Join(dir, "0link")
	hard := filepath.Join(dir, "hard.bin")
	if err := os.Symlink(target, soft); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Link(target, hard); err != nil {
		t.Skipf("hard links unsupported: %v", err)
	}

	d, err := NewDetector(1024, nil)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	res, err := d.Find(context.Background(), []string{soft, hard, target})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(res.Groups) != 0 || Reclaimable(res.Groups) != 0 {
		t.Fatalf("links to one file must not be duplicates, got %#v", res.Groups)
	}

	copyPath := write(t, dir, "copy.bin", []byte("payload"))
	res, err = d.Find(context.Background(), []string{soft, hard, target, copyPath})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(res.Groups) != 1 || len(res.Groups[0].Paths) != 2 {
		t.Fatalf("expected one group of two, got %#v", res.Groups)
	}
	if got := Reclaimable(res.Groups); got != 7 {
		t.Fatalf("expected 7 reclaimable bytes, got %d", got)
	}
}
