package dupes

import (
	"context"
	"fmt"
	"io"
	"os"

	"centinela/hasher"
	"centinela/logger"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

// Skip records a path left out of duplicate detection.
type Skip struct {
	Path string
	Err  error
}

func (s Skip) String() string {
	return fmt.Sprintf("%s: %v", s.Path, s.Err)
}

// Group is a set of files with identical content.
type Group struct {
	Digest string
	Size   int64
	Paths  []string
}

// Result is the outcome of a duplicate search. Groups follow the input
// order of their size class, and members keep input order.
type Result struct {
	Groups  []Group
	Skipped []Skip
}

// Map returns the digest to paths view of the result.
func (r Result) Map() map[string][]string {
	out := make(map[string][]string, len(r.Groups))
	for _, g := range r.Groups {
		out[g.Digest] = append([]string(nil), g.Paths...)
	}
	return out
}

// Reclaimable estimates the bytes freed by keeping one copy per group.
func Reclaimable(groups []Group) int64 {
	var total int64
	for _, g := range groups {
		if len(g.Paths) > 1 {
			total += g.Size * int64(len(g.Paths)-1)
		}
	}
	return total
}

// sizeGroup keeps paths of one size in input order.
type sizeGroup struct {
	size  int64
	paths []string
	infos []os.FileInfo
}

// sameFileAs reports whether info is a link to a file already in g.
func (g *sizeGroup) sameFileAs(info os.FileInfo) bool {
	for _, other := range g.infos {
		if os.SameFile(other, info) {
			return true
		}
	}
	return false
}

// GroupBySize partitions paths by byte size. Paths that cannot be stat'ed,
// or are not regular files, are returned as skips and appear in no group.
func GroupBySize(paths []string) (map[int64][]string, []Skip) {
	groups, skipped := groupBySize(paths)
	out := make(map[int64][]string, len(groups))
	for _, g := range groups {
		out[g.size] = g.paths
	}
	return out, skipped
}

func groupBySize(paths []string) ([]*sizeGroup, []Skip) {
	var (
		ordered []*sizeGroup
		bySize  = make(map[int64]*sizeGroup)
		skipped []Skip
		seen    = make(map[string]struct{}, len(paths))
	)
	for _, path := range paths {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}

		info, err := os.Stat(path)
		if err != nil {
			skipped = append(skipped, Skip{Path: path, Err: err})
			continue
		}
		if !info.Mode().IsRegular() {
			skipped = append(skipped, Skip{Path: path, Err: fmt.Errorf("not a regular file")})
			continue
		}
		g, ok := bySize[info.Size()]
		if !ok {
			g = &sizeGroup{size: info.Size()}
			bySize[info.Size()] = g
			ordered = append(ordered, g)
		}
		// Symlinks and hard links to a member are the same file, not a copy.
		if g.sameFileAs(info) {
			continue
		}
		g.paths = append(g.paths, path)
		g.infos = append(g.infos, info)
	}
	return ordered, skipped
}

// Detector finds files with identical content.
type Detector struct {
	blockSize int
	log       logrus.FieldLogger
}

// NewDetector returns a detector hashing in blocks of blockSize bytes.
func NewDetector(blockSize int, log logrus.FieldLogger) (*Detector, error) {
	if blockSize <= 0 {
		return nil, hasher.ErrInvalidBlockSize
	}
	return &Detector{blockSize: blockSize, log: logger.OrDiscard(log)}, nil
}

// Find groups paths by size, narrows each group by a hash of its first
// block, then buckets the survivors by full SHA-256 digest. Only buckets
// with two or more members are returned. Per-file failures are logged
// and returned as skips. Find stops early when ctx is cancelled and
// returns the groups completed so far along with ctx.Err().
func (d *Detector) Find(ctx context.Context, paths []string) (Result, error) {
	var result Result
	sizeGroups, skipped := groupBySize(paths)
	for _, s := range skipped {
		d.log.Warnf("Unable to stat %s: %v", s.Path, s.Err)
	}
	result.Skipped = append(result.Skipped, skipped...)

	for _, sg := range sizeGroups {
		if len(sg.paths) < 2 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		d.log.Debugf("Analysing %d candidates of size %d", len(sg.paths), sg.size)

		candidates := sg.paths
		if sg.size > int64(d.blockSize) {
			candidates = d.prefilter(sg.paths, &result)
		}
		groups, err := d.bucket(ctx, sg.size, candidates, &result)
		result.Groups = append(result.Groups, groups...)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// prefilter drops members whose first block differs from every other
// member's. Identical files always share the head hash.
func (d *Detector) prefilter(paths []string, result *Result) []string {
	heads := make(map[uint64]int, len(paths))
	keys := make([]uint64, len(paths))
	ok := make([]bool, len(paths))
	for i, path := range paths {
		key, err := d.headHash(path)
		if err != nil {
			d.log.Warnf("Unable to hash %s: %v", path, err)
			result.Skipped = append(result.Skipped, Skip{Path: path, Err: err})
			continue
		}
		keys[i] = key
		ok[i] = true
		heads[key]++
	}
	out := make([]string, 0, len(paths))
	for i, path := range paths {
		if ok[i] && heads[keys[i]] > 1 {
			out = append(out, path)
		}
	}
	return out
}

func (d *Detector) headHash(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &hasher.ReadError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.CopyN(h, f, int64(d.blockSize)); err != nil && err != io.EOF {
		return 0, &hasher.ReadError{Path: path, Op: "read", Err: err}
	}
	return h.Sum64(), nil
}

func (d *Detector) bucket(ctx context.Context, size int64, paths []string, result *Result) ([]Group, error) {
	if len(paths) < 2 {
		return nil, nil
	}
	var order []string
	buckets := make(map[string][]string)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return collect(order, buckets, size), err
		}
		digest, err := hasher.File(path, d.blockSize)
		if err != nil {
			d.log.Warnf("Unable to hash %s: %v", path, err)
			result.Skipped = append(result.Skipped, Skip{Path: path, Err: err})
			continue
		}
		if _, exists := buckets[digest]; !exists {
			order = append(order, digest)
		}
		buckets[digest] = append(buckets[digest], path)
	}
	return collect(order, buckets, size), nil
}

func collect(order []string, buckets map[string][]string, size int64) []Group {
	var groups []Group
	for _, digest := range order {
		if members := buckets[digest]; len(members) > 1 {
			groups = append(groups, Group{Digest: digest, Size: size, Paths: members})
		}
	}
	return groups
}

// FindDuplicates returns digest -> paths for every set of two or more
// identical files. Unreadable files are left out.
func FindDuplicates(paths []string, blockSize int) (map[string][]string, error) {
	d, err := NewDetector(blockSize, nil)
	if err != nil {
		return nil, err
	}
	res, err := d.Find(context.Background(), paths)
	if err != nil {
		return nil, err
	}
	return res.Map(), nil
}
