package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"lukechampine.com/blake3"
)

// DefaultBlockSize is the read size used when configuration does not
// override it.
const DefaultBlockSize = 65536

// ErrInvalidBlockSize is returned for a block size that is zero or negative.
var ErrInvalidBlockSize = errors.New("block size must be positive")

// Algorithm names a supported content hash.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ReadError describes a file that could not be opened or read through.
type ReadError struct {
	Path string
	Op   string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ErrorKind classifies per-file failures for reporting.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not-found"
	KindPermission ErrorKind = "permission"
	KindIO         ErrorKind = "io"
)

// Kind returns the class of a hashing error.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	default:
		return KindIO
	}
}

var bufferPools sync.Map // int -> *sync.Pool

func bufferPool(blockSize int) *sync.Pool {
	if p, ok := bufferPools.Load(blockSize); ok {
		return p.(*sync.Pool)
	}
	p, _ := bufferPools.LoadOrStore(blockSize, &sync.Pool{
		New: func() interface{} {
			buf := make([]byte, blockSize)
			return &buf
		},
	})
	return p.(*sync.Pool)
}

// File returns the lowercase hex SHA-256 digest of the file at path, read
// sequentially in blockSize chunks.
func File(path string, blockSize int) (string, error) {
	return FileWith(path, blockSize, SHA256)
}

// FileWith is File with a selectable algorithm.
func FileWith(path string, blockSize int, algorithm Algorithm) (string, error) {
	if blockSize <= 0 {
		return "", ErrInvalidBlockSize
	}
	h, err := New(algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", &ReadError{Path: path, Op: "open", Err: err}
	}
	defer file.Close()

	if err := stream(file, h, blockSize); err != nil {
		return "", &ReadError{Path: path, Op: "read", Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Reader digests everything r yields with SHA-256.
func Reader(r io.Reader, blockSize int) (string, error) {
	if blockSize <= 0 {
		return "", ErrInvalidBlockSize
	}
	h := sha256.New()
	if err := stream(r, h, blockSize); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// New returns a fresh hash for the named algorithm.
func New(algorithm Algorithm) (hash.Hash, error) {
	switch Algorithm(strings.ToLower(string(algorithm))) {
	case SHA256, "":
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

func stream(r io.Reader, h hash.Hash, blockSize int) error {
	pool := bufferPool(blockSize)
	bufferPtr := pool.Get().(*[]byte)
	defer pool.Put(bufferPtr)
	buffer := *bufferPtr

	for {
		n, readErr := r.Read(buffer)
		if n > 0 {
			// hash.Hash.Write never returns an error
			h.Write(buffer[:n])
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
