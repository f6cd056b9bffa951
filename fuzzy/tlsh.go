package fuzzy

import (
	"bufio"
	"fmt"
	"os"

	"github.com/glaslos/tlsh"
)

// MinTLSHSize is the smallest input TLSH can digest.
const MinTLSHSize = 50

type TLSHHasher struct{}

func (h TLSHHasher) Name() string {
	return "tlsh"
}

func (h TLSHHasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() < MinTLSHSize {
		return "", fmt.Errorf("tlsh: %s is smaller than %d bytes", path, MinTLSHSize)
	}

	reader := bufio.NewReader(f)
	hash, err := tlsh.HashReader(reader)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}
