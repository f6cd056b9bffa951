package logger

import (
	"fmt"
	"os"
	"sync"
)

// rotatingFile is an io.WriteCloser that rolls the file over once it would
// grow past maxBytes, keeping up to backups old copies named path.1..path.N.
// With maxBytes or backups <= 0 the file grows without bound.
type rotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int
	file     *os.File
	size     int64
}

func openRotatingFile(path string, maxBytes int64, backups int) (*rotatingFile, error) {
	r := &rotatingFile{path: path, maxBytes: maxBytes, backups: backups}
	if err := r.openFile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) openFile() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.shouldRotate(len(p)) {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) shouldRotate(incoming int) bool {
	if r.maxBytes <= 0 || r.backups <= 0 || r.size == 0 {
		return false
	}
	return r.size+int64(incoming) > r.maxBytes
}

func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil
	for i := r.backups - 1; i >= 1; i-- {
		src := backupName(r.path, i)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, backupName(r.path, i+1)); err != nil {
				return err
			}
		}
	}
	if err := os.Rename(r.path, backupName(r.path, 1)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return r.openFile()
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func backupName(path string, index int) string {
	return fmt.Sprintf("%s.%d", path, index)
}
