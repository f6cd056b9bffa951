//go:build !windows
// +build !windows

package systeminfo

import (
	"context"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
)

const commandTimeout = 5 * time.Second

// IsAdmin reports whether the process runs as root.
func IsAdmin() bool {
	return unix.Geteuid() == 0
}

func safeCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "PATH=/usr/sbin:/usr/bin:/sbin:/bin:/usr/local/bin:/opt/homebrew/bin")
	return cmd
}

// RunCommand runs an external tool with a fixed search path and a five
// second timeout, returning its standard output.
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	cmd := safeCommand(ctx, name, args...)
	return cmd.Output()
}
