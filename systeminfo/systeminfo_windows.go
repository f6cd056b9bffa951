//go:build windows
// +build windows

package systeminfo

import (
	"context"
	"os/exec"
	"time"

	"golang.org/x/sys/windows"
)

const commandTimeout = 5 * time.Second

// IsAdmin reports whether the process token is elevated.
func IsAdmin() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// RunCommand runs an external tool with a five second timeout, returning
// its standard output.
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}
