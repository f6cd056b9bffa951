package systeminfo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"centinela/logger"
	"centinela/utils"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
)

type ProcessInfo struct {
	PID         int32    `json:"pid"`
	Name        string   `json:"name"`
	Exe         string   `json:"exe,omitempty"`
	Username    string   `json:"username,omitempty"`
	Connections []string `json:"connections"`
	Startup     bool     `json:"startup"`
}

// Skip records a process that could not be inspected.
type Skip struct {
	PID int32
	Err error
}

func (s Skip) String() string {
	return fmt.Sprintf("proceso %d: %v", s.PID, s.Err)
}

// Lister enumerates running processes.
type Lister struct {
	startupDirs []string
	log         logrus.FieldLogger
}

// NewLister returns a lister that flags executables living under any of
// startupDirs. A leading ~ in a directory is expanded.
func NewLister(startupDirs []string, log logrus.FieldLogger) *Lister {
	dirs := make([]string, 0, len(startupDirs))
	for _, d := range startupDirs {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, utils.ExpandHome(d))
		}
	}
	return &Lister{startupDirs: dirs, log: logger.OrDiscard(log)}
}

// Processes returns every running process. Processes that exit while being
// inspected are returned as skips. When the process table cannot be read
// through the OS APIs, the platform's process listing command is used.
func (l *Lister) Processes(ctx context.Context) ([]ProcessInfo, []Skip, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		l.log.Warnf("Unable to enumerate processes: %v", err)
		fallback, ferr := l.fallbackProcesses(ctx)
		if ferr != nil {
			return nil, nil, fmt.Errorf("failed to get running processes: %w", err)
		}
		return fallback, nil, nil
	}

	connections := l.connections(ctx)
	var (
		out   []ProcessInfo
		skips []Skip
	)
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return out, skips, err
		}
		running, err := p.IsRunningWithContext(ctx)
		if err == nil && !running {
			skips = append(skips, Skip{PID: p.Pid, Err: fmt.Errorf("process exited")})
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			name = "unknown"
		}
		info := ProcessInfo{
			PID:         p.Pid,
			Name:        name,
			Connections: connections[p.Pid],
		}
		if exe, err := p.ExeWithContext(ctx); err == nil {
			info.Exe = exe
		}
		if username, err := p.UsernameWithContext(ctx); err == nil {
			info.Username = username
		}
		if info.Connections == nil {
			info.Connections = []string{}
		}
		info.Startup = IsStartup(info.Exe, l.startupDirs)
		out = append(out, info)
	}
	return out, skips, nil
}

func (l *Lister) connections(ctx context.Context) map[int32][]string {
	conns, err := gnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		l.log.Debugf("Unable to list connections: %v", err)
		return map[int32][]string{}
	}
	return groupConnections(conns)
}

// groupConnections maps pid to its local "ip:port" addresses.
func groupConnections(conns []gnet.ConnectionStat) map[int32][]string {
	out := make(map[int32][]string)
	for _, c := range conns {
		if c.Laddr.IP == "" {
			continue
		}
		out[c.Pid] = append(out[c.Pid], fmt.Sprintf("%s:%d", c.Laddr.IP, c.Laddr.Port))
	}
	return out
}

// IsStartup reports whether exe lives under one of the autostart
// directories. The comparison ignores case and path separator style.
func IsStartup(exe string, startupDirs []string) bool {
	if exe == "" {
		return false
	}
	exePath := normalizeForMatch(exe)
	for _, dir := range startupDirs {
		if dir == "" {
			continue
		}
		if strings.Contains(exePath, normalizeForMatch(dir)) {
			return true
		}
	}
	return false
}

func normalizeForMatch(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, `\`, "/"))
}

func (l *Lister) fallbackProcesses(ctx context.Context) ([]ProcessInfo, error) {
	if runtime.GOOS == "windows" {
		out, err := RunCommand(ctx, "tasklist", "/fo", "csv")
		if err != nil {
			return nil, err
		}
		return parseTasklist(string(out)), nil
	}
	out, err := RunCommand(ctx, "ps", "-eo", "pid,comm")
	if err != nil {
		return nil, err
	}
	return parsePS(string(out)), nil
}

// parsePS reads `ps -eo pid,comm` output, skipping the header.
func parsePS(output string) []ProcessInfo {
	var out []ProcessInfo
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
		if len(fields) == 0 || fields[0] == "" {
			continue
		}
		pid, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			continue
		}
		name := "unknown"
		if len(fields) > 1 && strings.TrimSpace(fields[1]) != "" {
			name = strings.TrimSpace(fields[1])
		}
		out = append(out, ProcessInfo{PID: int32(pid), Name: name, Connections: []string{}})
	}
	return out
}

// parseTasklist reads `tasklist /fo csv` output, skipping the header.
func parseTasklist(output string) []ProcessInfo {
	var out []ProcessInfo
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, `","`)
		if len(fields) < 2 {
			continue
		}
		name := strings.Trim(fields[0], `"`)
		pid, err := strconv.ParseInt(strings.Trim(fields[1], `"`), 10, 32)
		if err != nil {
			continue
		}
		out = append(out, ProcessInfo{PID: int32(pid), Name: name, Connections: []string{}})
	}
	return out
}

// DefaultScanPaths returns the usual user and program directories of the
// current OS that exist.
func DefaultScanPaths() []string {
	home, _ := os.UserHomeDir()
	return defaultScanPaths(runtime.GOOS, home, func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	})
}

func defaultScanPaths(goos, home string, exists func(string) bool) []string {
	var candidates []string
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, "Downloads"),
			filepath.Join(home, "Documents"),
			filepath.Join(home, "Desktop"),
		)
	}
	switch goos {
	case "windows":
		candidates = append(candidates, "C:/Program Files", "C:/Program Files (x86)")
	case "darwin":
		candidates = append(candidates, "/Applications")
	default:
		candidates = append(candidates, "/usr/local/bin", "/usr/bin")
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if exists(c) {
			out = append(out, c)
		}
	}
	return out
}

// ElevationPrompt is shown before actions that need administrator rights.
const ElevationPrompt = "Advertencia: esta acción requiere privilegios de administrador. ¿Conceder permiso? (S/N)"
