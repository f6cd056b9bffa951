// Package gpu lists GPU compute processes reported by nvidia-smi.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"centinela/logger"
	"centinela/systeminfo"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when nvidia-smi is not installed.
var ErrUnavailable = errors.New("nvidia-smi not available")

const tool = "nvidia-smi"

var queryArgs = []string{"--query-compute-apps=pid,process_name,used_memory", "--format=csv,noheader"}

// Process is one compute application using the GPU. MemoryMB is nil when
// the driver reports a value that cannot be parsed.
type Process struct {
	PID      int32    `json:"pid"`
	Name     string   `json:"name"`
	MemoryMB *float64 `json:"gpu_memory_mb"`
}

// Inspector queries the NVIDIA driver.
type Inspector struct {
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	log      logrus.FieldLogger
}

func NewInspector(log logrus.FieldLogger) *Inspector {
	return &Inspector{
		lookPath: exec.LookPath,
		run:      systeminfo.RunCommand,
		log:      logger.OrDiscard(log),
	}
}

// Processes returns the GPU compute processes. A missing tool yields
// ErrUnavailable; a failing tool yields the wrapped error.
func (i *Inspector) Processes(ctx context.Context) ([]Process, error) {
	path, err := i.lookPath(tool)
	if err != nil {
		i.log.Debugf("%s not found: %v", tool, err)
		return nil, ErrUnavailable
	}
	out, err := i.run(ctx, path, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", tool, err)
	}
	return Parse(string(out)), nil
}

// Parse reads `pid, name, memory` lines. Lines without exactly three
// fields or with a non-numeric pid are skipped.
func Parse(output string) []Process {
	var procs []Process
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			continue
		}
		for k := range parts {
			parts[k] = strings.TrimSpace(parts[k])
		}
		pid, err := strconv.ParseInt(parts[0], 10, 32)
		if err != nil {
			continue
		}
		procs = append(procs, Process{
			PID:      int32(pid),
			Name:     parts[1],
			MemoryMB: parseMemory(parts[2]),
		})
	}
	return procs
}

func parseMemory(field string) *float64 {
	tokens := strings.Fields(field)
	if len(tokens) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(tokens[0], 64)
	if err != nil {
		return nil
	}
	return &v
}
