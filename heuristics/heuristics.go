package heuristics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"centinela/logger"
	"centinela/utils"

	"github.com/sirupsen/logrus"
)

type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

// Result is a single heuristic flag.
type Result struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// LargeFileThreshold is the size above which executables are flagged.
const LargeFileThreshold = 50 * 1024 * 1024

var suspiciousExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".bat": {}, ".scr": {}, ".js": {}, ".vbs": {},
}

var binaryExtensions = map[string]struct{}{
	".exe": {}, ".dll": {},
}

const (
	tempSuffix  = ".tmp"
	tildePrefix = "~$"
)

// ProcessAttrs are the process fields the analyzer looks at.
type ProcessAttrs struct {
	Name    string
	Exe     string
	Startup bool
}

// Analyzer evaluates file and process heuristics. It holds no state
// besides its logger.
type Analyzer struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Analyzer {
	return &Analyzer{log: logger.OrDiscard(log)}
}

// File checks a path's extension and size. A negative size means the
// caller did not stat the file; the analyzer does, and a failure only
// disables the size rule.
func (a *Analyzer) File(path string, size int64) []Result {
	var results []Result
	ext := strings.ToLower(filepath.Ext(utils.BaseName(path)))
	if _, ok := suspiciousExtensions[ext]; ok {
		results = append(results, Result{
			ID:          "suspicious-extension",
			Description: fmt.Sprintf("File extension %s often used by malware.", ext),
			Severity:    Medium,
		})
	}

	if _, ok := binaryExtensions[ext]; !ok {
		return results
	}
	if size < 0 {
		info, err := os.Stat(path)
		if err != nil {
			a.log.Warnf("Unable to inspect file %s: %v", path, err)
			return results
		}
		size = info.Size()
	}
	if size > LargeFileThreshold {
		results = append(results, Result{
			ID:          "large-binary",
			Description: "Executable larger than 50 MB; consider verifying source",
			Severity:    Low,
		})
	}
	return results
}

// Process checks a running process's name, executable and autostart flag.
func (a *Analyzer) Process(p ProcessAttrs) []Result {
	var results []Result
	if strings.HasSuffix(strings.ToLower(p.Name), tempSuffix) {
		results = append(results, Result{
			ID:          "temp-process",
			Description: "Process name ends with .tmp which is unusual",
			Severity:    High,
		})
	}
	if p.Startup {
		results = append(results, Result{
			ID:          "auto-start",
			Description: "Process configured to start automatically",
			Severity:    Medium,
		})
	}
	if p.Exe != "" && strings.HasPrefix(utils.BaseName(p.Exe), tildePrefix) {
		results = append(results, Result{
			ID:          "tilde-prefixed",
			Description: "Executable path starts with ~$ which is suspicious",
			Severity:    Medium,
		})
	}
	return results
}

// IDs lists the identifiers of results, in order.
func IDs(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
