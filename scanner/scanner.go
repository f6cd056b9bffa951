package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"centinela/config"
	"centinela/dupes"
	"centinela/fuzzy"
	"centinela/gpu"
	"centinela/heuristics"
	"centinela/logger"
	"centinela/report"
	"centinela/signatures"
	"centinela/systeminfo"
	"centinela/utils"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Report names, one per scan mode.
const (
	NameFiles      = "escaneo_archivos"
	NameProcesses  = "escaneo_procesos"
	NameGPU        = "escaneo_gpu"
	NameDuplicates = "busqueda_duplicados"
	NameFull       = "escaneo_completo"
)

// LimitationCancelled is recorded on reports whose scan was interrupted.
const LimitationCancelled = "Escaneo cancelado"

// ProcessLister enumerates running processes.
type ProcessLister interface {
	Processes(ctx context.Context) ([]systeminfo.ProcessInfo, []systeminfo.Skip, error)
}

// GPUInspector lists GPU compute processes.
type GPUInspector interface {
	Processes(ctx context.Context) ([]gpu.Process, error)
}

// ReportWriter persists finished reports.
type ReportWriter interface {
	Write(r *report.ScanReport) (string, error)
}

// Options wires a Scanner. Nil collaborators are replaced with the
// built-in implementations.
type Options struct {
	// Paths are the roots scanned when an operation gets none. Empty means
	// the per-OS defaults.
	Paths          []string
	BlockSize      int
	FollowSymlinks bool
	Include        []string
	Exclude        []string
	IgnoreFile     string
	MaxIOPerSecond int
	FuzzyHash      bool

	Signatures *signatures.Store
	Heuristics *heuristics.Analyzer
	Processes  ProcessLister
	GPU        GPUInspector
	Writer     ReportWriter

	Log logrus.FieldLogger
	// Progress receives the progress spinner. Nil means stderr.
	Progress io.Writer
	Now      func() time.Time
}

// OptionsFromConfig maps the scanning section of cfg onto Options.
func OptionsFromConfig(cfg *config.Config, log logrus.FieldLogger) Options {
	sc := cfg.Scanning
	return Options{
		Paths:          sc.Paths,
		BlockSize:      sc.BlockSize,
		FollowSymlinks: sc.FollowSymlinks,
		Include:        sc.Include,
		Exclude:        sc.Exclude,
		IgnoreFile:     sc.IgnoreFile,
		MaxIOPerSecond: sc.MaxIOPerSecond,
		FuzzyHash:      sc.FuzzyHash,
		Processes:      systeminfo.NewLister(sc.StartupDirs, log),
		Log:            log,
	}
}

// Scanner runs the scan modes one item at a time and writes a report per
// operation.
type Scanner struct {
	paths          []string
	blockSize      int
	followSymlinks bool
	matcher        *utils.PatternMatcher
	limiter        *rate.Limiter
	fuzzy          fuzzy.Hasher

	signatures *signatures.Store
	heuristics *heuristics.Analyzer
	detector   *dupes.Detector
	processes  ProcessLister
	gpu        GPUInspector
	writer     ReportWriter

	log          logrus.FieldLogger
	progress     io.Writer
	now          func() time.Time
	defaultPaths func() []string
}

func New(opts Options) (*Scanner, error) {
	log := logger.OrDiscard(opts.Log)
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = config.Default().Scanning.BlockSize
	}
	detector, err := dupes.NewDetector(blockSize, log)
	if err != nil {
		return nil, err
	}
	if opts.MaxIOPerSecond < 0 {
		return nil, fmt.Errorf("max IO per second must be non-negative, got %d", opts.MaxIOPerSecond)
	}

	matcher := utils.NewPatternMatcher(opts.Include, opts.Exclude)
	if strings.TrimSpace(opts.IgnoreFile) != "" {
		ignore, err := utils.LoadIgnoreFile(utils.ExpandHome(opts.IgnoreFile))
		if err != nil {
			return nil, fmt.Errorf("failed to load ignore file: %w", err)
		}
		matcher.WithIgnore(ignore)
	}

	s := &Scanner{
		paths:          opts.Paths,
		blockSize:      blockSize,
		followSymlinks: opts.FollowSymlinks,
		matcher:        matcher,
		signatures:     opts.Signatures,
		heuristics:     opts.Heuristics,
		detector:       detector,
		processes:      opts.Processes,
		gpu:            opts.GPU,
		writer:         opts.Writer,
		log:            log,
		progress:       opts.Progress,
		now:            opts.Now,
		defaultPaths:   systeminfo.DefaultScanPaths,
	}
	if opts.MaxIOPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.MaxIOPerSecond), opts.MaxIOPerSecond)
	}
	if opts.FuzzyHash {
		if h, ok := fuzzy.Default().Lookup("tlsh"); ok {
			s.fuzzy = h
		}
	}
	if s.signatures == nil {
		s.signatures = signatures.New()
	}
	if s.heuristics == nil {
		s.heuristics = heuristics.New(log)
	}
	if s.processes == nil {
		s.processes = systeminfo.NewLister(config.DefaultStartupDirs, log)
	}
	if s.gpu == nil {
		s.gpu = gpu.NewInspector(log)
	}
	if s.progress == nil {
		s.progress = os.Stderr
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Signatures returns the store used for matching.
func (s *Scanner) Signatures() *signatures.Store { return s.signatures }

func (s *Scanner) roots(paths []string) []string {
	if len(paths) == 0 {
		paths = s.paths
	}
	if len(paths) == 0 {
		paths = s.defaultPaths()
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, utils.ExpandHome(p))
		}
	}
	return out
}

// complete finishes rep, writes it and returns it. A cancelled context is
// noted on the report and returned as the error.
func (s *Scanner) complete(ctx context.Context, rep *report.ScanReport, scanErr error) (*report.ScanReport, error) {
	if scanErr != nil && ctx.Err() != nil {
		scanErr = ctx.Err()
		if !hasLimitation(rep, LimitationCancelled) {
			rep.AddLimitation(LimitationCancelled)
		}
		s.log.Warnf("Scan %s cancelled", rep.Name)
	}
	rep.Finish(s.now())
	s.log.WithFields(logrus.Fields{
		"report":   rep.Name,
		"findings": len(rep.Findings),
		"duration": rep.Duration().String(),
	}).Info("Scan finished")

	if s.writer != nil {
		if _, err := s.writer.Write(rep); err != nil {
			s.log.Errorf("Failed to write report %s: %v", rep.Name, err)
			if scanErr == nil {
				scanErr = fmt.Errorf("failed to write report: %w", err)
			}
		}
	}
	return rep, scanErr
}

func hasLimitation(rep *report.ScanReport, note string) bool {
	for _, l := range rep.Limitations {
		if l == note {
			return true
		}
	}
	return false
}

func (s *Scanner) newProgress(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(s.progress),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(progressVisible()),
		progressbar.OptionFullWidth(),
	)
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("CENTINELA_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}

// reason strips the path from OS errors, which the limitation text
// already names.
func reason(err error) string {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}

func signatureIDs(sigs []signatures.Signature) []string {
	ids := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		ids = append(ids, sig.ID)
	}
	return ids
}

func riskFor(sigs []signatures.Signature) report.Risk {
	if len(sigs) > 0 {
		return report.RiskHigh
	}
	return report.RiskMedium
}
