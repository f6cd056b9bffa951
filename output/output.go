package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"centinela/config"
	"centinela/logger"
	"centinela/report"

	"github.com/sirupsen/logrus"
)

const (
	FormatJSON = "json"
	FormatText = "text"

	timestampLayout = "20060102T150405Z"
	maxCollisions   = 1000
)

type Options struct {
	Directory string
	Format    string

	OtelEndpoint    string
	OtelHeaders     map[string]string
	OtelServiceName string
	OtelTimeout     time.Duration
	OtelExportPaths bool

	Log logrus.FieldLogger
	Now func() time.Time
}

// OptionsFromConfig maps the reports section of cfg onto writer options.
func OptionsFromConfig(cfg *config.Config, log logrus.FieldLogger) Options {
	return Options{
		Directory:       cfg.Reports.Directory,
		Format:          cfg.Reports.Format,
		OtelEndpoint:    cfg.Reports.OtelEndpoint,
		OtelHeaders:     cfg.Reports.OtelHeaders,
		OtelServiceName: cfg.Reports.OtelServiceName,
		OtelTimeout:     cfg.Reports.OtelTimeout,
		OtelExportPaths: cfg.Reports.OtelExportPaths,
		Log:             log,
	}
}

// Writer persists one file per report in a directory.
type Writer struct {
	mu     sync.Mutex
	dir    string
	format string
	otel   *otelLogger
	log    logrus.FieldLogger
	now    func() time.Time
	last   string
}

func New(opts Options) (*Writer, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatText {
		return nil, fmt.Errorf("invalid report format: %s", opts.Format)
	}
	if strings.TrimSpace(opts.Directory) == "" {
		return nil, fmt.Errorf("report directory must not be empty")
	}
	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	w := &Writer{
		dir:    opts.Directory,
		format: format,
		log:    logger.OrDiscard(opts.Log),
		now:    opts.Now,
	}
	if w.now == nil {
		w.now = time.Now
	}
	otel, err := newOtelLogger(opts)
	if err != nil {
		w.log.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	return w, nil
}

// Dir returns the report directory.
func (w *Writer) Dir() string { return w.dir }

// Format returns json or text.
func (w *Writer) Format() string { return w.format }

// FileName builds the report file name for name written at t.
func FileName(name string, t time.Time, format string) string {
	ext := ".json"
	if format == FormatText {
		ext = ".txt"
	}
	clean := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
	clean = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, clean)
	return t.UTC().Format(timestampLayout) + "_" + clean + ext
}

// Write serializes r to a new file and returns its path. An existing file
// with the same name is never overwritten; a numeric suffix is added
// instead.
func (w *Writer) Write(r *report.ScanReport) (string, error) {
	if r == nil {
		return "", errors.New("nil report")
	}
	var data []byte
	switch w.format {
	case FormatText:
		data = []byte(report.Text(r) + "\n")
	default:
		b, err := jsonMarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode report %s: %w", r.Name, err)
		}
		data = append(b, '\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	name := FileName(r.Name, w.now(), w.format)
	f, path, err := w.create(name)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", path, err)
	}
	w.last = path
	w.log.Infof("Report written to %s", path)
	w.otel.EmitReport(r)
	return path, nil
}

func (w *Writer) create(name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for index := 0; index < maxCollisions; index++ {
		candidate := name
		if index > 0 {
			candidate = fmt.Sprintf("%s.%d%s", base, index, ext)
		}
		path := filepath.Join(w.dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create report file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("create report file: too many reports named %s", name)
}

// LastPath is the file written by the most recent successful Write.
func (w *Writer) LastPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// List returns the JSON reports in the directory, newest first.
func (w *Writer) List() ([]string, error) {
	return ListReports(w.dir)
}

// ListReports returns the JSON reports in dir, newest first. A missing
// directory yields no reports.
func ListReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	type candidate struct {
		path string
		mod  time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, candidate{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].mod.Equal(found[j].mod) {
			return found[i].mod.After(found[j].mod)
		}
		return found[i].path > found[j].path
	})
	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.path
	}
	return out, nil
}

// Close flushes any pending OTLP export.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.otel != nil {
		w.otel.Shutdown(w.log)
		w.otel = nil
	}
}
