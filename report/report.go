package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Summary keys shared by every scan mode.
const (
	KeySuspicious    = "sospechosos"
	KeyIncluded      = "reportes_incluidos"
	KeyTotalFindings = "hallazgos_totales"
)

// Item is one finding. Items are not modified once added to a report.
type Item struct {
	Title           string         `json:"title"`
	Details         map[string]any `json:"details"`
	Risk            Risk           `json:"risk"`
	Recommendations []string       `json:"recommendations"`
}

// ScanReport collects the findings and limitations of a single scan.
type ScanReport struct {
	Name        string         `json:"name"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at"`
	Summary     map[string]any `json:"summary"`
	Findings    []Item         `json:"findings"`
	Limitations []string       `json:"limitations"`
}

// New starts a report at now.
func New(name string, now time.Time) *ScanReport {
	return &ScanReport{
		Name:        name,
		StartedAt:   now.UTC(),
		Summary:     map[string]any{},
		Findings:    []Item{},
		Limitations: []string{},
	}
}

func (r *ScanReport) AddFinding(item Item) {
	if item.Details == nil {
		item.Details = map[string]any{}
	}
	if item.Recommendations == nil {
		item.Recommendations = []string{}
	}
	r.Findings = append(r.Findings, item)
}

func (r *ScanReport) AddLimitation(note string) {
	r.Limitations = append(r.Limitations, note)
}

func (r *ScanReport) AddLimitationf(format string, args ...any) {
	r.AddLimitation(fmt.Sprintf(format, args...))
}

// Set stores a summary value.
func (r *ScanReport) Set(key string, value any) {
	if r.Summary == nil {
		r.Summary = map[string]any{}
	}
	r.Summary[key] = value
}

// Finished reports whether Finish has been called.
func (r *ScanReport) Finished() bool { return r.FinishedAt != nil }

// Finish stamps the report as complete. Only the first call has an effect.
// The finish time never precedes the start time, and the summary always
// carries a suspicious count, defaulting to the findings above low risk.
func (r *ScanReport) Finish(now time.Time) {
	if r.FinishedAt != nil {
		return
	}
	now = now.UTC()
	if now.Before(r.StartedAt) {
		now = r.StartedAt
	}
	r.FinishedAt = &now
	if _, ok := r.Summary[KeySuspicious]; !ok {
		r.Set(KeySuspicious, r.Suspicious())
	}
}

// Suspicious counts findings with a risk above low.
func (r *ScanReport) Suspicious() int {
	n := 0
	for _, f := range r.Findings {
		if f.Risk == RiskMedium || f.Risk == RiskHigh {
			n++
		}
	}
	return n
}

// Duration is zero for unfinished reports.
func (r *ScanReport) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarshalJSON keeps empty collections as [] and {} instead of null.
func (r ScanReport) MarshalJSON() ([]byte, error) {
	type plain ScanReport
	out := plain(r)
	if out.Summary == nil {
		out.Summary = map[string]any{}
	}
	if out.Findings == nil {
		out.Findings = []Item{}
	}
	if out.Limitations == nil {
		out.Limitations = []string{}
	}
	return json.Marshal(out)
}

// Decode parses a report in its JSON form. Numbers are kept as
// json.Number so summary values survive unchanged.
func Decode(rd io.Reader) (*ScanReport, error) {
	dec := json.NewDecoder(rd)
	dec.UseNumber()
	var r ScanReport
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if r.Summary == nil {
		r.Summary = map[string]any{}
	}
	if r.Findings == nil {
		r.Findings = []Item{}
	}
	if r.Limitations == nil {
		r.Limitations = []string{}
	}
	return &r, nil
}

// Load reads a JSON report from disk.
func Load(path string) (*ScanReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
