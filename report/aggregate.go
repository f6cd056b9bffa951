package report

import "time"

// Aggregator merges finished sub-reports into one umbrella report without
// re-evaluating any finding.
type Aggregator struct {
	master   *ScanReport
	included []string
	total    int
}

func NewAggregator(name string, now time.Time) *Aggregator {
	a := &Aggregator{master: New(name, now), included: []string{}}
	a.master.Set(KeyIncluded, a.included)
	a.master.Set(KeyTotalFindings, 0)
	return a
}

// Add appends the findings and limitations of sub in order.
func (a *Aggregator) Add(sub *ScanReport) {
	if sub == nil {
		return
	}
	a.included = append(a.included, sub.Name)
	a.total += len(sub.Findings)
	a.master.Findings = append(a.master.Findings, sub.Findings...)
	a.master.Limitations = append(a.master.Limitations, sub.Limitations...)
	a.master.Set(KeyIncluded, a.included)
	a.master.Set(KeyTotalFindings, a.total)
}

// Report returns the umbrella report; callers may add limitations before
// finishing it.
func (a *Aggregator) Report() *ScanReport { return a.master }

// Build finishes and returns the umbrella report.
func (a *Aggregator) Build(now time.Time) *ScanReport {
	a.master.Finish(now)
	return a.master
}
