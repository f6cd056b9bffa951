package main

import (
	"fmt"
	"strings"

	"centinela/remediation"
	"centinela/report"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	colorHigh = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMed  = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorLow  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorOK   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}

	highStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorHigh)
	mediumStyle = lipgloss.NewStyle().Foreground(colorMed)
	lowStyle    = lipgloss.NewStyle().Foreground(colorLow)
	okStyle     = lipgloss.NewStyle().Foreground(colorOK)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

func renderRisk(r report.Risk) string {
	switch r {
	case report.RiskHigh:
		return highStyle.Render(string(r))
	case report.RiskMedium:
		return mediumStyle.Render(string(r))
	default:
		return lowStyle.Render(string(r))
	}
}

func renderStatus(s remediation.Status) string {
	switch s {
	case remediation.StatusSuccess:
		return okStyle.Render(string(s))
	case remediation.StatusFailed:
		return highStyle.Render(string(s))
	default:
		return mediumStyle.Render(string(s))
	}
}

// summaryLine condenses a report into one line for the terminal.
func summaryLine(r *report.ScanReport) string {
	counts := map[report.Risk]int{}
	for _, f := range r.Findings {
		counts[f.Risk]++
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d hallazgo(s)", titleStyle.Render(r.Name), len(r.Findings))
	for _, risk := range []report.Risk{report.RiskHigh, report.RiskMedium, report.RiskLow} {
		if counts[risk] > 0 {
			fmt.Fprintf(&b, ", %d %s", counts[risk], renderRisk(risk))
		}
	}
	if n, ok := int64Value(r.Summary["espacio_recuperable"]); ok {
		fmt.Fprintf(&b, ", %s recuperables", humanize.IBytes(uint64(n)))
	}
	fmt.Fprintf(&b, " en %s", r.Duration().Round(1e6))
	return b.String()
}

func int64Value(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), n >= 0
	case int64:
		return n, n >= 0
	case float64:
		return int64(n), n >= 0
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return i, err == nil && i >= 0
	}
	return 0, false
}
