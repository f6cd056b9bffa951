package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Text renders the report as labelled plain-text lines. Summary and detail
// keys are sorted so the output is stable.
func Text(r *ScanReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report: %s\n", r.Name)
	fmt.Fprintf(&b, "Started: %s\n", r.StartedAt.Format(time.RFC3339))
	if r.FinishedAt != nil {
		fmt.Fprintf(&b, "Finished: %s\n", r.FinishedAt.Format(time.RFC3339))
	} else {
		b.WriteString("Finished: incomplete\n")
	}
	b.WriteString("Summary:\n")
	for _, key := range sortedKeys(r.Summary) {
		fmt.Fprintf(&b, "  - %s: %s\n", key, formatValue(r.Summary[key]))
	}
	if len(r.Findings) > 0 {
		b.WriteString("Findings:\n")
		for _, item := range r.Findings {
			fmt.Fprintf(&b, "* %s (risk: %s)\n", item.Title, item.Risk)
			for _, rec := range item.Recommendations {
				fmt.Fprintf(&b, "    Recommendation: %s\n", rec)
			}
			for _, key := range sortedKeys(item.Details) {
				fmt.Fprintf(&b, "    %s: %s\n", key, formatValue(item.Details[key]))
			}
		}
	}
	if len(r.Limitations) > 0 {
		b.WriteString("Limitations:\n")
		for _, note := range r.Limitations {
			fmt.Fprintf(&b, "  - %s\n", note)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	case []string:
		return "[" + strings.Join(val, ", ") + "]"
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = formatValue(p)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *float64:
		if val == nil {
			return "None"
		}
		return fmt.Sprint(*val)
	default:
		return fmt.Sprint(val)
	}
}
