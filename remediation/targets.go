package remediation

import "centinela/report"

type TargetKind string

const (
	// TargetFile is a flagged file taken from a file finding.
	TargetFile TargetKind = "file"
	// TargetDuplicate is an extra copy in a duplicate group. The first
	// path of each group is kept and never returned.
	TargetDuplicate TargetKind = "duplicate"
)

type Target struct {
	Kind TargetKind
	Path string
	// Finding is the title of the report item the target came from.
	Finding string
}

// Targets lists what can be remediated from a report, in finding order.
func Targets(r *report.ScanReport) []Target {
	if r == nil {
		return nil
	}
	var out []Target
	for _, item := range r.Findings {
		if ruta, ok := item.Details["ruta"].(string); ok && ruta != "" {
			out = append(out, Target{Kind: TargetFile, Path: ruta, Finding: item.Title})
		}
		files := stringList(item.Details["archivos"])
		if len(files) > 1 {
			for _, p := range files[1:] {
				out = append(out, Target{Kind: TargetDuplicate, Path: p, Finding: item.Title})
			}
		}
	}
	return out
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
