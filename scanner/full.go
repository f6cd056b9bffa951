package scanner

import (
	"context"

	"centinela/report"
	"centinela/tracing"
)

// FullScan runs the file, process, GPU and duplicate scans over the
// configured roots in that order and merges their reports. Each
// sub-report is also written on its own.
func (s *Scanner) FullScan(ctx context.Context) (*report.ScanReport, error) {
	ctx, endTask := tracing.StartTask(ctx, "full_scan")
	defer endTask()

	agg := report.NewAggregator(NameFull, s.now())
	steps := []func(context.Context) (*report.ScanReport, error){
		func(ctx context.Context) (*report.ScanReport, error) { return s.ScanFiles(ctx, nil) },
		s.ScanProcesses,
		s.ScanGPUProcesses,
		func(ctx context.Context) (*report.ScanReport, error) { return s.ScanDuplicates(ctx, nil) },
	}

	var scanErr error
	for _, step := range steps {
		sub, err := step(ctx)
		agg.Add(sub)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			scanErr = err
			break
		}
		s.log.Warnf("Sub-scan %s: %v", sub.Name, err)
	}
	return s.complete(ctx, agg.Report(), scanErr)
}
