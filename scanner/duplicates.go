package scanner

import (
	"context"
	"io/fs"

	"centinela/dupes"
	"centinela/report"
	"centinela/tracing"
)

// ScanDuplicates reports groups of files with identical content under
// paths (or the configured roots).
func (s *Scanner) ScanDuplicates(ctx context.Context, paths []string) (*report.ScanReport, error) {
	ctx, endTask := tracing.StartTask(ctx, "scan_duplicates")
	defer endTask()

	rep := report.New(NameDuplicates, s.now())
	var files []string
	err := s.walk(ctx, s.roots(paths), rep, func(path string, _ fs.FileInfo) error {
		files = append(files, path)
		return nil
	})
	if err != nil {
		return s.complete(ctx, rep, err)
	}
	s.log.Infof("Looking for duplicates among %d file(s)", len(files))

	endRegion := tracing.StartRegion(ctx, "find_duplicates")
	result, err := s.detector.Find(ctx, files)
	endRegion()
	for _, skip := range result.Skipped {
		rep.AddLimitationf("No se pudo leer %s: %s", skip.Path, reason(skip.Err))
	}
	for _, g := range result.Groups {
		digest := g.Digest
		if len(digest) > 8 {
			digest = digest[:8]
		}
		rep.AddFinding(report.Item{
			Title: "Duplicados hash " + digest,
			Details: map[string]any{
				"archivos": append([]string(nil), g.Paths...),
				"tamano":   g.Size,
			},
			Risk:            report.RiskLow,
			Recommendations: []string{"Considerar eliminar duplicados tras revisión"},
		})
	}

	rep.Set("grupos", len(result.Groups))
	rep.Set("espacio_recuperable", dupes.Reclaimable(result.Groups))
	return s.complete(ctx, rep, err)
}
