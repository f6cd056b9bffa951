package scanner

import (
	"context"
	"io"
	"io/fs"
	"os"
	"time"

	"centinela/hasher"
	"centinela/heuristics"
	"centinela/report"
	"centinela/tracing"
	"centinela/utils"

	"github.com/djherbis/times"
	"github.com/h2non/filetype"
)

// ScanFiles hashes every file under paths (or the configured roots) and
// reports those matching a signature or heuristic.
func (s *Scanner) ScanFiles(ctx context.Context, paths []string) (*report.ScanReport, error) {
	ctx, endTask := tracing.StartTask(ctx, "scan_files")
	defer endTask()

	rep := report.New(NameFiles, s.now())
	roots := s.roots(paths)
	s.log.Infof("Scanning files under %d path(s)", len(roots))

	bar := s.newProgress("Escaneando archivos")
	scanned := 0
	err := s.walk(ctx, roots, rep, func(path string, info fs.FileInfo) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		scanned++
		_ = bar.Add(1)
		s.scanFile(ctx, rep, path, info)
		return nil
	})
	_ = bar.Finish()

	rep.Set("archivos_escaneados", scanned)
	rep.Set(report.KeySuspicious, len(rep.Findings))
	return s.complete(ctx, rep, err)
}

func (s *Scanner) scanFile(ctx context.Context, rep *report.ScanReport, path string, info fs.FileInfo) {
	tracing.Log(ctx, "file", path)

	endRegion := tracing.StartRegion(ctx, "hash_file")
	digest, err := hasher.File(path, s.blockSize)
	endRegion()
	if err != nil {
		s.log.Warnf("Unable to hash %s: %v", path, err)
		rep.AddLimitationf("No se pudo leer %s: %s", path, reason(err))
		return
	}

	matches := s.signatures.FindMatches(digest, path)
	flags := s.heuristics.File(path, info.Size())
	if len(matches) == 0 && len(flags) == 0 {
		return
	}

	details := map[string]any{
		"ruta":        path,
		"hash_sha256": digest,
		"firmas":      signatureIDs(matches),
		"heuristicas": heuristics.IDs(flags),
		"tamano":      info.Size(),
		"modificado":  info.ModTime().UTC().Format(time.RFC3339),
	}
	if mime, err := mimeType(path); err == nil {
		details["tipo_mime"] = mime
	} else {
		s.log.Debugf("Unable to sniff type of %s: %v", path, err)
	}
	if created, ok := birthTime(path); ok {
		details["creado"] = created
	}
	if s.fuzzy != nil {
		if fh, err := s.fuzzy.HashFile(path); err == nil {
			details[s.fuzzy.Name()] = fh
		} else {
			s.log.Debugf("Fuzzy hash skipped for %s: %v", path, err)
		}
	}

	rep.AddFinding(report.Item{
		Title:   "Archivo sospechoso: " + utils.BaseName(path),
		Details: details,
		Risk:    riskFor(matches),
		Recommendations: []string{
			"Enviar a cuarentena",
			"Eliminar solo tras verificación manual",
		},
	})
}

// mimeType sniffs the file header; "unknown" when no type matches.
func mimeType(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf := make([]byte, 261)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	kind, err := filetype.Match(buf[:n])
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown || kind.MIME.Value == "" {
		return "unknown", nil
	}
	return kind.MIME.Value, nil
}

func birthTime(path string) (string, bool) {
	ts, err := times.Stat(path)
	if err != nil || !ts.HasBirthTime() {
		return "", false
	}
	return ts.BirthTime().UTC().Format(time.RFC3339), true
}
