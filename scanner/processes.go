package scanner

import (
	"context"
	"errors"

	"centinela/gpu"
	"centinela/heuristics"
	"centinela/report"
	"centinela/tracing"
)

// ScanProcesses checks running processes by name against the signatures
// and runs the process heuristics.
func (s *Scanner) ScanProcesses(ctx context.Context) (*report.ScanReport, error) {
	ctx, endTask := tracing.StartTask(ctx, "scan_processes")
	defer endTask()

	rep := report.New(NameProcesses, s.now())
	procs, skips, err := s.processes.Processes(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Warnf("Unable to enumerate processes: %v", err)
		rep.AddLimitationf("No se pudieron enumerar los procesos: %v", err)
		err = nil
	}
	for _, skip := range skips {
		s.log.Debugf("Process skipped: %s", skip)
		rep.AddLimitationf("No se pudo inspeccionar %s", skip)
	}

	scanned := 0
	for _, p := range procs {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			break
		}
		scanned++
		matches := s.signatures.FindMatches("", p.Name)
		flags := s.heuristics.Process(heuristics.ProcessAttrs{
			Name:    p.Name,
			Exe:     p.Exe,
			Startup: p.Startup,
		})
		if len(matches) == 0 && len(flags) == 0 {
			continue
		}
		var exe any
		if p.Exe != "" {
			exe = p.Exe
		}
		conns := p.Connections
		if conns == nil {
			conns = []string{}
		}
		rep.AddFinding(report.Item{
			Title: "Proceso sospechoso: " + p.Name,
			Details: map[string]any{
				"pid":         p.PID,
				"exe":         exe,
				"conexiones":  conns,
				"firmas":      signatureIDs(matches),
				"heuristicas": heuristics.IDs(flags),
			},
			Risk: riskFor(matches),
			Recommendations: []string{
				"Revisar manualmente",
				"Finalizar proceso si se confirma malicioso",
			},
		})
	}

	rep.Set("procesos_escaneados", scanned)
	rep.Set(report.KeySuspicious, len(rep.Findings))
	return s.complete(ctx, rep, err)
}

// ScanGPUProcesses checks GPU compute processes by name against the
// signatures. Every match is high risk.
func (s *Scanner) ScanGPUProcesses(ctx context.Context) (*report.ScanReport, error) {
	ctx, endTask := tracing.StartTask(ctx, "scan_gpu")
	defer endTask()

	rep := report.New(NameGPU, s.now())
	procs, err := s.gpu.Processes(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return s.complete(ctx, rep, err)
	case errors.Is(err, gpu.ErrUnavailable):
		s.log.Debug("GPU inspection unavailable")
	default:
		s.log.Warnf("GPU inspection failed: %v", err)
	}

	if len(procs) == 0 {
		rep.AddLimitation("No se encontraron procesos GPU o la función no está disponible")
	}
	for _, p := range procs {
		matches := s.signatures.FindMatches("", p.Name)
		if len(matches) == 0 {
			continue
		}
		var mem any
		if p.MemoryMB != nil {
			mem = *p.MemoryMB
		}
		rep.AddFinding(report.Item{
			Title: "Proceso GPU sospechoso: " + p.Name,
			Details: map[string]any{
				"pid":            p.PID,
				"memoria_gpu_mb": mem,
				"firmas":         signatureIDs(matches),
			},
			Risk: report.RiskHigh,
			Recommendations: []string{
				"Verificar origen del proceso",
				"Finalizar solo tras confirmación",
			},
		})
	}

	rep.Set("procesos_gpu_detectados", len(procs))
	rep.Set(report.KeySuspicious, len(rep.Findings))
	return s.complete(ctx, rep, nil)
}
