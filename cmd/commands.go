package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"centinela/config"
	"centinela/logger"
	"centinela/output"
	"centinela/remediation"
	"centinela/report"
	"centinela/scanner"
	"centinela/signatures"
	"centinela/systeminfo"
	"centinela/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	out    io.Writer
	errOut io.Writer
	prompt prompter

	configPath string
	dryRun     bool
	logLevel   string

	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer
}

func newApp(out, errOut io.Writer, p prompter) *app {
	return &app{out: out, errOut: errOut, prompt: p}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "centinela",
		Short:         "Escáner local educativo de archivos, procesos y duplicados",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Ruta a archivo de configuración")
	flags.BoolVar(&a.dryRun, "dry-run", false, "Ejecuta las operaciones en modo simulación")
	flags.StringVar(&a.logLevel, "log-level", "", "Nivel de log (debug, info, warn, error)")

	root.AddCommand(
		a.scanCmd("full-scan", "Ejecuta escaneo completo", func(ctx context.Context, s *scanner.Scanner, _ []string) (*report.ScanReport, error) {
			return s.FullScan(ctx)
		}, ""),
		a.scanCmd("scan-files", "Escanea archivos", func(ctx context.Context, s *scanner.Scanner, paths []string) (*report.ScanReport, error) {
			return s.ScanFiles(ctx, paths)
		}, "path"),
		a.scanCmd("scan-processes", "Escanea procesos", func(ctx context.Context, s *scanner.Scanner, _ []string) (*report.ScanReport, error) {
			return s.ScanProcesses(ctx)
		}, ""),
		a.scanCmd("scan-gpu", "Escanea procesos GPU", func(ctx context.Context, s *scanner.Scanner, _ []string) (*report.ScanReport, error) {
			return s.ScanGPUProcesses(ctx)
		}, ""),
		a.scanCmd("find-dupes", "Busca duplicados", func(ctx context.Context, s *scanner.Scanner, paths []string) (*report.ScanReport, error) {
			return s.ScanDuplicates(ctx, paths)
		}, "paths"),
		a.reportsCmd(),
		a.remediateCmd(),
		a.restoreCmd(),
		a.signaturesCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	log, closer, err := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Directory:   cfg.Logging.Directory,
		Filename:    cfg.Logging.Filename,
		MaxBytes:    cfg.Logging.MaxBytes,
		BackupCount: cfg.Logging.BackupCount,
		Console:     a.errOut,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if cfg.Source == "" {
		log.Warn("No configuration file found, using built-in defaults")
	} else {
		log.Debugf("Configuration loaded from %s", cfg.Source)
	}
	a.cfg, a.log, a.logCloser = cfg, log, closer
	return nil
}

func (a *app) teardown() {
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}

type scanFunc func(ctx context.Context, s *scanner.Scanner, paths []string) (*report.ScanReport, error)

// scanCmd builds a scan subcommand. pathFlag names the repeatable flag
// holding scan roots, empty for scans without paths.
func (a *app) scanCmd(use, short string, scan scanFunc, pathFlag string) *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := output.New(output.OptionsFromConfig(a.cfg, a.log))
			if err != nil {
				return err
			}
			defer w.Close()

			opts := scanner.OptionsFromConfig(a.cfg, a.log)
			opts.Writer = w
			opts.Progress = a.errOut
			s, err := scanner.New(opts)
			if err != nil {
				return err
			}

			rep, scanErr := scan(cmd.Context(), s, paths)
			if rep != nil {
				if err := a.printReport(rep, w.LastPath()); err != nil {
					return err
				}
			}
			return scanErr
		},
	}
	if pathFlag != "" {
		cmd.Flags().StringSliceVar(&paths, pathFlag, nil, "Ruta a escanear (repetible)")
	}
	return cmd
}

func (a *app) printReport(rep *report.ScanReport, path string) error {
	if err := writeJSON(a.out, rep); err != nil {
		return err
	}
	if path != "" {
		fmt.Fprintf(a.out, "Reporte guardado en: %s\n", path)
	}
	fmt.Fprintln(a.errOut, summaryLine(rep))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) reportsCmd() *cobra.Command {
	var (
		last   bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Gestiona reportes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != output.FormatJSON && format != output.FormatText {
				return fmt.Errorf("invalid format %q (expected json or text)", format)
			}
			files, err := output.ListReports(a.cfg.Reports.Directory)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(a.out, "No se encontraron reportes.")
				return nil
			}

			target := files[0]
			if !last {
				names := make([]string, len(files))
				for i, f := range files {
					names[i] = filepath.Base(f)
				}
				idx, err := a.prompt.Select("Seleccione el reporte a abrir", names)
				if err != nil {
					return err
				}
				if idx < 0 || idx >= len(files) {
					fmt.Fprintln(a.out, "Selección inválida.")
					return nil
				}
				target = files[idx]
			}

			rep, err := report.Load(target)
			if err != nil {
				return err
			}
			if format == output.FormatText {
				fmt.Fprintln(a.out, report.Text(rep))
				return nil
			}
			return writeJSON(a.out, rep)
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "Abre el último reporte")
	cmd.Flags().StringVar(&format, "format", output.FormatJSON, "Formato de salida (json o text)")
	return cmd
}

func (a *app) newRemediator() (*remediation.Remediator, error) {
	return remediation.New(a.cfg.Remediation.QuarantineDir, a.dryRun, a.log)
}

func (a *app) remediateCmd() *cobra.Command {
	var (
		from string
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "remediate",
		Short: "Remediar desde reporte",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := report.Load(from)
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(a.out, "El reporte %s no existe.\n", from)
				return nil
			}
			if err != nil {
				return err
			}
			targets := remediation.Targets(rep)
			if len(targets) == 0 {
				fmt.Fprintln(a.out, "No hay elementos para remediar en este reporte.")
				return nil
			}

			rem, err := a.newRemediator()
			if err != nil {
				return err
			}
			ask := !yes && a.cfg.Remediation.RequireConfirmation
			if rem.RequiresAdmin() && ask {
				ok, err := a.prompt.Confirm(systeminfo.ElevationPrompt)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Operación cancelada.")
					return nil
				}
			}

			for _, t := range targets {
				if err := a.remediateTarget(rem, t, ask); err != nil {
					return err
				}
			}
			a.printActions(rem)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from-report", "", "Ruta al reporte JSON")
	cmd.Flags().BoolVar(&yes, "yes", false, "Envía todos los elementos a cuarentena sin preguntar")
	_ = cmd.MarkFlagRequired("from-report")
	return cmd
}

// remediateTarget quarantines t after confirmation. A declined file
// offers permanent deletion; a declined duplicate is left alone. Without
// asking, every target is quarantined and nothing is deleted.
func (a *app) remediateTarget(rem *remediation.Remediator, t remediation.Target, ask bool) error {
	if !ask {
		rem.Quarantine(t.Path)
		return nil
	}
	question := fmt.Sprintf("¿Enviar %s a cuarentena?", t.Path)
	if t.Kind == remediation.TargetDuplicate {
		question = fmt.Sprintf("¿Mover duplicado %s a cuarentena?", t.Path)
	}
	ok, err := a.prompt.Confirm(question)
	if err != nil {
		return err
	}
	if ok {
		rem.Quarantine(t.Path)
		return nil
	}
	if t.Kind != remediation.TargetFile {
		return nil
	}
	ok, err = a.prompt.Confirm(fmt.Sprintf("¿Eliminar permanentemente %s?", t.Path))
	if err != nil {
		return err
	}
	if ok {
		rem.Delete(t.Path)
	}
	return nil
}

func (a *app) printActions(rem *remediation.Remediator) {
	for _, entry := range rem.Log() {
		fmt.Fprintf(a.out, "- %s -> %s (%s) :: %s\n", entry.Action, entry.Target, renderStatus(entry.Status), entry.Details)
	}
	rem.ClearLog()
}

func (a *app) restoreCmd() *cobra.Command {
	var (
		to   string
		list bool
	)
	cmd := &cobra.Command{
		Use:   "restore [nombre]",
		Short: "Restaura un archivo desde la cuarentena",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rem, err := a.newRemediator()
			if err != nil {
				return err
			}
			if list || len(args) == 0 {
				entries, err := rem.Manifest()
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(a.out, "La cuarentena está vacía.")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(a.out, "%s\t%s\t%s\n", titleStyle.Render(e.Name), e.Original, e.QuarantinedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			}
			rem.Restore(args[0], to)
			a.printActions(rem)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Destino (por defecto la ruta original)")
	cmd.Flags().BoolVar(&list, "list", false, "Lista el contenido de la cuarentena")
	return cmd
}

func (a *app) signaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signatures",
		Short: "Lista las firmas disponibles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, sig := range signatures.New().List() {
				fmt.Fprintf(a.out, "%s: %s\n", titleStyle.Render(sig.ID), sig.Description)
				if d := sig.Digest(); d != "" {
					fmt.Fprintf(a.out, "    sha256: %s\n", d)
				}
				if p := sig.Patterns(); len(p) > 0 {
					fmt.Fprintf(a.out, "    patrones: %s\n", strings.Join(p, ", "))
				}
			}
			return nil
		},
	}
}
