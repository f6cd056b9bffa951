package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"centinela/report"
)

// visitFunc receives every regular file found under a root.
type visitFunc func(path string, info fs.FileInfo) error

// walk enumerates regular files under roots depth first, in lexical order
// within each directory. A root that is itself a file is visited directly.
// Missing roots and unreadable directories are recorded on rep. Symlinked
// directories are entered only with followSymlinks, and each real
// directory at most once.
func (s *Scanner) walk(ctx context.Context, roots []string, rep *report.ScanReport, fn visitFunc) error {
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(root)
		if err != nil {
			s.log.Debugf("Scan path %s does not exist: %v", root, err)
			rep.AddLimitationf("La ruta %s no existe o no es accesible", root)
			continue
		}
		if !info.IsDir() {
			if info.Mode().IsRegular() {
				if err := fn(root, info); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.walkDir(ctx, root, rep, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) walkDir(ctx context.Context, root string, rep *report.ScanReport, fn visitFunc) error {
	visited := map[string]struct{}{}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		visited[real] = struct{}{}
	}

	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			s.log.Warnf("Failed to access %s: %v", dir, err)
			rep.AddLimitationf("No se pudo leer el directorio %s: %s", dir, reason(err))
			if len(entries) == 0 {
				continue
			}
		}

		var subdirs []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			switch {
			case entry.IsDir():
				if !s.matcher.SkipDir(root, path) && (!s.followSymlinks || markVisited(visited, path)) {
					subdirs = append(subdirs, path)
				}
				continue
			case entry.Type()&fs.ModeSymlink != 0:
				target, err := os.Stat(path)
				if err != nil {
					s.log.Debugf("Skipping dangling link %s: %v", path, err)
					continue
				}
				if target.IsDir() {
					if s.followSymlinks && !s.matcher.SkipDir(root, path) && markVisited(visited, path) {
						subdirs = append(subdirs, path)
					}
					continue
				}
				if !target.Mode().IsRegular() || !s.matcher.ShouldInclude(root, path) {
					continue
				}
				if err := fn(path, target); err != nil {
					return err
				}
				continue
			case !entry.Type().IsRegular():
				continue
			}

			if !s.matcher.ShouldInclude(root, path) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				s.log.Warnf("Unable to stat %s: %v", path, err)
				rep.AddLimitationf("No se pudo leer %s: %s", path, reason(err))
				continue
			}
			if err := fn(path, info); err != nil {
				return err
			}
		}

		// Pushed in reverse so the first subdirectory is walked next.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return nil
}

// markVisited records the real path of a linked directory and reports
// whether it was new.
func markVisited(visited map[string]struct{}, path string) bool {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	if _, seen := visited[real]; seen {
		return false
	}
	visited[real] = struct{}{}
	return true
}
