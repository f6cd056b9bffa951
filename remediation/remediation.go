// Package remediation quarantines, deletes and restores flagged files. Every
// attempt is appended to an in-memory action log; quarantined files are
// recorded in a manifest inside the quarantine directory.
package remediation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"centinela/hasher"
	"centinela/logger"
	"centinela/systeminfo"
	"centinela/utils"

	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSimulated Status = "simulated"
)

const (
	ActionQuarantine = "quarantine"
	ActionDelete     = "delete"
	ActionRestore    = "restore"
)

// Action is one logged remediation attempt.
type Action struct {
	Action  string `json:"action"`
	Target  string `json:"target"`
	Status  Status `json:"status"`
	Details string `json:"details"`
}

func (a Action) String() string {
	return fmt.Sprintf("%s -> %s (%s) :: %s", a.Action, a.Target, a.Status, a.Details)
}

type Remediator struct {
	quarantineDir string
	dryRun        bool
	actions       []Action
	log           logrus.FieldLogger
	now           func() time.Time
	isAdmin       func() bool
}

// New creates the quarantine directory and returns a remediator. With
// dryRun set nothing on disk is changed and actions are logged as
// simulated.
func New(quarantineDir string, dryRun bool, log logrus.FieldLogger) (*Remediator, error) {
	if strings.TrimSpace(quarantineDir) == "" {
		return nil, errors.New("quarantine directory is required")
	}
	if err := os.MkdirAll(quarantineDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create quarantine directory: %w", err)
	}
	return &Remediator{
		quarantineDir: quarantineDir,
		dryRun:        dryRun,
		log:           logger.OrDiscard(log),
		now:           time.Now,
		isAdmin:       systeminfo.IsAdmin,
	}, nil
}

func (r *Remediator) QuarantineDir() string { return r.quarantineDir }
func (r *Remediator) DryRun() bool { return r.dryRun }

// RequiresAdmin reports whether the current user lacks administrator
// rights.
func (r *Remediator) RequiresAdmin() bool {
	return !r.isAdmin()
}

// Log returns a copy of the actions recorded since the last ClearLog.
func (r *Remediator) Log() []Action {
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

func (r *Remediator) ClearLog() {
	r.actions = r.actions[:0]
}

func (r *Remediator) record(a Action) Action {
	r.actions = append(r.actions, a)
	fields := logrus.Fields{"action": a.Action, "target": a.Target, "status": a.Status}
	if a.Status == StatusFailed {
		r.log.WithFields(fields).Warn(a.Details)
	} else {
		r.log.WithFields(fields).Info(a.Details)
	}
	return a
}

// Quarantine moves path into the quarantine directory. An existing entry
// with the same name makes the destination <stem>_<mtime><ext>.
func (r *Remediator) Quarantine(path string) Action {
	info, err := os.Lstat(path)
	if err != nil {
		return r.record(Action{Action: ActionQuarantine, Target: path, Status: StatusFailed, Details: "El archivo no existe"})
	}
	dest := filepath.Join(r.quarantineDir, filepath.Base(path))
	if _, err := os.Lstat(dest); err == nil || reserved(filepath.Base(path)) {
		for n := 0; ; n++ {
			dest = filepath.Join(r.quarantineDir, collisionName(filepath.Base(path), info.ModTime(), n))
			if _, err := os.Lstat(dest); err != nil {
				break
			}
		}
	}
	if r.dryRun {
		return r.record(Action{Action: ActionQuarantine, Target: path, Status: StatusSimulated, Details: "Would move to " + dest})
	}

	var digest string
	if info.Mode().IsRegular() {
		digest, err = hasher.FileWith(path, hasher.DefaultBlockSize, hasher.BLAKE3)
		if err != nil {
			return r.record(Action{Action: ActionQuarantine, Target: path, Status: StatusFailed, Details: err.Error()})
		}
	}
	if err := move(path, dest, info); err != nil {
		return r.record(Action{Action: ActionQuarantine, Target: path, Status: StatusFailed, Details: err.Error()})
	}
	original, err := filepath.Abs(path)
	if err != nil {
		original = path
	}
	entry := ManifestEntry{
		Name:          filepath.Base(dest),
		Original:      original,
		Digest:        digest,
		QuarantinedAt: r.now().UTC(),
	}
	if err := r.updateManifest(func(m *Manifest) { m.put(entry) }); err != nil {
		r.log.Warnf("Unable to update quarantine manifest: %v", err)
	}
	return r.record(Action{Action: ActionQuarantine, Target: path, Status: StatusSuccess, Details: "Moved to " + dest})
}

// collisionName returns <stem>_<mtime><ext>, with _<n> after the
// timestamp once n > 0.
func collisionName(base string, mtime time.Time, n int) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	var ts int64
	if !mtime.IsZero() {
		ts = mtime.Unix()
	}
	if n > 0 {
		return fmt.Sprintf("%s_%d_%d%s", stem, ts, n, ext)
	}
	return fmt.Sprintf("%s_%d%s", stem, ts, ext)
}

// Delete permanently removes a file or a directory tree.
func (r *Remediator) Delete(path string) Action {
	if _, err := os.Lstat(path); err != nil {
		return r.record(Action{Action: ActionDelete, Target: path, Status: StatusFailed, Details: "El elemento no existe"})
	}
	if r.dryRun {
		return r.record(Action{Action: ActionDelete, Target: path, Status: StatusSimulated, Details: "Would delete permanently"})
	}
	if err := os.RemoveAll(path); err != nil {
		return r.record(Action{Action: ActionDelete, Target: path, Status: StatusFailed, Details: err.Error()})
	}
	return r.record(Action{Action: ActionDelete, Target: path, Status: StatusSuccess, Details: "Removed permanently"})
}

// Restore moves a quarantined file back. An empty dest restores to the
// original location recorded in the manifest. Files whose BLAKE3 digest no
// longer matches the manifest are not restored.
func (r *Remediator) Restore(name, dest string) Action {
	source := filepath.Join(r.quarantineDir, name)
	target := dest
	if target == "" {
		target = name
	}
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || !utils.IsPathWithin(source, []string{r.quarantineDir}) {
		return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed, Details: "File not present in quarantine"})
	}
	info, err := os.Lstat(source)
	if err != nil || reserved(name) {
		return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed, Details: "File not present in quarantine"})
	}

	manifest, err := r.loadManifest()
	if err != nil {
		return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed, Details: err.Error()})
	}
	entry, known := manifest.get(name)
	if dest == "" {
		if !known || entry.Original == "" {
			return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed, Details: "No original path recorded for " + name})
		}
		dest = entry.Original
		target = dest
	}
	if known && entry.Digest != "" && info.Mode().IsRegular() {
		digest, err := hasher.FileWith(source, hasher.DefaultBlockSize, hasher.BLAKE3)
		if err != nil {
			return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed, Details: err.Error()})
		}
		if digest != entry.Digest {
			return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed,
				Details: fmt.Sprintf("Digest mismatch: expected %s, got %s", entry.Digest, digest)})
		}
	}
	if r.dryRun {
		return r.record(Action{Action: ActionRestore, Target: target, Status: StatusSimulated, Details: fmt.Sprintf("Would restore %s to %s", source, dest)})
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed, Details: err.Error()})
	}
	if err := move(source, dest, info); err != nil {
		return r.record(Action{Action: ActionRestore, Target: target, Status: StatusFailed, Details: err.Error()})
	}
	if known {
		if err := r.updateManifest(func(m *Manifest) { m.remove(name) }); err != nil {
			r.log.Warnf("Unable to update quarantine manifest: %v", err)
		}
	}
	return r.record(Action{Action: ActionRestore, Target: target, Status: StatusSuccess, Details: "Restored from " + source})
}

// move renames src to dst, copying regular files when a rename is not
// possible (different devices).
func move(src, dst string, info os.FileInfo) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !info.Mode().IsRegular() {
		return err
	}
	if cerr := copyFile(src, dst, info.Mode().Perm()); cerr != nil {
		return fmt.Errorf("%v; copy fallback: %w", err, cerr)
	}
	return os.Remove(src)
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
