package remediation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const manifestName = ".centinela-manifest.json"

// reserved reports whether name belongs to the manifest rather than to a
// quarantined item.
func reserved(name string) bool {
	return name == manifestName || name == manifestName+".tmp"
}

// ManifestEntry describes one quarantined item.
type ManifestEntry struct {
	Name          string    `json:"name"`
	Original      string    `json:"original"`
	Digest        string    `json:"blake3,omitempty"`
	QuarantinedAt time.Time `json:"quarantined_at"`
}

type Manifest struct {
	Entries []ManifestEntry `json:"entries"`
}

func (m *Manifest) get(name string) (ManifestEntry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

func (m *Manifest) put(entry ManifestEntry) {
	m.remove(entry.Name)
	m.Entries = append(m.Entries, entry)
	sort.SliceStable(m.Entries, func(i, j int) bool { return m.Entries[i].Name < m.Entries[j].Name })
}

func (m *Manifest) remove(name string) {
	kept := m.Entries[:0]
	for _, e := range m.Entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	m.Entries = kept
}

func (r *Remediator) manifestPath() string {
	return filepath.Join(r.quarantineDir, manifestName)
}

// Manifest returns the entries currently recorded in the quarantine
// directory.
func (r *Remediator) Manifest() ([]ManifestEntry, error) {
	m, err := r.loadManifest()
	if err != nil {
		return nil, err
	}
	return m.Entries, nil
}

func (r *Remediator) loadManifest() (*Manifest, error) {
	data, err := os.ReadFile(r.manifestPath())
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func (r *Remediator) updateManifest(fn func(*Manifest)) error {
	m, err := r.loadManifest()
	if err != nil {
		return err
	}
	fn(m)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.manifestPath())
}
