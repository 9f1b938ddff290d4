// Package registry persists the client-side ledger of installed
// extensions (spec.md §3, §4.4). It reads and writes the whole document
// atomically; callers serialize access via StoreManager's own locking.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/nacht-org/quelle-store/internal/atomicfile"
	"github.com/nacht-org/quelle-store/internal/checksum"
	"github.com/nacht-org/quelle-store/internal/qerr"
)

const schemaVersion = 1

// InstalledExtension records one extension's installation on the client.
type InstalledExtension struct {
	ID              string          `json:"id"`
	Version         string          `json:"version"`
	SourceStoreName string          `json:"source_store_name"`
	InstallPath     string          `json:"install_path"`
	InstalledAt     time.Time       `json:"installed_at"`
	Checksum        checksum.Digest `json:"checksum"`
}

// document is the on-disk JSON shape.
type document struct {
	Version   int                  `json:"version"`
	Installed []InstalledExtension `json:"installed"`
}

// Registry is the client-side record of installed extensions, persisted as
// JSON at Path.
type Registry struct {
	Path string
}

// New returns a Registry persisted at path. The file is created lazily on
// first write.
func New(path string) *Registry {
	return &Registry{Path: path}
}

// Load reads and parses the registry document. A missing file is treated
// as an empty registry, not an error.
func (r *Registry) Load() ([]InstalledExtension, error) {
	b, err := os.ReadFile(r.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, qerr.Wrap(qerr.IoError, err, "reading registry %s", r.Path)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, qerr.Wrap(qerr.IntegrityError, err, "parsing registry %s", r.Path)
	}
	return doc.Installed, nil
}

// Save atomically replaces the registry document. Callers must ensure at
// most one entry per id; Save does not deduplicate.
func (r *Registry) Save(entries []InstalledExtension) error {
	if err := validateUniqueIDs(entries); err != nil {
		return err
	}
	doc := document{Version: schemaVersion, Installed: entries}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "marshaling registry")
	}
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return qerr.Wrap(qerr.IoError, err, "creating registry directory")
	}
	if err := atomicfile.WriteFile(r.Path, b, 0o644); err != nil {
		return qerr.Wrap(qerr.IoError, err, "writing registry %s", r.Path)
	}
	return nil
}

func validateUniqueIDs(entries []InstalledExtension) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			return qerr.New(qerr.InvalidConfiguration, "registry invariant violated: duplicate entry for %s", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Upsert replaces (or adds) the entry for entry.ID, enforcing the
// at-most-one-version-per-id invariant.
func (r *Registry) Upsert(entry InstalledExtension) error {
	entries, err := r.Load()
	if err != nil {
		return err
	}
	out := make([]InstalledExtension, 0, len(entries)+1)
	replaced := false
	for _, e := range entries {
		if e.ID == entry.ID {
			out = append(out, entry)
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry)
	}
	return r.Save(out)
}

// Remove deletes the entry for id, if present.
func (r *Registry) Remove(id string) error {
	entries, err := r.Load()
	if err != nil {
		return err
	}
	out := make([]InstalledExtension, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return r.Save(out)
}

// Get returns the installed entry for id, if present.
func (r *Registry) Get(id string) (InstalledExtension, bool, error) {
	entries, err := r.Load()
	if err != nil {
		return InstalledExtension{}, false, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return InstalledExtension{}, false, nil
}

// Cleanup reconciles the registry against the filesystem (spec.md §4.4):
// entries whose install_path is missing are dropped, and install-path
// directories under installRoot that have no matching registry entry are
// deleted.
func (r *Registry) Cleanup(installRoot string) (droppedEntries, removedDirs []string, err error) {
	entries, err := r.Load()
	if err != nil {
		return nil, nil, err
	}

	kept := make([]InstalledExtension, 0, len(entries))
	keptPaths := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, statErr := os.Stat(e.InstallPath); statErr != nil {
			droppedEntries = append(droppedEntries, e.ID)
			continue
		}
		kept = append(kept, e)
		keptPaths[filepath.Clean(e.InstallPath)] = struct{}{}
	}
	if len(droppedEntries) > 0 {
		if err := r.Save(kept); err != nil {
			return nil, nil, err
		}
	}

	dirEntries, readErr := os.ReadDir(installRoot)
	if readErr != nil && !os.IsNotExist(readErr) {
		return droppedEntries, nil, qerr.Wrap(qerr.IoError, readErr, "scanning install root %s", installRoot)
	}
	for _, d := range dirEntries {
		full := filepath.Clean(filepath.Join(installRoot, d.Name()))
		if _, ok := keptPaths[full]; ok {
			continue
		}
		if err := os.RemoveAll(full); err != nil {
			return droppedEntries, removedDirs, qerr.Wrap(qerr.IoError, err, "removing orphan install dir %s", full)
		}
		removedDirs = append(removedDirs, full)
	}
	return droppedEntries, removedDirs, nil
}
