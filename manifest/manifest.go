// Package manifest defines the on-disk descriptors of the store package
// layout: per-extension manifest.json, the store-root store.json index, and
// the file references that tie both to content-addressed bytes on disk.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/coreos/go-semver/semver"

	"github.com/nacht-org/quelle-store/internal/checksum"
	"github.com/nacht-org/quelle-store/internal/qerr"
)

// AssetType enumerates the recognized AssetReference kinds. Unknown values
// are accepted and kept as they are; nothing maps them to another kind.
type AssetType string

const (
	AssetIcon          AssetType = "icon"
	AssetDocumentation AssetType = "documentation"
	AssetGeneric       AssetType = "asset"
)

// FileReference locates content-addressed bytes relative to the manifest
// that references them.
type FileReference struct {
	Path     string `json:"path"`
	Checksum checksum.Digest `json:"checksum"`
	Size     uint64 `json:"size"`
}

// Verify checks that the file at basePath/Path exists and hashes to
// Checksum, returning an *qerr.Error of kind IntegrityError on mismatch.
func (f FileReference) Verify(basePath string) error {
	full := filepath.Join(basePath, filepath.FromSlash(f.Path))
	file, err := os.Open(full)
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "opening referenced file %s", f.Path)
	}
	defer file.Close()

	got, size, err := checksum.Reader(file)
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "hashing referenced file %s", f.Path)
	}
	if got != f.Checksum {
		return qerr.New(qerr.IntegrityError, "checksum mismatch for %s: manifest says %s, disk has %s", f.Path, f.Checksum, got)
	}
	if size != f.Size {
		return qerr.New(qerr.IntegrityError, "size mismatch for %s: manifest says %d, disk has %d", f.Path, f.Size, size)
	}
	return nil
}

// AssetReference is a FileReference plus the asset's display name and type.
type AssetReference struct {
	FileReference
	Name      string    `json:"name"`
	AssetType AssetType `json:"asset_type"`
}

// idPattern matches the reverse-DNS extension identifiers the spec
// requires, e.g. "en.example.mysite".
var idPattern = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9-]+)+$`)

// ExtensionManifest is the per-extension, per-version descriptor persisted
// as manifest.json.
type ExtensionManifest struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Version           string           `json:"version"`
	Author            string           `json:"author"`
	Description       string           `json:"description"`
	SupportedDomains  []string         `json:"supported_domains"`
	Tags              []string         `json:"tags,omitempty"`
	WasmFile          FileReference    `json:"wasm_file"`
	Assets            []AssetReference `json:"assets"`
}

// Validate checks the required-fields and semver invariants from spec.md
// §3. It does not touch disk; callers verify checksums separately via
// VerifyFiles.
func (m ExtensionManifest) Validate() error {
	if !idPattern.MatchString(m.ID) {
		return qerr.New(qerr.InvalidConfiguration, "manifest id %q is not a reverse-DNS identifier", m.ID)
	}
	if m.Name == "" {
		return qerr.New(qerr.InvalidConfiguration, "manifest for %s is missing name", m.ID)
	}
	if m.Author == "" {
		return qerr.New(qerr.InvalidConfiguration, "manifest for %s is missing author", m.ID)
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return qerr.Wrap(qerr.InvalidConfiguration, err, "manifest for %s has invalid version %q", m.ID, m.Version)
	}
	if m.WasmFile.Path == "" {
		return qerr.New(qerr.InvalidConfiguration, "manifest for %s is missing wasm_file", m.ID)
	}
	if err := m.WasmFile.Checksum.Validate(); err != nil {
		return qerr.Wrap(qerr.InvalidConfiguration, err, "manifest for %s has invalid wasm_file checksum", m.ID)
	}
	seen := make(map[string]struct{}, len(m.Assets))
	for _, a := range m.Assets {
		if a.Name == "" {
			return qerr.New(qerr.InvalidConfiguration, "manifest for %s has an unnamed asset", m.ID)
		}
		if _, dup := seen[a.Name]; dup {
			return qerr.New(qerr.InvalidConfiguration, "manifest for %s has duplicate asset name %q", m.ID, a.Name)
		}
		seen[a.Name] = struct{}{}
		if err := a.Checksum.Validate(); err != nil {
			return qerr.Wrap(qerr.InvalidConfiguration, err, "manifest for %s asset %q has invalid checksum", m.ID, a.Name)
		}
	}
	return nil
}

// VerifyFiles checks that every FileReference in m hashes to the bytes on
// disk, resolved relative to dir (the extension's version directory).
func (m ExtensionManifest) VerifyFiles(dir string) error {
	if err := m.WasmFile.Verify(dir); err != nil {
		return err
	}
	for _, a := range m.Assets {
		if err := a.Verify(dir); err != nil {
			return err
		}
	}
	return nil
}

// Marshal renders m as pretty-printed, two-space-indented JSON.
func (m ExtensionManifest) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshaling %s: %w", m.ID, err)
	}
	return b, nil
}

// Parse decodes an ExtensionManifest from raw JSON bytes. Readers must
// accept any whitespace per spec.md §6; json.Unmarshal already does.
func Parse(b []byte) (ExtensionManifest, error) {
	var m ExtensionManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return ExtensionManifest{}, qerr.Wrap(qerr.IntegrityError, err, "parsing manifest JSON")
	}
	return m, nil
}

// ExtensionSummary is the denormalized store.json index entry for one
// extension version.
type ExtensionSummary struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Version          string          `json:"version"`
	Author           string          `json:"author"`
	Description      string          `json:"description"`
	SupportedDomains []string        `json:"supported_domains"`
	Tags             []string        `json:"tags,omitempty"`
	ManifestPath     string          `json:"manifest_path"`
	ManifestChecksum checksum.Digest `json:"manifest_checksum"`
	Size             uint64          `json:"size"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Yanked           bool            `json:"yanked,omitempty"`
}

// SummaryFrom builds the denormalized summary for m, whose manifest.json
// lives at manifestPath (relative to the store root) and hashes to
// manifestChecksum. updatedAt is normally the manifest file's modtime.
func SummaryFrom(m ExtensionManifest, manifestPath string, manifestChecksum checksum.Digest, updatedAt time.Time) ExtensionSummary {
	return ExtensionSummary{
		ID:               m.ID,
		Name:             m.Name,
		Version:          m.Version,
		Author:           m.Author,
		Description:      m.Description,
		SupportedDomains: append([]string(nil), m.SupportedDomains...),
		Tags:             append([]string(nil), m.Tags...),
		ManifestPath:     manifestPath,
		ManifestChecksum: manifestChecksum,
		Size:             m.WasmFile.Size,
		UpdatedAt:        updatedAt,
	}
}

// StoreManifest is the per-store root descriptor persisted as store.json.
type StoreManifest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Extensions  []ExtensionSummary `json:"extensions"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Marshal renders the store manifest as pretty-printed JSON.
func (s StoreManifest) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshaling store manifest %s: %w", s.Name, err)
	}
	return b, nil
}

// ParseStoreManifest decodes a StoreManifest from raw JSON bytes.
func ParseStoreManifest(b []byte) (StoreManifest, error) {
	var s StoreManifest
	if err := json.Unmarshal(b, &s); err != nil {
		return StoreManifest{}, qerr.Wrap(qerr.IntegrityError, err, "parsing store manifest JSON")
	}
	return s, nil
}

// Find returns the summary for (id, version), if present.
func (s StoreManifest) Find(id, version string) (ExtensionSummary, bool) {
	for _, e := range s.Extensions {
		if e.ID == id && e.Version == version {
			return e, true
		}
	}
	return ExtensionSummary{}, false
}

// Versions returns every summary matching id, across all versions.
func (s StoreManifest) Versions(id string) []ExtensionSummary {
	var out []ExtensionSummary
	for _, e := range s.Extensions {
		if e.ID == id {
			out = append(out, e)
		}
	}
	return out
}
