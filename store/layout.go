// Package store implements CachedStore: the package-layout and integrity
// semantics layered over a provider's synced mirror (spec.md §4.2).
package store

import (
	"path/filepath"

	"github.com/nacht-org/quelle-store/internal/atomicfile"
	"github.com/nacht-org/quelle-store/internal/qerr"
)

const (
	storeManifestName = "store.json"
	extensionsDir      = "extensions"
	wasmFileName       = "extension.wasm"
	manifestFileName   = "manifest.json"
	assetsDirName      = "assets"
)

// storeManifestPath returns the absolute path to root/store.json.
func storeManifestPath(root string) string {
	return filepath.Join(root, storeManifestName)
}

// extensionVersionDir returns the absolute path to
// root/extensions/<id>/<version>/.
func extensionVersionDir(root, id, version string) string {
	return filepath.Join(root, extensionsDir, id, version)
}

// extensionDir returns the absolute path to root/extensions/<id>/.
func extensionDir(root, id string) string {
	return filepath.Join(root, extensionsDir, id)
}

// manifestPath returns the absolute path to the manifest.json for id@version.
func manifestPath(root, id, version string) string {
	return filepath.Join(extensionVersionDir(root, id, version), manifestFileName)
}

// relManifestPath returns the store-root-relative manifest.json path used
// in ExtensionSummary.ManifestPath.
func relManifestPath(id, version string) string {
	return filepath.ToSlash(filepath.Join(extensionsDir, id, version, manifestFileName))
}

// wasmPath returns the absolute path to the wasm artifact for id@version.
func wasmPath(root, id, version string) string {
	return filepath.Join(extensionVersionDir(root, id, version), wasmFileName)
}

// writeStoreManifestBytes atomically replaces root/store.json.
func writeStoreManifestBytes(root string, b []byte) error {
	if err := atomicfile.WriteFile(storeManifestPath(root), b, 0o644); err != nil {
		return qerr.Wrap(qerr.IoError, err, "writing store manifest")
	}
	return nil
}
