// Package atomicfile provides the write-temp-then-rename primitives used
// for store.json regeneration and manifest writes. It gives the same
// "partial writes are invisible" guarantee as the teacher's blobWriter
// commit step (stage under a temp name, then an atomic rename into place).
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// WriteFile atomically replaces path's contents with data. On any failure,
// the prior contents of path (if any) are left untouched.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("atomicfile: creating parent dir for %s: %w", path, err)
	}
	return renameio.WriteFile(path, data, perm)
}

// StageDir returns a fresh staging directory under root/.staging, suitable
// for writing out a package's files before the final atomic rename into
// extensions/<id>/<version>/.
func StageDir(root, name string) (string, error) {
	dir := filepath.Join(root, ".staging", name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("atomicfile: clearing stale staging dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("atomicfile: creating staging dir: %w", err)
	}
	return dir, nil
}

// CommitDir renames a fully-populated staging directory into its final
// location, creating the final location's parent if needed; dest itself
// must not exist (callers resolve overwrite semantics before calling this).
func CommitDir(stagingDir, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("atomicfile: creating parent dir for %s: %w", dest, err)
	}
	if err := os.Rename(stagingDir, dest); err != nil {
		return fmt.Errorf("atomicfile: committing %s -> %s: %w", stagingDir, dest, err)
	}
	return nil
}

// ReplaceDir atomically swaps dest for staging's contents, removing
// whatever previously lived at dest. Used for publish-with-overwrite, where
// the old extension/version directory must vanish in the same commit point
// as the new one appears.
func ReplaceDir(stagingDir, dest string) error {
	tmpOld := dest + ".replaced"
	_ = os.RemoveAll(tmpOld)
	haveOld := false
	if _, err := os.Stat(dest); err == nil {
		if err := os.Rename(dest, tmpOld); err != nil {
			return fmt.Errorf("atomicfile: moving aside previous %s: %w", dest, err)
		}
		haveOld = true
	}
	if err := os.Rename(stagingDir, dest); err != nil {
		if haveOld {
			_ = os.Rename(tmpOld, dest)
		}
		return fmt.Errorf("atomicfile: committing %s -> %s: %w", stagingDir, dest, err)
	}
	if haveOld {
		_ = os.RemoveAll(tmpOld)
	}
	return nil
}

// RemoveStaging cleans up an abandoned staging directory, used on
// cancellation or validation failure before the commit point is reached.
func RemoveStaging(stagingDir string) error {
	return os.RemoveAll(stagingDir)
}
