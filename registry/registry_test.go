package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registry.json"))
	entries, err := r.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpsertThenGet(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registry.json"))
	entry := InstalledExtension{ID: "en.example", Version: "1.0.0", SourceStoreName: "default", InstallPath: "/tmp/x", InstalledAt: time.Now()}

	require.NoError(t, r.Upsert(entry))

	got, ok, err := r.Get("en.example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", got.Version)
}

func TestUpsertReplacesExistingEntry(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, r.Upsert(InstalledExtension{ID: "en.example", Version: "1.0.0"}))
	require.NoError(t, r.Upsert(InstalledExtension{ID: "en.example", Version: "2.0.0"}))

	entries, err := r.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2.0.0", entries[0].Version)
}

func TestRemove(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, r.Upsert(InstalledExtension{ID: "en.example", Version: "1.0.0"}))
	require.NoError(t, r.Remove("en.example"))

	_, ok, err := r.Get("en.example")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveRejectsDuplicateIDs(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "registry.json"))
	err := r.Save([]InstalledExtension{
		{ID: "en.example", Version: "1.0.0"},
		{ID: "en.example", Version: "2.0.0"},
	})
	assert.Error(t, err)
}

func TestCleanupDropsStaleEntriesAndOrphanDirs(t *testing.T) {
	installRoot := t.TempDir()
	keepDir := filepath.Join(installRoot, "en.keep")
	require.NoError(t, os.MkdirAll(keepDir, 0o755))
	orphanDir := filepath.Join(installRoot, "en.orphan")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))

	r := New(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, r.Upsert(InstalledExtension{ID: "en.keep", InstallPath: keepDir}))
	require.NoError(t, r.Upsert(InstalledExtension{ID: "en.missing", InstallPath: filepath.Join(installRoot, "en.missing")}))

	dropped, removed, err := r.Cleanup(installRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"en.missing"}, dropped)
	assert.Equal(t, []string{orphanDir}, removed)

	_, ok, err := r.Get("en.keep")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = r.Get("en.missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, statErr := os.Stat(keepDir)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(orphanDir)
	assert.True(t, os.IsNotExist(statErr))
}
