package storemanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-store/provider/localprovider"
	"github.com/nacht-org/quelle-store/registry"
	"github.com/nacht-org/quelle-store/store"
)

func newLocalStore(t *testing.T, name string) *store.CachedStore {
	t.Helper()
	p, err := localprovider.NewBuilder().WithRootDir(t.TempDir()).Build()
	require.NoError(t, err)
	s := store.NewLocal(name, p)
	require.NoError(t, s.InitializeStore(context.Background(), name))
	return s
}

func publish(t *testing.T, s *store.CachedStore, id, version string) {
	t.Helper()
	_, err := s.Publish(context.Background(), store.Package{
		ID: id, Name: "Ext", Version: version, Author: "tester",
		Description: "d", SupportedDomains: []string{"example.com"},
		WasmBytes: []byte("wasm-" + id + "-" + version),
	}, store.PublishOptions{})
	require.NoError(t, err)
}

func newManager(t *testing.T) (*Manager, *registry.Registry, string) {
	t.Helper()
	installDir := t.TempDir()
	reg := registry.New(filepath.Join(t.TempDir(), "registry.json"))
	return New(installDir, reg), reg, installDir
}

func TestFindExtensionPrefersHighestVersion(t *testing.T) {
	mgr, _, _ := newManager(t)
	s := newLocalStore(t, "primary")
	publish(t, s, "en.example", "1.0.0")
	publish(t, s, "en.example", "2.0.0")
	mgr.AddStore("primary", 10, true, true, s)

	found, err := mgr.FindExtension(context.Background(), "en.example", nil)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", found.Summary.Version)
}

func TestFindExtensionNotFound(t *testing.T) {
	mgr, _, _ := newManager(t)
	s := newLocalStore(t, "primary")
	mgr.AddStore("primary", 10, true, true, s)

	_, err := mgr.FindExtension(context.Background(), "en.missing", nil)
	assert.Error(t, err)
}

func TestInstallExtensionWritesFilesAndRegistersEntry(t *testing.T) {
	mgr, reg, installDir := newManager(t)
	s := newLocalStore(t, "primary")
	publish(t, s, "en.example", "1.0.0")
	mgr.AddStore("primary", 10, true, true, s)

	entry, err := mgr.InstallExtension(context.Background(), "en.example", nil, InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", entry.Version)

	_, statErr := os.Stat(filepath.Join(installDir, "extensions", "en.example", "extension.wasm"))
	assert.NoError(t, statErr)

	got, ok, err := reg.Get("en.example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", got.Version)
}

func TestInstallExtensionRefusesDowngradeWithoutForce(t *testing.T) {
	mgr, _, _ := newManager(t)
	s := newLocalStore(t, "primary")
	publish(t, s, "en.example", "2.0.0")
	mgr.AddStore("primary", 10, true, true, s)

	_, err := mgr.InstallExtension(context.Background(), "en.example", nil, InstallOptions{})
	require.NoError(t, err)

	_, err = mgr.InstallExtension(context.Background(), "en.example", &VersionConstraint{}, InstallOptions{})
	require.Error(t, err)

	older := newLocalStore(t, "older")
	publish(t, older, "en.example", "1.0.0")
	mgr.RemoveStore("primary")
	mgr.AddStore("older", 10, true, true, older)

	_, err = mgr.InstallExtension(context.Background(), "en.example", nil, InstallOptions{})
	require.Error(t, err)
}

func TestUpdateExtensionInstallsStrictlyNewerVersion(t *testing.T) {
	mgr, reg, _ := newManager(t)
	s := newLocalStore(t, "primary")
	publish(t, s, "en.example", "1.0.0")
	mgr.AddStore("primary", 10, true, true, s)

	_, err := mgr.InstallExtension(context.Background(), "en.example", nil, InstallOptions{})
	require.NoError(t, err)

	publish(t, s, "en.example", "1.1.0")
	require.NoError(t, mgr.UpdateExtension(context.Background(), "en.example"))

	got, ok, err := reg.Get("en.example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.1.0", got.Version)
}

func TestUninstallExtensionRemovesFilesAndEntry(t *testing.T) {
	mgr, reg, installDir := newManager(t)
	s := newLocalStore(t, "primary")
	publish(t, s, "en.example", "1.0.0")
	mgr.AddStore("primary", 10, true, true, s)

	_, err := mgr.InstallExtension(context.Background(), "en.example", nil, InstallOptions{})
	require.NoError(t, err)

	require.NoError(t, mgr.UninstallExtension("en.example", UninstallOptions{}))

	_, ok, err := reg.Get("en.example")
	require.NoError(t, err)
	assert.False(t, ok)
	_, statErr := os.Stat(filepath.Join(installDir, "extensions", "en.example"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUninstallExtensionNotFoundUnlessIdempotent(t *testing.T) {
	mgr, _, _ := newManager(t)
	err := mgr.UninstallExtension("en.missing", UninstallOptions{})
	assert.Error(t, err)

	err = mgr.UninstallExtension("en.missing", UninstallOptions{Idempotent: true})
	assert.NoError(t, err)
}

func TestSearchExtensionsDedupesAcrossStoresByPriority(t *testing.T) {
	mgr, _, _ := newManager(t)
	high := newLocalStore(t, "high-priority")
	low := newLocalStore(t, "low-priority")
	publish(t, high, "en.example", "1.0.0")
	publish(t, low, "en.example", "1.0.0")
	mgr.AddStore("high-priority", 1, true, true, high)
	mgr.AddStore("low-priority", 5, true, true, low)

	results, err := mgr.SearchExtensions(context.Background(), store.Query{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "high-priority", results[0].StoreName)
}

func TestHealthCheckReportsReachability(t *testing.T) {
	mgr, _, _ := newManager(t)
	s := newLocalStore(t, "primary")
	mgr.AddStore("primary", 10, true, true, s)

	health := mgr.HealthCheck(context.Background())
	h, ok := health["primary"]
	require.True(t, ok)
	assert.True(t, h.Reachable)
}

func TestListStoresReturnsPriorityOrder(t *testing.T) {
	mgr, _, _ := newManager(t)
	mgr.AddStore("b", 5, true, true, newLocalStore(t, "b"))
	mgr.AddStore("a", 1, true, true, newLocalStore(t, "a"))

	assert.Equal(t, []string{"a", "b"}, mgr.ListStores())
}

func TestRemoveStore(t *testing.T) {
	mgr, _, _ := newManager(t)
	mgr.AddStore("a", 1, true, true, newLocalStore(t, "a"))
	mgr.RemoveStore("a")
	assert.Empty(t, mgr.ListStores())
}
