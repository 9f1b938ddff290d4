package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-store/internal/checksum"
)

func validManifest() ExtensionManifest {
	wasm := []byte("wasm bytes")
	return ExtensionManifest{
		ID:               "en.example.mysite",
		Name:             "My Site",
		Version:          "1.0.0",
		Author:           "example",
		Description:      "an example extension",
		SupportedDomains: []string{"example.com"},
		Tags:             []string{"fiction"},
		WasmFile: FileReference{
			Path:     "extension.wasm",
			Checksum: checksum.Bytes(wasm),
			Size:     uint64(len(wasm)),
		},
	}
}

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	assert.NoError(t, validManifest().Validate())
}

func TestValidateRejectsBadID(t *testing.T) {
	m := validManifest()
	m.ID = "NotReverseDNS"
	assert.Error(t, m.Validate())
}

func TestValidateRejectsBadVersion(t *testing.T) {
	m := validManifest()
	m.Version = "not-semver"
	assert.Error(t, m.Validate())
}

func TestValidateRejectsDuplicateAssetNames(t *testing.T) {
	m := validManifest()
	a := AssetReference{FileReference: FileReference{Path: "assets/icon.png", Checksum: checksum.Bytes([]byte("x")), Size: 1}, Name: "icon", AssetType: AssetIcon}
	m.Assets = []AssetReference{a, a}
	assert.Error(t, m.Validate())
}

func TestVerifyFilesDetectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	wasm := []byte("wasm bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extension.wasm"), wasm, 0o644))

	m := validManifest()
	require.NoError(t, m.VerifyFiles(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extension.wasm"), []byte("tampered"), 0o644))
	assert.Error(t, m.VerifyFiles(dir))
}

func TestMarshalParseRoundTrip(t *testing.T) {
	m := validManifest()
	b, err := m.Marshal()
	require.NoError(t, err)

	got, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Version, got.Version)
	assert.Equal(t, m.Tags, got.Tags)
}

func TestSummaryFromFlattensFields(t *testing.T) {
	m := validManifest()
	updatedAt := time.Now().Truncate(time.Second)
	sum := SummaryFrom(m, "extensions/en.example.mysite/1.0.0/manifest.json", checksum.Bytes([]byte("manifest")), updatedAt)

	assert.Equal(t, m.ID, sum.ID)
	assert.Equal(t, m.WasmFile.Size, sum.Size)
	assert.Equal(t, updatedAt, sum.UpdatedAt)
	assert.Equal(t, m.Tags, sum.Tags)
}

func TestStoreManifestFindAndVersions(t *testing.T) {
	sm := StoreManifest{
		Name: "test store",
		Extensions: []ExtensionSummary{
			{ID: "en.example", Version: "1.0.0"},
			{ID: "en.example", Version: "2.0.0"},
			{ID: "en.other", Version: "1.0.0"},
		},
	}

	_, ok := sm.Find("en.example", "1.0.0")
	assert.True(t, ok)
	_, ok = sm.Find("en.example", "9.9.9")
	assert.False(t, ok)

	assert.Len(t, sm.Versions("en.example"), 2)
	assert.Len(t, sm.Versions("en.missing"), 0)
}

func TestStoreManifestMarshalParseRoundTrip(t *testing.T) {
	sm := StoreManifest{Name: "s", Extensions: []ExtensionSummary{{ID: "en.example", Version: "1.0.0"}}}
	b, err := sm.Marshal()
	require.NoError(t, err)

	got, err := ParseStoreManifest(b)
	require.NoError(t, err)
	assert.Equal(t, sm.Name, got.Name)
	assert.Len(t, got.Extensions, 1)
}
