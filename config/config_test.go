package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-store/provider/gitprovider"
)

func TestGlobalOptionsValidateDefaultsLogLevel(t *testing.T) {
	g := GlobalOptions{InstallDir: "/tmp/install", RegistryPath: "/tmp/registry.json"}
	require.NoError(t, g.Validate())
	assert.Equal(t, "info", g.LogLevel)
}

func TestGlobalOptionsValidateRejectsMissingFields(t *testing.T) {
	assert.Error(t, (&GlobalOptions{RegistryPath: "/tmp/registry.json"}).Validate())
	assert.Error(t, (&GlobalOptions{InstallDir: "/tmp/install"}).Validate())
}

func TestGlobalOptionsValidateRejectsUnknownLogLevel(t *testing.T) {
	g := GlobalOptions{InstallDir: "/tmp/install", RegistryPath: "/tmp/registry.json", LogLevel: "verbose"}
	assert.Error(t, g.Validate())
}

func TestStoreConfigValidateLocalRequiresRootDir(t *testing.T) {
	c := StoreConfig{Name: "primary", Kind: ProviderKindLocal}
	assert.Error(t, c.Validate())

	c.Local = &LocalProviderConfig{RootDir: "/tmp/store"}
	assert.NoError(t, c.Validate())
}

func TestStoreConfigValidateRejectsMixedProviderConfig(t *testing.T) {
	c := StoreConfig{
		Name:  "primary",
		Kind:  ProviderKindLocal,
		Local: &LocalProviderConfig{RootDir: "/tmp/store"},
		Git:   &GitProviderConfig{URL: "https://example.com/repo.git", CacheDir: "/tmp/cache"},
	}
	assert.Error(t, c.Validate())
}

func TestStoreConfigValidateGitRequiresURLAndCacheDir(t *testing.T) {
	c := StoreConfig{Name: "primary", Kind: ProviderKindGit, Git: &GitProviderConfig{URL: "https://example.com/repo.git"}}
	assert.Error(t, c.Validate())

	c.Git.CacheDir = "/tmp/cache"
	assert.NoError(t, c.Validate())
}

func TestStoreConfigValidateRejectsUnknownKind(t *testing.T) {
	c := StoreConfig{Name: "primary", Kind: "ftp"}
	assert.Error(t, c.Validate())
}

func TestStoreConfigBuildStoreLocal(t *testing.T) {
	c := StoreConfig{
		Name: "primary",
		Kind: ProviderKindLocal,
		Local: &LocalProviderConfig{
			RootDir: t.TempDir(),
		},
	}
	s, err := c.BuildStore()
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestStoreConfigBuildStoreRejectsInvalidConfig(t *testing.T) {
	c := StoreConfig{Name: "primary", Kind: ProviderKindLocal}
	_, err := c.BuildStore()
	assert.Error(t, err)
}

func TestGitAuthConfigResolve(t *testing.T) {
	assert.Equal(t, gitprovider.NoAuth{}, GitAuthConfig{}.Resolve())
	assert.Equal(t, gitprovider.TokenAuth{Token: "secret"}, GitAuthConfig{Token: "secret"}.Resolve())
	assert.Equal(t, gitprovider.UserPasswordAuth{Username: "alice", Password: "pw"}, GitAuthConfig{Username: "alice", Password: "pw"}.Resolve())

	keyCfg := GitAuthConfig{SSHKeyPath: "/home/alice/.ssh/id_ed25519", SSHPublicPath: "/home/alice/.ssh/id_ed25519.pub", SSHPassphrase: "pw"}
	assert.Equal(t, gitprovider.SSHKeyAuth{PrivateKeyPath: "/home/alice/.ssh/id_ed25519", PublicKeyPath: "/home/alice/.ssh/id_ed25519.pub", Passphrase: "pw"}, keyCfg.Resolve())
}

func TestGitReferenceConfigResolve(t *testing.T) {
	assert.Equal(t, gitprovider.DefaultReference{}, GitReferenceConfig{}.Resolve())
	assert.Equal(t, gitprovider.BranchReference{Name: "main"}, GitReferenceConfig{Branch: "main"}.Resolve())
	assert.Equal(t, gitprovider.TagReference{Name: "v1.0.0"}, GitReferenceConfig{Tag: "v1.0.0"}.Resolve())
	assert.Equal(t, gitprovider.CommitReference{SHA: "abcdef"}, GitReferenceConfig{Commit: "abcdef"}.Resolve())
}

func TestStoreConfigBuildStoreGitDispatchesToGitProviderBuilder(t *testing.T) {
	c := StoreConfig{
		Name: "remote",
		Kind: ProviderKindGit,
		Git: &GitProviderConfig{
			URL:      "https://example.com/repo.git",
			CacheDir: filepath.Join(t.TempDir(), "cache"),
		},
	}
	// Building does not clone: the store syncs on its first read, so no
	// network access happens here and the result is a git-backed store.
	s, err := c.BuildStore()
	require.NoError(t, err)
	assert.Equal(t, "git", s.Provider().ProviderType())
}
