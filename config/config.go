// Package config defines the already-parsed configuration shapes the store
// subsystem consumes (spec.md §6). It does not read YAML itself — the
// external loader is out of scope — but mirrors the registry's
// configuration.Configuration pattern: plain structs with yaml struct tags
// so a loader can unmarshal directly into them, plus a Validate() method
// each.
package config

import (
	"time"

	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/provider/gitprovider"
	"github.com/nacht-org/quelle-store/provider/localprovider"
	"github.com/nacht-org/quelle-store/store"
)

// GlobalOptions holds process-wide settings shared by every configured
// store.
type GlobalOptions struct {
	// InstallDir is the client-local root StoreManager installs extensions
	// into (client/extensions/).
	InstallDir string `yaml:"install_dir"`

	// RegistryPath is the file StoreManager's Registry ledger is persisted
	// to (client/registry.json).
	RegistryPath string `yaml:"registry_path"`

	// CrossProcessLocking is accepted from the loaded configuration but is
	// not read by anything in this module; advisory flock-backed locking is
	// switched on per store by StoreConfig.CrossProcessLocking.
	CrossProcessLocking bool `yaml:"cross_process_locking"`

	// LogLevel is one of "debug", "info", "warn", "error". Default "info".
	LogLevel string `yaml:"log_level"`
}

// Validate checks the required fields and normalizes LogLevel's default.
func (g *GlobalOptions) Validate() error {
	if g.InstallDir == "" {
		return qerr.New(qerr.InvalidConfiguration, "global options missing install_dir")
	}
	if g.RegistryPath == "" {
		return qerr.New(qerr.InvalidConfiguration, "global options missing registry_path")
	}
	switch g.LogLevel {
	case "":
		g.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return qerr.New(qerr.InvalidConfiguration, "unrecognized log_level %q", g.LogLevel)
	}
	return nil
}

// ProviderKind selects which provider a StoreConfig builds.
type ProviderKind string

const (
	ProviderKindLocal ProviderKind = "local"
	ProviderKindGit   ProviderKind = "git"
)

// LocalProviderConfig configures a provider/localprovider.Provider.
type LocalProviderConfig struct {
	RootDir  string `yaml:"root_dir"`
	ReadOnly bool   `yaml:"read_only"`
}

// GitAuthConfig configures a gitprovider.Auth. At most one of Token,
// Username/Password, or SSHKeyPath should be set; none set means NoAuth.
type GitAuthConfig struct {
	Token          string `yaml:"token,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	SSHKeyPath     string `yaml:"ssh_key_path,omitempty"`
	SSHPublicPath  string `yaml:"ssh_public_key_path,omitempty"`
	SSHPassphrase  string `yaml:"ssh_passphrase,omitempty"`
}

// Resolve converts the YAML-friendly shape into a gitprovider.Auth.
func (a GitAuthConfig) Resolve() gitprovider.Auth {
	switch {
	case a.Token != "":
		return gitprovider.TokenAuth{Token: a.Token}
	case a.Username != "":
		return gitprovider.UserPasswordAuth{Username: a.Username, Password: a.Password}
	case a.SSHKeyPath != "":
		return gitprovider.SSHKeyAuth{PrivateKeyPath: a.SSHKeyPath, PublicKeyPath: a.SSHPublicPath, Passphrase: a.SSHPassphrase}
	default:
		return gitprovider.NoAuth{}
	}
}

// GitReferenceConfig names the branch/tag/commit a GitProviderConfig
// checks out. Zero value means the repository's default branch.
type GitReferenceConfig struct {
	Branch string `yaml:"branch,omitempty"`
	Tag    string `yaml:"tag,omitempty"`
	Commit string `yaml:"commit,omitempty"`
}

// Resolve converts the YAML-friendly shape into a gitprovider.Reference.
func (r GitReferenceConfig) Resolve() gitprovider.Reference {
	switch {
	case r.Branch != "":
		return gitprovider.BranchReference{Name: r.Branch}
	case r.Tag != "":
		return gitprovider.TagReference{Name: r.Tag}
	case r.Commit != "":
		return gitprovider.CommitReference{SHA: r.Commit}
	default:
		return gitprovider.DefaultReference{}
	}
}

// GitWriteConfig configures whether and how a GitProvider commits/pushes
// local mutations back to its remote.
type GitWriteConfig struct {
	Enabled      bool   `yaml:"enabled"`
	AuthorName   string `yaml:"author_name,omitempty"`
	AuthorEmail  string `yaml:"author_email,omitempty"`
	CommitStyle  string `yaml:"commit_style,omitempty"` // "default", "detailed", "minimal"
	AutoPush     bool   `yaml:"auto_push"`
}

// GitProviderConfig configures a provider/gitprovider.Provider.
type GitProviderConfig struct {
	URL           string              `yaml:"url"`
	CacheDir      string              `yaml:"cache_dir"`
	Reference     GitReferenceConfig  `yaml:"reference,omitempty"`
	Auth          GitAuthConfig       `yaml:"auth,omitempty"`
	FetchInterval time.Duration       `yaml:"fetch_interval,omitempty"`
	Shallow       bool                `yaml:"shallow"`
	Timeout       time.Duration       `yaml:"timeout,omitempty"`
	Write         *GitWriteConfig     `yaml:"write,omitempty"`
}

// StoreConfig describes one configured store: its provider backend,
// search priority, and trust/enabled flags (spec.md §4.3, §6).
type StoreConfig struct {
	Name     string `yaml:"name"`
	Priority uint32 `yaml:"priority"`
	Trusted  bool   `yaml:"trusted"`
	Enabled  bool   `yaml:"enabled"`

	Kind  ProviderKind         `yaml:"kind"`
	Local *LocalProviderConfig `yaml:"local,omitempty"`
	Git   *GitProviderConfig   `yaml:"git,omitempty"`

	CrossProcessLocking bool `yaml:"cross_process_locking,omitempty"`
}

// Validate checks that exactly the provider config matching Kind is
// present and non-empty in its required fields.
func (c *StoreConfig) Validate() error {
	if c.Name == "" {
		return qerr.New(qerr.InvalidConfiguration, "store config missing name")
	}
	switch c.Kind {
	case ProviderKindLocal:
		if c.Local == nil || c.Local.RootDir == "" {
			return qerr.New(qerr.InvalidConfiguration, "store %s: kind local requires local.root_dir", c.Name)
		}
		if c.Git != nil {
			return qerr.New(qerr.InvalidConfiguration, "store %s: kind local must not set git config", c.Name)
		}
	case ProviderKindGit:
		if c.Git == nil || c.Git.URL == "" || c.Git.CacheDir == "" {
			return qerr.New(qerr.InvalidConfiguration, "store %s: kind git requires git.url and git.cache_dir", c.Name)
		}
		if c.Local != nil {
			return qerr.New(qerr.InvalidConfiguration, "store %s: kind git must not set local config", c.Name)
		}
	default:
		return qerr.New(qerr.InvalidConfiguration, "store %s: unrecognized kind %q", c.Name, c.Kind)
	}
	return nil
}

// BuildStore validates c and constructs the CachedStore it describes,
// dispatching on Kind to the matching provider builder.
func (c *StoreConfig) BuildStore() (*store.CachedStore, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var opts []store.Option
	if c.CrossProcessLocking {
		opts = append(opts, store.WithCrossProcessLocking())
	}

	switch c.Kind {
	case ProviderKindLocal:
		p, err := localprovider.NewBuilder().
			WithRootDir(c.Local.RootDir).
			ReadOnly(c.Local.ReadOnly).
			WithDescription(c.Name).
			Build()
		if err != nil {
			return nil, err
		}
		return store.NewLocal(c.Name, p, opts...), nil
	case ProviderKindGit:
		b := gitprovider.NewBuilder().
			WithURL(c.Git.URL).
			WithCacheDir(c.Git.CacheDir).
			WithReference(c.Git.Reference.Resolve()).
			WithAuth(c.Git.Auth.Resolve()).
			Shallow(c.Git.Shallow)
		if c.Git.FetchInterval > 0 {
			b = b.WithFetchInterval(c.Git.FetchInterval)
		}
		if c.Git.Timeout > 0 {
			b = b.WithTimeout(c.Git.Timeout)
		}
		if c.Git.Write != nil && c.Git.Write.Enabled {
			b = b.WithWriteConfig(gitprovider.WriteConfig{
				Author:      resolveAuthor(c.Git.Write),
				CommitStyle: resolveCommitStyle(c.Git.Write.CommitStyle),
				AutoPush:    c.Git.Write.AutoPush,
			})
		}
		p, err := b.Build()
		if err != nil {
			return nil, err
		}
		return store.New(c.Name, p, opts...), nil
	default:
		return nil, qerr.New(qerr.InvalidConfiguration, "store %s: unrecognized kind %q", c.Name, c.Kind)
	}
}

func resolveAuthor(w *GitWriteConfig) *gitprovider.Author {
	if w.AuthorName == "" && w.AuthorEmail == "" {
		return nil
	}
	return &gitprovider.Author{Name: w.AuthorName, Email: w.AuthorEmail}
}

func resolveCommitStyle(style string) gitprovider.CommitStyle {
	switch style {
	case "detailed":
		return gitprovider.DetailedCommitStyle{}
	case "minimal":
		return gitprovider.MinimalCommitStyle{}
	default:
		return gitprovider.DefaultCommitStyle{}
	}
}
