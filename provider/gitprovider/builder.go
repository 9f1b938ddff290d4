package gitprovider

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nacht-org/quelle-store/internal/qerr"
)

const defaultFetchInterval = 15 * time.Minute

// Builder constructs a GitProvider with validated settings. The only
// supported construction surface per spec.md §4.5.
type Builder struct {
	url           string
	cacheDir      string
	reference     Reference
	auth          Auth
	fetchInterval time.Duration
	shallow       bool
	write         *WriteConfig
	timeout       time.Duration
}

// NewBuilder starts a fluent Builder.
func NewBuilder() *Builder {
	return &Builder{reference: DefaultReference{}, auth: NoAuth{}, fetchInterval: defaultFetchInterval, timeout: defaultFetchTimeout}
}

// WithURL sets the Git remote URL. Required.
func (b *Builder) WithURL(url string) *Builder {
	b.url = url
	return b
}

// WithCacheDir sets the local mirror directory. Required; must not be
// shared with another provider (spec.md §5).
func (b *Builder) WithCacheDir(dir string) *Builder {
	b.cacheDir = dir
	return b
}

// WithReference sets which branch/tag/commit to track. Defaults to
// DefaultReference{} (the remote's HEAD).
func (b *Builder) WithReference(ref Reference) *Builder {
	b.reference = ref
	return b
}

// WithAuth sets the authentication method. Defaults to NoAuth{}, which
// falls back to ambient system credentials.
func (b *Builder) WithAuth(auth Auth) *Builder {
	b.auth = auth
	return b
}

// WithFetchInterval sets how long a successful sync is considered fresh.
func (b *Builder) WithFetchInterval(d time.Duration) *Builder {
	b.fetchInterval = d
	return b
}

// Shallow requests a depth-1 clone.
func (b *Builder) Shallow(shallow bool) *Builder {
	b.shallow = shallow
	return b
}

// WithWriteConfig enables the write path (publish/unpublish/commit/push).
func (b *Builder) WithWriteConfig(wc WriteConfig) *Builder {
	if wc.CommitStyle == nil {
		wc.CommitStyle = DefaultCommitStyle{}
	}
	b.write = &wc
	return b
}

// WithTimeout overrides the default 300s network operation timeout.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// Build validates accumulated settings and constructs the Provider.
func (b *Builder) Build() (*Provider, error) {
	if b.url == "" {
		return nil, qerr.New(qerr.InvalidConfiguration, "git provider requires a URL")
	}
	if b.cacheDir == "" {
		return nil, qerr.New(qerr.InvalidConfiguration, "git provider requires a cache directory")
	}
	if err := validateAuthForURL(b.url, b.auth); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(b.cacheDir)
	if err != nil {
		return nil, qerr.Wrap(qerr.InvalidConfiguration, err, "resolving cache dir %s", b.cacheDir)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, qerr.Wrap(qerr.IoError, err, "preparing cache dir parent for %s", abs)
	}

	return &Provider{
		url:           b.url,
		cacheDir:      abs,
		reference:     b.reference,
		auth:          b.auth,
		fetchInterval: b.fetchInterval,
		shallow:       b.shallow,
		write:         b.write,
		timeout:       b.timeout,
	}, nil
}

// validateAuthForURL rejects credential/URL-scheme combinations that can
// never work, e.g. an SSH key paired with an HTTPS URL.
func validateAuthForURL(url string, auth Auth) error {
	isSSHURL := strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")
	switch auth.(type) {
	case SSHKeyAuth:
		if !isSSHURL {
			return qerr.New(qerr.InvalidConfiguration, "SSH key auth requires an SSH URL, got %s", url)
		}
	case TokenAuth, UserPasswordAuth:
		if isSSHURL {
			return qerr.New(qerr.InvalidConfiguration, "HTTP(S) credentials cannot be used with SSH URL %s", url)
		}
	}
	return nil
}
