package store

import (
	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/provider"
	"github.com/nacht-org/quelle-store/provider/gitprovider"
	"github.com/nacht-org/quelle-store/provider/localprovider"
)

// Builder constructs a CachedStore backed by a Git provider in one step,
// per spec.md §4.5 ("CachedStore construction via a Git-store builder").
// For local-provider-backed stores, build the provider with
// localprovider.Builder and pass it to New directly.
type Builder struct {
	name       string
	gitBuilder *gitprovider.Builder
	crossProc  bool
}

// NewBuilder starts a fluent Builder for a Git-backed store.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, gitBuilder: gitprovider.NewBuilder()}
}

// Git exposes the underlying gitprovider.Builder for provider-specific
// configuration (URL, reference, auth, write config, ...).
func (b *Builder) Git() *gitprovider.Builder { return b.gitBuilder }

// WithCrossProcessLocking enables advisory flock-based locking in the
// resulting store.
func (b *Builder) WithCrossProcessLocking() *Builder {
	b.crossProc = true
	return b
}

// Build validates the Git provider configuration and constructs the store.
func (b *Builder) Build() (*CachedStore, error) {
	if b.name == "" {
		return nil, qerr.New(qerr.InvalidConfiguration, "store requires a name")
	}
	p, err := b.gitBuilder.Build()
	if err != nil {
		return nil, err
	}
	var opts []Option
	if b.crossProc {
		opts = append(opts, WithCrossProcessLocking())
	}
	return New(b.name, p, opts...), nil
}

// NewLocal constructs a CachedStore over a validated LocalProvider. Kept as
// a free function (rather than forcing every local store through a
// provider-specific Builder type) because LocalProvider's own builder
// already handles its validation; a store wrapping it needs only a name.
func NewLocal(name string, p *localprovider.Provider, opts ...Option) *CachedStore {
	return New(name, provider.Provider(p), opts...)
}
