// Package provider defines the source abstraction that unifies local
// filesystem mirrors and cloned Git working trees behind a single
// sync-then-read contract (spec.md §4.1).
package provider

import (
	"context"
	"time"
)

// Capability is a queryable feature flag a provider declares. A single
// runtime query (Provider.SupportsCapability) is preferred over splitting
// providers into multiple narrow interfaces: it lets new capabilities land
// without breaking existing implementations, at the cost of a little
// type-level precision.
type Capability string

const (
	CapabilityWrite          Capability = "write"
	CapabilityIncrementalSync Capability = "incremental_sync"
	CapabilityAuthentication Capability = "authentication"
	CapabilityRemotePush     Capability = "remote_push"
	CapabilityCaching        Capability = "caching"
	CapabilityBackgroundSync Capability = "background_sync"
)

// EventKind tags a LifecycleEvent.
type EventKind string

const (
	EventPublished   EventKind = "published"
	EventUnpublished EventKind = "unpublished"
	// EventInitialized is emitted once, when a brand-new writable store is
	// created, so a mutable provider can make its first commit.
	EventInitialized EventKind = "initialized"
)

// LifecycleEvent is the tagged notification a store emits to its provider
// after a successful mutation. Modeling it as one tagged variant (rather
// than a callback per event) lets new events (update, yank, deprecate) join
// the enum without changing HandleEvent's signature; providers that don't
// care about a new kind fall through their default arm.
type LifecycleEvent struct {
	Kind    EventKind
	ID      string
	Version string
}

// SyncResult reports the outcome of a Provider.Sync call.
type SyncResult struct {
	Updated          bool
	Changes          []string
	Warnings         []string
	CompletedAt      time.Time
	BytesTransferred *uint64
}

// Provider represents an external source and the local mirror a CachedStore
// reads from and writes through. Implementations: LocalProvider (the mirror
// is authoritative), GitProvider (the mirror is a checked-out clone).
type Provider interface {
	// SyncDir returns the authoritative local mirror path. Stable for the
	// provider's lifetime.
	SyncDir() string

	// Sync brings the mirror into agreement with the source. May be a full
	// clone on first call and incremental thereafter. Leaves the mirror in
	// a consistent state on success; must not corrupt a prior consistent
	// state on failure.
	Sync(ctx context.Context) (SyncResult, error)

	// NeedsSync reports whether a Sync call is likely to produce changes.
	NeedsSync(ctx context.Context) bool

	// Description is a short human-readable description of the source.
	Description() string

	// ProviderType identifies the provider's kind, e.g. "local" or "git".
	ProviderType() string

	// SupportsCapability reports whether the provider offers the given
	// capability. Required with no default: every provider declares its
	// feature set explicitly.
	SupportsCapability(c Capability) bool

	// HandleEvent notifies the provider of a mutation the store has
	// already committed locally. The default behavior (for read-only
	// providers) is a no-op; mutable providers commit/push here.
	HandleEvent(ctx context.Context, event LifecycleEvent) error

	// EnsureWritable fails fast if the provider cannot currently accept a
	// mutation (missing write config, dirty worktree, bad credentials).
	EnsureWritable(ctx context.Context) error
}
