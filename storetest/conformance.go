// Package storetest provides a reusable conformance suite that exercises
// any provider.Provider implementation identically, mirroring the
// registry's storagedriver/testsuites pattern: every storage driver in that
// corpus runs the same DriverSuite against its own constructor.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-store/provider"
)

// NewProviderFunc constructs a fresh provider.Provider for one test,
// rooted at a caller-chosen temp directory.
type NewProviderFunc func(t *testing.T) provider.Provider

// RunProviderConformance runs the shared behavioral assertions every
// provider.Provider implementation must satisfy, regardless of backend.
func RunProviderConformance(t *testing.T, newProvider NewProviderFunc) {
	t.Helper()

	t.Run("SyncDirIsStable", func(t *testing.T) {
		p := newProvider(t)
		dir1 := p.SyncDir()
		dir2 := p.SyncDir()
		require.Equal(t, dir1, dir2)
		require.NotEmpty(t, dir1)
	})

	t.Run("DescriptionAndTypeAreNonEmpty", func(t *testing.T) {
		p := newProvider(t)
		require.NotEmpty(t, p.Description())
		require.NotEmpty(t, p.ProviderType())
	})

	t.Run("SyncIsIdempotentWhenNotNeeded", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()

		_, err := p.Sync(ctx)
		require.NoError(t, err)

		if p.NeedsSync(ctx) {
			return // backend legitimately wants another sync (e.g. fetch interval elapsed)
		}
		result, err := p.Sync(ctx)
		require.NoError(t, err)
		require.False(t, result.Updated)
	})

	t.Run("SupportsCapabilityIsTotal", func(t *testing.T) {
		p := newProvider(t)
		for _, c := range []provider.Capability{
			provider.CapabilityWrite,
			provider.CapabilityIncrementalSync,
			provider.CapabilityAuthentication,
			provider.CapabilityRemotePush,
			provider.CapabilityCaching,
			provider.CapabilityBackgroundSync,
		} {
			require.NotPanics(t, func() { p.SupportsCapability(c) })
		}
	})

	t.Run("HandleEventOnUnsupportedWriteIsSafe", func(t *testing.T) {
		p := newProvider(t)
		ctx := context.Background()
		if p.SupportsCapability(provider.CapabilityWrite) {
			t.Skip("provider supports write; EnsureWritable is exercised by backend-specific tests")
		}
		err := p.HandleEvent(ctx, provider.LifecycleEvent{Kind: provider.EventPublished, ID: "en.example.test", Version: "1.0.0"})
		require.NoError(t, err, "a read-only provider must treat HandleEvent as a no-op, not an error")
	})

	t.Run("EnsureWritableFailsClosedWithoutWriteCapability", func(t *testing.T) {
		p := newProvider(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if p.SupportsCapability(provider.CapabilityWrite) {
			t.Skip("provider supports write; backend-specific tests cover EnsureWritable's success path")
		}
		err := p.EnsureWritable(ctx)
		require.Error(t, err)
	})
}
