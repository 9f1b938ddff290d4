package localprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-store/provider"
	"github.com/nacht-org/quelle-store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunProviderConformance(t, func(t *testing.T) provider.Provider {
		p, err := NewBuilder().WithRootDir(t.TempDir()).Build()
		require.NoError(t, err)
		return p
	})
}

func TestBuilderRequiresRootDir(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)
}

func TestReadOnlyProviderDeniesWrite(t *testing.T) {
	p, err := NewBuilder().WithRootDir(t.TempDir()).ReadOnly(true).Build()
	require.NoError(t, err)

	assert.False(t, p.SupportsCapability(provider.CapabilityWrite))
	assert.Error(t, p.EnsureWritable(context.Background()))
}

func TestWritableProviderAllowsWrite(t *testing.T) {
	p, err := NewBuilder().WithRootDir(t.TempDir()).Build()
	require.NoError(t, err)

	assert.True(t, p.SupportsCapability(provider.CapabilityWrite))
	assert.NoError(t, p.EnsureWritable(context.Background()))
}

func TestWatchForChangesMarksDirty(t *testing.T) {
	p, err := NewBuilder().WithRootDir(t.TempDir()).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.WatchForChanges(ctx))
	assert.True(t, p.SupportsCapability(provider.CapabilityBackgroundSync))
	assert.False(t, p.NeedsSync(ctx))

	require.NoError(t, p.EnsureWritable(ctx)) // writes+removes a probe file, should trip the watcher

	require.Eventually(t, func() bool {
		return p.NeedsSync(ctx)
	}, 2*time.Second, 20*time.Millisecond)
}
