package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/provider/localprovider"
)

func newTestStore(t *testing.T) *CachedStore {
	t.Helper()
	p, err := localprovider.NewBuilder().WithRootDir(t.TempDir()).Build()
	require.NoError(t, err)
	s := NewLocal("test-store", p)
	require.NoError(t, s.InitializeStore(context.Background(), "a test store"))
	return s
}

func testPackage(id, version string) Package {
	return Package{
		ID:               id,
		Name:             "Test Extension",
		Version:          version,
		Author:           "tester",
		Description:      "a test extension",
		SupportedDomains: []string{"example.com"},
		WasmBytes:        []byte("wasm bytes for " + id + "@" + version),
	}
}

func TestPublishThenGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.Publish(ctx, testPackage("en.example.mysite", "1.0.0"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, "en.example.mysite", result.ID)

	m, err := s.Get(ctx, "en.example.mysite", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "Test Extension", m.Name)
}

func TestPublishRejectsCollisionWithoutOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pkg := testPackage("en.example.mysite", "1.0.0")

	_, err := s.Publish(ctx, pkg, PublishOptions{})
	require.NoError(t, err)

	_, err = s.Publish(ctx, pkg, PublishOptions{})
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.AlreadyExists))
}

func TestPublishOverwriteReplacesContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pkg := testPackage("en.example.mysite", "1.0.0")

	_, err := s.Publish(ctx, pkg, PublishOptions{})
	require.NoError(t, err)

	pkg.Description = "updated description"
	_, err = s.Publish(ctx, pkg, PublishOptions{Overwrite: true})
	require.NoError(t, err)

	m, err := s.Get(ctx, "en.example.mysite", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "updated description", m.Description)
}

func TestPublishEnforcesMaxSize(t *testing.T) {
	s := newTestStore(t)
	pkg := testPackage("en.example.mysite", "1.0.0")

	_, err := s.Publish(context.Background(), pkg, PublishOptions{MaxSize: 2})
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.InvalidConfiguration))
}

func TestUnpublishRemovesExtension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pkg := testPackage("en.example.mysite", "1.0.0")
	_, err := s.Publish(ctx, pkg, PublishOptions{})
	require.NoError(t, err)

	_, err = s.Unpublish(ctx, "en.example.mysite", "1.0.0", UnpublishOptions{})
	require.NoError(t, err)

	_, err = s.Get(ctx, "en.example.mysite", "1.0.0")
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.NotFound))
}

func TestUnpublishNotFoundUnlessIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Unpublish(ctx, "en.missing", "1.0.0", UnpublishOptions{})
	require.Error(t, err)
	assert.True(t, qerr.Is(err, qerr.NotFound))

	_, err = s.Unpublish(ctx, "en.missing", "1.0.0", UnpublishOptions{Idempotent: true})
	assert.NoError(t, err)
}

func TestUnpublishKeepsTombstoneWhenRequested(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pkg := testPackage("en.example.mysite", "1.0.0")
	_, err := s.Publish(ctx, pkg, PublishOptions{})
	require.NoError(t, err)

	_, err = s.Unpublish(ctx, "en.example.mysite", "1.0.0", UnpublishOptions{KeepRecord: true})
	require.NoError(t, err)

	summaries, err := s.ListExtensions(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Yanked)
}

func TestListExtensionsReflectsAllPublishedVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Publish(ctx, testPackage("en.example.mysite", "1.0.0"), PublishOptions{})
	require.NoError(t, err)
	_, err = s.Publish(ctx, testPackage("en.another", "1.0.0"), PublishOptions{})
	require.NoError(t, err)

	summaries, err := s.ListExtensions(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestSearchFiltersByTextAndAuthor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := testPackage("en.example.fiction", "1.0.0")
	p1.Name = "Fiction Reader"
	p1.Author = "alice"
	_, err := s.Publish(ctx, p1, PublishOptions{})
	require.NoError(t, err)

	p2 := testPackage("en.example.news", "1.0.0")
	p2.Name = "News Reader"
	p2.Author = "bob"
	_, err = s.Publish(ctx, p2, PublishOptions{})
	require.NoError(t, err)

	hits, err := s.Search(ctx, Query{Text: "fiction"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "en.example.fiction", hits[0].Summary.ID)

	hits, err = s.Search(ctx, Query{Author: "bob"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "en.example.news", hits[0].Summary.ID)
}

func TestSearchRespectsOffsetAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"en.a", "en.b", "en.c"} {
		_, err := s.Publish(ctx, testPackage(id, "1.0.0"), PublishOptions{})
		require.NoError(t, err)
	}

	hits, err := s.Search(ctx, Query{Sort: SortName, Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "en.a", hits[0].Summary.ID)

	hits, err = s.Search(ctx, Query{Sort: SortName, Offset: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "en.c", hits[0].Summary.ID)
}

func TestReadWasmAndAsset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pkg := testPackage("en.example.mysite", "1.0.0")
	pkg.Assets = []AssetFile{{Name: "icon.png", AssetType: "icon", Bytes: []byte("png bytes")}}
	_, err := s.Publish(ctx, pkg, PublishOptions{})
	require.NoError(t, err)

	wasm, err := s.ReadWasm(ctx, "en.example.mysite", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, pkg.WasmBytes, wasm)

	asset, err := s.ReadAsset(ctx, "en.example.mysite", "1.0.0", "icon.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png bytes"), asset)
}

func TestBuilderRequiresName(t *testing.T) {
	b := NewBuilder("")
	b.Git().WithURL("https://example.com/repo.git").WithCacheDir(t.TempDir())
	_, err := b.Build()
	require.Error(t, err)
}
