package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nacht-org/quelle-store/internal/atomicfile"
	"github.com/nacht-org/quelle-store/internal/checksum"
	"github.com/nacht-org/quelle-store/internal/lock"
	"github.com/nacht-org/quelle-store/internal/qcontext"
	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/manifest"
	"github.com/nacht-org/quelle-store/provider"
)

// CachedStore presents a typed read/write interface over a provider's
// working directory, enforcing the package layout and checksum invariants
// of spec.md §3-§4.2. It never reads from disk without first ensuring the
// provider is synced.
type CachedStore struct {
	name     string
	provider provider.Provider
	locks    *lock.Manager
}

// Option configures optional CachedStore behavior.
type Option func(*CachedStore)

// WithCrossProcessLocking enables advisory flock-based locking in addition
// to the default in-process mutexes, for store roots shared by cooperating
// processes (spec.md §9).
func WithCrossProcessLocking() Option {
	return func(s *CachedStore) {
		s.locks = lock.NewManager(s.provider.SyncDir(), true)
	}
}

// New wraps provider behind CachedStore semantics. Use Builder for
// validated construction in application code.
func New(name string, p provider.Provider, opts ...Option) *CachedStore {
	s := &CachedStore{name: name, provider: p}
	s.locks = lock.NewManager(p.SyncDir(), false)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the store's configured name.
func (s *CachedStore) Name() string { return s.name }

// Provider exposes the underlying provider, mainly for StoreManager's
// update/health_check operations that need direct provider access.
func (s *CachedStore) Provider() provider.Provider { return s.provider }

// ensureSynced implements the policy from spec.md §4.2: check
// needs_sync under a shared lock, then sync under an exclusive lock if
// needed.
func (s *CachedStore) ensureSynced(ctx context.Context) error {
	storeLock := s.locks.Store()

	storeLock.RLock()
	needsSync := s.provider.NeedsSync(ctx)
	storeLock.RUnlock()
	if !needsSync {
		return nil
	}

	storeLock.Lock()
	defer storeLock.Unlock()
	// Re-check: another goroutine may have synced while we waited for the
	// exclusive lock.
	if !s.provider.NeedsSync(ctx) {
		return nil
	}
	if _, err := s.provider.Sync(ctx); err != nil {
		return qerr.Wrap(qerr.NetworkError, err, "syncing store %s", s.name)
	}
	return nil
}

func (s *CachedStore) root() string { return s.provider.SyncDir() }

// loadStoreManifest reads and parses store.json, regenerating it first if
// it is missing (e.g. Initialize_store has not run, or a prior crash left
// the package tree ahead of the index).
func (s *CachedStore) loadStoreManifest(ctx context.Context) (manifest.StoreManifest, error) {
	path := storeManifestPath(s.root())
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if regenErr := s.regenerateStoreManifestLocked(ctx); regenErr != nil {
			return manifest.StoreManifest{}, regenErr
		}
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return manifest.StoreManifest{}, qerr.Wrap(qerr.IoError, err, "reading store manifest %s", path)
	}
	return manifest.ParseStoreManifest(b)
}

// ListExtensions returns the summaries from the cached store manifest
// (spec.md §4.2 Listing).
func (s *CachedStore) ListExtensions(ctx context.Context) ([]manifest.ExtensionSummary, error) {
	if err := s.ensureSynced(ctx); err != nil {
		return nil, err
	}
	sm, err := s.loadStoreManifest(ctx)
	if err != nil {
		return nil, err
	}

	// Soft-inconsistency detection: a directory not indexed in store.json
	// triggers regeneration rather than an error (spec.md §4.2, §9).
	onDisk, err := s.scanExtensionDirs()
	if err != nil {
		return nil, err
	}
	if !sameCoordinates(onDisk, sm.Extensions) {
		qcontext.GetLogger(ctx).Warn("store manifest out of sync with extension directories, regenerating")
		if err := s.regenerateStoreManifestLocked(ctx); err != nil {
			return nil, err
		}
		sm, err = s.loadStoreManifest(ctx)
		if err != nil {
			return nil, err
		}
	}
	return sm.Extensions, nil
}

func sameCoordinates(dirs []coordinate, summaries []manifest.ExtensionSummary) bool {
	seen := make(map[coordinate]struct{}, len(summaries))
	for _, sum := range summaries {
		if sum.ManifestPath == "" {
			continue // tombstoned/yanked entries have no on-disk directory
		}
		seen[coordinate{sum.ID, sum.Version}] = struct{}{}
	}
	for _, d := range dirs {
		if _, ok := seen[d]; !ok {
			return false
		}
	}
	return len(seen) == len(dirs)
}

type coordinate struct{ ID, Version string }

// scanExtensionDirs walks extensions/*/*/manifest.json under the store
// root.
func (s *CachedStore) scanExtensionDirs() ([]coordinate, error) {
	root := filepath.Join(s.root(), extensionsDir)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, qerr.Wrap(qerr.IoError, err, "scanning %s", root)
	}
	var out []coordinate
	for _, idEntry := range entries {
		if !idEntry.IsDir() {
			continue
		}
		versions, err := os.ReadDir(filepath.Join(root, idEntry.Name()))
		if err != nil {
			return nil, qerr.Wrap(qerr.IoError, err, "scanning versions for %s", idEntry.Name())
		}
		for _, vEntry := range versions {
			if !vEntry.IsDir() {
				continue
			}
			mp := filepath.Join(root, idEntry.Name(), vEntry.Name(), manifestFileName)
			if _, err := os.Stat(mp); err == nil {
				out = append(out, coordinate{idEntry.Name(), vEntry.Name()})
			}
		}
	}
	return out, nil
}

// regenerateStoreManifestLocked walks the extension directories, computes
// each manifest's checksum, and writes a fresh store.json atomically. It
// preserves the store's name/description and any yanked tombstones from
// the previous manifest.
func (s *CachedStore) regenerateStoreManifestLocked(ctx context.Context) error {
	coords, err := s.scanExtensionDirs()
	if err != nil {
		return err
	}

	name, desc, tombstones := s.previousStoreMetadata()

	summaries := make([]manifest.ExtensionSummary, 0, len(coords)+len(tombstones))
	for _, c := range coords {
		mp := manifestPath(s.root(), c.ID, c.Version)
		b, err := os.ReadFile(mp)
		if err != nil {
			return qerr.Wrap(qerr.IoError, err, "reading manifest %s", mp)
		}
		m, err := manifest.Parse(b)
		if err != nil {
			return err
		}
		info, statErr := os.Stat(mp)
		var updatedAt time.Time
		if statErr == nil {
			updatedAt = info.ModTime()
		}
		summaries = append(summaries, manifest.SummaryFrom(m, relManifestPath(c.ID, c.Version), checksum.Bytes(b), updatedAt))
	}
	summaries = append(summaries, tombstones...)

	sm := manifest.StoreManifest{Name: name, Description: desc, Extensions: summaries, GeneratedAt: time.Now()}
	b, err := sm.Marshal()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(storeManifestPath(s.root()), b, 0o644); err != nil {
		return qerr.Wrap(qerr.IoError, err, "writing store manifest")
	}
	return nil
}

func (s *CachedStore) previousStoreMetadata() (name, description string, tombstones []manifest.ExtensionSummary) {
	name = s.name
	b, err := os.ReadFile(storeManifestPath(s.root()))
	if err != nil {
		return name, "", nil
	}
	prev, err := manifest.ParseStoreManifest(b)
	if err != nil {
		return name, "", nil
	}
	for _, e := range prev.Extensions {
		if e.Yanked {
			tombstones = append(tombstones, e)
		}
	}
	return prev.Name, prev.Description, tombstones
}

// Get resolves the summary for (id, version), loads and verifies the
// manifest, and verifies the wasm artifact's checksum.
func (s *CachedStore) Get(ctx context.Context, id, version string) (manifest.ExtensionManifest, error) {
	if err := s.ensureSynced(ctx); err != nil {
		return manifest.ExtensionManifest{}, err
	}
	sm, err := s.loadStoreManifest(ctx)
	if err != nil {
		return manifest.ExtensionManifest{}, err
	}
	summary, ok := sm.Find(id, version)
	if !ok || summary.ManifestPath == "" {
		return manifest.ExtensionManifest{}, qerr.New(qerr.NotFound, "extension %s@%s not found in store %s", id, version, s.name)
	}

	mp := filepath.Join(s.root(), filepath.FromSlash(summary.ManifestPath))
	b, err := os.ReadFile(mp)
	if err != nil {
		return manifest.ExtensionManifest{}, qerr.Wrap(qerr.IoError, err, "reading manifest %s", mp)
	}
	if got := checksum.Bytes(b); got != summary.ManifestChecksum {
		s.triggerAdvisoryRegeneration(ctx)
		return manifest.ExtensionManifest{}, qerr.New(qerr.IntegrityError, "manifest checksum mismatch for %s@%s: index says %s, disk has %s", id, version, summary.ManifestChecksum, got)
	}

	m, err := manifest.Parse(b)
	if err != nil {
		return manifest.ExtensionManifest{}, err
	}
	if m.ID != id || m.Version != version {
		return manifest.ExtensionManifest{}, qerr.New(qerr.IntegrityError, "manifest at %s declares %s@%s, index expected %s@%s", mp, m.ID, m.Version, id, version)
	}

	dir := extensionVersionDir(s.root(), id, version)
	if err := m.VerifyFiles(dir); err != nil {
		s.triggerAdvisoryRegeneration(ctx)
		return manifest.ExtensionManifest{}, err
	}
	return m, nil
}

// triggerAdvisoryRegeneration schedules a best-effort store.json rewrite
// after an integrity failure, per spec.md §7 ("IntegrityError ... triggers
// an advisory store-manifest regeneration on the next read"). It is run
// inline and its error, if any, is only logged: the caller's IntegrityError
// is what must propagate.
func (s *CachedStore) triggerAdvisoryRegeneration(ctx context.Context) {
	storeLock := s.locks.Store()
	storeLock.Lock()
	defer storeLock.Unlock()
	if err := s.regenerateStoreManifestLocked(ctx); err != nil {
		qcontext.GetLogger(ctx).WithError(err).Warn("advisory store manifest regeneration failed")
	}
}

// ReadAsset returns the raw bytes of a named asset for id@version,
// verifying its checksum first.
func (s *CachedStore) ReadAsset(ctx context.Context, id, version, assetName string) ([]byte, error) {
	m, err := s.Get(ctx, id, version)
	if err != nil {
		return nil, err
	}
	for _, a := range m.Assets {
		if a.Name == assetName {
			return os.ReadFile(filepath.Join(extensionVersionDir(s.root(), id, version), filepath.FromSlash(a.Path)))
		}
	}
	return nil, qerr.New(qerr.NotFound, "asset %q not found for %s@%s", assetName, id, version)
}

// ReadWasm returns the raw wasm bytes for id@version, verifying its
// checksum first via Get.
func (s *CachedStore) ReadWasm(ctx context.Context, id, version string) ([]byte, error) {
	m, err := s.Get(ctx, id, version)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(wasmPath(s.root(), id, version))
}

// Search filters and orders the cached summaries per spec.md §4.2.
func (s *CachedStore) Search(ctx context.Context, q Query) ([]Hit, error) {
	summaries, err := s.ListExtensions(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(summaries))
	for _, sum := range summaries {
		if sum.Yanked {
			continue
		}
		if q.Author != "" && sum.Author != q.Author {
			continue
		}
		if !domainPrefixMatch(sum.SupportedDomains, q.Domains) {
			continue
		}
		if !tagIntersects(sum.Tags, q.Tags) {
			continue
		}
		relevance := textRelevance(q.Text, sum)
		if q.Text != "" && relevance <= 0 {
			continue
		}
		hits = append(hits, Hit{Summary: sum, Relevance: relevance})
	}

	sortHits(hits, q.Sort)

	start := q.Offset
	if start > len(hits) {
		start = len(hits)
	}
	end := len(hits)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return hits[start:end], nil
}

func domainPrefixMatch(domains []string, want map[string]struct{}) bool {
	if len(want) == 0 {
		return true
	}
	for w := range want {
		for _, d := range domains {
			if len(d) >= len(w) && d[:len(w)] == w {
				return true
			}
		}
	}
	return false
}

func tagIntersects(have []string, want map[string]struct{}) bool {
	if len(want) == 0 {
		return true
	}
	for _, h := range have {
		if _, ok := want[h]; ok {
			return true
		}
	}
	return false
}

func textRelevance(text string, sum manifest.ExtensionSummary) float64 {
	if text == "" {
		return 1
	}
	var score float64
	if strings.Contains(strings.ToLower(sum.Name), strings.ToLower(text)) {
		score += 2
	}
	if strings.Contains(strings.ToLower(sum.Description), strings.ToLower(text)) {
		score += 1
	}
	return score
}

func sortHits(hits []Hit, order SortOrder) {
	switch order {
	case SortName:
		sort.Slice(hits, func(i, j int) bool { return hits[i].Summary.Name < hits[j].Summary.Name })
	case SortUpdatedAt:
		sort.Slice(hits, func(i, j int) bool { return hits[i].Summary.UpdatedAt.After(hits[j].Summary.UpdatedAt) })
	case SortSize:
		sort.Slice(hits, func(i, j int) bool { return hits[i].Summary.Size > hits[j].Summary.Size })
	default: // SortRelevance or unset
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Relevance > hits[j].Relevance })
	}
}

// InitializeStore creates the directory hierarchy and a minimal store.json
// for a brand-new writable store, then emits a synthetic Initialized event
// so a mutable provider can make its first commit (spec.md §4.2).
func (s *CachedStore) InitializeStore(ctx context.Context, description string) error {
	storeLock := s.locks.Store()
	storeLock.Lock()
	defer storeLock.Unlock()

	if err := s.provider.EnsureWritable(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.root(), extensionsDir), 0o755); err != nil {
		return qerr.Wrap(qerr.IoError, err, "creating extensions directory")
	}
	sm := manifest.StoreManifest{Name: s.name, Description: description, Extensions: nil, GeneratedAt: time.Now()}
	b, err := sm.Marshal()
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(storeManifestPath(s.root()), b, 0o644); err != nil {
		return qerr.Wrap(qerr.IoError, err, "writing initial store manifest")
	}
	return s.provider.HandleEvent(ctx, provider.LifecycleEvent{Kind: provider.EventInitialized, ID: s.name, Version: "0.0.0"})
}
