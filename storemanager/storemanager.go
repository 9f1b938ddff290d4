// Package storemanager aggregates multiple CachedStores by priority,
// resolves extension identifiers across them, and drives installation into
// the local registry (spec.md §4.3).
package storemanager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coreos/go-semver/semver"

	"github.com/nacht-org/quelle-store/internal/checksum"
	"github.com/nacht-org/quelle-store/internal/metrics"
	"github.com/nacht-org/quelle-store/internal/qcontext"
	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/manifest"
	"github.com/nacht-org/quelle-store/registry"
	"github.com/nacht-org/quelle-store/store"
)

// storeEntry pairs a CachedStore with its manager-level metadata.
type storeEntry struct {
	name     string
	priority uint32
	trusted  bool
	enabled  bool
	store    *store.CachedStore
	addedAt  int // insertion order, for first-added-wins tie-breaks
}

// Manager holds an ordered list of stores and a Registry, and implements
// find/search/install/update/uninstall/health_check.
type Manager struct {
	installDir string
	reg        *registry.Registry

	mu      sync.RWMutex
	stores  []*storeEntry
	counter int

	// conflicts records manifest checksum disagreements observed between
	// stores holding the same (id, version), whatever their priorities,
	// surfaced through HealthCheck per spec.md §9's Open Question.
	conflicts map[string]string
}

// New returns a Manager that installs into installDir and persists its
// ledger via reg.
func New(installDir string, reg *registry.Registry) *Manager {
	return &Manager{installDir: installDir, reg: reg, conflicts: make(map[string]string)}
}

// AddStore registers a store at the given priority (lower numbers are
// searched first). trusted/enabled mirror the external config shape from
// spec.md §6.
func (m *Manager) AddStore(name string, priority uint32, trusted, enabled bool, s *store.CachedStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	m.stores = append(m.stores, &storeEntry{name: name, priority: priority, trusted: trusted, enabled: enabled, store: s, addedAt: m.counter})
	sort.SliceStable(m.stores, func(i, j int) bool { return m.stores[i].priority < m.stores[j].priority })
}

// RemoveStore unregisters a store by name.
func (m *Manager) RemoveStore(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.stores[:0]
	for _, e := range m.stores {
		if e.name != name {
			out = append(out, e)
		}
	}
	m.stores = out
}

// ListStores returns the registered store names in priority order.
func (m *Manager) ListStores() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.stores))
	for _, e := range m.stores {
		out = append(out, e.name)
	}
	return out
}

func (m *Manager) enabledStores() []*storeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*storeEntry, 0, len(m.stores))
	for _, e := range m.stores {
		if e.enabled {
			out = append(out, e)
		}
	}
	return out
}

func (m *Manager) lookupStore(name string) (*storeEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.stores {
		if e.name == name {
			return e, true
		}
	}
	return nil, false
}

// UpdateStore syncs one named store, or every store when name == "all".
func (m *Manager) UpdateStore(ctx context.Context, name string) error {
	if name == "all" {
		var firstErr error
		for _, e := range m.enabledStores() {
			if _, err := e.store.Provider().Sync(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	e, ok := m.lookupStore(name)
	if !ok {
		return qerr.New(qerr.NotFound, "no such store %q", name)
	}
	_, err := e.store.Provider().Sync(ctx)
	return err
}

// VersionConstraint is an optional lower bound on acceptable versions.
// A nil constraint means "highest available", per spec.md §4.3.
type VersionConstraint struct {
	Min *semver.Version
}

// Satisfies reports whether v meets the constraint (v >= Min, if set).
func (c *VersionConstraint) Satisfies(v *semver.Version) bool {
	if c == nil || c.Min == nil {
		return true
	}
	return !v.LessThan(*c.Min)
}

// FindResult is one match from FindExtension/SearchExtensions.
type FindResult struct {
	StoreName string
	Summary   manifest.ExtensionSummary
}

// FindExtension walks stores in priority order and returns the best match
// for id satisfying constraint. Per spec.md §4.3, the highest semver wins
// across stores regardless of priority; priority only breaks ties between
// equal versions (first store containing that exact version, in priority
// order, wins; equal priority falls back to first-added).
func (m *Manager) FindExtension(ctx context.Context, id string, constraint *VersionConstraint) (FindResult, error) {
	type candidate struct {
		entry   *storeEntry
		summary manifest.ExtensionSummary
		version *semver.Version
	}
	var best *candidate

	for _, e := range m.enabledStores() {
		summaries, err := e.store.ListExtensions(ctx)
		if err != nil {
			qcontext.GetLogger(ctx).WithError(err).WithField("store", e.name).Warn("skipping unreachable store during find")
			continue
		}
		for _, sum := range summaries {
			if sum.ID != id || sum.Yanked {
				continue
			}
			v, err := semver.NewVersion(sum.Version)
			if err != nil {
				continue
			}
			if !constraint.Satisfies(v) {
				continue
			}
			c := &candidate{entry: e, summary: sum, version: v}
			if best == nil {
				best = c
				continue
			}
			switch {
			case best.version.LessThan(*v):
				best = c
			case v.LessThan(*best.version):
				// keep best
			default: // equal version: priority, then first-added, wins
				if e.priority < best.entry.priority || (e.priority == best.entry.priority && e.addedAt < best.entry.addedAt) {
					m.recordConflictIfDiffering(id, sum, best.summary)
					best = c
				} else {
					m.recordConflictIfDiffering(id, best.summary, sum)
				}
			}
		}
	}

	if best == nil {
		return FindResult{}, qerr.New(qerr.NotFound, "extension %s not found in any store", id)
	}
	return FindResult{StoreName: best.entry.name, Summary: best.summary}, nil
}

func (m *Manager) recordConflictIfDiffering(id string, a, b manifest.ExtensionSummary) {
	if a.ManifestChecksum == b.ManifestChecksum {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s@%s", id, a.Version)
	if _, ok := m.conflicts[key]; !ok {
		m.conflicts[key] = fmt.Sprintf("stores disagree on manifest checksum for %s: %s vs %s", key, a.ManifestChecksum, b.ManifestChecksum)
	}
}

// SearchExtensions fans out over all enabled stores, merges results,
// deduplicates by (id, version) keeping the highest-priority store's copy,
// then applies global sort and limit.
func (m *Manager) SearchExtensions(ctx context.Context, q store.Query) ([]FindResult, error) {
	type keyed struct {
		hit   store.Hit
		entry *storeEntry
	}
	byCoord := make(map[string]keyed)

	for _, e := range m.enabledStores() {
		hits, err := e.store.Search(ctx, store.Query{Text: q.Text, Author: q.Author, Tags: q.Tags, Domains: q.Domains, Sort: store.SortRelevance})
		if err != nil {
			qcontext.GetLogger(ctx).WithError(err).WithField("store", e.name).Warn("skipping unreachable store during search")
			continue
		}
		for _, h := range hits {
			key := h.Summary.ID + "@" + h.Summary.Version
			existing, ok := byCoord[key]
			if !ok || e.priority < existing.entry.priority || (e.priority == existing.entry.priority && e.addedAt < existing.entry.addedAt) {
				byCoord[key] = keyed{hit: h, entry: e}
			}
		}
	}

	merged := make([]store.Hit, 0, len(byCoord))
	owners := make(map[string]string, len(byCoord))
	for key, kv := range byCoord {
		merged = append(merged, kv.hit)
		owners[kv.hit.Summary.ID+"@"+kv.hit.Summary.Version] = kv.entry.name
		_ = key
	}

	sortOrder := q.Sort
	if sortOrder == "" {
		sortOrder = store.SortRelevance
	}
	sortMergedHits(merged, sortOrder)

	start := q.Offset
	if start > len(merged) {
		start = len(merged)
	}
	end := len(merged)
	if q.Limit > 0 && start+int(q.Limit) < end {
		end = start + int(q.Limit)
	}

	out := make([]FindResult, 0, end-start)
	for _, h := range merged[start:end] {
		out = append(out, FindResult{StoreName: owners[h.Summary.ID+"@"+h.Summary.Version], Summary: h.Summary})
	}
	return out, nil
}

func sortMergedHits(hits []store.Hit, order store.SortOrder) {
	switch order {
	case store.SortName:
		sort.Slice(hits, func(i, j int) bool { return hits[i].Summary.Name < hits[j].Summary.Name })
	case store.SortUpdatedAt:
		sort.Slice(hits, func(i, j int) bool { return hits[i].Summary.UpdatedAt.After(hits[j].Summary.UpdatedAt) })
	case store.SortSize:
		sort.Slice(hits, func(i, j int) bool { return hits[i].Summary.Size > hits[j].Summary.Size })
	default:
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Relevance > hits[j].Relevance })
	}
}

// InstallOptions controls InstallExtension's upgrade/downgrade refusal
// behavior.
type InstallOptions struct {
	Force bool
}

// InstallExtension resolves id via FindExtension, copies its artifact and
// manifest into the client install directory, and records the installation
// in the registry (spec.md §4.3).
func (m *Manager) InstallExtension(ctx context.Context, id string, constraint *VersionConstraint, opts InstallOptions) (registry.InstalledExtension, error) {
	found, err := m.FindExtension(ctx, id, constraint)
	if err != nil {
		return registry.InstalledExtension{}, err
	}
	e, ok := m.lookupStore(found.StoreName)
	if !ok {
		return registry.InstalledExtension{}, qerr.New(qerr.NotFound, "store %s vanished during install", found.StoreName)
	}

	m2, err := e.store.Get(ctx, id, found.Summary.Version)
	if err != nil {
		return registry.InstalledExtension{}, err
	}

	if err := m.checkUpgradePolicy(id, m2.Version, opts); err != nil {
		return registry.InstalledExtension{}, err
	}

	wasmBytes, err := e.store.ReadWasm(ctx, id, m2.Version)
	if err != nil {
		return registry.InstalledExtension{}, err
	}

	installPath := filepath.Join(m.installDir, "extensions", id)
	if err := os.RemoveAll(installPath); err != nil {
		return registry.InstalledExtension{}, qerr.Wrap(qerr.IoError, err, "clearing previous install dir for %s", id)
	}
	if err := os.MkdirAll(installPath, 0o755); err != nil {
		return registry.InstalledExtension{}, qerr.Wrap(qerr.IoError, err, "creating install dir for %s", id)
	}
	if err := os.WriteFile(filepath.Join(installPath, "extension.wasm"), wasmBytes, 0o644); err != nil {
		return registry.InstalledExtension{}, qerr.Wrap(qerr.IoError, err, "writing installed wasm for %s", id)
	}
	mb, err := m2.Marshal()
	if err != nil {
		return registry.InstalledExtension{}, err
	}
	if err := os.WriteFile(filepath.Join(installPath, "manifest.json"), mb, 0o644); err != nil {
		return registry.InstalledExtension{}, qerr.Wrap(qerr.IoError, err, "writing installed manifest for %s", id)
	}
	for _, a := range m2.Assets {
		assetBytes, err := e.store.ReadAsset(ctx, id, m2.Version, a.Name)
		if err != nil {
			return registry.InstalledExtension{}, err
		}
		assetDest := filepath.Join(installPath, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(filepath.Dir(assetDest), 0o755); err != nil {
			return registry.InstalledExtension{}, qerr.Wrap(qerr.IoError, err, "creating asset dir for %s", id)
		}
		if err := os.WriteFile(assetDest, assetBytes, 0o644); err != nil {
			return registry.InstalledExtension{}, qerr.Wrap(qerr.IoError, err, "writing installed asset %s for %s", a.Name, id)
		}
	}

	entry := registry.InstalledExtension{
		ID:              id,
		Version:         m2.Version,
		SourceStoreName: found.StoreName,
		InstallPath:     installPath,
		InstalledAt:     time.Now(),
		Checksum:        checksum.Bytes(wasmBytes),
	}
	if err := m.reg.Upsert(entry); err != nil {
		return registry.InstalledExtension{}, err
	}
	return entry, nil
}

// checkUpgradePolicy enforces spec.md §4.3's install refusal rules: without
// force, an equal or older version already installed is refused.
func (m *Manager) checkUpgradePolicy(id, newVersion string, opts InstallOptions) error {
	if opts.Force {
		return nil
	}
	existing, ok, err := m.reg.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	newV, err := semver.NewVersion(newVersion)
	if err != nil {
		return qerr.New(qerr.InvalidConfiguration, "invalid version %q for %s", newVersion, id)
	}
	oldV, err := semver.NewVersion(existing.Version)
	if err != nil {
		return nil // can't compare, allow the install to proceed
	}
	if newV.LessThan(*oldV) || *newV == *oldV {
		return qerr.New(qerr.AlreadyExists, "%s@%s already installed, %s is not an upgrade", id, existing.Version, newVersion)
	}
	return nil
}

// UpdateExtension checks for a strictly newer version of id (or every
// installed extension, when id == "all") and installs it, replacing the
// registry entry.
func (m *Manager) UpdateExtension(ctx context.Context, id string) error {
	installed, err := m.reg.Load()
	if err != nil {
		return err
	}
	targets := installed
	if id != "all" {
		targets = nil
		for _, e := range installed {
			if e.ID == id {
				targets = append(targets, e)
			}
		}
		if len(targets) == 0 {
			return qerr.New(qerr.NotFound, "%s is not installed", id)
		}
	}

	var firstErr error
	for _, e := range targets {
		cur, err := semver.NewVersion(e.Version)
		if err != nil {
			continue
		}
		found, err := m.FindExtension(ctx, e.ID, &VersionConstraint{Min: cur})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		newV, err := semver.NewVersion(found.Summary.Version)
		if err != nil || !cur.LessThan(*newV) {
			continue // nothing strictly newer
		}
		if _, err := m.InstallExtension(ctx, e.ID, &VersionConstraint{Min: cur}, InstallOptions{Force: true}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UninstallOptions controls UninstallExtension's NotFound behavior.
type UninstallOptions struct {
	Idempotent bool
}

// UninstallExtension removes an extension's install directory and registry
// entry.
func (m *Manager) UninstallExtension(id string, opts UninstallOptions) error {
	entry, ok, err := m.reg.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		if opts.Idempotent {
			return nil
		}
		return qerr.New(qerr.NotFound, "%s is not installed", id)
	}
	if err := os.RemoveAll(entry.InstallPath); err != nil {
		return qerr.Wrap(qerr.IoError, err, "removing install dir for %s", id)
	}
	return m.reg.Remove(id)
}

// StoreHealth reports one store's reachability as observed by HealthCheck.
type StoreHealth struct {
	Reachable bool
	Latency   time.Duration
	Error     string
	Conflicts []string
}

// HealthCheck attempts NeedsSync and a bounded metadata read against every
// enabled store, reporting reachability, latency, and any recorded
// first-added-wins checksum conflicts.
func (m *Manager) HealthCheck(ctx context.Context) map[string]StoreHealth {
	out := make(map[string]StoreHealth)
	for _, e := range m.enabledStores() {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_ = e.store.Provider().NeedsSync(checkCtx)
		_, err := e.store.ListExtensions(checkCtx)
		cancel()
		latency := time.Since(start)

		h := StoreHealth{Reachable: err == nil, Latency: latency}
		if err != nil {
			h.Error = err.Error()
		}
		metrics.StoreReachable.WithLabelValues(e.name).Set(boolToFloat(err == nil))
		out[e.name] = h
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, msg := range m.conflicts {
		// Attribute each conflict to every store currently involved isn't
		// tracked precisely; surface it against "all" via a synthetic
		// entry so operators notice it regardless of per-store health.
		all := out["all"]
		all.Conflicts = append(all.Conflicts, fmt.Sprintf("%s: %s", key, msg))
		out["all"] = all
	}
	return out
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
