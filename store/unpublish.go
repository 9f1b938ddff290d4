package store

import (
	"context"
	"os"
	"time"

	"github.com/nacht-org/quelle-store/internal/metrics"
	"github.com/nacht-org/quelle-store/internal/qcontext"
	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/manifest"
	"github.com/nacht-org/quelle-store/provider"
)

// Unpublish removes id@version's directory tree and regenerates
// store.json, per spec.md §4.2.
func (s *CachedStore) Unpublish(ctx context.Context, id, version string, opts UnpublishOptions) (UnpublishResult, error) {
	log := qcontext.GetLogger(ctx).WithField("extension_id", id).WithField("version", version)

	if err := s.provider.EnsureWritable(ctx); err != nil {
		metrics.Unpublishes.WithLabelValues(s.name, "error").Inc()
		return UnpublishResult{}, err
	}

	extLock := s.locks.Extension(id, version)
	if err := extLock.Lock(ctx); err != nil {
		metrics.Unpublishes.WithLabelValues(s.name, "error").Inc()
		return UnpublishResult{}, err
	}
	defer extLock.Unlock()

	dir := extensionVersionDir(s.root(), id, version)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if opts.Idempotent {
			metrics.Unpublishes.WithLabelValues(s.name, "ok").Inc()
			return UnpublishResult{ID: id, Version: version, CompletedAt: time.Now()}, nil
		}
		metrics.Unpublishes.WithLabelValues(s.name, "not_found").Inc()
		return UnpublishResult{}, qerr.New(qerr.NotFound, "%s@%s not found in store %s", id, version, s.name)
	}

	if err := os.RemoveAll(dir); err != nil {
		metrics.Unpublishes.WithLabelValues(s.name, "error").Inc()
		return UnpublishResult{}, qerr.Wrap(qerr.IoError, err, "removing %s@%s", id, version)
	}

	var warnings []string
	storeLock := s.locks.Store()
	storeLock.Lock()
	regenErr := s.regenerateStoreManifestWithTombstone(ctx, id, version, opts.KeepRecord)
	storeLock.Unlock()
	if regenErr != nil {
		warnings = append(warnings, "store manifest regeneration failed: "+regenErr.Error())
		log.WithError(regenErr).Warn("store manifest regeneration failed after unpublish")
	}

	if err := s.provider.HandleEvent(ctx, provider.LifecycleEvent{Kind: provider.EventUnpublished, ID: id, Version: version}); err != nil {
		warnings = append(warnings, "provider lifecycle hook failed: "+err.Error())
		log.WithError(err).Warn("provider handle_event failed after unpublish")
	}

	metrics.Unpublishes.WithLabelValues(s.name, "ok").Inc()
	return UnpublishResult{ID: id, Version: version, Warnings: warnings, CompletedAt: time.Now()}, nil
}

// regenerateStoreManifestWithTombstone regenerates store.json from the
// directories on disk, then optionally appends a yanked tombstone entry
// for the just-removed (id, version), per spec.md §4.2's optional
// keep_record behavior.
func (s *CachedStore) regenerateStoreManifestWithTombstone(ctx context.Context, id, version string, keepRecord bool) error {
	if err := s.regenerateStoreManifestLocked(ctx); err != nil {
		return err
	}
	if !keepRecord {
		return nil
	}

	b, err := os.ReadFile(storeManifestPath(s.root()))
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "reading store manifest for tombstone append")
	}
	sm, err := manifest.ParseStoreManifest(b)
	if err != nil {
		return err
	}
	sm.Extensions = append(sm.Extensions, manifest.ExtensionSummary{
		ID:      id,
		Version: version,
		Yanked:  true,
	})
	nb, err := sm.Marshal()
	if err != nil {
		return err
	}
	return writeStoreManifestBytes(s.root(), nb)
}
