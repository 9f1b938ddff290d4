package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nacht-org/quelle-store/internal/atomicfile"
	"github.com/nacht-org/quelle-store/internal/checksum"
	"github.com/nacht-org/quelle-store/internal/metrics"
	"github.com/nacht-org/quelle-store/internal/qcontext"
	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/manifest"
	"github.com/nacht-org/quelle-store/provider"
)

// Publish writes pkg into the store atomically (stage-then-rename) and
// regenerates store.json, per spec.md §4.2.
func (s *CachedStore) Publish(ctx context.Context, pkg Package, opts PublishOptions) (PublishResult, error) {
	log := qcontext.GetLogger(ctx).WithField("extension_id", pkg.ID).WithField("version", pkg.Version)

	if err := s.provider.EnsureWritable(ctx); err != nil {
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, err
	}

	extLock := s.locks.Extension(pkg.ID, pkg.Version)
	if err := extLock.Lock(ctx); err != nil {
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, err
	}
	defer extLock.Unlock()

	dest := extensionVersionDir(s.root(), pkg.ID, pkg.Version)
	_, destExists := os.Stat(dest)
	if destExists == nil && !opts.Overwrite {
		metrics.Publishes.WithLabelValues(s.name, "already_exists").Inc()
		return PublishResult{}, qerr.New(qerr.AlreadyExists, "%s@%s already exists in store %s", pkg.ID, pkg.Version, s.name)
	}

	m, totalSize, err := buildManifest(pkg)
	if err != nil {
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, err
	}
	if opts.MaxSize > 0 && totalSize > opts.MaxSize {
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, qerr.New(qerr.InvalidConfiguration, "package %s@%s is %d bytes, exceeds max_size %d", pkg.ID, pkg.Version, totalSize, opts.MaxSize)
	}
	if err := m.Validate(); err != nil {
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, err
	}

	stagingName := pkg.ID + "-" + pkg.Version + "-" + uuid.NewString()
	stagingDir, err := atomicfile.StageDir(s.root(), stagingName)
	if err != nil {
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, qerr.Wrap(qerr.IoError, err, "staging publish of %s@%s", pkg.ID, pkg.Version)
	}
	if err := writeStagedPackage(stagingDir, m, pkg); err != nil {
		_ = atomicfile.RemoveStaging(stagingDir)
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, err
	}

	if ctx.Err() != nil {
		_ = atomicfile.RemoveStaging(stagingDir)
		metrics.Publishes.WithLabelValues(s.name, "error").Inc()
		return PublishResult{}, qerr.Wrap(qerr.IoError, ctx.Err(), "publish of %s@%s cancelled before commit", pkg.ID, pkg.Version)
	}

	var previousVersion string
	if destExists == nil {
		previousVersion = pkg.Version
		if err := atomicfile.ReplaceDir(stagingDir, dest); err != nil {
			metrics.Publishes.WithLabelValues(s.name, "error").Inc()
			return PublishResult{}, qerr.Wrap(qerr.IoError, err, "committing %s@%s", pkg.ID, pkg.Version)
		}
	} else {
		if err := atomicfile.CommitDir(stagingDir, dest); err != nil {
			metrics.Publishes.WithLabelValues(s.name, "error").Inc()
			return PublishResult{}, qerr.Wrap(qerr.IoError, err, "committing %s@%s", pkg.ID, pkg.Version)
		}
	}

	var warnings []string
	storeLock := s.locks.Store()
	storeLock.Lock()
	regenErr := s.regenerateStoreManifestLocked(ctx)
	storeLock.Unlock()
	if regenErr != nil {
		warnings = append(warnings, "store manifest regeneration failed: "+regenErr.Error())
		log.WithError(regenErr).Warn("store manifest regeneration failed after publish")
	}

	if err := s.provider.HandleEvent(ctx, provider.LifecycleEvent{Kind: provider.EventPublished, ID: pkg.ID, Version: pkg.Version}); err != nil {
		warnings = append(warnings, "provider lifecycle hook failed: "+err.Error())
		log.WithError(err).Warn("provider handle_event failed after publish")
	}

	metrics.Publishes.WithLabelValues(s.name, "ok").Inc()
	return PublishResult{
		ID:              pkg.ID,
		Version:         pkg.Version,
		PreviousVersion: previousVersion,
		Warnings:        warnings,
		CompletedAt:     time.Now(),
	}, nil
}

// buildManifest computes checksums for the wasm bytes and each asset and
// returns the fully populated manifest plus the package's total size.
func buildManifest(pkg Package) (manifest.ExtensionManifest, uint64, error) {
	if len(pkg.WasmBytes) == 0 {
		return manifest.ExtensionManifest{}, 0, qerr.New(qerr.InvalidConfiguration, "package %s@%s has no wasm bytes", pkg.ID, pkg.Version)
	}
	wasmDigest := checksum.Bytes(pkg.WasmBytes)
	total := uint64(len(pkg.WasmBytes))

	assets := make([]manifest.AssetReference, 0, len(pkg.Assets))
	for _, a := range pkg.Assets {
		d := checksum.Bytes(a.Bytes)
		assets = append(assets, manifest.AssetReference{
			FileReference: manifest.FileReference{
				Path:     filepath.ToSlash(filepath.Join(assetsDirName, a.Name)),
				Checksum: d,
				Size:     uint64(len(a.Bytes)),
			},
			Name:      a.Name,
			AssetType: a.AssetType,
		})
		total += uint64(len(a.Bytes))
	}

	m := manifest.ExtensionManifest{
		ID:               pkg.ID,
		Name:             pkg.Name,
		Version:          pkg.Version,
		Author:           pkg.Author,
		Description:      pkg.Description,
		SupportedDomains: pkg.SupportedDomains,
		WasmFile: manifest.FileReference{
			Path:     wasmFileName,
			Checksum: wasmDigest,
			Size:     uint64(len(pkg.WasmBytes)),
		},
		Assets: assets,
	}
	return m, total, nil
}

// writeStagedPackage writes the wasm artifact, assets, and manifest.json
// into stagingDir.
func writeStagedPackage(stagingDir string, m manifest.ExtensionManifest, pkg Package) error {
	if err := os.WriteFile(filepath.Join(stagingDir, wasmFileName), pkg.WasmBytes, 0o644); err != nil {
		return qerr.Wrap(qerr.IoError, err, "writing wasm artifact")
	}
	if len(pkg.Assets) > 0 {
		if err := os.MkdirAll(filepath.Join(stagingDir, assetsDirName), 0o755); err != nil {
			return qerr.Wrap(qerr.IoError, err, "creating assets directory")
		}
	}
	for _, a := range pkg.Assets {
		if err := os.WriteFile(filepath.Join(stagingDir, assetsDirName, a.Name), a.Bytes, 0o644); err != nil {
			return qerr.Wrap(qerr.IoError, err, "writing asset %s", a.Name)
		}
	}
	mb, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(stagingDir, manifestFileName), mb, 0o644); err != nil {
		return qerr.Wrap(qerr.IoError, err, "writing manifest.json")
	}
	return nil
}
