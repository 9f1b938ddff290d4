// Package localprovider implements provider.Provider over a plain local
// directory: the mirror path is the store root itself, sync is a no-op, and
// mutation hooks are no-ops beyond bookkeeping. Grounded on the teacher's
// filesystem storage driver, which is likewise "the root directory is the
// authoritative state."
package localprovider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nacht-org/quelle-store/internal/qcontext"
	"github.com/nacht-org/quelle-store/internal/qerr"
	"github.com/nacht-org/quelle-store/provider"
)

const driverType = "local"

// Provider is a provider.Provider whose mirror directory is itself the
// authoritative store state. There is nothing to fetch; NeedsSync instead
// reflects whatever an optional fsnotify watcher has observed change on
// disk since the last Sync.
type Provider struct {
	rootDir  string
	readOnly bool
	desc     string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirty   bool
}

var _ provider.Provider = (*Provider)(nil)

// New constructs a Provider rooted at rootDir. Use Builder for validated
// construction; New is exported for tests and for the Builder itself.
func New(rootDir string, readOnly bool, description string) *Provider {
	return &Provider{rootDir: rootDir, readOnly: readOnly, desc: description}
}

func (p *Provider) SyncDir() string { return p.rootDir }

// Sync is a no-op beyond clearing the watcher's dirty flag: the root
// directory already is the authoritative state.
func (p *Provider) Sync(ctx context.Context) (provider.SyncResult, error) {
	p.mu.Lock()
	p.dirty = false
	p.mu.Unlock()
	return provider.SyncResult{Updated: false, CompletedAt: time.Now()}, nil
}

// NeedsSync reports the watcher's dirty flag when background watching is
// active, and false otherwise: without a watcher there is no way to detect
// a change short of rescanning, which ListExtensions already does.
func (p *Provider) NeedsSync(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watcher != nil && p.dirty
}

func (p *Provider) Description() string { return p.desc }

func (p *Provider) ProviderType() string { return driverType }

func (p *Provider) SupportsCapability(c provider.Capability) bool {
	switch c {
	case provider.CapabilityWrite:
		return !p.readOnly
	case provider.CapabilityCaching:
		return true
	case provider.CapabilityBackgroundSync:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.watcher != nil
	default:
		return false
	}
}

// WatchForChanges starts an fsnotify watcher over the extension directory
// tree, marking the provider dirty on any create/remove/rename/write event
// so CachedStore's NeedsSync check picks it up without polling. Stops when
// ctx is cancelled. Calling it more than once is a programming error.
func (p *Provider) WatchForChanges(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return qerr.Wrap(qerr.IoError, err, "creating filesystem watcher for %s", p.rootDir)
	}
	if err := addWatchRecursive(w, p.rootDir); err != nil {
		w.Close()
		return err
	}

	p.mu.Lock()
	p.watcher = w
	p.mu.Unlock()

	log := qcontext.GetLogger(ctx).WithField("root", p.rootDir)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) && isDir(event.Name) {
					if err := w.Add(event.Name); err != nil {
						log.WithError(err).Debug("failed to watch newly created directory")
					}
				}
				p.mu.Lock()
				p.dirty = true
				p.mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("filesystem watcher error")
			}
		}
	}()
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				return qerr.Wrap(qerr.IoError, addErr, "watching directory %s", path)
			}
		}
		return nil
	})
}

// HandleEvent is a no-op: a local directory has no remote to notify.
func (p *Provider) HandleEvent(ctx context.Context, event provider.LifecycleEvent) error {
	return nil
}

// EnsureWritable fails unless the provider was constructed without the
// read-only flag, and the root directory actually exists and is writable.
func (p *Provider) EnsureWritable(ctx context.Context) error {
	if p.readOnly {
		return qerr.New(qerr.NotWritable, "local provider at %s is configured read-only", p.rootDir)
	}
	info, err := os.Stat(p.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return qerr.Wrap(qerr.NotWritable, err, "local provider root %s does not exist", p.rootDir)
		}
		return qerr.Wrap(qerr.IoError, err, "statting local provider root %s", p.rootDir)
	}
	if !info.IsDir() {
		return qerr.New(qerr.InvalidConfiguration, "local provider root %s is not a directory", p.rootDir)
	}
	probe := filepath.Join(p.rootDir, ".write-probe")
	if err := os.WriteFile(probe, []byte{}, 0o600); err != nil {
		return qerr.Wrap(qerr.NotWritable, err, "local provider root %s is not writable", p.rootDir)
	}
	_ = os.Remove(probe)
	return nil
}

// Builder constructs a Provider with validated settings, the only
// supported construction surface per spec.md §4.5.
type Builder struct {
	rootDir     string
	readOnly    bool
	description string
}

// NewBuilder starts a fluent Builder.
func NewBuilder() *Builder { return &Builder{} }

// WithRootDir sets the mirror directory. Required.
func (b *Builder) WithRootDir(dir string) *Builder {
	b.rootDir = dir
	return b
}

// ReadOnly marks the provider read-only (it will never report
// CapabilityWrite or succeed EnsureWritable).
func (b *Builder) ReadOnly(readOnly bool) *Builder {
	b.readOnly = readOnly
	return b
}

// WithDescription sets the human-readable description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.description = desc
	return b
}

// Build validates accumulated settings and constructs the Provider.
func (b *Builder) Build() (*Provider, error) {
	if b.rootDir == "" {
		return nil, qerr.New(qerr.InvalidConfiguration, "local provider requires a root directory")
	}
	abs, err := filepath.Abs(b.rootDir)
	if err != nil {
		return nil, qerr.Wrap(qerr.InvalidConfiguration, err, "resolving local provider root %s", b.rootDir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, qerr.Wrap(qerr.IoError, err, "creating local provider root %s", abs)
	}
	desc := b.description
	if desc == "" {
		desc = fmt.Sprintf("local directory at %s", abs)
	}
	return New(abs, b.readOnly, desc), nil
}
