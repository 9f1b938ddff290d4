// Package lock implements the two locking granularities described in
// spec.md §5: a per-store sync/mutation lock and a per-extension-directory
// publish/unpublish lock. The per-store lock is an in-process sync.RWMutex
// only. Each per-extension lock is an in-process sync.Mutex, optionally
// backed by an advisory flock file for processes that share a store root.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const contextPollInterval = 50 * time.Millisecond

// Manager hands out store-level and extension-level locks for a single
// store root. One Manager is created per CachedStore.
type Manager struct {
	root         string
	crossProcess bool

	mu         sync.Mutex
	storeLock  *rwLock
	extLocks   map[string]*exclusiveLock
}

// NewManager returns a lock Manager rooted at storeRoot. When crossProcess
// is true, extension-directory locks are additionally backed by an
// advisory flock file under storeRoot/.locks/, guarding cooperating
// processes that share the same store root.
func NewManager(storeRoot string, crossProcess bool) *Manager {
	return &Manager{
		root:         storeRoot,
		crossProcess: crossProcess,
		extLocks:     make(map[string]*exclusiveLock),
	}
}

// Store returns the single per-store lock, creating it on first use.
func (m *Manager) Store() *rwLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeLock == nil {
		m.storeLock = &rwLock{}
	}
	return m.storeLock
}

// Extension returns the exclusive lock guarding id@version, creating it on
// first use. The returned lock is shared by all callers locking the same
// coordinate concurrently.
func (m *Manager) Extension(id, version string) *exclusiveLock {
	key := id + "@" + version
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.extLocks[key]
	if !ok {
		var flockPath string
		if m.crossProcess {
			flockPath = filepath.Join(m.root, ".locks", fmt.Sprintf("%x.lock", key))
		}
		l = &exclusiveLock{flockPath: flockPath}
		m.extLocks[key] = l
	}
	return l
}

// rwLock is the per-store lock: shared for the needs_sync check around
// reads, exclusive for sync() and mutation sequences.
type rwLock struct {
	mu sync.RWMutex
}

func (l *rwLock) RLock()   { l.mu.RLock() }
func (l *rwLock) RUnlock() { l.mu.RUnlock() }
func (l *rwLock) Lock()    { l.mu.Lock() }
func (l *rwLock) Unlock()  { l.mu.Unlock() }

// exclusiveLock is the per-extension-directory lock.
type exclusiveLock struct {
	mu        sync.Mutex
	flockPath string
	fl        *flock.Flock
}

// Lock acquires the in-process mutex and, if cross-process locking is
// enabled, the advisory flock file. ctx bounds the flock acquisition wait.
func (l *exclusiveLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if l.flockPath == "" {
		return nil
	}
	if l.fl == nil {
		if err := os.MkdirAll(filepath.Dir(l.flockPath), 0o755); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("lock: preparing lock directory for %s: %w", l.flockPath, err)
		}
		l.fl = flock.New(l.flockPath)
	}
	ok, err := l.fl.TryLockContext(ctx, contextPollInterval)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("lock: acquiring cross-process lock %s: %w", l.flockPath, err)
	}
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("lock: could not acquire cross-process lock %s", l.flockPath)
	}
	return nil
}

// Unlock releases both the advisory flock (if held) and the in-process
// mutex.
func (l *exclusiveLock) Unlock() {
	if l.fl != nil {
		_ = l.fl.Unlock()
	}
	l.mu.Unlock()
}
