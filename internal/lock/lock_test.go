package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReturnsSameInstance(t *testing.T) {
	m := NewManager(t.TempDir(), false)
	assert.Same(t, m.Store(), m.Store())
}

func TestExtensionReturnsSameInstancePerCoordinate(t *testing.T) {
	m := NewManager(t.TempDir(), false)
	a := m.Extension("en.example", "1.0.0")
	b := m.Extension("en.example", "1.0.0")
	c := m.Extension("en.example", "2.0.0")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestExtensionLockExcludesConcurrentAccess(t *testing.T) {
	m := NewManager(t.TempDir(), false)
	l := m.Extension("en.example", "1.0.0")

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			require.NoError(t, l.Lock(ctx))
			defer l.Unlock()
			v := atomic.AddInt64(&counter, 1)
			assert.Equal(t, int64(1), v, "only one goroutine should hold the lock at a time")
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&counter, -1)
		}()
	}
	wg.Wait()
}

func TestCrossProcessLockUsesFlockFile(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, true)
	l := m.Extension("en.example", "1.0.0")

	ctx := context.Background()
	require.NoError(t, l.Lock(ctx))
	l.Unlock()

	_, err := os.Stat(filepath.Join(root, ".locks", fmt.Sprintf("%x.lock", "en.example@1.0.0")))
	assert.NoError(t, err, "locking should have created the advisory lock file")
}

func TestRWLockAllowsConcurrentReaders(t *testing.T) {
	l := &rwLock{}
	l.RLock()
	defer l.RUnlock()

	done := make(chan struct{})
	go func() {
		l.RLock()
		l.RUnlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader should not block on an already-held read lock")
	}
}
