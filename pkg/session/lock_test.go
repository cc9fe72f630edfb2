package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LockEntriesAreReleased(t *testing.T) {
	mgr := NewManager(nil)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, mgr.WithLock(ctx, fmt.Sprintf("tree-%d", i), func(context.Context) error { return nil }))
	}
	assert.Empty(t, mgr.locks, "lock entries leaked")
}

func TestManager_LockSerialisesOneTree(t *testing.T) {
	mgr := NewManager(nil)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int
		overlap bool
		mu      sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.WithLock(ctx, "A", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > 1 {
					overlap = true
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.False(t, overlap, "two submissions held the tree lock at once")
	assert.Empty(t, mgr.locks)
}
