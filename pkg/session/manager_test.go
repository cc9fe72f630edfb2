package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/aretw0/thicket/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	data  map[string]domain.TreeSnapshot
	mu    sync.Mutex
	saves int
}

func (s *SlowStore) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]domain.TreeSnapshot)
	}
	s.data[snap.ID] = *snap
	s.saves++
	return nil
}

func (s *SlowStore) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.data[treeID]; ok {
		return &snap, nil
	}
	return nil, domain.ErrTreeNotFound
}

func (s *SlowStore) Delete(ctx context.Context, treeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, treeID)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (s *SlowStore) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	return nil, nil
}

func TestManager_WithLockSerializes(t *testing.T) {
	manager := session.NewManager(nil)
	ctx := context.Background()

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "A", func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak)
}

func TestManager_LoadOrCreate(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := manager.LoadOrCreate(ctx, "A", "Main", domain.TreeMainGame)
			assert.NoError(t, err)
			assert.NotNil(t, snap)
		}()
	}
	wg.Wait()

	snap, err := manager.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.TreeMainGame, snap.Type)
	assert.Equal(t, 1, store.saves, "created once")
}

func TestManager_NoStore(t *testing.T) {
	manager := session.NewManager(nil)
	ctx := context.Background()

	_, err := manager.Load(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrTreeNotFound)
	assert.ErrorIs(t, manager.Save(ctx, &domain.TreeSnapshot{ID: "A"}), domain.ErrReadOnly)
	assert.NoError(t, manager.Delete(ctx, "A"))
}

type failingLocker struct{ unlocked int }

func (l *failingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if key == "busy" {
		return nil, errors.New("held elsewhere")
	}
	return func(context.Context) error {
		l.unlocked++
		return errors.New("expired")
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &failingLocker{}
	manager := session.NewManager(nil, session.WithLocker(locker), session.WithLockTTL(time.Second))
	ctx := context.Background()

	ran := false
	require.NoError(t, manager.WithLock(ctx, "A", func(context.Context) error {
		ran = true
		return nil
	}), "release failures are logged, not returned")
	assert.True(t, ran)
	assert.Equal(t, 1, locker.unlocked)

	err := manager.WithLock(ctx, "busy", func(context.Context) error { return nil })
	assert.ErrorContains(t, err, "distributed lock")
}
