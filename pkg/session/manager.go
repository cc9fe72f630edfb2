package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes tree access. It uses reference counting to collect
// unused locks.
type Manager struct {
	store ports.TreeStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker ports.DistributedLocker
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager over store. A nil store is allowed when the
// manager is only used for locking.
func NewManager(store ports.TreeStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking.
func (m *Manager) acquire(treeID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[treeID]
	if !exists {
		entry = &lockEntry{}
		m.locks[treeID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(treeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[treeID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, treeID)
	}
}

// Load retrieves a stored tree snapshot.
func (m *Manager) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	if m.store == nil {
		return nil, domain.ErrTreeNotFound
	}
	var snap *domain.TreeSnapshot
	err := m.WithLock(ctx, treeID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, treeID)
		return err
	})
	return snap, err
}

// LoadOrCreate loads a root tree snapshot, saving an empty one of the given
// type when none is stored yet.
func (m *Manager) LoadOrCreate(ctx context.Context, treeID, name string, typ domain.TreeType) (*domain.TreeSnapshot, error) {
	if m.store == nil {
		return nil, fmt.Errorf("no store configured: %w", domain.ErrReadOnly)
	}
	var snap *domain.TreeSnapshot
	err := m.WithLock(ctx, treeID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, treeID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTreeNotFound) {
			return fmt.Errorf("failed to check tree existence: %w", err)
		}

		snap = &domain.TreeSnapshot{ID: treeID, Name: name, Type: typ, UpdatedAt: time.Now()}
		if err := m.store.Save(ctx, snap); err != nil {
			return fmt.Errorf("failed to initialize tree: %w", err)
		}
		return nil
	})
	return snap, err
}

// Save persists a tree snapshot.
func (m *Manager) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	if m.store == nil {
		return fmt.Errorf("no store configured: %w", domain.ErrReadOnly)
	}
	return m.WithLock(ctx, snap.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, snap)
	})
}

// Delete removes a tree snapshot.
func (m *Manager) Delete(ctx context.Context, treeID string) error {
	if m.store == nil {
		return nil
	}
	return m.WithLock(ctx, treeID, func(ctx context.Context) error {
		return m.store.Delete(ctx, treeID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.List(ctx)
}

// Store returns the underlying tree store, possibly nil.
func (m *Manager) Store() ports.TreeStore {
	return m.store
}

// WithLock executes fn while holding the lock for treeID.
func (m *Manager) WithLock(ctx context.Context, treeID string, fn func(context.Context) error) error {
	entry := m.acquire(treeID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(treeID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, treeID, m.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"tree_id", treeID,
					"error", err,
				)
			}
		}()
	}

	return fn(ctx)
}
