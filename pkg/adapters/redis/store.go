package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "thicket:tree:"

// farFuture is the index score of snapshots without a TTL.
const farFuture = 4102444800 // 2100-01-01

// Store implements ports.TreeStore using Redis.
//
// Each snapshot is a JSON string. Root trees are indexed in a sorted set
// scored by expiry; nested trees are indexed in a set per parent.
type Store struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for snapshots.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client backend.UniversalClient, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, for sharing with a Locker.
func (s *Store) Client() backend.UniversalClient { return s.client }

func (s *Store) key(treeID string) string { return s.prefix + treeID }

func (s *Store) rootsKey() string { return s.prefix + "roots" }

func (s *Store) childrenKey(parentID string) string { return s.prefix + "children:" + parentID }

// Save persists the snapshot and moves it between indexes if its parent changed.
func (s *Store) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal tree %s: %w", snap.ID, err)
	}

	prev, err := s.Load(ctx, snap.ID)
	if err != nil && !errors.Is(err, domain.ErrTreeNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(snap.ID), data, s.ttl)

	if prev != nil && prev.ParentID() != snap.ParentID() && !prev.IsRoot() {
		pipe.SRem(ctx, s.childrenKey(prev.ParentID()), snap.ID)
	}
	if snap.IsRoot() {
		score := float64(time.Now().Add(s.ttl).Unix())
		if s.ttl == 0 {
			score = farFuture
		}
		pipe.ZAdd(ctx, s.rootsKey(), backend.Z{Score: score, Member: snap.ID})
	} else {
		pipe.ZRem(ctx, s.rootsKey(), snap.ID)
		pipe.SAdd(ctx, s.childrenKey(snap.ParentID()), snap.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a snapshot.
func (s *Store) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	val, err := s.client.Get(ctx, s.key(treeID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrTreeNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(treeID, val)
}

func decode(treeID, val string) (*domain.TreeSnapshot, error) {
	var snap domain.TreeSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree %s: %w", treeID, err)
	}
	return &snap, nil
}

// Delete removes the snapshot and its index entries.
func (s *Store) Delete(ctx context.Context, treeID string) error {
	prev, err := s.Load(ctx, treeID)
	if errors.Is(err, domain.ErrTreeNotFound) {
		return s.client.ZRem(ctx, s.rootsKey(), treeID).Err()
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(treeID))
	pipe.ZRem(ctx, s.rootsKey(), treeID)
	if !prev.IsRoot() {
		pipe.SRem(ctx, s.childrenKey(prev.ParentID()), treeID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// List returns the root trees, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.rootsKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired trees: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.rootsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Children returns the snapshots nested directly in parentID. Index
// entries whose snapshot expired are skipped.
func (s *Store) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	ids, err := s.client.SMembers(ctx, s.childrenKey(parentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", parentID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get children of %s: %w", parentID, err)
	}

	out := make([]*domain.TreeSnapshot, 0, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		snap, err := decode(ids[i], str)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ ports.TreeStore = (*Store)(nil)
