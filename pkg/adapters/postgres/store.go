// Package postgres stores tree snapshots in a PostgreSQL table, one row per
// tree with the snapshot as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/lib/pq"
)

// DefaultTable is the table used unless WithTable is given.
const DefaultTable = "thicket_trees"

// Store implements ports.TreeStore on PostgreSQL.
type Store struct {
	db    *sql.DB
	table string
}

// Option configures the Store.
type Option func(*Store)

// WithTable sets the table name. It is quoted as an identifier.
func WithTable(name string) Option {
	return func(s *Store) {
		s.table = pq.QuoteIdentifier(name)
	}
}

// Open connects to dsn, checks the connection and creates the table.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := NewFromDB(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create trees table: %w", err)
	}
	return s, nil
}

// NewFromDB wraps an existing connection pool. Call Migrate before use on a
// fresh database.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, table: pq.QuoteIdentifier(DefaultTable)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the table and its parent index if missing.
func (s *Store) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT PRIMARY KEY,
			parent_id  TEXT,
			tree_type  TEXT NOT NULL,
			snapshot   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s(parent_id);
	`, s.table, pq.QuoteIdentifier("idx_"+unquote(s.table)+"_parent"))
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func unquote(ident string) string {
	if len(ident) >= 2 && ident[0] == '"' && ident[len(ident)-1] == '"' {
		return ident[1 : len(ident)-1]
	}
	return ident
}

// Save upserts the snapshot.
func (s *Store) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal tree %s: %w", snap.ID, err)
	}

	var parent *string
	if !snap.IsRoot() {
		p := snap.ParentID()
		parent = &p
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, parent_id, tree_type, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			tree_type = EXCLUDED.tree_type,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at
	`, s.table)
	if _, err := s.db.ExecContext(ctx, query, snap.ID, parent, string(snap.Type), data, snap.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save tree %s: %w", snap.ID, describe(err))
	}
	return nil
}

// Load reads one snapshot.
func (s *Store) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	var data []byte
	query := fmt.Sprintf(`SELECT snapshot FROM %s WHERE id = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, treeID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTreeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tree %s: %w", treeID, describe(err))
	}
	return decode(treeID, data)
}

func decode(treeID string, data []byte) (*domain.TreeSnapshot, error) {
	var snap domain.TreeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree %s: %w", treeID, err)
	}
	return &snap, nil
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, treeID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, query, treeID); err != nil {
		return fmt.Errorf("failed to delete tree %s: %w", treeID, describe(err))
	}
	return nil
}

// List returns the root tree ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE parent_id IS NULL ORDER BY id`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", describe(err))
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Children returns the snapshots nested directly in parentID.
func (s *Store) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	query := fmt.Sprintf(`SELECT id, snapshot FROM %s WHERE parent_id = $1 ORDER BY id`, s.table)
	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", parentID, describe(err))
	}
	defer rows.Close()

	var out []*domain.TreeSnapshot
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		snap, err := decode(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// describe adds the SQLSTATE class to driver errors.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}

var _ ports.TreeStore = (*Store)(nil)
