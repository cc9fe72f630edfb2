// Package file stores tree snapshots as one file per tree.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	"gopkg.in/yaml.v3"
)

// Format selects the snapshot encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Store implements ports.TreeStore on the local filesystem.
type Store struct {
	BasePath string
	format   Format
}

// Option configures the Store.
type Option func(*Store)

// WithFormat selects YAML (default) or JSON files.
func WithFormat(f Format) Option {
	return func(s *Store) {
		s.format = f
	}
}

// New creates a Store rooted at basePath, defaulting to ".thicket/trees".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = filepath.Join(".thicket", "trees")
	}
	s := &Store{BasePath: basePath, format: FormatYAML}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ext() string { return "." + string(s.format) }

func (s *Store) path(treeID string) string {
	return filepath.Join(s.BasePath, treeID+s.ext())
}

func (s *Store) marshal(snap *domain.TreeSnapshot) ([]byte, error) {
	if s.format == FormatJSON {
		return json.MarshalIndent(snap, "", "  ")
	}
	return yaml.Marshal(snap)
}

func (s *Store) unmarshal(data []byte, snap *domain.TreeSnapshot) error {
	if s.format == FormatJSON {
		return json.Unmarshal(data, snap)
	}
	return yaml.Unmarshal(data, snap)
}

// Save writes the snapshot atomically: temp file, fsync, rename.
func (s *Store) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("tree id cannot be empty")
	}
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure tree directory: %w", err)
	}

	data, err := s.marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal tree %s: %w", snap.ID, err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+snap.ID+"-*"+s.ext())
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows refuses to rename over an existing file.
	destPath := s.path(snap.ID)
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing tree file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads one snapshot.
func (s *Store) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	if treeID == "" {
		return nil, fmt.Errorf("tree id cannot be empty")
	}
	data, err := os.ReadFile(s.path(treeID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrTreeNotFound
		}
		return nil, fmt.Errorf("failed to read tree file: %w", err)
	}

	var snap domain.TreeSnapshot
	if err := s.unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree %s: %w", treeID, err)
	}
	return &snap, nil
}

// Delete removes the snapshot file.
func (s *Store) Delete(ctx context.Context, treeID string) error {
	if treeID == "" {
		return fmt.Errorf("tree id cannot be empty")
	}
	err := os.Remove(s.path(treeID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete tree file: %w", err)
	}
	return nil
}

// List returns the ids of the stored root trees.
func (s *Store) List(ctx context.Context) ([]string, error) {
	snaps, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, snap := range snaps {
		if snap.IsRoot() {
			ids = append(ids, snap.ID)
		}
	}
	return ids, nil
}

// Children returns the snapshots nested directly in parentID.
func (s *Store) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	snaps, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.TreeSnapshot
	for _, snap := range snaps {
		if parentID != "" && snap.ParentID() == parentID {
			out = append(out, snap)
		}
	}
	return out, nil
}

// all reads every snapshot in id order, skipping temp files.
func (s *Store) all(ctx context.Context) ([]*domain.TreeSnapshot, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "tmp-") || filepath.Ext(name) != s.ext() {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, s.ext()))
	}
	sort.Strings(ids)

	out := make([]*domain.TreeSnapshot, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

var _ ports.TreeStore = (*Store)(nil)
