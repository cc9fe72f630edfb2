// Package loam reads trees from a Loam document repository: one Markdown,
// YAML or JSON document per tree, with the tree in the frontmatter.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// DescriptionKey is the snapshot Meta key holding the document body.
const DescriptionKey = "description"

// Source adapts a Loam repository to ports.TreeSource. It is read only.
type Source struct {
	Repo *loam.TypedRepository[TreeMetadata]
}

// New creates a new Loam source.
func New(repo *loam.TypedRepository[TreeMetadata]) *Source {
	return &Source{Repo: repo}
}

// Open initializes a strict, read-only repository at path.
func Open(path string) (*Source, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[TreeMetadata](repo)), nil
}

// Load returns the tree document whose id matches treeID.
func (s *Source) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	snap, ok := all[treeID]
	if !ok {
		return nil, domain.ErrTreeNotFound
	}
	return snap, nil
}

// List returns the root trees in id order.
func (s *Source) List(ctx context.Context) ([]string, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for id, snap := range all {
		if snap.IsRoot() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Children returns the trees whose parent is parentID.
func (s *Source) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.TreeSnapshot
	for _, snap := range all {
		if parentID != "" && snap.ParentID() == parentID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// all reads every document. Two documents resolving to the same id are an error.
func (s *Source) all(ctx context.Context) (map[string]*domain.TreeSnapshot, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	out := make(map[string]*domain.TreeSnapshot, len(docs))
	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: tree '%s' is defined in both '%s' and '%s'", id, existing, doc.ID)
		}
		seen[id] = doc.ID
		out[id] = toSnapshot(id, doc.Data, doc.Content)
	}
	return out, nil
}

func toSnapshot(id string, meta TreeMetadata, body string) *domain.TreeSnapshot {
	typ := domain.TreeType(meta.Type)
	if typ == "" {
		typ = domain.TreeModule
		if meta.Parent != "" {
			typ = domain.TreeSub
		}
	}
	snap := &domain.TreeSnapshot{
		ID:         id,
		Name:       meta.Name,
		Type:       typ,
		Position:   meta.Position,
		Complexity: meta.Complexity,
		Order:      meta.Order,
		Nodes:      meta.Nodes,
		Meta:       make(map[string]string, len(meta.Meta)+1),
	}
	if meta.Parent != "" {
		parent := meta.Parent
		snap.Parent = &parent
	}
	for k, v := range meta.Meta {
		snap.Meta[k] = v
	}
	if body = strings.TrimSpace(body); body != "" {
		snap.Meta[DescriptionKey] = body
	}
	if snap.Order == nil {
		for _, rec := range snap.Nodes {
			snap.Order = append(snap.Order, rec.ID)
		}
	}
	return snap
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

var _ ports.TreeSource = (*Source)(nil)
