package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// Snapshot captures one tree without its nested subtrees, which are
// referenced by id in Order and snapshotted separately.
func (g *Graph) Snapshot(treeID string) (*domain.TreeSnapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.nodes[treeID].(*domain.Tree)
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", treeID, domain.ErrTreeNotFound)
	}

	snap := &domain.TreeSnapshot{
		ID:         t.ID(),
		Name:       t.Name,
		Type:       t.Type,
		Position:   t.Position(),
		Complexity: t.Complexity,
		Order:      append([]string{}, g.children[treeID]...),
		Nodes:      []domain.NodeRecord{},
		UpdatedAt:  time.Now().UTC(),
	}
	if t.Parent != "" {
		parent := t.Parent
		snap.Parent = &parent
	}
	for _, id := range g.children[treeID] {
		n := g.nodes[id]
		if _, isTree := n.(*domain.Tree); isTree {
			continue
		}
		rec, err := g.reg.Encode(n)
		if err != nil {
			return nil, err
		}
		snap.Nodes = append(snap.Nodes, rec)
	}
	return snap, nil
}

// Persist saves treeID and every nested subtree as independent snapshots.
// Stored subtrees that no longer exist under a persisted tree are deleted.
func Persist(ctx context.Context, store ports.TreeStore, g *Graph, treeID string) error {
	snap, err := g.Snapshot(treeID)
	if err != nil {
		return err
	}
	if err := store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save tree %s: %w", treeID, err)
	}

	live := make(map[string]bool)
	for _, st := range subtreeIDs(g, treeID) {
		live[st] = true
		if err := Persist(ctx, store, g, st); err != nil {
			return err
		}
	}

	stored, err := store.Children(ctx, treeID)
	if err != nil {
		return fmt.Errorf("list children of %s: %w", treeID, err)
	}
	for _, s := range stored {
		if live[s.ID] {
			continue
		}
		if err := deleteStored(ctx, store, s.ID); err != nil {
			return err
		}
	}
	return nil
}

// Forget removes treeID and its stored descendants from the store.
func Forget(ctx context.Context, store ports.TreeStore, treeID string) error {
	return deleteStored(ctx, store, treeID)
}

func deleteStored(ctx context.Context, store ports.TreeStore, treeID string) error {
	children, err := store.Children(ctx, treeID)
	if err != nil {
		return fmt.Errorf("list children of %s: %w", treeID, err)
	}
	for _, c := range children {
		if err := deleteStored(ctx, store, c.ID); err != nil {
			return err
		}
	}
	if err := store.Delete(ctx, treeID); err != nil {
		return fmt.Errorf("delete tree %s: %w", treeID, err)
	}
	return nil
}

func subtreeIDs(g *Graph, treeID string) []string {
	var out []string
	for _, n := range g.Children(treeID) {
		if _, isTree := n.(*domain.Tree); isTree {
			out = append(out, n.ID())
		}
	}
	return out
}

// Load reads rootID from src and registers it, with every nested subtree,
// as a root of g. Subtrees are found by querying the trees whose parent is
// the tree being loaded.
func (g *Graph) Load(ctx context.Context, src ports.TreeSource, rootID string) error {
	snap, err := src.Load(ctx, rootID)
	if err != nil {
		return fmt.Errorf("load tree %s: %w", rootID, err)
	}
	if !snap.IsRoot() {
		return &domain.CorruptionError{ID: rootID, Reason: "loaded as root but has parent " + snap.ParentID()}
	}

	root := domain.NewTree(snap.ID, snap.Name, snap.Type)
	root.Complexity = snap.Complexity
	domain.Relocate(root, snap.Position)
	if err := g.AddRoot(root); err != nil {
		return err
	}
	if err := g.loadMembers(ctx, src, snap, 0); err != nil {
		g.mu.Lock()
		g.dropLocked(rootID)
		for i, r := range g.roots {
			if r == rootID {
				g.roots = append(g.roots[:i], g.roots[i+1:]...)
				break
			}
		}
		g.mu.Unlock()
		g.Invalidate()
		return err
	}
	g.logger.Info("Tree loaded", "tree_id", rootID)
	return nil
}

func (g *Graph) loadMembers(ctx context.Context, src ports.TreeSource, snap *domain.TreeSnapshot, depth int) error {
	if depth > domain.MaxSearchDepth {
		return &domain.CorruptionError{ID: snap.ID, Reason: "tree nesting exceeds search depth"}
	}

	records := make(map[string]domain.NodeRecord, len(snap.Nodes))
	for _, rec := range snap.Nodes {
		if _, dup := records[rec.ID]; dup {
			return &domain.CorruptionError{ID: rec.ID, Reason: "identifier stored twice in tree " + snap.ID}
		}
		records[rec.ID] = rec
	}

	children, err := src.Children(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("list children of %s: %w", snap.ID, err)
	}
	subtrees := make(map[string]*domain.TreeSnapshot, len(children))
	for _, c := range children {
		subtrees[c.ID] = c
	}

	order := append([]string{}, snap.Order...)
	listed := make(map[string]bool, len(order))
	for _, id := range order {
		listed[id] = true
	}
	// Members missing from Order keep the stored sequence and go last.
	for _, rec := range snap.Nodes {
		if !listed[rec.ID] {
			order = append(order, rec.ID)
		}
	}
	for _, c := range children {
		if !listed[c.ID] {
			order = append(order, c.ID)
		}
	}

	for _, id := range order {
		if rec, ok := records[id]; ok {
			n, err := g.reg.Decode(rec)
			if err != nil {
				return err
			}
			if err := g.Attach(snap.ID, n, -1); err != nil {
				return wrapLoad(snap.ID, err)
			}
			continue
		}
		sub, ok := subtrees[id]
		if !ok {
			g.logger.Warn("Stored order references a missing member", "tree_id", snap.ID, "node_id", id)
			continue
		}
		st := domain.NewTree(sub.ID, sub.Name, domain.TreeSub)
		st.Complexity = sub.Complexity
		domain.Relocate(st, sub.Position)
		if err := g.Attach(snap.ID, st, -1); err != nil {
			return wrapLoad(snap.ID, err)
		}
		if err := g.loadMembers(ctx, src, sub, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func wrapLoad(treeID string, err error) error {
	if errors.Is(err, domain.ErrDuplicateID) {
		return &domain.CorruptionError{ID: treeID, Reason: err.Error()}
	}
	return err
}
