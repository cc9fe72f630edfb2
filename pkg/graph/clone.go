package graph

import (
	"fmt"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/registry"
)

// Fragment is a detached copy of a tree produced by Clone. Nothing in it is
// registered in a graph until its patches are applied.
type Fragment struct {
	Root *domain.Tree
	// Table maps every original identifier to its copy, nested trees included.
	Table map[string]string

	children map[string][]domain.ActionNode
}

// Children returns the ordered members of a tree of the fragment.
func (f *Fragment) Children(treeID string) []domain.ActionNode {
	return f.children[treeID]
}

// Nodes returns every node of the fragment in pre-order, the root first.
func (f *Fragment) Nodes() []domain.ActionNode {
	out := []domain.ActionNode{f.Root}
	var walk func(id string)
	walk = func(id string) {
		for _, n := range f.children[id] {
			out = append(out, n)
			if _, isTree := n.(*domain.Tree); isTree {
				walk(n.ID())
			}
		}
	}
	walk(f.Root.ID())
	return out
}

// Patches turns the fragment into add patches installing it inside parentID
// at position at. An empty parentID installs the fragment as a root, which
// requires a root tree type. Parents are always added before their members.
func (f *Fragment) Patches(reg *registry.Registry, parentID string, at int) ([]domain.Patch, error) {
	if parentID == "" && !f.Root.Type.IsRoot() {
		return nil, fmt.Errorf("fragment %s: %s tree needs a parent", f.Root.ID(), f.Root.Type)
	}
	rec, err := reg.Encode(f.Root)
	if err != nil {
		return nil, err
	}
	patches := []domain.Patch{domain.AddPatch(parentID, at, rec)}

	var walk func(treeID string) error
	walk = func(treeID string) error {
		for i, n := range f.children[treeID] {
			rec, err := reg.Encode(n)
			if err != nil {
				return err
			}
			patches = append(patches, domain.AddPatch(treeID, i, rec))
			if _, isTree := n.(*domain.Tree); isTree {
				if err := walk(n.ID()); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(f.Root.ID()); err != nil {
		return nil, err
	}
	return patches, nil
}

// Clone copies treeID and every nested subtree with fresh identifiers.
//
// The copy keeps the port topology and every internal reference: exit
// targets and identifier fields are rewritten through the old to new table,
// while references leaving the cloned tree are kept as they are. The copy's
// own exit nodes start unconnected. newType applies to the top-level copy
// only; nested copies are always sub trees.
func Clone(g *Graph, treeID string, newType domain.TreeType, ids IDGenerator) (*Fragment, error) {
	if ids == nil {
		ids = UUIDs{}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	src, ok := g.nodes[treeID].(*domain.Tree)
	if !ok {
		return nil, fmt.Errorf("clone %s: %w", treeID, domain.ErrTreeNotFound)
	}

	f := &Fragment{
		Table:    make(map[string]string),
		children: make(map[string][]domain.ActionNode),
	}

	// 1. Deep clone with fresh identifiers.
	var deepClone func(t *domain.Tree, typ domain.TreeType, parent string, depth int) (*domain.Tree, error)
	deepClone = func(t *domain.Tree, typ domain.TreeType, parent string, depth int) (*domain.Tree, error) {
		if depth > domain.MaxSearchDepth {
			return nil, &domain.CorruptionError{ID: t.ID(), Reason: "tree nesting exceeds search depth"}
		}
		cp := t.CloneAs(ids.NewID()).(*domain.Tree)
		cp.Type = typ
		cp.Parent = parent

		members := make([]domain.ActionNode, 0, len(g.children[t.ID()]))
		for _, id := range g.children[t.ID()] {
			switch n := g.nodes[id].(type) {
			case *domain.Tree:
				sub, err := deepClone(n, domain.TreeSub, cp.ID(), depth+1)
				if err != nil {
					return nil, err
				}
				members = append(members, sub)
			default:
				members = append(members, n.CloneAs(ids.NewID()))
			}
		}
		f.children[cp.ID()] = members
		return cp, nil
	}

	root, err := deepClone(src, newType, "", 0)
	if err != nil {
		return nil, err
	}
	if !newType.IsRoot() {
		root.Parent = src.Parent
	}
	f.Root = root

	// 2. Walk original and copy in lockstep.
	var lockstep func(orig, cp string)
	lockstep = func(orig, cp string) {
		f.Table[orig] = cp
		copies := f.children[cp]
		for i, id := range g.children[orig] {
			if _, isTree := g.nodes[id].(*domain.Tree); isTree {
				lockstep(id, copies[i].ID())
				continue
			}
			f.Table[id] = copies[i].ID()
		}
	}
	lockstep(treeID, root.ID())

	// 3. Rewrite exit targets and identifier fields through the table.
	for _, n := range f.Nodes() {
		if _, isTree := n.(*domain.Tree); isTree {
			continue
		}
		domain.ReplaceExits(n, domain.RemapPorts(n.Exits(), f.Table))
		if r, ok := n.(domain.Referrer); ok {
			r.RemapReferences(f.Table)
		}
	}

	// 4. The copy's own boundary starts unconnected.
	for _, n := range f.children[root.ID()] {
		if x, ok := n.(*domain.TreeExit); ok {
			ports := x.Exits()
			for i := range ports {
				ports[i].Targets = nil
			}
			domain.ReplaceExits(x, ports)
		}
	}

	g.logger.Debug("Tree cloned", "tree_id", treeID, "clone_id", root.ID(), "nodes", len(f.Table))
	return f, nil
}
