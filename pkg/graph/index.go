package graph

import (
	"fmt"
	"sort"

	"github.com/aretw0/thicket/pkg/domain"
)

// Index maps every identifier reachable from one root tree, nested subtrees
// included, to its node and owning tree.
type Index struct {
	root   string
	nodes  map[string]domain.ActionNode
	owners map[string]string
}

// Root returns the id of the indexed root tree.
func (ix *Index) Root() string { return ix.root }

// Lookup returns the node registered under id.
func (ix *Index) Lookup(id string) (domain.ActionNode, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Owner returns the tree directly containing id.
func (ix *Index) Owner(id string) (string, bool) {
	o, ok := ix.owners[id]
	return o, ok
}

// Len returns the number of indexed nodes, the root included.
func (ix *Index) Len() int { return len(ix.nodes) }

// IDs returns the indexed identifiers in lexical order.
func (ix *Index) IDs() []string {
	out := make([]string, 0, len(ix.nodes))
	for id := range ix.nodes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Index returns the cached index of rootID, building it on first use.
// The cache is dropped on every structural mutation.
func (g *Graph) Index(rootID string) (*Index, error) {
	g.mu.RLock()
	if ix, ok := g.indexes[rootID]; ok {
		g.mu.RUnlock()
		return ix, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if ix, ok := g.indexes[rootID]; ok {
		return ix, nil
	}
	ix, err := g.buildIndexLocked(rootID)
	if err != nil {
		return nil, err
	}
	g.indexes[rootID] = ix
	return ix, nil
}

func (g *Graph) buildIndexLocked(rootID string) (*Index, error) {
	root, ok := g.nodes[rootID]
	if !ok {
		return nil, fmt.Errorf("index %s: %w", rootID, domain.ErrTreeNotFound)
	}
	if _, isTree := root.(*domain.Tree); !isTree {
		return nil, fmt.Errorf("index %s: not a tree: %w", rootID, domain.ErrTreeNotFound)
	}

	ix := &Index{
		root:   rootID,
		nodes:  map[string]domain.ActionNode{rootID: root},
		owners: make(map[string]string),
	}

	var walk func(treeID string, depth int) error
	walk = func(treeID string, depth int) error {
		if depth > domain.MaxSearchDepth {
			return &domain.CorruptionError{ID: treeID, Reason: "tree nesting exceeds search depth"}
		}
		for _, id := range g.children[treeID] {
			if _, dup := ix.nodes[id]; dup {
				return &domain.CorruptionError{ID: id, Reason: "identifier appears twice under root " + rootID}
			}
			n, ok := g.nodes[id]
			if !ok {
				return &domain.CorruptionError{ID: id, Reason: "child of " + treeID + " is not registered"}
			}
			ix.nodes[id] = n
			ix.owners[id] = treeID
			if _, isTree := n.(*domain.Tree); isTree {
				if err := walk(id, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(rootID, 0); err != nil {
		return nil, err
	}
	return ix, nil
}
