package domain

import (
	"fmt"
	"sort"
)

// TreeType tags the role of a tree.
type TreeType string

const (
	TreeSub      TreeType = "sub_tree"
	TreeMainGame TreeType = "main_game"
	TreeTemplate TreeType = "template"
	TreeModule   TreeType = "module"
)

// IsRoot reports whether trees of this type must not have a parent.
func (t TreeType) IsRoot() bool {
	return t == TreeMainGame || t == TreeTemplate || t == TreeModule
}

// Canvas footprint of a collapsed subtree inside its parent, in parent coordinates.
const (
	TreeWidth  = 240.0
	TreeHeight = 160.0
	NodeWidth  = 180.0
)

// MaxSearchDepth bounds FindPathToNode. Reaching it means the graph is corrupt.
var MaxSearchDepth = 4096

// Lookup resolves tree membership. The graph registry implements it and is
// the only owner of nodes; a Tree never stores its children.
type Lookup interface {
	Node(id string) (ActionNode, bool)
	// Children returns the ordered members of a tree, direct nodes and subtrees alike.
	Children(treeID string) []ActionNode
	Attach(treeID string, node ActionNode, at int) error
	Detach(id string) (owner string, at int, ok bool)
}

// Tree is a node containing other nodes. Trees nest arbitrarily.
type Tree struct {
	Base       `mapstructure:",squash"`
	Name       string   `mapstructure:"name"`
	Type       TreeType `mapstructure:"tree_type"`
	Parent     string   `mapstructure:"parent"`
	Complexity int      `mapstructure:"complexity"`

	lookup Lookup
}

// NewTree creates an unbound tree.
func NewTree(id, name string, typ TreeType) *Tree {
	return &Tree{Base: Base{NodeID: id}, Name: name, Type: typ}
}

// Bind injects the registry used to resolve children.
func (t *Tree) Bind(l Lookup) { t.lookup = l }

// Bound reports whether the tree can resolve its children.
func (t *Tree) Bound() bool { return t.lookup != nil }

func (t *Tree) Kind() Kind    { return KindTree }
func (t *Tree) Color() string { return "teal" }

func (t *Tree) Title() string {
	if t.Name == "" {
		return "Tree"
	}
	return t.Name
}

func (t *Tree) Description() string {
	if props := t.Properties(); props != nil && props.Notes != "" {
		return props.Notes
	}
	return fmt.Sprintf("%s tree with %d nodes and %d subtrees.", t.Type, len(t.DirectNodes()), len(t.Subtrees()))
}

// CloneAs copies the tree fields only. Children are cloned by the graph cloner.
func (t *Tree) CloneAs(id string) ActionNode {
	c := *t
	c.Base = Base{NodeID: id, Pos: t.Pos}
	c.lookup = nil
	return &c
}

func (t *Tree) setPorts([]Port) {}

// children returns nil when the tree is unbound.
func (t *Tree) children() []ActionNode {
	if t.lookup == nil {
		return nil
	}
	return t.lookup.Children(t.NodeID)
}

// DirectNodes returns the members that are not trees.
func (t *Tree) DirectNodes() []ActionNode {
	var out []ActionNode
	for _, n := range t.children() {
		if _, ok := n.(*Tree); !ok {
			out = append(out, n)
		}
	}
	return out
}

// Subtrees returns the nested trees.
func (t *Tree) Subtrees() []*Tree {
	var out []*Tree
	for _, n := range t.children() {
		if st, ok := n.(*Tree); ok {
			out = append(out, st)
		}
	}
	return out
}

// AddDirectNode appends a non-tree node. Trees must go through AddSubtree.
func (t *Tree) AddDirectNode(n ActionNode) bool {
	if _, isTree := n.(*Tree); isTree || t.lookup == nil {
		return false
	}
	if _, exists := t.lookup.Node(n.ID()); exists {
		return false
	}
	return t.lookup.Attach(t.NodeID, n, -1) == nil
}

// AddSubtree registers a nested tree. Its parent is rewritten to this tree.
func (t *Tree) AddSubtree(st *Tree) bool {
	if t.lookup == nil || st.NodeID == t.NodeID {
		return false
	}
	if _, exists := t.lookup.Node(st.NodeID); exists {
		return false
	}
	st.Type = TreeSub
	st.Parent = t.NodeID
	return t.lookup.Attach(t.NodeID, st, -1) == nil
}

// CanRemove reports whether id may be removed from this tree. The tree
// properties node and the last entry or exit node are never removable.
func (t *Tree) CanRemove(id string) bool {
	var target ActionNode
	for _, n := range t.children() {
		if n.ID() == id {
			target = n
			break
		}
	}
	if target == nil {
		return false
	}
	switch target.(type) {
	case *TreeProperties:
		return false
	case *TreeEntry:
		return len(t.EntryNodes()) > 1
	case *TreeExit:
		return len(t.ExitNodes()) > 1
	}
	return true
}

// RemoveDirectNode splices a non-tree node out. Refusals are silent.
func (t *Tree) RemoveDirectNode(id string) bool {
	if !t.CanRemove(id) {
		return false
	}
	if n, ok := t.lookup.Node(id); ok {
		if _, isTree := n.(*Tree); isTree {
			return false
		}
	}
	_, _, ok := t.lookup.Detach(id)
	return ok
}

// EntryNodes returns the entry nodes sorted by vertical position.
func (t *Tree) EntryNodes() []*TreeEntry {
	var out []*TreeEntry
	for _, n := range t.children() {
		if e, ok := n.(*TreeEntry); ok {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos.Y < out[j].Pos.Y })
	return out
}

// ExitNodes returns the exit nodes sorted by vertical position.
func (t *Tree) ExitNodes() []*TreeExit {
	var out []*TreeExit
	for _, n := range t.children() {
		if e, ok := n.(*TreeExit); ok {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pos.Y < out[j].Pos.Y })
	return out
}

// Exits returns one port per exit node, in exit order.
func (t *Tree) Exits() []Port {
	exits := t.ExitNodes()
	out := make([]Port, 0, len(exits))
	for _, e := range exits {
		ports := e.Exits()
		if len(ports) == 0 {
			out = append(out, Port{Name: e.Label})
			continue
		}
		out = append(out, ports[0])
	}
	return out
}

// Properties returns the tree properties node, if present.
func (t *Tree) Properties() *TreeProperties {
	for _, n := range t.children() {
		if p, ok := n.(*TreeProperties); ok {
			return p
		}
	}
	return nil
}

// Parameters returns the template parameters of this tree.
func (t *Tree) Parameters() []*TemplateParameter {
	var out []*TemplateParameter
	for _, n := range t.children() {
		if p, ok := n.(*TemplateParameter); ok {
			out = append(out, p)
		}
	}
	return out
}

// IsChildOf reports whether id is a direct node or a subtree of this tree.
// The name mirrors the authoring vocabulary: the node is a child of t.
func (t *Tree) IsChildOf(id string) bool {
	for _, n := range t.children() {
		if n.ID() == id {
			return true
		}
	}
	return false
}

// SearchRecursive looks for id among direct nodes first, then inside each subtree.
func (t *Tree) SearchRecursive(id string) (ActionNode, bool) {
	return t.search(id, 0)
}

func (t *Tree) search(id string, depth int) (ActionNode, bool) {
	if depth > MaxSearchDepth {
		return nil, false
	}
	for _, n := range t.DirectNodes() {
		if n.ID() == id {
			return n, true
		}
	}
	for _, st := range t.Subtrees() {
		if st.NodeID == id {
			return st, true
		}
		if n, ok := st.search(id, depth+1); ok {
			return n, true
		}
	}
	return nil, false
}

// FindPathToNode reports whether target is reachable from start by following
// exit ports. Each identifier is visited at most once.
func (t *Tree) FindPathToNode(start, target string) (bool, error) {
	if t.lookup == nil {
		return false, nil
	}
	visited := make(map[string]bool)

	var walk func(id string, depth int) (bool, error)
	walk = func(id string, depth int) (bool, error) {
		if depth > MaxSearchDepth {
			return false, &CorruptionError{ID: start, Reason: fmt.Sprintf("path search exceeded depth %d", MaxSearchDepth)}
		}
		if id == target {
			return true, nil
		}
		if visited[id] {
			return false, nil
		}
		visited[id] = true

		n, ok := t.lookup.Node(id)
		if !ok {
			return false, nil
		}
		for _, p := range n.Exits() {
			for _, next := range p.Targets {
				found, err := walk(next, depth+1)
				if err != nil || found {
					return found, err
				}
			}
		}
		return false, nil
	}

	return walk(start, 0)
}

// Scale is the factor applied to the contents when drawn inside the
// subtree footprint. The span from the leftmost entry to the rightmost exit
// defines the content width.
func (t *Tree) Scale() float64 {
	entries, exits := t.EntryNodes(), t.ExitNodes()
	if len(entries) == 0 || len(exits) == 0 {
		return 1
	}
	minX := entries[0].Pos.X
	for _, e := range entries {
		if e.Pos.X < minX {
			minX = e.Pos.X
		}
	}
	maxX := exits[0].Pos.X
	for _, e := range exits {
		if e.Pos.X > maxX {
			maxX = e.Pos.X
		}
	}
	span := maxX - minX + NodeWidth
	if span <= TreeWidth {
		return 1
	}
	return TreeWidth / span
}

// ContentOrigin is the content point mapped onto the top-left corner of the footprint.
func (t *Tree) ContentOrigin() Position {
	var origin Position
	first := true
	for _, e := range t.EntryNodes() {
		if first || e.Pos.X < origin.X {
			origin.X = e.Pos.X
		}
		if first || e.Pos.Y < origin.Y {
			origin.Y = e.Pos.Y
		}
		first = false
	}
	for _, e := range t.ExitNodes() {
		if first || e.Pos.Y < origin.Y {
			origin.Y = e.Pos.Y
		}
		first = false
	}
	return origin
}

// IsDataComplete reports whether every contained node, recursively, is complete.
// Template parameters count as complete only when filled or blank-allowed.
func (t *Tree) IsDataComplete() bool {
	for _, n := range t.DirectNodes() {
		if !n.IsDataComplete() {
			return false
		}
	}
	for _, st := range t.Subtrees() {
		if !st.IsDataComplete() {
			return false
		}
	}
	return true
}

// CheckInvariants verifies the parent and boundary rules of the tree itself.
func (t *Tree) CheckInvariants() error {
	if t.Type.IsRoot() && t.Parent != "" {
		return &CorruptionError{ID: t.NodeID, Reason: fmt.Sprintf("%s tree has parent %s", t.Type, t.Parent)}
	}
	if t.Type == TreeSub && t.Parent == "" {
		return &CorruptionError{ID: t.NodeID, Reason: "sub tree without parent"}
	}
	if t.lookup != nil && t.Type == TreeSub {
		if _, ok := t.lookup.Node(t.Parent); !ok {
			return &CorruptionError{ID: t.NodeID, Reason: "parent " + t.Parent + " does not exist"}
		}
	}
	if len(t.EntryNodes()) == 0 || len(t.ExitNodes()) == 0 {
		return &CorruptionError{ID: t.NodeID, Reason: "tree needs at least one entry and one exit"}
	}
	return nil
}
