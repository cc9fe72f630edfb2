// Package graph is the single owner of every node of the authoring graph.
//
// Trees do not store their children. The Graph keeps one node per id, the
// ordered child list of each tree and the owner of each node, and trees
// resolve their members through it. Every mutation goes through Apply so
// that patches, snapshots and the undo engine all see the same state.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/registry"
)

// Graph is safe for concurrent use. Tree methods called on nodes returned by
// the graph take the read lock, so they must not be called from listeners.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[string]domain.ActionNode
	children map[string][]string
	owner    map[string]string
	roots    []string

	indexes   map[string]*Index
	listeners []func(treeID string)

	reg    *registry.Registry
	logger *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithRegistry sets the codec used by Apply and snapshots.
func WithRegistry(r *registry.Registry) Option {
	return func(g *Graph) {
		g.reg = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = l
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:    make(map[string]domain.ActionNode),
		children: make(map[string][]string),
		owner:    make(map[string]string),
		indexes:  make(map[string]*Index),
		reg:      registry.Default(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the codec used by the graph.
func (g *Graph) Registry() *registry.Registry { return g.reg }

// AddRoot registers a tree without a parent.
func (g *Graph) AddRoot(t *domain.Tree) error {
	if !t.Type.IsRoot() {
		return &domain.CorruptionError{ID: t.ID(), Reason: fmt.Sprintf("%s tree cannot be a root", t.Type)}
	}
	g.mu.Lock()
	if _, exists := g.nodes[t.ID()]; exists {
		g.mu.Unlock()
		return fmt.Errorf("add root %s: %w", t.ID(), domain.ErrDuplicateID)
	}
	t.Parent = ""
	t.Bind(g)
	g.nodes[t.ID()] = t
	g.children[t.ID()] = nil
	g.roots = append(g.roots, t.ID())
	g.mu.Unlock()

	g.Invalidate(t.ID())
	return nil
}

// RemoveRoot drops an empty root tree.
func (g *Graph) RemoveRoot(id string) error {
	g.mu.Lock()
	if err := g.removeRootLocked(id); err != nil {
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	g.Invalidate(id)
	return nil
}

func (g *Graph) removeRootLocked(id string) error {
	pos := -1
	for i, r := range g.roots {
		if r == id {
			pos = i
		}
	}
	if pos < 0 {
		return fmt.Errorf("remove root %s: %w", id, domain.ErrTreeNotFound)
	}
	if len(g.children[id]) > 0 {
		return fmt.Errorf("remove root %s: %w", id, domain.ErrNotEmpty)
	}
	g.roots = append(g.roots[:pos], g.roots[pos+1:]...)
	delete(g.nodes, id)
	delete(g.children, id)
	return nil
}

// Node returns the node registered under id.
func (g *Graph) Node(id string) (domain.ActionNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Tree returns the tree registered under id.
func (g *Graph) Tree(id string) (*domain.Tree, bool) {
	n, ok := g.Node(id)
	if !ok {
		return nil, false
	}
	t, ok := n.(*domain.Tree)
	return t, ok
}

// Children returns the ordered members of a tree.
func (g *Graph) Children(treeID string) []domain.ActionNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := g.children[treeID]
	out := make([]domain.ActionNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}
	return out
}

// ChildIDs returns a copy of the ordered child identifiers of a tree.
func (g *Graph) ChildIDs(treeID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.children[treeID]...)
}

// Owner returns the tree directly containing id.
func (g *Graph) Owner(id string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	o, ok := g.owner[id]
	return o, ok
}

// IndexOf returns the position of id within its owner, or -1.
func (g *Graph) IndexOf(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.indexOfLocked(id)
}

func (g *Graph) indexOfLocked(id string) int {
	for i, c := range g.children[g.owner[id]] {
		if c == id {
			return i
		}
	}
	return -1
}

// RootOf follows owners up to the root tree.
func (g *Graph) RootOf(id string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rootOfLocked(id)
}

func (g *Graph) rootOfLocked(id string) (string, bool) {
	if _, ok := g.nodes[id]; !ok {
		return "", false
	}
	cur := id
	for depth := 0; depth <= domain.MaxSearchDepth; depth++ {
		o, ok := g.owner[cur]
		if !ok {
			return cur, true
		}
		cur = o
	}
	return "", false
}

// Roots returns the root trees in registration order.
func (g *Graph) Roots() []*domain.Tree {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*domain.Tree, 0, len(g.roots))
	for _, id := range g.roots {
		out = append(out, g.nodes[id].(*domain.Tree))
	}
	return out
}

// Attach registers node inside treeID at position at. A negative or
// out-of-range position appends. Trees become sub trees of treeID.
func (g *Graph) Attach(treeID string, node domain.ActionNode, at int) error {
	g.mu.Lock()
	err := g.attachLocked(treeID, node, at)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.Invalidate(treeID)
	return nil
}

func (g *Graph) attachLocked(treeID string, node domain.ActionNode, at int) error {
	parent, ok := g.nodes[treeID]
	if !ok {
		return fmt.Errorf("attach %s: %w", node.ID(), domain.ErrTreeNotFound)
	}
	if _, isTree := parent.(*domain.Tree); !isTree {
		return fmt.Errorf("attach %s: %s is not a tree: %w", node.ID(), treeID, domain.ErrTreeNotFound)
	}
	if _, exists := g.nodes[node.ID()]; exists {
		return fmt.Errorf("attach %s: %w", node.ID(), domain.ErrDuplicateID)
	}
	if st, isTree := node.(*domain.Tree); isTree {
		st.Type = domain.TreeSub
		st.Parent = treeID
		st.Bind(g)
		g.children[st.ID()] = nil
	}
	ids := g.children[treeID]
	if at < 0 || at > len(ids) {
		at = len(ids)
	}
	ids = append(ids, "")
	copy(ids[at+1:], ids[at:])
	ids[at] = node.ID()
	g.children[treeID] = ids
	g.nodes[node.ID()] = node
	g.owner[node.ID()] = treeID
	return nil
}

// Detach unregisters id and, for trees, every node nested inside it.
func (g *Graph) Detach(id string) (string, int, bool) {
	g.mu.Lock()
	owner, at, ok := g.detachLocked(id)
	g.mu.Unlock()
	if ok {
		g.Invalidate(owner)
	}
	return owner, at, ok
}

func (g *Graph) detachLocked(id string) (string, int, bool) {
	owner, ok := g.owner[id]
	if !ok {
		return "", -1, false
	}
	at := g.indexOfLocked(id)
	ids := g.children[owner]
	g.children[owner] = append(ids[:at:at], ids[at+1:]...)
	g.dropLocked(id)
	return owner, at, true
}

func (g *Graph) dropLocked(id string) {
	for _, c := range g.children[id] {
		g.dropLocked(c)
	}
	if t, ok := g.nodes[id].(*domain.Tree); ok {
		t.Bind(nil)
	}
	delete(g.children, id)
	delete(g.nodes, id)
	delete(g.owner, id)
}

// Descendants returns every node nested in treeID, deepest first, so that
// removing them in order never removes a non-empty tree.
func (g *Graph) Descendants(treeID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	var walk func(id string)
	walk = func(id string) {
		for _, c := range g.children[id] {
			if _, isTree := g.nodes[c].(*domain.Tree); isTree {
				walk(c)
			}
			out = append(out, c)
		}
	}
	walk(treeID)
	return out
}

// Record encodes the current state of id.
func (g *Graph) Record(id string) (domain.NodeRecord, error) {
	n, ok := g.Node(id)
	if !ok {
		return domain.NodeRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrNodeNotFound)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reg.Encode(n)
}

// Field reads one field of id.
func (g *Graph) Field(id, field string) (any, error) {
	n, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("field %s.%s: %w", id, field, domain.ErrNodeNotFound)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reg.Field(n, field)
}

// Apply performs one patch after checking it against the current state.
// A replace whose expected value differs, or a remove whose record no longer
// matches, fails with domain.ErrValueChanged and leaves the graph untouched.
func (g *Graph) Apply(p domain.Patch) error {
	g.mu.Lock()
	err := g.applyLocked(p)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.logger.Debug("Patch applied", "op", p.Op, "tree_id", p.Tree, "node_id", p.NodeID)
	g.Invalidate(p.Tree)
	return nil
}

func (g *Graph) applyLocked(p domain.Patch) error {
	switch p.Op {
	case domain.OpAdd:
		return g.applyAdd(p)
	case domain.OpRemove:
		return g.applyRemove(p)
	case domain.OpReplace:
		return g.applyReplace(p)
	default:
		return fmt.Errorf("unknown patch op %q", p.Op)
	}
}

func (g *Graph) applyAdd(p domain.Patch) error {
	if p.Record == nil {
		return fmt.Errorf("add %s: missing record", p.NodeID)
	}
	if _, exists := g.nodes[p.Record.ID]; exists {
		return fmt.Errorf("add %s: %w", p.Record.ID, domain.ErrDuplicateID)
	}
	n, err := g.reg.Decode(*p.Record)
	if err != nil {
		return fmt.Errorf("add %s: %w", p.Record.ID, err)
	}
	if p.Tree == "" {
		t, isTree := n.(*domain.Tree)
		if !isTree || !t.Type.IsRoot() {
			return fmt.Errorf("add %s: %w", p.Record.ID, domain.ErrTreeNotFound)
		}
		t.Parent = ""
		t.Bind(g)
		g.nodes[t.ID()] = t
		g.children[t.ID()] = nil
		g.roots = append(g.roots, t.ID())
		return nil
	}
	return g.attachLocked(p.Tree, n, p.Index)
}

func (g *Graph) applyRemove(p domain.Patch) error {
	n, ok := g.nodes[p.NodeID]
	if !ok {
		return fmt.Errorf("remove %s: %w", p.NodeID, domain.ErrNodeNotFound)
	}
	if p.Record != nil {
		cur, err := g.reg.Encode(n)
		if err != nil {
			return err
		}
		if !domain.SameRecord(cur, *p.Record) {
			return fmt.Errorf("remove %s: %w", p.NodeID, domain.ErrValueChanged)
		}
	}
	if p.Tree == "" {
		return g.removeRootLocked(p.NodeID)
	}
	if g.owner[p.NodeID] != p.Tree {
		return fmt.Errorf("remove %s: not a member of %s: %w", p.NodeID, p.Tree, domain.ErrValueChanged)
	}
	if _, isTree := n.(*domain.Tree); isTree && len(g.children[p.NodeID]) > 0 {
		return fmt.Errorf("remove %s: %w", p.NodeID, domain.ErrNotEmpty)
	}
	g.detachLocked(p.NodeID)
	return nil
}

func (g *Graph) applyReplace(p domain.Patch) error {
	n, ok := g.nodes[p.NodeID]
	if !ok {
		return fmt.Errorf("replace %s.%s: %w", p.NodeID, p.Field, domain.ErrNodeNotFound)
	}
	if _, isTree := n.(*domain.Tree); isTree && (p.Field == "parent" || p.Field == "tree_type") {
		return fmt.Errorf("replace %s.%s: tree structure is changed through add and remove", p.NodeID, p.Field)
	}
	cur, err := g.reg.Field(n, p.Field)
	if err != nil {
		return fmt.Errorf("replace %s.%s: %w", p.NodeID, p.Field, err)
	}
	if !domain.SameValue(cur, p.Old) {
		return fmt.Errorf("replace %s.%s: %w", p.NodeID, p.Field, domain.ErrValueChanged)
	}
	return g.reg.SetField(n, p.Field, p.Value)
}

// IsConflict reports whether err means the patch no longer matches the
// current state, as opposed to a malformed patch.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrValueChanged) ||
		errors.Is(err, domain.ErrNodeNotFound) ||
		errors.Is(err, domain.ErrTreeNotFound) ||
		errors.Is(err, domain.ErrDuplicateID) ||
		errors.Is(err, domain.ErrNotEmpty)
}

// OnInvalidate registers fn to be called with the id of every tree whose
// structure or content changed.
func (g *Graph) OnInvalidate(fn func(treeID string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Invalidate drops every cached index and notifies listeners. Ancestors of
// each tree are notified too, since their contents changed as well.
func (g *Graph) Invalidate(treeIDs ...string) {
	g.mu.Lock()
	g.indexes = make(map[string]*Index)
	listeners := append([]func(string){}, g.listeners...)
	seen := make(map[string]bool)
	var affected []string
	for _, id := range treeIDs {
		for cur, depth := id, 0; cur != "" && depth <= domain.MaxSearchDepth; depth++ {
			if seen[cur] {
				break
			}
			seen[cur] = true
			affected = append(affected, cur)
			cur = g.owner[cur]
		}
	}
	g.mu.Unlock()

	sort.Strings(affected)
	for _, id := range affected {
		for _, fn := range listeners {
			fn(id)
		}
	}
}

var _ domain.Lookup = (*Graph)(nil)
