package thicket

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/internal/validator"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/focus"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/aretw0/thicket/pkg/undo"
)

// Editor is the high-level entry point for editing a graph.
//
// Every edit is applied to the local graph first, then recorded with the
// undo engine, which submits it to the authority. Edits whose preconditions
// do not hold are refused silently: they return false (or an empty id) and
// a nil error. Unknown identifiers produce a *domain.NoticeError.
type Editor struct {
	graph     *graph.Graph
	engine    *undo.Engine
	navigator *focus.Navigator
	ids       graph.IDGenerator
	logger    *slog.Logger
	undoOpts  []undo.Option
}

// Option defines a functional option for configuring the Editor.
type Option func(*Editor)

// WithLogger sets a custom structured logger for the editor and its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// WithIDs sets the generator used for new node identifiers. Defaults to UUIDs.
func WithIDs(ids graph.IDGenerator) Option {
	return func(e *Editor) {
		e.ids = ids
	}
}

// WithNavigator replaces the default focus navigator.
func WithNavigator(n *focus.Navigator) Option {
	return func(e *Editor) {
		e.navigator = n
	}
}

// WithView lets undo and redo capture and restore the canvas state.
func WithView(v ports.ViewProvider) Option {
	return func(e *Editor) {
		e.undoOpts = append(e.undoOpts, undo.WithView(v))
	}
}

// WithHistoryLimit caps the number of undoable operations.
func WithHistoryLimit(n int) Option {
	return func(e *Editor) {
		e.undoOpts = append(e.undoOpts, undo.WithHistoryLimit(n))
	}
}

// WithHooks registers history observers.
func WithHooks(h undo.Hooks) Option {
	return func(e *Editor) {
		e.undoOpts = append(e.undoOpts, undo.WithHooks(h))
	}
}

// WithErrorReporter forwards background failures to r.
func WithErrorReporter(r ports.ErrorReporter) Option {
	return func(e *Editor) {
		e.undoOpts = append(e.undoOpts, undo.WithErrorReporter(r))
	}
}

// New creates an editor over g. Use Offline as auth when no remote graph
// exists.
func New(g *graph.Graph, auth ports.Authority, opts ...Option) *Editor {
	e := &Editor{
		graph:  g,
		ids:    graph.UUIDs{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.navigator == nil {
		e.navigator = focus.NewNavigator(focus.WithLogger(e.logger))
	}
	g.OnInvalidate(e.navigator.Invalidate)

	undoOpts := append([]undo.Option{undo.WithLogger(e.logger)}, e.undoOpts...)
	e.engine = undo.NewEngine(g, auth, undoOpts...)
	return e
}

// Graph returns the local graph.
func (e *Editor) Graph() *graph.Graph { return e.graph }

// Engine returns the undo engine.
func (e *Editor) Engine() *undo.Engine { return e.engine }

// CreateNode adds a node of kind at pos inside treeID and returns its id.
// A new sub tree starts with one entry and one exit node. A second tree
// properties node is refused.
func (e *Editor) CreateNode(ctx context.Context, treeID string, kind domain.Kind, pos domain.Position) (string, error) {
	if _, ok := e.graph.Tree(treeID); !ok {
		return "", domain.NotFound(treeID)
	}
	if kind == domain.KindTreeProperties && e.hasProperties(treeID) {
		return "", nil
	}

	reg := e.graph.Registry()
	n, err := reg.New(kind, e.ids.NewID())
	if err != nil {
		return "", err
	}
	domain.Relocate(n, pos)
	rec, err := reg.Encode(n)
	if err != nil {
		return "", err
	}
	patches := []domain.Patch{domain.AddPatch(treeID, -1, rec)}

	if kind == domain.KindTree {
		entry, err := reg.Encode(domain.NewTreeEntry(e.ids.NewID()))
		if err != nil {
			return "", err
		}
		exit, err := reg.Encode(domain.NewTreeExit(e.ids.NewID(), "done"))
		if err != nil {
			return "", err
		}
		patches = append(patches,
			domain.AddPatch(n.ID(), 0, entry),
			domain.AddPatch(n.ID(), 1, exit),
		)
	}

	if ok, err := e.commit(ctx, treeID, undo.LabelCreateNode, undo.GroupOptions{}, patches); !ok || err != nil {
		return "", err
	}
	e.logger.Debug("Node created", "node_id", n.ID(), "kind", kind, "tree_id", treeID)
	return n.ID(), nil
}

func (e *Editor) hasProperties(treeID string) bool {
	for _, n := range e.graph.Children(treeID) {
		if n.Kind() == domain.KindTreeProperties {
			return true
		}
	}
	return false
}

// DeleteNode removes id together with every edge and reference pointing at
// it. Deleting a sub tree removes everything nested in it. Root trees, tree
// properties and the last entry or exit of a tree are refused.
func (e *Editor) DeleteNode(ctx context.Context, id string) (bool, error) {
	if _, ok := e.graph.Node(id); !ok {
		return false, domain.NotFound(id)
	}
	owner, ok := e.graph.Owner(id)
	if !ok {
		return false, nil
	}
	t, ok := e.graph.Tree(owner)
	if !ok || !t.CanRemove(id) {
		return false, nil
	}
	root, _ := e.graph.RootOf(id)

	removed := map[string]bool{id: true}
	for _, d := range e.graph.Descendants(id) {
		removed[d] = true
	}

	patches, err := e.detachPatches(root, removed)
	if err != nil {
		return false, err
	}
	removals, err := e.removalPatches(id)
	if err != nil {
		return false, err
	}
	patches = append(patches, removals...)

	if ok, err := e.commit(ctx, owner, undo.LabelDeleteNode, undo.GroupOptions{}, patches); !ok || err != nil {
		return false, err
	}
	e.logger.Debug("Node deleted", "node_id", id, "tree_id", owner, "patches", len(patches))
	return true, nil
}

// detachPatches clears every port target and reference under root that
// points into removed. Nodes being removed are left alone.
func (e *Editor) detachPatches(root string, removed map[string]bool) ([]domain.Patch, error) {
	ix, err := e.graph.Index(root)
	if err != nil {
		return nil, err
	}
	var out []domain.Patch
	for _, nid := range ix.IDs() {
		if removed[nid] {
			continue
		}
		n, _ := ix.Lookup(nid)
		if _, isTree := n.(*domain.Tree); isTree {
			continue
		}
		owner, _ := ix.Owner(nid)

		old := n.Exits()
		next := make([]domain.Port, len(old))
		changed := false
		for i, p := range old {
			next[i] = domain.Port{Name: p.Name}
			for _, target := range p.Targets {
				if removed[target] {
					changed = true
					continue
				}
				next[i].Targets = append(next[i].Targets, target)
			}
		}
		if changed {
			out = append(out, domain.ReplacePatch(owner, nid, "exits", old, next))
		}

		ref, ok := n.(domain.Referrer)
		if !ok {
			continue
		}
		fields := make([]string, 0)
		for field, target := range ref.References() {
			if removed[target] {
				fields = append(fields, field)
			}
		}
		slices.Sort(fields)
		for _, field := range fields {
			cur, err := e.graph.Field(nid, field)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.ReplacePatch(owner, nid, field, cur, ""))
		}
	}
	return out, nil
}

// removalPatches removes id and, for trees, its contents first. Siblings go
// last to first so every recorded index is still valid when undone.
func (e *Editor) removalPatches(id string) ([]domain.Patch, error) {
	var out []domain.Patch
	var walk func(treeID string, depth int) error
	walk = func(treeID string, depth int) error {
		if depth > domain.MaxSearchDepth {
			return &domain.CorruptionError{ID: treeID, Reason: "tree nesting exceeds search depth"}
		}
		members := e.graph.ChildIDs(treeID)
		for i := len(members) - 1; i >= 0; i-- {
			if err := e.remove(&out, treeID, members[i], i, walk, depth); err != nil {
				return err
			}
		}
		return nil
	}
	owner, _ := e.graph.Owner(id)
	if err := e.remove(&out, owner, id, e.graph.IndexOf(id), walk, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Editor) remove(out *[]domain.Patch, treeID, id string, at int, walk func(string, int) error, depth int) error {
	if _, isTree := e.graph.Tree(id); isTree {
		if err := walk(id, depth+1); err != nil {
			return err
		}
	}
	rec, err := e.graph.Record(id)
	if err != nil {
		return err
	}
	*out = append(*out, domain.RemovePatch(treeID, at, rec))
	return nil
}

// MoveNode relocates id. Consecutive moves of the same node collapse into
// one undo step.
func (e *Editor) MoveNode(ctx context.Context, id string, pos domain.Position) (bool, error) {
	n, ok := e.graph.Node(id)
	if !ok {
		return false, domain.NotFound(id)
	}
	if n.Position() == pos {
		return false, nil
	}
	tree, err := e.ownerOf(id)
	if err != nil {
		return false, err
	}
	old, err := e.graph.Field(id, "position")
	if err != nil {
		return false, err
	}
	opts := undo.GroupOptions{GroupID: "move:" + id, AutoMerge: true}
	patch := domain.ReplacePatch(tree, id, "position", old, pos)
	return e.commit(ctx, tree, undo.LabelMoveNode, opts, []domain.Patch{patch})
}

// Connect adds to as a target of port on from. Both nodes must live under
// the same root. Trees, self loops, missing ports and existing edges are
// refused.
func (e *Editor) Connect(ctx context.Context, from string, port int, to string) (bool, error) {
	src, ok := e.graph.Node(from)
	if !ok {
		return false, domain.NotFound(from)
	}
	if _, ok := e.graph.Node(to); !ok {
		return false, domain.NotFound(to)
	}
	if _, isTree := src.(*domain.Tree); isTree || from == to {
		return false, nil
	}
	old := src.Exits()
	if port < 0 || port >= len(old) || old[port].HasTarget(to) {
		return false, nil
	}
	rootFrom, _ := e.graph.RootOf(from)
	rootTo, _ := e.graph.RootOf(to)
	if rootFrom != rootTo {
		return false, nil
	}

	next := clonePorts(old)
	next[port].Targets = append(next[port].Targets, to)
	return e.replaceExits(ctx, from, old, next, undo.LabelCreateEdge)
}

// Disconnect removes to from the targets of port on from.
func (e *Editor) Disconnect(ctx context.Context, from string, port int, to string) (bool, error) {
	src, ok := e.graph.Node(from)
	if !ok {
		return false, domain.NotFound(from)
	}
	old := src.Exits()
	if port < 0 || port >= len(old) || !old[port].HasTarget(to) {
		return false, nil
	}
	next := clonePorts(old)
	next[port].Targets = slices.DeleteFunc(next[port].Targets, func(t string) bool { return t == to })
	return e.replaceExits(ctx, from, old, next, undo.LabelDeleteEdge)
}

func (e *Editor) replaceExits(ctx context.Context, id string, old, next []domain.Port, label undo.Label) (bool, error) {
	tree, err := e.ownerOf(id)
	if err != nil {
		return false, err
	}
	patch := domain.ReplacePatch(tree, id, "exits", old, next)
	return e.commit(ctx, tree, label, undo.GroupOptions{}, []domain.Patch{patch})
}

func clonePorts(ports []domain.Port) []domain.Port {
	out := make([]domain.Port, len(ports))
	for i, p := range ports {
		out[i] = domain.Port{Name: p.Name, Targets: slices.Clone(p.Targets)}
	}
	return out
}

// SetField writes one field of id. Writing the current value is refused.
func (e *Editor) SetField(ctx context.Context, id, field string, value any) (bool, error) {
	if _, ok := e.graph.Node(id); !ok {
		return false, domain.NotFound(id)
	}
	old, err := e.graph.Field(id, field)
	if err != nil {
		return false, err
	}
	if domain.SameValue(old, value) {
		return false, nil
	}
	tree, err := e.ownerOf(id)
	if err != nil {
		return false, err
	}
	patch := domain.ReplacePatch(tree, id, field, old, value)
	return e.commit(ctx, tree, undo.LabelNone, undo.GroupOptions{}, []domain.Patch{patch})
}

// ownerOf returns the tree a patch on id is addressed to: its owner, or
// id itself for a root tree.
func (e *Editor) ownerOf(id string) (string, error) {
	if owner, ok := e.graph.Owner(id); ok {
		return owner, nil
	}
	if _, ok := e.graph.Tree(id); ok {
		return id, nil
	}
	return "", domain.NotFound(id)
}

// InstantiateTemplate copies templateID as a new sub tree of parentID placed
// at pos and returns the id of the copy. References between nodes of the
// template are remapped to their copies.
func (e *Editor) InstantiateTemplate(ctx context.Context, templateID, parentID string, pos domain.Position) (string, error) {
	if _, ok := e.graph.Tree(templateID); !ok {
		return "", domain.NotFound(templateID)
	}
	if _, ok := e.graph.Tree(parentID); !ok {
		return "", domain.NotFound(parentID)
	}
	frag, err := graph.Clone(e.graph, templateID, domain.TreeSub, e.ids)
	if err != nil {
		return "", err
	}
	domain.Relocate(frag.Root, pos)
	patches, err := frag.Patches(e.graph.Registry(), parentID, -1)
	if err != nil {
		return "", err
	}
	if ok, err := e.commit(ctx, parentID, undo.LabelCreateNode, undo.GroupOptions{}, patches); !ok || err != nil {
		return "", err
	}
	e.logger.Debug("Template instantiated", "template_id", templateID, "tree_id", frag.Root.ID(), "nodes", len(patches))
	return frag.Root.ID(), nil
}

// Group runs fn and records every edit it makes as one undo step. If fn
// fails, its edits and those of any enclosing group are reverted. Edits
// under another root tree are refused while the group is open.
func (e *Editor) Group(ctx context.Context, treeID string, label undo.Label, fn func() error) error {
	root, ok := e.graph.RootOf(treeID)
	if !ok {
		return domain.NotFound(treeID)
	}
	if err := e.engine.BeginGroup(root, label, undo.GroupOptions{}); err != nil {
		return err
	}
	if err := fn(); err != nil {
		e.engine.Discard()
		return err
	}
	return e.engine.EndGroup(ctx)
}

// Undo reverses the most recent operation.
func (e *Editor) Undo(ctx context.Context) error { return e.engine.Undo(ctx) }

// Redo re-applies the most recently undone operation.
func (e *Editor) Redo(ctx context.Context) error { return e.engine.Redo(ctx) }

// CanUndo reports whether an operation can be undone.
func (e *Editor) CanUndo() bool { return e.engine.CanUndo() }

// CanRedo reports whether an operation can be redone.
func (e *Editor) CanRedo() bool { return e.engine.CanRedo() }

// Focus returns the hierarchy path from rootID down to the tree the
// viewport is looking at.
func (e *Editor) Focus(rootID string, vp focus.Viewport) ([]string, error) {
	root, ok := e.graph.Tree(rootID)
	if !ok {
		return nil, domain.NotFound(rootID)
	}
	return e.navigator.Hierarchy(root, vp), nil
}

// Validate checks every tree reachable from rootID.
func (e *Editor) Validate(rootID string) (*validator.Report, error) {
	return validator.ValidateGraph(e.graph, rootID)
}

// commit applies patches to the local graph in order and records them as
// one operation on the root of treeID. If a patch fails, the patches
// already applied are reverted and nothing is recorded. Inside a group on
// another root the edit is refused.
func (e *Editor) commit(ctx context.Context, treeID string, label undo.Label, opts undo.GroupOptions, patches []domain.Patch) (bool, error) {
	root, ok := e.graph.RootOf(treeID)
	if !ok {
		return false, domain.NotFound(treeID)
	}
	if open, grouping := e.engine.OpenTree(); grouping && open != root {
		e.logger.Warn("Edit refused outside the open group's tree", "tree_id", root, "group_tree_id", open, "label", label)
		return false, nil
	}

	inverses := make([]domain.Patch, 0, len(patches))
	for _, p := range patches {
		if err := e.graph.Apply(p); err != nil {
			e.revert(inverses)
			return false, fmt.Errorf("%s: %w", label, err)
		}
		inverses = append(inverses, p.Invert())
	}

	if err := e.engine.BeginGroup(root, label, opts); err != nil {
		e.revert(inverses)
		return false, err
	}
	for i := range patches {
		if err := e.engine.Record(ctx, root, patches[i], inverses[i]); err != nil {
			e.revert(inverses[i:])
			e.engine.Discard()
			return false, err
		}
	}
	if err := e.engine.EndGroup(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Editor) revert(inverses []domain.Patch) {
	for i := len(inverses) - 1; i >= 0; i-- {
		if err := e.graph.Apply(inverses[i]); err != nil {
			e.logger.Error("Local revert failed", "patch", inverses[i].String(), "error", err)
		}
	}
}

// Offline is an authority that accepts every submission without applying
// it anywhere. It suits single-user tools where the local graph is the
// only copy.
type Offline struct{}

func (Offline) Submit(_ context.Context, _ string, patches, _ []domain.Patch, _ bool) ([]ports.Result, error) {
	out := make([]ports.Result, len(patches))
	for i := range out {
		out[i] = ports.Result{Status: ports.Accepted}
	}
	return out, nil
}
