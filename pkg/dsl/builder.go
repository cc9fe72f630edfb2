package dsl

import (
	"fmt"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
)

// Builder collects root trees until Build.
type Builder struct {
	roots []*TreeBuilder
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{}
}

// Tree declares a root tree.
func (b *Builder) Tree(id, name string, typ domain.TreeType) *TreeBuilder {
	tb := &TreeBuilder{tree: domain.NewTree(id, name, typ)}
	b.roots = append(b.roots, tb)
	return tb
}

// Build creates a graph holding every declared tree.
func (b *Builder) Build(opts ...graph.Option) (*graph.Graph, error) {
	g := graph.New(opts...)
	for _, tb := range b.roots {
		if err := g.AddRoot(tb.tree); err != nil {
			return nil, fmt.Errorf("failed to build tree %s: %w", tb.tree.ID(), err)
		}
		if err := tb.attach(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// MustBuild is Build for fixtures; it panics on error.
func (b *Builder) MustBuild(opts ...graph.Option) *graph.Graph {
	g, err := b.Build(opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// TreeBuilder declares the members of one tree in order.
type TreeBuilder struct {
	tree    *domain.Tree
	members []member
}

// member is either a node or a nested tree.
type member struct {
	node *NodeBuilder
	sub  *TreeBuilder
}

// At places the tree footprint on its parent canvas.
func (t *TreeBuilder) At(x, y float64) *TreeBuilder {
	domain.Relocate(t.tree, domain.Position{X: x, Y: y})
	return t
}

// Complexity sets the focus level needed to descend into the tree.
func (t *TreeBuilder) Complexity(level int) *TreeBuilder {
	t.tree.Complexity = level
	return t
}

// ID returns the tree identifier.
func (t *TreeBuilder) ID() string { return t.tree.ID() }

// Subtree declares a nested tree.
func (t *TreeBuilder) Subtree(id, name string) *TreeBuilder {
	sub := &TreeBuilder{tree: domain.NewTree(id, name, domain.TreeSub)}
	t.members = append(t.members, member{sub: sub})
	return sub
}

// Add declares any prebuilt node.
func (t *TreeBuilder) Add(n domain.ActionNode) *NodeBuilder {
	nb := &NodeBuilder{node: n}
	t.members = append(t.members, member{node: nb})
	return nb
}

func (t *TreeBuilder) Entry(id string) *NodeBuilder {
	return t.Add(domain.NewTreeEntry(id))
}

func (t *TreeBuilder) Exit(id, label string) *NodeBuilder {
	return t.Add(domain.NewTreeExit(id, label))
}

func (t *TreeBuilder) Trigger(id, event string) *NodeBuilder {
	return t.Add(domain.NewTrigger(id, event))
}

func (t *TreeBuilder) Mutation(id, variable, operator string, value any) *NodeBuilder {
	return t.Add(domain.NewMutation(id, variable, operator, value))
}

// Dialogue declares a dialogue; each choice becomes a port.
func (t *TreeBuilder) Dialogue(id, speaker, text string, choices ...string) *NodeBuilder {
	return t.Add(domain.NewDialogue(id, speaker, text, choices...))
}

func (t *TreeBuilder) Combat(id, enemy string) *NodeBuilder {
	return t.Add(domain.NewCombat(id, enemy))
}

func (t *TreeBuilder) Quest(id, name string) *NodeBuilder {
	return t.Add(domain.NewQuest(id, name))
}

func (t *TreeBuilder) Task(id, questID, name string) *NodeBuilder {
	return t.Add(domain.NewTask(id, questID, name))
}

func (t *TreeBuilder) Progress(id, questID, taskID, state string) *NodeBuilder {
	return t.Add(domain.NewProgress(id, questID, taskID, state))
}

func (t *TreeBuilder) Parameter(id, name, paramType string, value any) *NodeBuilder {
	return t.Add(domain.NewTemplateParameter(id, name, paramType, value))
}

func (t *TreeBuilder) Properties(id, notes string) *NodeBuilder {
	return t.Add(domain.NewTreeProperties(id, notes))
}

func (t *TreeBuilder) Comment(id, text string) *NodeBuilder {
	return t.Add(domain.NewComment(id, text))
}

// attach registers the members once the tree itself is bound.
func (t *TreeBuilder) attach() error {
	for _, m := range t.members {
		if m.sub != nil {
			if !t.tree.AddSubtree(m.sub.tree) {
				return fmt.Errorf("failed to add subtree %s to %s: %w", m.sub.tree.ID(), t.tree.ID(), domain.ErrDuplicateID)
			}
			if err := m.sub.attach(); err != nil {
				return err
			}
			continue
		}
		if !t.tree.AddDirectNode(m.node.node) {
			return fmt.Errorf("failed to add node %s to %s: %w", m.node.node.ID(), t.tree.ID(), domain.ErrDuplicateID)
		}
	}
	return nil
}
