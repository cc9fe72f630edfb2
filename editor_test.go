package thicket_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/thicket"
	"github.com/aretw0/thicket/pkg/adapters/memory"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/dsl"
	"github.com/aretw0/thicket/pkg/focus"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/undo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// world builds root A (e1 -> m1 -> S -> x1, S holding se -> sx) and the
// template T (te -> q1 -> tx, with a quest parameter pointing at q1).
func world(t *testing.T) *graph.Graph {
	t.Helper()
	b := dsl.New()
	main := b.Tree("A", "Main", domain.TreeMainGame)
	main.Entry("e1").Go("m1")
	main.Mutation("m1", "gold", "add", 5).Go("S")
	sub := main.Subtree("S", "Well").At(400, 0)
	sub.Entry("se").Go("sx")
	sub.Exit("sx", "done").Go("x1")
	main.Exit("x1", "done").At(0, 300)

	tpl := b.Tree("T", "Fetch quest", domain.TreeTemplate)
	tpl.Entry("te").Go("q1")
	tpl.Quest("q1", "Fetch").Go("tx")
	tpl.Parameter("p1", "quest", domain.ParamQuest, "q1")
	tpl.Exit("tx", "done")

	g, err := b.Build()
	require.NoError(t, err)
	return g
}

type fixture struct {
	local  *graph.Graph
	remote *graph.Graph
	editor *thicket.Editor
}

func newFixture(t *testing.T, opts ...thicket.Option) *fixture {
	t.Helper()
	f := &fixture{local: world(t), remote: world(t)}
	opts = append([]thicket.Option{thicket.WithIDs(&graph.Sequence{Prefix: "n"})}, opts...)
	f.editor = thicket.New(f.local, memory.NewAuthority(f.remote), opts...)
	return f
}

func exits(t *testing.T, g *graph.Graph, id string) []domain.Port {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok, "missing %s", id)
	return n.Exits()
}

func TestEditor_CreateNode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.editor.CreateNode(ctx, "A", domain.KindDialogue, domain.Position{X: 10, Y: 20})
	require.NoError(t, err)
	assert.Equal(t, "n-1", id)

	for _, g := range []*graph.Graph{f.local, f.remote} {
		n, ok := g.Node(id)
		require.True(t, ok)
		assert.Equal(t, domain.KindDialogue, n.Kind())
		assert.Equal(t, domain.Position{X: 10, Y: 20}, n.Position())
		owner, _ := g.Owner(id)
		assert.Equal(t, "A", owner)
	}

	require.NoError(t, f.editor.Undo(ctx))
	_, ok := f.local.Node(id)
	assert.False(t, ok)
	_, ok = f.remote.Node(id)
	assert.False(t, ok)
}

func TestEditor_CreateSubtree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.editor.CreateNode(ctx, "S", domain.KindTree, domain.Position{})
	require.NoError(t, err)

	st, ok := f.local.Tree(id)
	require.True(t, ok)
	assert.Equal(t, "S", st.Parent)
	assert.Len(t, st.EntryNodes(), 1)
	assert.Len(t, st.ExitNodes(), 1)
	require.NoError(t, st.CheckInvariants())

	report, err := f.editor.Validate("A")
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Issues)
}

func TestEditor_CreateNode_Refusals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.editor.CreateNode(ctx, "ghost", domain.KindQuest, domain.Position{})
	var notice *domain.NoticeError
	require.ErrorAs(t, err, &notice)
	assert.Equal(t, "notice.node_not_found", notice.Key)

	id, err := f.editor.CreateNode(ctx, "A", domain.KindTreeProperties, domain.Position{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := f.editor.CreateNode(ctx, "A", domain.KindTreeProperties, domain.Position{})
	require.NoError(t, err)
	assert.Empty(t, again, "a tree holds one properties node")
}

func TestEditor_DeleteNode_UndoRestoresConnections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok, err := f.editor.DeleteNode(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)

	_, found := f.local.Node("m1")
	assert.False(t, found)
	assert.Empty(t, exits(t, f.local, "e1")[0].Targets)
	assert.Empty(t, exits(t, f.remote, "e1")[0].Targets)

	require.NoError(t, f.editor.Undo(ctx))

	for _, g := range []*graph.Graph{f.local, f.remote} {
		assert.Equal(t, []string{"m1"}, exits(t, g, "e1")[0].Targets)
		assert.Equal(t, []string{"S"}, exits(t, g, "m1")[0].Targets)
		assert.Equal(t, 1, g.IndexOf("m1"))
	}

	require.NoError(t, f.editor.Redo(ctx))
	_, found = f.remote.Node("m1")
	assert.False(t, found)
}

func TestEditor_DeleteSubtree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok, err := f.editor.DeleteNode(ctx, "S")
	require.NoError(t, err)
	require.True(t, ok)

	for _, id := range []string{"S", "se", "sx"} {
		_, found := f.local.Node(id)
		assert.False(t, found, id)
		_, found = f.remote.Node(id)
		assert.False(t, found, id)
	}
	assert.Empty(t, exits(t, f.local, "m1")[0].Targets)

	require.NoError(t, f.editor.Undo(ctx))

	assert.Equal(t, []string{"se", "sx"}, f.local.ChildIDs("S"))
	assert.Equal(t, []string{"se", "sx"}, f.remote.ChildIDs("S"))
	assert.Equal(t, []string{"S"}, exits(t, f.local, "m1")[0].Targets)
	st, ok := f.local.Tree("S")
	require.True(t, ok)
	assert.Equal(t, "A", st.Parent)
}

func TestEditor_DeleteNode_ClearsReferences(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok, err := f.editor.DeleteNode(ctx, "q1")
	require.NoError(t, err)
	require.True(t, ok)

	value, err := f.local.Field("p1", "value")
	require.NoError(t, err)
	assert.Empty(t, value)
	assert.Empty(t, exits(t, f.local, "te")[0].Targets)

	require.NoError(t, f.editor.Undo(ctx))
	value, err = f.local.Field("p1", "value")
	require.NoError(t, err)
	assert.Equal(t, "q1", value)
}

func TestEditor_DeleteNode_Refusals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name string
		id   string
	}{
		{"root tree", "A"},
		{"last entry", "e1"},
		{"last exit", "x1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.editor.DeleteNode(ctx, tt.id)
			require.NoError(t, err)
			assert.False(t, ok)
			_, found := f.local.Node(tt.id)
			assert.True(t, found)
		})
	}

	_, err := f.editor.DeleteNode(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	assert.False(t, f.editor.CanUndo())
}

func TestEditor_MoveNode_Merges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, x := range []float64{10, 20, 30} {
		ok, err := f.editor.MoveNode(ctx, "m1", domain.Position{X: x, Y: 5})
		require.NoError(t, err)
		require.True(t, ok)
	}
	undos, _ := f.editor.Engine().History().Len()
	assert.Equal(t, 1, undos, "moves of one node collapse")

	ok, err := f.editor.MoveNode(ctx, "e1", domain.Position{X: 1})
	require.NoError(t, err)
	require.True(t, ok)
	undos, _ = f.editor.Engine().History().Len()
	assert.Equal(t, 2, undos, "moving another node starts a new step")

	ok, err = f.editor.MoveNode(ctx, "e1", domain.Position{X: 1})
	require.NoError(t, err)
	assert.False(t, ok, "same position is refused")

	require.NoError(t, f.editor.Undo(ctx))
	require.NoError(t, f.editor.Undo(ctx))
	n, _ := f.local.Node("m1")
	assert.Equal(t, domain.Position{}, n.Position())
	n, _ = f.remote.Node("m1")
	assert.Equal(t, domain.Position{}, n.Position())
}

func TestEditor_ConnectDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok, err := f.editor.Connect(ctx, "e1", 0, "x1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"m1", "x1"}, exits(t, f.remote, "e1")[0].Targets)

	refusals := []struct {
		name     string
		from, to string
		port     int
	}{
		{"existing edge", "e1", "x1", 0},
		{"self loop", "m1", "m1", 0},
		{"missing port", "e1", "x1", 3},
		{"tree source", "S", "x1", 0},
		{"other root", "e1", "q1", 0},
	}
	for _, tt := range refusals {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.editor.Connect(ctx, tt.from, tt.port, tt.to)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	_, err = f.editor.Connect(ctx, "e1", 0, "ghost")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	ok, err = f.editor.Disconnect(ctx, "e1", 0, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"x1"}, exits(t, f.local, "e1")[0].Targets)

	ok, err = f.editor.Disconnect(ctx, "e1", 0, "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.editor.Undo(ctx))
	assert.Equal(t, []string{"m1", "x1"}, exits(t, f.local, "e1")[0].Targets)
}

func TestEditor_SetField(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ok, err := f.editor.SetField(ctx, "m1", "variable", "silver")
	require.NoError(t, err)
	require.True(t, ok)

	value, err := f.remote.Field("m1", "variable")
	require.NoError(t, err)
	assert.Equal(t, "silver", value)

	ok, err = f.editor.SetField(ctx, "m1", "variable", "silver")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.editor.SetField(ctx, "m1", "nonsense", 1)
	assert.Error(t, err)

	_, err = f.editor.SetField(ctx, "A", "exits", []domain.Port{{Name: "out"}})
	assert.Error(t, err)
	assert.Equal(t, 1, undoDepth(f.editor))
}

func undoDepth(e *thicket.Editor) int {
	n, _ := e.Engine().History().Len()
	return n
}

func TestEditor_InstantiateTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, err := f.editor.InstantiateTemplate(ctx, "T", "A", domain.Position{X: 50, Y: 60})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	cp, ok := f.local.Tree(id)
	require.True(t, ok)
	assert.Equal(t, domain.TreeSub, cp.Type)
	assert.Equal(t, "A", cp.Parent)
	assert.Equal(t, domain.Position{X: 50, Y: 60}, cp.Position())

	var quest, param domain.ActionNode
	for _, n := range f.local.Children(id) {
		switch n.Kind() {
		case domain.KindQuest:
			quest = n
		case domain.KindTemplateParameter:
			param = n
		}
	}
	require.NotNil(t, quest)
	require.NotNil(t, param)
	assert.NotEqual(t, "q1", quest.ID())
	assert.Equal(t, quest.ID(), param.(*domain.TemplateParameter).Value, "quest parameter follows the copy")

	_, ok = f.remote.Tree(id)
	assert.True(t, ok)
	assert.Equal(t, 1, undoDepth(f.editor))

	require.NoError(t, f.editor.Undo(ctx))
	_, ok = f.local.Node(id)
	assert.False(t, ok)
	_, ok = f.local.Node(quest.ID())
	assert.False(t, ok)
	_, ok = f.remote.Node(id)
	assert.False(t, ok)
}

func TestEditor_Group(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var created string
	err := f.editor.Group(ctx, "A", undo.LabelGrouped, func() error {
		var err error
		created, err = f.editor.CreateNode(ctx, "A", domain.KindCombat, domain.Position{})
		if err != nil {
			return err
		}
		if _, err := f.editor.Connect(ctx, "m1", 0, created); err != nil {
			return err
		}
		_, err = f.editor.SetField(ctx, created, "enemy", "wolf")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, undoDepth(f.editor))

	value, err := f.remote.Field(created, "enemy")
	require.NoError(t, err)
	assert.Equal(t, "wolf", value)

	require.NoError(t, f.editor.Undo(ctx))
	_, ok := f.local.Node(created)
	assert.False(t, ok)
	assert.Equal(t, []string{"S"}, exits(t, f.local, "m1")[0].Targets)
}

func TestEditor_Group_FailureReverts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.editor.Group(ctx, "A", undo.LabelGrouped, func() error {
		if _, err := f.editor.MoveNode(ctx, "m1", domain.Position{X: 99}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, _ := f.local.Node("m1")
	assert.Equal(t, domain.Position{}, n.Position())
	assert.False(t, f.editor.CanUndo())
	assert.Equal(t, undo.Idle, f.editor.Engine().State())
}

func TestEditor_Group_RefusesOtherRoots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	templateChildren := f.local.ChildIDs("T")

	var moved, outside bool
	var created string
	err := f.editor.Group(ctx, "A", undo.LabelGrouped, func() error {
		var err error
		if moved, err = f.editor.MoveNode(ctx, "m1", domain.Position{X: 5}); err != nil {
			return err
		}
		if created, err = f.editor.CreateNode(ctx, "T", domain.KindComment, domain.Position{}); err != nil {
			return err
		}
		outside, err = f.editor.MoveNode(ctx, "q1", domain.Position{X: 7})
		return err
	})
	require.NoError(t, err)

	assert.True(t, moved)
	assert.Empty(t, created)
	assert.False(t, outside)
	assert.Equal(t, templateChildren, f.local.ChildIDs("T"))
	assert.Equal(t, templateChildren, f.remote.ChildIDs("T"))
	q1, _ := f.local.Node("q1")
	assert.Equal(t, domain.Position{}, q1.Position())

	assert.Equal(t, 1, undoDepth(f.editor))
	m1, _ := f.remote.Node("m1")
	assert.Equal(t, domain.Position{X: 5}, m1.Position())
}

func TestEditor_Conflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Another editor changed the remote value first.
	require.NoError(t, f.remote.Apply(domain.ReplacePatch("A", "m1", "variable", "gold", "iron")))

	_, err := f.editor.SetField(ctx, "m1", "variable", "silver")
	var conflict *undo.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, domain.ErrConflict)

	value, err := f.local.Field("m1", "variable")
	require.NoError(t, err)
	assert.Equal(t, "gold", value, "rejected edit is rolled back locally")
	assert.False(t, f.editor.CanUndo())
}

func TestEditor_Focus(t *testing.T) {
	ctx := context.Background()
	nav := focus.NewNavigator()
	f := newFixture(t, thicket.WithNavigator(nav))

	vp := focus.Viewport{Zoom: 4, X: -1600, Y: 0, Width: 800, Height: 600}
	path, err := f.editor.Focus("A", vp)
	require.NoError(t, err)
	require.NotEmpty(t, path)
	assert.Equal(t, "A", path[0])
	assert.True(t, nav.Cached("A"))

	_, err = f.editor.CreateNode(ctx, "A", domain.KindComment, domain.Position{})
	require.NoError(t, err)
	assert.False(t, nav.Cached("A"), "edits drop the cached path")

	_, err = f.editor.Focus("ghost", vp)
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestOffline(t *testing.T) {
	ctx := context.Background()
	g := world(t)
	e := thicket.New(g, thicket.Offline{})

	ok, err := e.SetField(ctx, "m1", "value", 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, e.Undo(ctx))

	value, err := g.Field("m1", "value")
	require.NoError(t, err)
	assert.True(t, domain.SameValue(5, value))
}
