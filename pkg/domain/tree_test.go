package domain_test

import (
	"testing"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T) (*graph.Graph, *domain.Tree) {
	t.Helper()
	g := graph.New()
	tree := domain.NewTree("A", "Main", domain.TreeMainGame)
	require.NoError(t, g.AddRoot(tree))
	require.True(t, tree.AddDirectNode(domain.NewTreeEntry("e1")))
	require.True(t, tree.AddDirectNode(domain.NewTreeExit("x1", "done")))
	require.True(t, tree.AddDirectNode(domain.NewTreeProperties("props", "")))
	return g, tree
}

func connect(t *testing.T, g *graph.Graph, from string, port int, to string) {
	t.Helper()
	n, ok := g.Node(from)
	require.True(t, ok)
	ports := n.Exits()
	ports[port].Targets = append(ports[port].Targets, to)
	domain.ReplaceExits(n, ports)
}

func TestTree_AddDirectNode_Refusals(t *testing.T) {
	_, tree := newTree(t)

	assert.False(t, tree.AddDirectNode(domain.NewTree("S", "", domain.TreeSub)), "trees use AddSubtree")
	assert.False(t, tree.AddDirectNode(domain.NewComment("e1", "")), "duplicate id")
	assert.False(t, domain.NewTree("U", "", domain.TreeModule).AddDirectNode(domain.NewComment("c", "")), "unbound tree")

	assert.True(t, tree.AddDirectNode(domain.NewComment("c", "")))
	assert.Len(t, tree.DirectNodes(), 4)
}

func TestTree_AddSubtree(t *testing.T) {
	_, tree := newTree(t)
	sub := domain.NewTree("S", "Sub", domain.TreeTemplate)

	require.True(t, tree.AddSubtree(sub))
	assert.Equal(t, domain.TreeSub, sub.Type)
	assert.Equal(t, "A", sub.Parent)
	assert.True(t, sub.Bound())
	assert.Len(t, tree.Subtrees(), 1)
	assert.NotContains(t, tree.DirectNodes(), domain.ActionNode(sub))
	assert.False(t, tree.AddSubtree(sub), "already registered")
}

func TestTree_RemoveDirectNode_Refusals(t *testing.T) {
	_, tree := newTree(t)

	assert.False(t, tree.CanRemove("props"))
	assert.False(t, tree.RemoveDirectNode("props"))
	assert.False(t, tree.RemoveDirectNode("e1"), "last entry")
	assert.False(t, tree.RemoveDirectNode("x1"), "last exit")
	assert.False(t, tree.RemoveDirectNode("ghost"), "not a member")

	require.True(t, tree.AddDirectNode(domain.NewTreeEntry("e2")))
	assert.True(t, tree.CanRemove("e1"))
	assert.True(t, tree.RemoveDirectNode("e1"))
	assert.False(t, tree.IsChildOf("e1"))
}

func TestTree_EntryExitOrderByY(t *testing.T) {
	_, tree := newTree(t)
	low := domain.NewTreeExit("x2", "fail")
	domain.Relocate(low, domain.Position{Y: -50})
	require.True(t, tree.AddDirectNode(low))

	exits := tree.ExitNodes()
	require.Len(t, exits, 2)
	assert.Equal(t, "x2", exits[0].ID())

	ports := tree.Exits()
	require.Len(t, ports, 2)
	assert.Equal(t, "fail", ports[0].Name)
	assert.Equal(t, "done", ports[1].Name)
}

func TestTree_SearchRecursive(t *testing.T) {
	_, tree := newTree(t)
	sub := domain.NewTree("S", "", domain.TreeSub)
	require.True(t, tree.AddSubtree(sub))
	require.True(t, sub.AddDirectNode(domain.NewQuest("deep", "Deep")))

	n, ok := tree.SearchRecursive("deep")
	require.True(t, ok)
	assert.Equal(t, domain.KindQuest, n.Kind())

	n, ok = tree.SearchRecursive("S")
	require.True(t, ok)
	assert.Equal(t, domain.KindTree, n.Kind())

	_, ok = tree.SearchRecursive("nowhere")
	assert.False(t, ok)
	assert.False(t, tree.IsChildOf("deep"))
}

func TestTree_FindPathToNode(t *testing.T) {
	g, tree := newTree(t)
	require.True(t, tree.AddDirectNode(domain.NewMutation("m1", "gold", "add", 1)))
	connect(t, g, "e1", 0, "m1")
	connect(t, g, "m1", 0, "x1")

	found, err := tree.FindPathToNode("e1", "x1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = tree.FindPathToNode("x1", "e1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTree_FindPathToNode_CycleTerminates(t *testing.T) {
	g, tree := newTree(t)
	require.True(t, tree.AddDirectNode(domain.NewMutation("a", "v", "toggle", nil)))
	require.True(t, tree.AddDirectNode(domain.NewMutation("b", "v", "toggle", nil)))
	connect(t, g, "e1", 0, "a")
	connect(t, g, "a", 0, "b")
	connect(t, g, "b", 0, "a")

	found, err := tree.FindPathToNode("e1", "x1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTree_FindPathToNode_DepthCeiling(t *testing.T) {
	old := domain.MaxSearchDepth
	domain.MaxSearchDepth = 3
	t.Cleanup(func() { domain.MaxSearchDepth = old })

	g, tree := newTree(t)
	prev := "e1"
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		require.True(t, tree.AddDirectNode(domain.NewMutation(id, "v", "toggle", nil)))
		connect(t, g, prev, 0, id)
		prev = id
	}

	_, err := tree.FindPathToNode("e1", "x1")
	assert.ErrorIs(t, err, domain.ErrCorruption)
}

func TestTree_Scale(t *testing.T) {
	_, tree := newTree(t)
	assert.Equal(t, 1.0, tree.Scale(), "entry and exit overlap")

	x, _ := tree.SearchRecursive("x1")
	domain.Relocate(x, domain.Position{X: 300})
	// span = 300 - 0 + 180 = 480
	assert.InDelta(t, 0.5, tree.Scale(), 1e-9)
}

func TestTree_IsDataComplete(t *testing.T) {
	_, tree := newTree(t)
	assert.True(t, tree.IsDataComplete())

	sub := domain.NewTree("S", "", domain.TreeSub)
	require.True(t, tree.AddSubtree(sub))
	param := domain.NewTemplateParameter("p", "hero", domain.ParamString, nil)
	require.True(t, sub.AddDirectNode(param))
	assert.False(t, tree.IsDataComplete(), "empty parameter in a nested tree")

	param.AllowBlank = true
	assert.True(t, tree.IsDataComplete())
}

func TestTree_CheckInvariants(t *testing.T) {
	_, tree := newTree(t)
	assert.NoError(t, tree.CheckInvariants())

	tree.Parent = "X"
	assert.ErrorIs(t, tree.CheckInvariants(), domain.ErrCorruption)
	tree.Parent = ""

	sub := domain.NewTree("S", "", domain.TreeSub)
	require.True(t, tree.AddSubtree(sub))
	assert.ErrorIs(t, sub.CheckInvariants(), domain.ErrCorruption, "sub tree without boundary nodes")
}

func TestTree_CloneAsIsUnbound(t *testing.T) {
	_, tree := newTree(t)
	c := tree.CloneAs("B").(*domain.Tree)
	assert.Equal(t, "B", c.ID())
	assert.Equal(t, "Main", c.Name)
	assert.False(t, c.Bound())
	assert.Empty(t, c.DirectNodes())
}
