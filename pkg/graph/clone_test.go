package graph

import (
	"testing"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTemplate builds template "T" containing sub tree "S". S holds quest q1
// and a quest parameter pointing at it; T wires its entry into S.
func newTemplate(t *testing.T) *Graph {
	t.Helper()
	g := New()
	tpl := domain.NewTree("T", "Rescue", domain.TreeTemplate)
	require.NoError(t, g.AddRoot(tpl))

	te := domain.NewTreeEntry("te")
	tx := domain.NewTreeExit("tx", "done")
	domain.ReplaceExits(tx, []domain.Port{{Name: "done", Targets: []string{"outside"}}})
	require.True(t, tpl.AddDirectNode(te))
	require.True(t, tpl.AddDirectNode(tx))
	require.True(t, tpl.AddDirectNode(domain.NewTreeProperties("tp", "A rescue mission.")))

	sub := domain.NewTree("S", "Quest setup", domain.TreeSub)
	require.True(t, tpl.AddSubtree(sub))

	se := domain.NewTreeEntry("se")
	q1 := domain.NewQuest("q1", "Find the princess")
	param := domain.NewTemplateParameter("p1", "quest", domain.ParamQuest, "q1")
	task := domain.NewTask("k1", "q1", "Open the gate")
	ext := domain.NewProgress("k2", "elsewhere", "", "completed")
	sx := domain.NewTreeExit("sx", "ready")
	domain.ReplaceExits(se, []domain.Port{{Name: "next", Targets: []string{"k1"}}})
	domain.ReplaceExits(task, []domain.Port{{Name: "next", Targets: []string{"sx"}}})
	domain.ReplaceExits(sx, []domain.Port{{Name: "ready", Targets: []string{"tx"}}})
	for _, n := range []domain.ActionNode{se, q1, param, task, ext, sx} {
		require.True(t, sub.AddDirectNode(n))
	}

	domain.ReplaceExits(te, []domain.Port{{Name: "next", Targets: []string{"se"}}})
	return g
}

func TestClone_Isomorphism(t *testing.T) {
	g := newTemplate(t)

	f, err := Clone(g, "T", domain.TreeMainGame, &Sequence{Prefix: "n"})
	require.NoError(t, err)

	assert.Equal(t, domain.TreeMainGame, f.Root.Type)
	assert.Empty(t, f.Root.Parent)

	orig, err := g.Index("T")
	require.NoError(t, err)
	require.Len(t, f.Table, orig.Len())

	cloned := make(map[string]domain.ActionNode)
	for _, n := range f.Nodes() {
		_, clash := orig.Lookup(n.ID())
		assert.False(t, clash, "clone id %s must not exist in the original", n.ID())
		cloned[n.ID()] = n
	}

	// Same topology: every original edge maps to a clone edge.
	for _, id := range orig.IDs() {
		on, _ := orig.Lookup(id)
		cn := cloned[f.Table[id]]
		require.NotNil(t, cn)
		assert.Equal(t, on.Kind(), cn.Kind())

		if _, isTree := on.(*domain.Tree); isTree {
			continue
		}
		if _, isExit := on.(*domain.TreeExit); isExit {
			if owner, _ := orig.Owner(id); owner == "T" {
				continue
			}
		}
		oe, ce := on.Exits(), cn.Exits()
		require.Len(t, ce, len(oe))
		for i := range oe {
			require.Len(t, ce[i].Targets, len(oe[i].Targets))
			for j, target := range oe[i].Targets {
				if mapped, inside := f.Table[target]; inside {
					assert.Equal(t, mapped, ce[i].Targets[j])
					_, resolves := cloned[ce[i].Targets[j]]
					assert.True(t, resolves)
				}
			}
		}
	}
}

func TestClone_NestedTreesBecomeSubTrees(t *testing.T) {
	g := newTemplate(t)
	f, err := Clone(g, "T", domain.TreeTemplate, &Sequence{Prefix: "n"})
	require.NoError(t, err)

	sub := findKind(t, f.Children(f.Root.ID()), domain.KindTree).(*domain.Tree)
	assert.Equal(t, domain.TreeSub, sub.Type)
	assert.Equal(t, f.Root.ID(), sub.Parent)
}

func TestClone_QuestParameterFollowsClonedQuest(t *testing.T) {
	g := newTemplate(t)
	f, err := Clone(g, "T", domain.TreeMainGame, &Sequence{Prefix: "n"})
	require.NoError(t, err)

	newSub := f.Table["S"]
	members := f.Children(newSub)

	param := findKind(t, members, domain.KindTemplateParameter).(*domain.TemplateParameter)
	task := findKind(t, members, domain.KindTask).(*domain.Task)
	progress := findKind(t, members, domain.KindProgress).(*domain.Progress)

	assert.Equal(t, f.Table["q1"], param.Value)
	assert.NotEqual(t, "q1", param.Value)
	assert.Equal(t, f.Table["q1"], task.QuestID)
	assert.Equal(t, "elsewhere", progress.QuestID, "outside references are left untouched")

	// The original is unchanged.
	orig, _ := g.Node("p1")
	assert.Equal(t, "q1", orig.(*domain.TemplateParameter).Value)
}

func TestClone_ClearsOwnBoundaryOnly(t *testing.T) {
	g := newTemplate(t)
	f, err := Clone(g, "T", domain.TreeMainGame, &Sequence{Prefix: "n"})
	require.NoError(t, err)

	top := f.Children(f.Root.ID())
	tx := findKind(t, top, domain.KindTreeExit)
	assert.Empty(t, tx.Exits()[0].Targets)

	// The nested exit still points into the cloned parent.
	sx := findKind(t, f.Children(f.Table["S"]), domain.KindTreeExit)
	assert.Equal(t, []string{f.Table["tx"]}, sx.Exits()[0].Targets)

	origTx, _ := g.Node("tx")
	assert.Equal(t, []string{"outside"}, origTx.Exits()[0].Targets)
}

func TestClone_PatchesInstallFragment(t *testing.T) {
	g := newTemplate(t)
	f, err := Clone(g, "T", domain.TreeMainGame, &Sequence{Prefix: "n"})
	require.NoError(t, err)

	patches, err := f.Patches(g.Registry(), "", 0)
	require.NoError(t, err)
	assert.Len(t, patches, len(f.Nodes()))

	for _, p := range patches {
		require.NoError(t, g.Apply(p))
	}

	ix, err := g.Index(f.Root.ID())
	require.NoError(t, err)
	assert.Equal(t, len(f.Table), ix.Len())

	param, ok := ix.Lookup(f.Table["p1"])
	require.True(t, ok)
	assert.Equal(t, f.Table["q1"], param.(*domain.TemplateParameter).Value)
}

func TestClone_UnknownTree(t *testing.T) {
	_, err := Clone(New(), "missing", domain.TreeSub, nil)
	assert.ErrorIs(t, err, domain.ErrTreeNotFound)
}

func findKind(t *testing.T, nodes []domain.ActionNode, kind domain.Kind) domain.ActionNode {
	t.Helper()
	for _, n := range nodes {
		if n.Kind() == kind {
			return n
		}
	}
	t.Fatalf("no %s node", kind)
	return nil
}
