package validator

import (
	"context"
	"testing"

	"github.com/aretw0/thicket/pkg/adapters/memory"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/dsl"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTree() *dsl.Builder {
	b := dsl.New()
	main := b.Tree("A", "Main", domain.TreeMainGame)
	main.Entry("e1").Go("d1")
	main.Dialogue("d1", "Elder", "Welcome").Go("S")
	sub := main.Subtree("S", "Well").At(200, 0)
	sub.Entry("se").Go("sx")
	sub.Exit("sx", "done").Go("x1")
	main.Exit("x1", "done")
	return b
}

func codes(r *Report) []Code {
	var out []Code
	for _, i := range r.Issues {
		out = append(out, i.Code)
	}
	return out
}

func TestValidateGraph_Valid(t *testing.T) {
	g := validTree().MustBuild()

	r, err := ValidateGraph(g, "A")
	require.NoError(t, err)
	assert.Empty(t, r.Issues)
	assert.True(t, r.OK())
	assert.NoError(t, r.Err(true))
	assert.Equal(t, 2, r.Trees)
	assert.Equal(t, 6, r.Nodes)
}

func TestValidateGraph_Findings(t *testing.T) {
	b := dsl.New()
	main := b.Tree("A", "Main", domain.TreeMainGame)
	main.Entry("e1").Go("ghost")
	main.Task("t1", "no-quest", "Fetch water")
	main.Dialogue("d1", "", "")
	main.Exit("x1", "done").Go("B-in")
	other := b.Tree("B", "Other", domain.TreeModule)
	other.Entry("B-in").Go("B-out")
	other.Exit("B-out", "done")
	g := b.MustBuild()

	r, err := ValidateGraph(g, "A")
	require.NoError(t, err)

	assert.False(t, r.OK())
	assert.ElementsMatch(t, []Code{DanglingTarget, ForeignTarget, DanglingReference, Incomplete, Unreachable}, codes(r))
	assert.Len(t, r.Errors(), 3)
	assert.Len(t, r.Warnings(), 2)
	assert.Equal(t, SeverityError, r.Issues[0].Severity, "errors sort first")

	err = r.Err(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 3 errors")
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateGraph_Structure(t *testing.T) {
	b := dsl.New()
	b.Tree("A", "Main", domain.TreeMainGame).Entry("e1")
	g := b.MustBuild()

	r, err := ValidateGraph(g, "A")
	require.NoError(t, err)
	assert.Equal(t, []Code{Structure}, codes(r))
}

func TestValidateGraph_UnknownRoot(t *testing.T) {
	_, err := ValidateGraph(graph.New(), "nope")
	assert.ErrorIs(t, err, domain.ErrTreeNotFound)
}

func TestValidateSource(t *testing.T) {
	ctx := context.Background()
	g := validTree().MustBuild()
	store := memory.NewStore()
	require.NoError(t, graph.Persist(ctx, store, g, "A"))

	t.Run("clean", func(t *testing.T) {
		r, err := ValidateSource(ctx, store, "A")
		require.NoError(t, err)
		assert.Empty(t, r.Issues)
		assert.Equal(t, 2, r.Trees)
	})

	t.Run("duplicate across snapshots", func(t *testing.T) {
		sub, err := store.Load(ctx, "S")
		require.NoError(t, err)
		root, err := store.Load(ctx, "A")
		require.NoError(t, err)
		sub.Nodes = append(sub.Nodes, root.Nodes[0])
		sub.Order = append(sub.Order, root.Nodes[0].ID)
		require.NoError(t, store.Save(ctx, sub))

		r, err := ValidateSource(ctx, store, "A")
		require.NoError(t, err)
		assert.Contains(t, codes(r), DuplicateID)
		assert.False(t, r.OK())
	})

	t.Run("order mismatch", func(t *testing.T) {
		require.NoError(t, graph.Persist(ctx, store, g, "A"))
		root, err := store.Load(ctx, "A")
		require.NoError(t, err)
		root.Order = append(root.Order, "phantom")
		require.NoError(t, store.Save(ctx, root))

		r, err := ValidateSource(ctx, store, "A")
		require.NoError(t, err)
		assert.Equal(t, []Code{OrderMismatch}, codes(r))
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := ValidateSource(ctx, store, "missing")
		assert.ErrorIs(t, err, domain.ErrTreeNotFound)
	})
}
