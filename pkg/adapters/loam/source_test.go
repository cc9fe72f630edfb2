package loam

import (
	"context"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/thicket/internal/testutils"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainTree = `---
id: main
name: Main Story
type: main_game
order: [main-in, village, main-out]
nodes:
  - kind: tree_entry
    id: main-in
    data:
      position: {x: 0, y: 0}
      exits:
        - name: next
          targets: [main-out]
  - kind: tree_exit
    id: main-out
    data:
      position: {x: 400, y: 0}
      label: done
---
The hero leaves the village.
`

const villageTree = `---
id: village
name: Village
parent: main
position: {x: 100, y: 200}
nodes:
  - kind: tree_entry
    id: village-in
  - kind: tree_exit
    id: village-out
    data:
      label: leave
---
`

func setupSource(t *testing.T) *Source {
	t.Helper()
	dir, repo := testutils.SetupTestRepo(t, loam.WithVersioning(false))
	testutils.WriteFiles(t, dir, map[string]string{
		"main.md":          mainTree,
		"trees/village.md": villageTree,
	})
	return New(loam.NewTypedRepository[TreeMetadata](repo))
}

func TestSource_Contract(t *testing.T) {
	tests.TreeSourceContractTest(t, setupSource(t), map[string]string{
		"main":    "",
		"village": "main",
	})
}

func TestSource_Defaults(t *testing.T) {
	src := setupSource(t)
	ctx := context.Background()

	main, err := src.Load(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, domain.TreeMainGame, main.Type)
	assert.Equal(t, "The hero leaves the village.", main.Meta[DescriptionKey])

	village, err := src.Load(ctx, "village")
	require.NoError(t, err)
	assert.Equal(t, domain.TreeSub, village.Type, "nested documents default to sub trees")
	assert.Equal(t, []string{"village-in", "village-out"}, village.Order, "order defaults to node order")
	assert.Equal(t, 100.0, village.Position.X)
}

func TestSource_LoadsIntoGraph(t *testing.T) {
	g := graph.New()
	require.NoError(t, g.Load(context.Background(), setupSource(t), "main"))

	assert.Equal(t, []string{"main-in", "village", "main-out"}, g.ChildIDs("main"))
	exit, ok := g.Node("village-out")
	require.True(t, ok)
	assert.Equal(t, "leave", exit.(*domain.TreeExit).Label)
}

func TestSource_Collision(t *testing.T) {
	dir, repo := testutils.SetupTestRepo(t, loam.WithVersioning(false))
	testutils.WriteFiles(t, dir, map[string]string{
		"a.md":     "---\nid: dup\n---\n",
		"sub/b.md": "---\nid: dup\n---\n",
	})
	src := New(loam.NewTypedRepository[TreeMetadata](repo))

	_, err := src.List(context.Background())
	assert.ErrorContains(t, err, "collision")
}
