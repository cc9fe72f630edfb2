package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	thicketmcp "github.com/aretw0/thicket/pkg/adapters/mcp"
	"github.com/aretw0/thicket/pkg/adapters/memory"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/dsl"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T) *graph.Graph {
	t.Helper()
	b := dsl.New()
	main := b.Tree("A", "Main", domain.TreeMainGame)
	main.Entry("e1").Go("d1")
	main.Dialogue("d1", "Elder", "Welcome").Go("S")
	sub := main.Subtree("S", "Well").At(200, 0)
	sub.Entry("se").Go("sx")
	sub.Exit("sx", "done").Go("x1")
	main.Exit("x1", "done")
	g, err := b.Build()
	require.NoError(t, err)
	return g
}

func connect(t *testing.T, s *thicketmcp.Server) *client.Client {
	t.Helper()
	c, err := client.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "thicket-test", Version: "1.0.0"}
	_, err = c.Initialize(ctx, init)
	require.NoError(t, err)
	return c
}

func call(t *testing.T, c *client.Client, name string, args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return res, text.Text
}

func TestServer_ListTools(t *testing.T) {
	g := newGraph(t)

	t.Run("read only", func(t *testing.T) {
		c := connect(t, thicketmcp.NewServer(g))
		tools, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
		require.NoError(t, err)
		var names []string
		for _, tool := range tools.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"list_trees", "inspect_tree", "describe_node", "validate_tree", "render_tree", "focus"}, names)
	})

	t.Run("with authority", func(t *testing.T) {
		c := connect(t, thicketmcp.NewServer(g, thicketmcp.WithAuthority(memory.NewAuthority(g))))
		tools, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
		require.NoError(t, err)
		assert.Len(t, tools.Tools, 7)
	})
}

func TestServer_ListTrees(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)
	store := memory.NewStore()
	other := dsl.New()
	other.Tree("B", "Stored", domain.TreeModule).Entry("b-in")
	og := other.MustBuild()
	require.NoError(t, graph.Persist(ctx, store, og, "B"))

	c := connect(t, thicketmcp.NewServer(g, thicketmcp.WithTrees(store)))
	res, text := call(t, c, "list_trees", nil)
	require.False(t, res.IsError)

	var list thicketmcp.TreeList
	require.NoError(t, json.Unmarshal([]byte(text), &list))
	require.Len(t, list.Trees, 2)
	assert.Equal(t, thicketmcp.TreeSummary{ID: "A", Name: "Main", Type: domain.TreeMainGame, Loaded: true, Subtrees: 1, Nodes: 3}, list.Trees[0])
	assert.Equal(t, "B", list.Trees[1].ID)
	assert.False(t, list.Trees[1].Loaded)

	resource, err := c.ReadResource(ctx, mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: thicketmcp.TreesURI}})
	require.NoError(t, err)
	require.Len(t, resource.Contents, 1)
	contents, ok := resource.Contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Contains(t, contents.Text, `"id":"B"`)
}

func TestServer_InspectAndDescribe(t *testing.T) {
	c := connect(t, thicketmcp.NewServer(newGraph(t)))

	res, text := call(t, c, "inspect_tree", map[string]any{"tree_id": "S"})
	require.False(t, res.IsError)
	var snap domain.TreeSnapshot
	require.NoError(t, json.Unmarshal([]byte(text), &snap))
	assert.Equal(t, []string{"se", "sx"}, snap.Order)
	assert.Equal(t, "A", snap.ParentID())

	res, text = call(t, c, "describe_node", map[string]any{"node_id": "sx"})
	require.False(t, res.IsError)
	var desc thicketmcp.NodeDescription
	require.NoError(t, json.Unmarshal([]byte(text), &desc))
	assert.Equal(t, domain.KindTreeExit, desc.Kind)
	assert.Equal(t, "S", desc.Tree)
	assert.Equal(t, "A", desc.Root)
	require.Len(t, desc.Exits, 1)
	assert.Equal(t, []string{"x1"}, desc.Exits[0].Targets)

	res, _ = call(t, c, "describe_node", map[string]any{"node_id": "ghost"})
	assert.True(t, res.IsError)

	res, _ = call(t, c, "inspect_tree", map[string]any{"tree_id": "ghost"})
	assert.True(t, res.IsError)
}

func TestServer_ValidateAndRender(t *testing.T) {
	g := newGraph(t)
	c := connect(t, thicketmcp.NewServer(g))

	res, text := call(t, c, "validate_tree", map[string]any{"tree_id": "A"})
	require.False(t, res.IsError)
	assert.Contains(t, text, `"trees":2`)

	res, text = call(t, c, "render_tree", map[string]any{"tree_id": "A"})
	require.False(t, res.IsError)
	assert.Contains(t, text, "graph TD")
	assert.Contains(t, text, `subgraph S["Well"]`)
	assert.NotContains(t, text, "classDef invalid")

	root, ok := g.Tree("A")
	require.True(t, ok)
	require.True(t, root.AddDirectNode(domain.NewTrigger("t1", "")))

	res, _ = call(t, c, "validate_tree", map[string]any{"tree_id": "A"})
	assert.False(t, res.IsError, "warnings pass by default")
	res, text = call(t, c, "validate_tree", map[string]any{"tree_id": "A", "strict": true})
	assert.True(t, res.IsError)
	assert.Contains(t, text, "incomplete")
}

func TestServer_Focus(t *testing.T) {
	c := connect(t, thicketmcp.NewServer(newGraph(t)))

	res, text := call(t, c, "focus", map[string]any{
		"tree_id": "A", "zoom": 0.1, "width": 800, "height": 600,
	})
	require.False(t, res.IsError)
	var out thicketmcp.FocusResult
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, []string{"A"}, out.Path)

	res, _ = call(t, c, "focus", map[string]any{
		"tree_id": "missing", "zoom": 1, "width": 800, "height": 600,
	})
	assert.True(t, res.IsError)
}

func TestServer_SubmitPatches(t *testing.T) {
	g := newGraph(t)
	c := connect(t, thicketmcp.NewServer(g, thicketmcp.WithAuthority(memory.NewAuthority(g))))

	patches := []domain.Patch{domain.ReplacePatch("A", "d1", "text", "Welcome", "Hello")}
	res, text := call(t, c, "submit_patches", map[string]any{
		"tree_id":  "A",
		"patches":  patches,
		"inverses": domain.InvertAll(patches),
	})
	require.False(t, res.IsError, text)

	var out thicketmcp.SubmitResult
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Len(t, out.Results, 1)
	assert.True(t, out.Results[0].Accepted())

	value, err := g.Field("d1", "text")
	require.NoError(t, err)
	assert.Equal(t, "Hello", value)

	res, _ = call(t, c, "submit_patches", map[string]any{
		"tree_id":  "A",
		"patches":  patches,
		"inverses": []domain.Patch{},
	})
	assert.True(t, res.IsError)
}
