package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/thicket/internal/validator"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/dsl"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) *graph.Graph {
	t.Helper()
	b := dsl.New()
	main := b.Tree("A", "Main", domain.TreeMainGame)
	main.Properties("props", "Where it all begins")
	main.Entry("e1").Go("d1")
	main.Dialogue("d1", "Elder", "Welcome", "stay", "go").Port("go", "S")
	main.Trigger("t1", "")
	sub := main.Subtree("S", "Well")
	sub.Entry("se").Go("sx")
	sub.Exit("sx", "done").Go("x1")
	main.Exit("x1", "done")
	return b.MustBuild()
}

func TestDescribeTree(t *testing.T) {
	g := fixture(t)
	report, err := validator.ValidateGraph(g, "A")
	require.NoError(t, err)

	md, err := DescribeTree(g, "A", report)
	require.NoError(t, err)

	assert.Contains(t, md, "# Main")
	assert.Contains(t, md, "> Where it all begins")
	assert.Contains(t, md, "| `d1` | dialogue | Elder | stay → ∅; go → S |")
	assert.Contains(t, md, "| `t1` | trigger | Trigger ⚠ |")
	assert.NotContains(t, md, "`props`")
	assert.Contains(t, md, "- **Well** (`S`): 2 nodes, 1 exits")
	assert.Contains(t, md, "## Findings")
	assert.Contains(t, md, "incomplete")
}

func TestDescribeTree_Nested(t *testing.T) {
	md, err := DescribeTree(fixture(t), "S", nil)
	require.NoError(t, err)
	assert.Contains(t, md, "inside `A`")
	assert.NotContains(t, md, "## Subtrees")
	assert.NotContains(t, md, "## Findings")
}

func TestDescribeTree_Unknown(t *testing.T) {
	_, err := DescribeTree(graph.New(), "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrTreeNotFound)
}

func TestRenderer_PlainForNonTerminals(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, IsTerminal(&buf))
	assert.Equal(t, 42, Width(&buf, 42))

	render, err := NewRenderer(&buf)
	require.NoError(t, err)
	out, err := render("# Title\n\nSome *text*.")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "text")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|_|\\___|")
	assert.NotContains(t, buf.String(), "\x1b[", "no colour without a terminal")
}
