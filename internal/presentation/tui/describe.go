package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/thicket/internal/validator"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
)

// DescribeTree writes a markdown overview of treeID: its properties, a
// table of direct nodes, its subtrees and, when given, the findings of a
// validation report that concern it.
func DescribeTree(g *graph.Graph, treeID string, report *validator.Report) (string, error) {
	t, ok := g.Tree(treeID)
	if !ok {
		return "", fmt.Errorf("describe %s: %w", treeID, domain.ErrTreeNotFound)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", t.Title())
	fmt.Fprintf(&sb, "`%s` · %s tree", t.ID(), t.Type)
	if t.Parent != "" {
		fmt.Fprintf(&sb, " inside `%s`", t.Parent)
	}
	sb.WriteString("\n\n")
	if props := t.Properties(); props != nil && props.Notes != "" {
		fmt.Fprintf(&sb, "> %s\n\n", props.Notes)
	}

	sb.WriteString("## Nodes\n\n")
	sb.WriteString("| ID | Kind | Title | Exits |\n")
	sb.WriteString("|----|------|-------|-------|\n")
	for _, n := range t.DirectNodes() {
		if n.Kind() == domain.KindTreeProperties {
			continue
		}
		title := cell(n.Title())
		if !n.IsDataComplete() {
			title += " ⚠"
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", n.ID(), n.Kind(), title, exits(n.Exits()))
	}

	if subs := t.Subtrees(); len(subs) > 0 {
		sb.WriteString("\n## Subtrees\n\n")
		for _, st := range subs {
			fmt.Fprintf(&sb, "- **%s** (`%s`): %d nodes, %d exits\n", cell(st.Title()), st.ID(), len(st.DirectNodes()), len(st.ExitNodes()))
		}
	}

	if report != nil {
		var mine []validator.Issue
		for _, is := range report.Issues {
			if is.TreeID == treeID {
				mine = append(mine, is)
			}
		}
		if len(mine) > 0 {
			sb.WriteString("\n## Findings\n\n")
			for _, is := range mine {
				fmt.Fprintf(&sb, "- **%s** %s\n", is.Severity, cell(is.String()))
			}
		}
	}
	return sb.String(), nil
}

func exits(ports []domain.Port) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		targets := "∅"
		if len(p.Targets) > 0 {
			targets = strings.Join(p.Targets, ", ")
		}
		parts = append(parts, fmt.Sprintf("%s → %s", p.Name, targets))
	}
	return cell(strings.Join(parts, "; "))
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
