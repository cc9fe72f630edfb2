package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
)

// GraphOverlay contains view state to highlight on the chart.
type GraphOverlay struct {
	// Focus is the hierarchy path from the root to the focused tree.
	Focus []string
	// Selected nodes are drawn with a thick border.
	Selected []string
	// Invalid nodes are those a validation report flagged.
	Invalid []string
}

// GenerateMermaid produces a Mermaid flowchart of rootID. Nested trees are
// drawn as subgraphs. Shapes follow the node kind:
// - Entry: ((Circle))
// - Exit: (((Double circle)))
// - Dialogue: [/Parallelogram/]
// - Mutation: [[Subroutine]]
// - Trigger: {{Hexagon}}
// - Comment: >Flag]
// - Default: [Rectangle]
// Edges leaving a tree through an exit node are dotted.
func GenerateMermaid(g *graph.Graph, rootID string, overlay *GraphOverlay) (string, error) {
	root, ok := g.Tree(rootID)
	if !ok {
		return "", fmt.Errorf("render %s: %w", rootID, domain.ErrTreeNotFound)
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	var edges []string
	writeTree(&sb, g, root, "    ", &edges, 0)
	for _, e := range edges {
		sb.WriteString(e)
	}

	if overlay != nil {
		writeOverlay(&sb, overlay)
	}
	return sb.String(), nil
}

func writeTree(sb *strings.Builder, g *graph.Graph, t *domain.Tree, indent string, edges *[]string, depth int) {
	if depth > domain.MaxSearchDepth {
		return
	}
	for _, n := range g.Children(t.ID()) {
		if st, ok := n.(*domain.Tree); ok {
			fmt.Fprintf(sb, "%ssubgraph %s[\"%s\"]\n", indent, sanitizeMermaidID(st.ID()), escape(st.Title()))
			writeTree(sb, g, st, indent+"    ", edges, depth+1)
			fmt.Fprintf(sb, "%send\n", indent)
			continue
		}
		if n.Kind() == domain.KindTreeProperties {
			continue
		}
		opener, closer := shape(n.Kind())
		fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, sanitizeMermaidID(n.ID()), opener, escape(n.Title()), closer)

		_, leaving := n.(*domain.TreeExit)
		ports := n.Exits()
		for _, p := range ports {
			for _, target := range p.Targets {
				*edges = append(*edges, edge(n.ID(), target, p.Name, len(ports) > 1, leaving))
			}
		}
	}
}

func edge(from, to, port string, labelled, dotted bool) string {
	safeFrom, safeTo := sanitizeMermaidID(from), sanitizeMermaidID(to)
	switch {
	case labelled && dotted:
		return fmt.Sprintf("    %s -. \"%s\" .-> %s\n", safeFrom, escape(port), safeTo)
	case labelled:
		return fmt.Sprintf("    %s -- \"%s\" --> %s\n", safeFrom, escape(port), safeTo)
	case dotted:
		return fmt.Sprintf("    %s -.-> %s\n", safeFrom, safeTo)
	default:
		return fmt.Sprintf("    %s --> %s\n", safeFrom, safeTo)
	}
}

func shape(k domain.Kind) (string, string) {
	switch k {
	case domain.KindTreeEntry:
		return "((", "))"
	case domain.KindTreeExit:
		return "(((", ")))"
	case domain.KindDialogue:
		return "[/", "/]"
	case domain.KindMutation:
		return "[[", "]]"
	case domain.KindTrigger:
		return "{{", "}}"
	case domain.KindComment:
		return ">", "]"
	case domain.KindTemplateParameter:
		return "[(", ")]"
	default:
		return "[", "]"
	}
}

func writeOverlay(sb *strings.Builder, overlay *GraphOverlay) {
	sb.WriteString("\n    %% Overlay Styles\n")
	// Black text keeps the highlight readable on light and dark themes.
	sb.WriteString("    classDef focus fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef selected stroke:#fbc02d,stroke-width:4px;\n")
	sb.WriteString("    classDef invalid fill:#ffcdd2,stroke:#b71c1c,color:#000;\n")

	apply := func(ids []string, class string) {
		seen := make(map[string]bool)
		for _, id := range ids {
			safe := sanitizeMermaidID(id)
			if safe == "" || seen[safe] {
				continue
			}
			seen[safe] = true
			fmt.Fprintf(sb, "    class %s %s;\n", safe, class)
		}
	}
	// The root is the chart itself; only nested levels are highlighted.
	if len(overlay.Focus) > 1 {
		apply(overlay.Focus[1:], "focus")
	}
	apply(overlay.Invalid, "invalid")
	apply(overlay.Selected, "selected")
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
