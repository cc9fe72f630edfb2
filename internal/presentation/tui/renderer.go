package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer for w. Terminals get the
// automatic light or dark style wrapped to their width; anything else,
// such as a pipe or a file, gets plain output.
func NewRenderer(w io.Writer) (Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle("notty")}
	if IsTerminal(w) {
		opts = []glamour.TermRendererOption{
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(Width(w, 80) - 4),
		}
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	return r.Render, nil
}
