package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"  _   _     _      _        _   ", "#34d399"},
	{" | |_| |__ (_) ___| | _____| |_ ", "#2dd4bf"},
	{" | __| '_ \\| |/ __| |/ / _ \\ __|", "#22d3ee"},
	{" | |_| | | | | (__|   <  __/ |_ ", "#38bdf8"},
	{"  \\__|_| |_|_|\\___|_|\\_\\___|\\__|", "#60a5fa"},
}

// PrintBanner writes the thicket banner to w, coloured when w supports it.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or fallback when unknown.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}
