package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/thicket"
	"github.com/aretw0/thicket/internal/config"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/focus"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/observability"
	"github.com/aretw0/thicket/pkg/ports"
)

// RootOf follows the stored parent chain of treeID up to its root tree.
func RootOf(ctx context.Context, src ports.TreeSource, treeID string) (string, error) {
	id := treeID
	for depth := 0; depth <= domain.MaxSearchDepth; depth++ {
		snap, err := src.Load(ctx, id)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", treeID, err)
		}
		if snap.IsRoot() {
			return snap.ID, nil
		}
		id = snap.ParentID()
	}
	return "", &domain.CorruptionError{ID: treeID, Reason: "parent chain exceeds search depth"}
}

// LoadGraph loads the roots holding treeIDs into one graph. Without ids,
// every stored root is loaded.
func LoadGraph(ctx context.Context, src ports.TreeSource, logger *slog.Logger, treeIDs ...string) (*graph.Graph, error) {
	roots := treeIDs
	if len(roots) == 0 {
		ids, err := src.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list trees: %w", err)
		}
		roots = ids
	}

	g := graph.New(graph.WithLogger(logger))
	seen := make(map[string]bool)
	for _, id := range roots {
		root, err := RootOf(ctx, src, id)
		if err != nil {
			return nil, err
		}
		if seen[root] {
			continue
		}
		seen[root] = true
		if err := g.Load(ctx, src, root); err != nil {
			return nil, err
		}
	}
	logger.Debug("Graph loaded", "roots", len(seen))
	return g, nil
}

// NewNavigator builds the focus navigator described by fc.
func NewNavigator(fc config.FocusConfig, logger *slog.Logger) *focus.Navigator {
	opts := []focus.Option{focus.WithThreshold(fc.Threshold), focus.WithLogger(logger)}
	if fc.Complexity > 0 {
		opts = append(opts, focus.WithComplexity(fc.Complexity))
	}
	return focus.NewNavigator(opts...)
}

// NewEditor creates an editor over g with the configured history, focus
// and logging.
func NewEditor(g *graph.Graph, auth ports.Authority, cfg config.Config, logger *slog.Logger, opts ...thicket.Option) *thicket.Editor {
	base := []thicket.Option{
		thicket.WithLogger(logger),
		thicket.WithHistoryLimit(cfg.Undo.HistoryLimit),
		thicket.WithNavigator(NewNavigator(cfg.Focus, logger)),
		thicket.WithHooks(observability.LogHooks(logger)),
		thicket.WithErrorReporter(observability.LogReporter(logger)),
	}
	return thicket.New(g, auth, append(base, opts...)...)
}
