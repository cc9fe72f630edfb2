package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/thicket/pkg/ports"
	"github.com/aretw0/thicket/pkg/undo"
)

// LogReporter logs reported faults at error level.
func LogReporter(logger *slog.Logger) ports.ErrorReporter {
	return reporterFunc(func(ctx context.Context, err error) {
		logger.ErrorContext(ctx, "Structural fault", "error", err)
	})
}

// LogHooks records engine events on logger.
func LogHooks(logger *slog.Logger) undo.Hooks {
	return undo.Hooks{
		OnCommit: func(op *undo.Operation) {
			logger.Info("Operation committed", "label", op.Label, "tree_id", op.TreeID, "patches", op.Len())
		},
		OnMerge: func(op *undo.Operation) {
			logger.Debug("Operation merged", "label", op.Label, "group_id", op.GroupID)
		},
		OnUndo: func(op *undo.Operation) {
			logger.Info("Operation undone", "label", op.Label, "tree_id", op.TreeID)
		},
		OnRedo: func(op *undo.Operation) {
			logger.Info("Operation redone", "label", op.Label, "tree_id", op.TreeID)
		},
		OnConflict: func(treeID string, rejected, total int) {
			logger.Warn("Authority rejected patches", "tree_id", treeID, "rejected", rejected, "total", total)
		},
		OnSubmit: func(treeID string, elapsed time.Duration, err error) {
			if err != nil {
				logger.Error("Submission failed", "tree_id", treeID, "duration", elapsed, "error", err)
				return
			}
			logger.Debug("Submission done", "tree_id", treeID, "duration", elapsed)
		},
	}
}

// Chain combines hooks; each event reaches every non-nil hook in order.
func Chain(hooks ...undo.Hooks) undo.Hooks {
	var out undo.Hooks
	for _, h := range hooks {
		out.OnCommit = chainOp(out.OnCommit, h.OnCommit)
		out.OnMerge = chainOp(out.OnMerge, h.OnMerge)
		out.OnUndo = chainOp(out.OnUndo, h.OnUndo)
		out.OnRedo = chainOp(out.OnRedo, h.OnRedo)
		out.OnConflict = chainConflict(out.OnConflict, h.OnConflict)
		out.OnSubmit = chainSubmit(out.OnSubmit, h.OnSubmit)
	}
	return out
}

func chainOp(a, b func(*undo.Operation)) func(*undo.Operation) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(op *undo.Operation) {
		a(op)
		b(op)
	}
}

func chainConflict(a, b func(string, int, int)) func(string, int, int) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(treeID string, rejected, total int) {
		a(treeID, rejected, total)
		b(treeID, rejected, total)
	}
}

func chainSubmit(a, b func(string, time.Duration, error)) func(string, time.Duration, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(treeID string, elapsed time.Duration, err error) {
		a(treeID, elapsed, err)
		b(treeID, elapsed, err)
	}
}
