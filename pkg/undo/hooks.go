package undo

import "time"

// Hooks observe the engine. Nil hooks are skipped.
type Hooks struct {
	OnCommit   func(op *Operation)
	OnMerge    func(op *Operation)
	OnConflict func(treeID string, rejected, total int)
	OnUndo     func(op *Operation)
	OnRedo     func(op *Operation)
	OnSubmit   func(treeID string, elapsed time.Duration, err error)
}
