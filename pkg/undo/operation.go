package undo

import (
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// ViewState is the canvas state captured around an operation.
type ViewState struct {
	Transform ports.Transform `json:"transform"`
	Selection []string        `json:"selection,omitempty"`
}

// Operation is one undo step. Patches and Inverses are index aligned.
type Operation struct {
	Label   Label
	GroupID string
	TreeID  string

	Patches  []domain.Patch
	Inverses []domain.Patch

	// Before is restored after a reverse, After after a redo.
	Before ViewState
	After  ViewState

	AfterApply   func()
	AfterReverse func()

	AutoMerge bool
}

// Len returns the number of patch pairs.
func (op *Operation) Len() int { return len(op.Patches) }

// drop removes the pairs at the given indices.
func (op *Operation) drop(rejected map[int]bool) {
	if len(rejected) == 0 {
		return
	}
	patches := op.Patches[:0:0]
	inverses := op.Inverses[:0:0]
	for i := range op.Patches {
		if rejected[i] {
			continue
		}
		patches = append(patches, op.Patches[i])
		inverses = append(inverses, op.Inverses[i])
	}
	op.Patches, op.Inverses = patches, inverses
}

func (op *Operation) mergeable(next *Operation) bool {
	return op.TreeID == next.TreeID &&
		op.Label == next.Label &&
		op.Label.AutoMergeable() &&
		op.AutoMerge && next.AutoMerge &&
		op.GroupID == next.GroupID
}

// absorb appends next to op. The earlier before-state is kept.
func (op *Operation) absorb(next *Operation) {
	op.Patches = append(op.Patches, next.Patches...)
	op.Inverses = append(op.Inverses, next.Inverses...)
	op.After = next.After
	if next.AfterApply != nil {
		op.AfterApply = next.AfterApply
	}
}
