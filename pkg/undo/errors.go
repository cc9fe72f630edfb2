package undo

import (
	"errors"
	"fmt"

	"github.com/aretw0/thicket/pkg/domain"
)

// ErrBusy is returned when recording while a submission is in flight.
var ErrBusy = errors.New("submission in flight")

// ErrUnknownState is returned when the authority failed or answered with
// the wrong number of results. The caller must reconcile from the authority.
var ErrUnknownState = errors.New("submission state unknown")

// ErrNoGroup is returned by EndGroup without a matching BeginGroup.
var ErrNoGroup = errors.New("no open group")

// ErrForeignTree is returned when a group is opened inside a group on
// another tree. An operation is scoped to one tree.
var ErrForeignTree = errors.New("group spans trees")

// ConflictError reports patches rejected by the authority. When Partial is
// false nothing was kept and the operation was discarded.
type ConflictError struct {
	TreeID   string
	Rejected int
	Total    int
	Partial  bool
}

func (e *ConflictError) Error() string {
	if e.Partial {
		return fmt.Sprintf("tree %s: %d of %d changes rejected", e.TreeID, e.Rejected, e.Total)
	}
	return fmt.Sprintf("tree %s: all %d changes rejected", e.TreeID, e.Total)
}

func (e *ConflictError) Unwrap() error { return domain.ErrConflict }

func isUnknown(err error) bool {
	return errors.Is(err, ErrUnknownState)
}

func isFullConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && !ce.Partial
}
