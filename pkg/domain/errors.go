package domain

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned when an identifier is not in the graph.
var ErrNodeNotFound = errors.New("node not found")

// ErrTreeNotFound is returned when a tree identifier is unknown.
var ErrTreeNotFound = errors.New("tree not found")

// ErrDuplicateID is returned when a node identifier is already registered.
var ErrDuplicateID = errors.New("duplicate node id")

// ErrValueChanged is returned when the current value no longer matches the
// value a patch was built against.
var ErrValueChanged = errors.New("value changed")

// ErrConflict is returned when the authority rejects submitted patches.
var ErrConflict = errors.New("conflict")

// ErrCorruption marks a structural fault in the graph.
var ErrCorruption = errors.New("graph corruption")

// ErrReadOnly is returned by stores that cannot be written to.
var ErrReadOnly = errors.New("read only")

// ErrNotEmpty is returned when removing a tree that still has children.
var ErrNotEmpty = errors.New("tree not empty")

// NoticeError is a user facing error carrying a translation key.
// Localisation happens in the presentation layer.
type NoticeError struct {
	Key    string
	Params map[string]string
	Err    error
}

func (e *NoticeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
	return e.Key
}

func (e *NoticeError) Unwrap() error { return e.Err }

// NotFound builds the notice returned when id cannot be resolved.
func NotFound(id string) *NoticeError {
	return &NoticeError{
		Key:    "notice.node_not_found",
		Params: map[string]string{"id": id},
		Err:    ErrNodeNotFound,
	}
}

// CorruptionError describes a broken structural invariant.
type CorruptionError struct {
	ID     string
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt graph at %s: %s", e.ID, e.Reason)
}

func (e *CorruptionError) Unwrap() error { return ErrCorruption }
