package undo

// DefaultHistoryLimit bounds the undo stack when no limit is configured.
const DefaultHistoryLimit = 100

// History holds the bounded undo and redo stacks.
type History struct {
	limit int
	undo  []*Operation
	redo  []*Operation
}

// NewHistory creates a history keeping at most limit undo steps.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Commit records a fresh operation. The redo stack is cleared, and op is
// merged into the top operation when both allow it. Commit reports whether
// a merge happened.
func (h *History) Commit(op *Operation) bool {
	h.redo = nil
	if n := len(h.undo); n > 0 && h.undo[n-1].mergeable(op) {
		h.undo[n-1].absorb(op)
		return true
	}
	h.pushUndo(op)
	return false
}

func (h *History) pushUndo(op *Operation) {
	h.undo = append(h.undo, op)
	if len(h.undo) > h.limit {
		h.undo = h.undo[len(h.undo)-h.limit:]
	}
}

func (h *History) popUndo() *Operation {
	n := len(h.undo)
	if n == 0 {
		return nil
	}
	op := h.undo[n-1]
	h.undo = h.undo[:n-1]
	return op
}

func (h *History) pushRedo(op *Operation) {
	h.redo = append(h.redo, op)
}

func (h *History) popRedo() *Operation {
	n := len(h.redo)
	if n == 0 {
		return nil
	}
	op := h.redo[n-1]
	h.redo = h.redo[:n-1]
	return op
}

// Peek returns the operation Undo would reverse, or nil.
func (h *History) Peek() *Operation {
	if len(h.undo) == 0 {
		return nil
	}
	return h.undo[len(h.undo)-1]
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Len returns the sizes of the undo and redo stacks.
func (h *History) Len() (undo, redo int) { return len(h.undo), len(h.redo) }

// Clear drops both stacks.
func (h *History) Clear() {
	h.undo, h.redo = nil, nil
}
