package ports

// Transform is the canvas pan and zoom.
type Transform struct {
	Zoom float64 `json:"zoom"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// ViewProvider exposes the canvas transform to the undo engine.
type ViewProvider interface {
	CurrentTransform() Transform
	SetTransform(Transform)
}

// SelectionProvider is optionally implemented by a ViewProvider whose
// selection is captured alongside the transform.
type SelectionProvider interface {
	Selection() []string
	SetSelection([]string)
}
