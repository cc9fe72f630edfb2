package domain

import "time"

// TreeSnapshot is the persisted form of one tree. Nested subtrees are stored
// as their own snapshots pointing back through Parent, never inline.
type TreeSnapshot struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Type       TreeType `json:"type" yaml:"type"`
	Parent     *string  `json:"parent,omitempty" yaml:"parent,omitempty"`
	Position   Position `json:"position" yaml:"position"`
	Complexity int      `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	// Order lists every child identifier, subtrees included, in tree order.
	Order     []string          `json:"order" yaml:"order"`
	Nodes     []NodeRecord      `json:"nodes" yaml:"nodes"`
	Meta      map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"updated_at"`
}

// IsRoot reports whether the snapshot has no parent tree.
func (s *TreeSnapshot) IsRoot() bool {
	return s.Parent == nil || *s.Parent == ""
}

// ParentID returns the parent identifier or an empty string for roots.
func (s *TreeSnapshot) ParentID() string {
	if s.Parent == nil {
		return ""
	}
	return *s.Parent
}

// Clone returns a deep copy that shares no maps or slices with s.
func (s *TreeSnapshot) Clone() *TreeSnapshot {
	out := *s
	if s.Parent != nil {
		p := *s.Parent
		out.Parent = &p
	}
	out.Order = append([]string(nil), s.Order...)
	out.Nodes = make([]NodeRecord, len(s.Nodes))
	for i, rec := range s.Nodes {
		out.Nodes[i] = rec.Clone()
	}
	if s.Meta != nil {
		out.Meta = make(map[string]string, len(s.Meta))
		for k, v := range s.Meta {
			out.Meta[k] = v
		}
	}
	return &out
}
