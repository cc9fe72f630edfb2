package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Op is the kind of mutation a patch performs.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
)

// NodeRecord is the serialisable form of a single node. Data holds the
// variant fields keyed by their field names.
type NodeRecord struct {
	Kind Kind           `json:"kind" yaml:"kind"`
	ID   string         `json:"id" yaml:"id"`
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Patch describes one forward mutation of the graph.
//
// Add and remove patches carry the full node record and its position in the
// owning tree. Replace patches carry the field name with both the new and the
// expected current value, so the receiver can detect concurrent edits.
type Patch struct {
	Op     Op          `json:"op"`
	Tree   string      `json:"tree"`
	NodeID string      `json:"node_id"`
	Field  string      `json:"field,omitempty"`
	Value  any         `json:"value,omitempty"`
	Old    any         `json:"old,omitempty"`
	Index  int         `json:"index"`
	Record *NodeRecord `json:"record,omitempty"`
}

// AddPatch inserts record into tree at index. A negative index appends.
func AddPatch(tree string, index int, record NodeRecord) Patch {
	return Patch{Op: OpAdd, Tree: tree, NodeID: record.ID, Index: index, Record: &record}
}

// RemovePatch removes the node described by record from tree.
func RemovePatch(tree string, index int, record NodeRecord) Patch {
	return Patch{Op: OpRemove, Tree: tree, NodeID: record.ID, Index: index, Record: &record}
}

// ReplacePatch sets field of node id from old to value.
func ReplacePatch(tree, id, field string, old, value any) Patch {
	return Patch{Op: OpReplace, Tree: tree, NodeID: id, Field: field, Old: old, Value: value}
}

// Invert returns the patch undoing p.
func (p Patch) Invert() Patch {
	inv := p
	switch p.Op {
	case OpAdd:
		inv.Op = OpRemove
	case OpRemove:
		inv.Op = OpAdd
	case OpReplace:
		inv.Value, inv.Old = p.Old, p.Value
	}
	return inv
}

func (p Patch) String() string {
	switch p.Op {
	case OpReplace:
		return fmt.Sprintf("replace %s.%s in %s", p.NodeID, p.Field, p.Tree)
	default:
		return fmt.Sprintf("%s %s in %s at %d", p.Op, p.NodeID, p.Tree, p.Index)
	}
}

// InvertAll returns the inverses of patches, in the same order.
func InvertAll(patches []Patch) []Patch {
	out := make([]Patch, len(patches))
	for i, p := range patches {
		out[i] = p.Invert()
	}
	return out
}

// SameValue compares two field values by their canonical JSON encoding, so
// values that went through a decode round trip still compare equal.
func SameValue(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	if isEmptyJSON(ja) && isEmptyJSON(jb) {
		return true
	}
	return bytes.Equal(ja, jb)
}

// isEmptyJSON treats null, empty strings and empty collections as the same
// absent value.
func isEmptyJSON(b []byte) bool {
	switch string(b) {
	case "null", `""`, "[]", "{}":
		return true
	}
	return false
}

// SameRecord reports whether two records describe the same node state.
// Fields are compared one by one, so an absent field equals an empty one.
func SameRecord(a, b NodeRecord) bool {
	if a.Kind != b.Kind || a.ID != b.ID {
		return false
	}
	for k, v := range a.Data {
		if !SameValue(v, b.Data[k]) {
			return false
		}
	}
	for k, v := range b.Data {
		if _, seen := a.Data[k]; !seen && !SameValue(v, nil) {
			return false
		}
	}
	return true
}

// Clone returns a copy of r whose Data shares no maps or slices with r.
func (r NodeRecord) Clone() NodeRecord {
	out := r
	if r.Data != nil {
		out.Data = deepCopy(r.Data).(map[string]any)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	case []Port:
		return copyPorts(t)
	default:
		return v
	}
}
