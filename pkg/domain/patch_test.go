package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatch_Invert(t *testing.T) {
	rec := NodeRecord{Kind: KindComment, ID: "c1", Data: map[string]any{"text": "hi"}}

	tests := []struct {
		name  string
		patch Patch
		want  Patch
	}{
		{
			name:  "add becomes remove",
			patch: AddPatch("A", 2, rec),
			want:  Patch{Op: OpRemove, Tree: "A", NodeID: "c1", Index: 2, Record: &rec},
		},
		{
			name:  "remove becomes add",
			patch: RemovePatch("A", 0, rec),
			want:  Patch{Op: OpAdd, Tree: "A", NodeID: "c1", Index: 0, Record: &rec},
		},
		{
			name:  "replace swaps values",
			patch: ReplacePatch("A", "c1", "text", "hi", "bye"),
			want:  Patch{Op: OpReplace, Tree: "A", NodeID: "c1", Field: "text", Old: "bye", Value: "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.patch.Invert()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.patch, got.Invert(), "inverting twice is the identity")
		})
	}
}

func TestSameValue(t *testing.T) {
	assert.True(t, SameValue(1, 1.0))
	assert.True(t, SameValue(Position{X: 1, Y: 2}, map[string]any{"x": 1.0, "y": 2.0}))
	assert.True(t, SameValue(nil, ""), "absent and empty are the same")
	assert.True(t, SameValue([]Port(nil), []any{}))
	assert.False(t, SameValue("a", "b"))
	assert.False(t, SameValue(func() {}, func() {}), "unencodable values never match")
}

func TestSameRecord_IgnoresMissingEmptyFields(t *testing.T) {
	a := NodeRecord{Kind: KindComment, ID: "c", Data: map[string]any{"text": "x", "exits": nil}}
	b := NodeRecord{Kind: KindComment, ID: "c", Data: map[string]any{"text": "x"}}
	assert.True(t, SameRecord(a, b))
	assert.True(t, SameRecord(b, a))

	b.Data["text"] = "y"
	assert.False(t, SameRecord(a, b))
}

func TestErrors_Unwrap(t *testing.T) {
	assert.True(t, errors.Is(NotFound("m1"), ErrNodeNotFound))
	assert.Equal(t, "m1", NotFound("m1").Params["id"])
	assert.True(t, errors.Is(&CorruptionError{ID: "t", Reason: "loop"}, ErrCorruption))
}
