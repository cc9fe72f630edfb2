package registry

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NewUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("dragon", "d1")
	assert.Error(t, err)
}

func TestRegistry_DefaultKinds(t *testing.T) {
	kinds := Default().Kinds()
	assert.Len(t, kinds, 13)
	assert.Contains(t, kinds, domain.KindTree)
	assert.Contains(t, kinds, domain.KindTemplateParameter)
}

func TestRegistry_EncodeDecode_JSONRoundTrip(t *testing.T) {
	r := Default()

	dlg := domain.NewDialogue("d1", "guard", "Halt!", "fight", "flee")
	domain.Relocate(dlg, domain.Position{X: 10, Y: 20})

	rec, err := r.Encode(dlg)
	require.NoError(t, err)
	assert.Equal(t, domain.KindDialogue, rec.Kind)
	assert.Equal(t, "d1", rec.ID)
	assert.NotContains(t, rec.Data, "id")

	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	var back domain.NodeRecord
	require.NoError(t, json.Unmarshal(raw, &back))

	n, err := r.Decode(back)
	require.NoError(t, err)

	got, ok := n.(*domain.Dialogue)
	require.True(t, ok)
	assert.Equal(t, "guard", got.Speaker)
	assert.Equal(t, "Halt!", got.Text)
	assert.Equal(t, domain.Position{X: 10, Y: 20}, got.Position())
	require.Len(t, got.Exits(), 2)
	assert.Equal(t, "flee", got.Exits()[1].Name)
}

func TestRegistry_DecodeRejectsUnknownField(t *testing.T) {
	r := Default()
	_, err := r.Decode(domain.NodeRecord{
		Kind: domain.KindQuest,
		ID:   "q1",
		Data: map[string]any{"name": "Rescue", "colour": "red"},
	})
	assert.Error(t, err)
}

func TestRegistry_FieldAndSetField(t *testing.T) {
	r := Default()
	task := domain.NewTask("t1", "q1", "Find the key")

	v, err := r.Field(task, "quest_id")
	require.NoError(t, err)
	assert.Equal(t, "q1", v)

	require.NoError(t, r.SetField(task, "quest_id", "q2"))
	assert.Equal(t, "q2", task.QuestID)

	require.NoError(t, r.SetField(task, "position", map[string]any{"x": 3.0, "y": 4.0}))
	assert.Equal(t, domain.Position{X: 3, Y: 4}, task.Position())

	_, err = r.Field(task, "missing")
	assert.Error(t, err)
	assert.Error(t, r.SetField(task, "id", "t2"))
}

func TestRegistry_SetField_ExitsShrink(t *testing.T) {
	r := Default()
	dlg := domain.NewDialogue("d1", "", "", "a", "b", "c")

	require.NoError(t, r.SetField(dlg, "exits", []domain.Port{{Name: "only", Targets: []string{"x"}}}))
	require.Len(t, dlg.Exits(), 1)
	assert.Equal(t, []string{"x"}, dlg.Exits()[0].Targets)
}

func TestRegistry_SetField_TreeExitsRefused(t *testing.T) {
	r := Default()
	tree := domain.NewTree("t", "Main", domain.TreeMainGame)
	assert.Error(t, r.SetField(tree, "exits", []domain.Port{{Name: "x"}}))
}

func TestRegistry_CloneIsIndependent(t *testing.T) {
	r := Default()
	combat := domain.NewCombat("c1", "troll")
	domain.ReplaceExits(combat, []domain.Port{{Name: "victory", Targets: []string{"a"}}, {Name: "defeat"}})

	c, err := r.Clone(combat)
	require.NoError(t, err)
	domain.ReplaceExits(c, []domain.Port{{Name: "victory"}, {Name: "defeat"}})

	assert.Equal(t, []string{"a"}, combat.Exits()[0].Targets)
}
