package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractSnapshot(id string, parent *string) *domain.TreeSnapshot {
	return &domain.TreeSnapshot{
		ID:       id,
		Name:     "Contract " + id,
		Type:     domain.TreeMainGame,
		Parent:   parent,
		Position: domain.Position{X: 1, Y: 2},
		Order:    []string{id + "-in", id + "-out"},
		Nodes: []domain.NodeRecord{
			{Kind: domain.KindTreeEntry, ID: id + "-in", Data: map[string]any{
				"position": map[string]any{"x": 0.0, "y": 0.0},
				"exits":    []any{map[string]any{"name": "next", "targets": []any{id + "-out"}}},
			}},
			{Kind: domain.KindTreeExit, ID: id + "-out", Data: map[string]any{
				"position": map[string]any{"x": 400.0, "y": 0.0},
				"label":    "done",
			}},
		},
		Meta:      map[string]string{"author": "contract"},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// RunTreeStoreContract runs a suite of tests to verify that a TreeStore implementation
// adheres to the defined interface contract.
func RunTreeStoreContract(t *testing.T, store TreeStore) {
	ctx := context.Background()
	rootID := "contract-tree-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(rootID, nil)

		err := store.Save(ctx, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, rootID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.ID, loaded.ID)
		assert.Equal(t, snap.Name, loaded.Name)
		assert.Equal(t, snap.Type, loaded.Type)
		assert.True(t, loaded.IsRoot())
		assert.Equal(t, snap.Position, loaded.Position)
		assert.Equal(t, snap.Order, loaded.Order)
		assert.Equal(t, "contract", loaded.Meta["author"])
		require.Len(t, loaded.Nodes, 2)
		for i := range snap.Nodes {
			assert.True(t, domain.SameRecord(snap.Nodes[i], loaded.Nodes[i]), "node %d should survive persistence", i)
		}
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+rootID)
		assert.ErrorIs(t, err, domain.ErrTreeNotFound)
	})

	t.Run("Children and List", func(t *testing.T) {
		parent := rootID
		child := contractSnapshot(rootID+"-sub", &parent)
		child.Type = domain.TreeSub
		require.NoError(t, store.Save(ctx, contractSnapshot(rootID, nil)))
		require.NoError(t, store.Save(ctx, child))

		children, err := store.Children(ctx, rootID)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, child.ID, children[0].ID)
		assert.Equal(t, rootID, children[0].ParentID())

		roots, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, roots, rootID)
		assert.NotContains(t, roots, child.ID, "List returns root trees only")

		require.NoError(t, store.Delete(ctx, child.ID))
		children, err = store.Children(ctx, rootID)
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, contractSnapshot(rootID, nil)))

		err := store.Delete(ctx, rootID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, rootID)
		assert.ErrorIs(t, err, domain.ErrTreeNotFound, "Load after Delete should return ErrTreeNotFound")

		assert.NoError(t, store.Delete(ctx, rootID), "Deleting twice is not an error")
	})
}

// RunAuthorityContract verifies the submission semantics of an Authority.
// treeID must name an existing tree the authority accepts patches for.
func RunAuthorityContract(t *testing.T, auth Authority, treeID string) {
	ctx := context.Background()
	nodeID := fmt.Sprintf("contract-comment-%d", time.Now().UnixNano())
	record := domain.NodeRecord{Kind: domain.KindComment, ID: nodeID, Data: map[string]any{
		"text":     "hello",
		"position": map[string]any{"x": 5.0, "y": 5.0},
	}}

	add := domain.AddPatch(treeID, -1, record)

	t.Run("Add Accepted", func(t *testing.T) {
		results, err := auth.Submit(ctx, treeID, []domain.Patch{add}, []domain.Patch{add.Invert()}, false)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Accepted())
	})

	t.Run("Duplicate Add Rejected", func(t *testing.T) {
		results, err := auth.Submit(ctx, treeID, []domain.Patch{add}, []domain.Patch{add.Invert()}, false)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, RejectedValueChanged, results[0].Status)
	})

	t.Run("Replace Checks Expected Value", func(t *testing.T) {
		stale := domain.ReplacePatch(treeID, nodeID, "text", "not hello", "bye")
		good := domain.ReplacePatch(treeID, nodeID, "text", "hello", "bye")
		patches := []domain.Patch{stale, good}

		results, err := auth.Submit(ctx, treeID, patches, domain.InvertAll(patches), false)
		require.NoError(t, err)
		require.Len(t, results, 2, "one result per patch")
		assert.False(t, results[0].Accepted())
		assert.True(t, results[1].Accepted())
	})

	t.Run("Remove", func(t *testing.T) {
		current := record
		current.Data = map[string]any{"text": "bye", "position": map[string]any{"x": 5.0, "y": 5.0}}
		remove := domain.RemovePatch(treeID, -1, current)

		results, err := auth.Submit(ctx, treeID, []domain.Patch{remove}, []domain.Patch{remove.Invert()}, true)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.True(t, results[0].Accepted())

		results, err = auth.Submit(ctx, treeID, []domain.Patch{remove}, []domain.Patch{remove.Invert()}, true)
		require.NoError(t, err)
		assert.False(t, results[0].Accepted(), "removing a missing node is rejected")
	})
}
