package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/thicket/pkg/adapters/memory"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunTreeStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	snap := &domain.TreeSnapshot{
		ID:    "A",
		Order: []string{"c"},
		Nodes: []domain.NodeRecord{{Kind: domain.KindComment, ID: "c", Data: map[string]any{"text": "one"}}},
	}
	store := memory.NewStore(snap)

	snap.Nodes[0].Data["text"] = "mutated"
	loaded, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "one", loaded.Nodes[0].Data["text"], "seed is copied")

	loaded.Order[0] = "other"
	again, err := store.Load(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, again.Order, "loads are copies")
}
