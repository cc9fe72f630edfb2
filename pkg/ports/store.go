package ports

import (
	"context"

	"github.com/aretw0/thicket/pkg/domain"
)

// TreeSource is the read side of tree persistence.
type TreeSource interface {
	// Load retrieves one tree snapshot.
	// Returns domain.ErrTreeNotFound if the tree does not exist.
	Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error)

	// List returns the identifiers of the root trees.
	List(ctx context.Context) ([]string, error)

	// Children returns the snapshots whose parent is parentID.
	Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error)
}

// TreeStore persists tree snapshots. Each tree, nested or not, is stored as
// an independent record referencing its parent.
type TreeStore interface {
	TreeSource

	// Save creates or replaces the snapshot.
	Save(ctx context.Context, snap *domain.TreeSnapshot) error

	// Delete removes one snapshot. Deleting a missing tree is not an error.
	Delete(ctx context.Context, treeID string) error
}
