package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// TreeSourceContractTest is a reusable test suite that verifies if a read-only
// adapter complies with ports.TreeSource. expected maps every tree the source
// holds to its parent id ("" for roots).
func TreeSourceContractTest(t *testing.T, src ports.TreeSource, expected map[string]string) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_Success", func(t *testing.T) {
		for id, parent := range expected {
			snap, err := src.Load(ctx, id)
			if err != nil {
				t.Fatalf("unexpected error loading tree %s: %v", id, err)
			}
			if snap.ID != id {
				t.Errorf("id mismatch: got %q, want %q", snap.ID, id)
			}
			if snap.ParentID() != parent {
				t.Errorf("parent mismatch for %s: got %q, want %q", id, snap.ParentID(), parent)
			}
		}
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := src.Load(ctx, "non-existent-tree")
		if !errors.Is(err, domain.ErrTreeNotFound) {
			t.Errorf("expected ErrTreeNotFound for non-existent tree, got %v", err)
		}
	})

	t.Run("List_Roots", func(t *testing.T) {
		roots, err := src.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing trees: %v", err)
		}
		lookup := make(map[string]bool)
		for _, id := range roots {
			lookup[id] = true
		}
		for id, parent := range expected {
			if parent == "" && !lookup[id] {
				t.Errorf("root %s missing from list", id)
			}
			if parent != "" && lookup[id] {
				t.Errorf("subtree %s listed as root", id)
			}
		}
	})

	t.Run("Children", func(t *testing.T) {
		for id, parent := range expected {
			if parent == "" {
				continue
			}
			children, err := src.Children(ctx, parent)
			if err != nil {
				t.Fatalf("unexpected error listing children of %s: %v", parent, err)
			}
			found := false
			for _, c := range children {
				found = found || c.ID == id
			}
			if !found {
				t.Errorf("subtree %s missing from children of %s", id, parent)
			}
		}
	})
}
