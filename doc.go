/*
Package thicket is a collaborative editor core for hierarchical action graphs: trees of game logic nodes (triggers, dialogues, quests, mutations) that nest inside each other as sub trees.

It separates the graph model (pkg/domain, pkg/graph) from the undo engine (pkg/undo), the remote authority that owns the shared copy (pkg/ports, pkg/adapters) and the canvas focus logic (pkg/focus). The Editor type ties them together.

# Concept

Every change is expressed as a patch: add, remove or replace one field of one node. The editor applies each patch to its local graph first, records it together with its inverse, and submits the operation to the authority. Patches the authority rejects because the remote state moved on are rolled back locally, so the local graph never drifts from the shared one.

# Key Features

  - Optimistic editing: edits are visible at once and confirmed in the background.
  - Grouped undo: related edits undo as one step; consecutive moves of a node collapse.
  - Nested trees: sub trees keep their own entries and exits and are drawn as zoomable frames.
  - Templates: reusable trees are copied with fresh identifiers and remapped references.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/thicket"
		"github.com/aretw0/thicket/pkg/domain"
		"github.com/aretw0/thicket/pkg/dsl"
	)

	func main() {
		b := dsl.New()
		main := b.Tree("village", "Village", domain.TreeMainGame)
		main.Entry("in").Go("out")
		main.Exit("out", "done")
		g := b.MustBuild()

		// Offline accepts every patch; use memory.NewAuthority or an HTTP
		// client to share the graph with other editors.
		ed := thicket.New(g, thicket.Offline{})

		ctx := context.Background()
		id, err := ed.CreateNode(ctx, "village", domain.KindDialogue, domain.Position{X: 100})
		if err != nil {
			log.Fatal(err)
		}
		if _, err := ed.Connect(ctx, "in", 0, id); err != nil {
			log.Fatal(err)
		}

		// Both edits are undone one at a time.
		_ = ed.Undo(ctx)
		_ = ed.Undo(ctx)
	}
*/
package thicket
