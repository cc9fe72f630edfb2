package thicket_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/thicket"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/dsl"
	"github.com/aretw0/thicket/pkg/graph"
)

// ExampleEditor builds a small tree, edits it offline and undoes the edit.
func ExampleEditor() {
	b := dsl.New()
	main := b.Tree("village", "Village", domain.TreeMainGame)
	main.Entry("in").Go("out")
	main.Exit("out", "done")
	g := b.MustBuild()

	ed := thicket.New(g, thicket.Offline{}, thicket.WithIDs(&graph.Sequence{Prefix: "node"}))
	ctx := context.Background()

	id, err := ed.CreateNode(ctx, "village", domain.KindDialogue, domain.Position{X: 100, Y: 50})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := ed.Connect(ctx, "in", 0, id); err != nil {
		log.Fatal(err)
	}
	in, _ := g.Node("in")
	fmt.Println(g.ChildIDs("village"), in.Exits()[0].Targets)

	if err := ed.Undo(ctx); err != nil {
		log.Fatal(err)
	}
	in, _ = g.Node("in")
	fmt.Println(in.Exits()[0].Targets)
	// Output:
	// [in out node-1] [out node-1]
	// [out]
}
