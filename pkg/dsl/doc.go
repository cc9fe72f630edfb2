/*
Package dsl builds thicket graphs from Go code.

It is a fluent alternative to stored snapshots, used for fixtures, examples
and generated content. Edges are declared by identifier, so nodes may point
at siblings declared later in the same tree.

	b := dsl.New()
	main := b.Tree("village", "Village", domain.TreeMainGame)

	main.Entry("in").Go("greet")
	main.Dialogue("greet", "Elder", "Welcome, traveller.").Go("out")
	main.Exit("out", "done").At(400, 0)

	quest := main.Subtree("well", "The Old Well").At(200, 200)
	quest.Entry("well-in").Go("well-out")
	quest.Exit("well-out", "done")

	g, err := b.Build()
*/
package dsl
