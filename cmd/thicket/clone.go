package main

import (
	"fmt"
	"os"

	"github.com/aretw0/thicket"
	"github.com/aretw0/thicket/internal/cli"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/spf13/cobra"
)

var cloneCmd = &cobra.Command{
	Use:   "clone <template-id>",
	Short: "Instantiate a template inside another tree",
	Long: `Copies the template, and every tree nested in it, into the target tree
as a new sub tree with fresh identifiers. References between nodes of the
template follow their copies. The target root is saved back to the store.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		into, _ := cmd.Flags().GetString("into")
		x, _ := cmd.Flags().GetFloat64("x")
		y, _ := cmd.Flags().GetFloat64("y")

		b := mustBackend(cmd)
		defer b.Close()
		store, err := b.Writable()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		g, err := cli.LoadGraph(ctx, store, logger, args[0], into)
		if err != nil {
			fmt.Printf("Error loading trees: %v\n", err)
			os.Exit(1)
		}

		ed := cli.NewEditor(g, thicket.Offline{}, cfg, logger)
		id, err := ed.InstantiateTemplate(ctx, args[0], into, domain.Position{X: x, Y: y})
		if err != nil {
			fmt.Printf("Error cloning %s: %v\n", args[0], err)
			os.Exit(1)
		}

		root, _ := g.RootOf(into)
		if err := graph.Persist(ctx, store, g, root); err != nil {
			fmt.Printf("Error saving %s: %v\n", root, err)
			os.Exit(1)
		}
		fmt.Printf("Cloned %s into %s as %s\n", args[0], into, id)
	},
}

func init() {
	rootCmd.AddCommand(cloneCmd)
	cloneCmd.Flags().String("into", "", "Tree receiving the copy")
	cloneCmd.Flags().Float64("x", 0, "Horizontal position of the copy")
	cloneCmd.Flags().Float64("y", 0, "Vertical position of the copy")
	_ = cloneCmd.MarkFlagRequired("into")
}
