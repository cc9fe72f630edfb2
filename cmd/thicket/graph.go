package main

import (
	"fmt"
	"os"

	"github.com/aretw0/thicket/internal/cli"
	"github.com/aretw0/thicket/internal/presentation/graph"
	"github.com/aretw0/thicket/internal/validator"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <tree-id>",
	Short: "Export a tree as a Mermaid diagram",
	Long:  `Loads the root holding the tree and prints a Mermaid flowchart (graph TD), drawing nested trees as subgraphs.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		b := mustBackend(cmd)
		defer b.Close()

		g, err := cli.LoadGraph(ctx, b.Source, logger, args[0])
		if err != nil {
			fmt.Printf("Error loading tree: %v\n", err)
			os.Exit(1)
		}
		root, _ := g.RootOf(args[0])

		var overlay *graph.GraphOverlay
		if highlight, _ := cmd.Flags().GetBool("highlight-invalid"); highlight {
			report, err := validator.ValidateGraph(g, root)
			if err != nil {
				fmt.Printf("Error validating tree: %v\n", err)
				os.Exit(1)
			}
			overlay = &graph.GraphOverlay{}
			for _, issue := range report.Errors() {
				if issue.NodeID != "" {
					overlay.Invalid = append(overlay.Invalid, issue.NodeID)
				}
			}
		}

		output, err := graph.GenerateMermaid(g, args[0], overlay)
		if err != nil {
			fmt.Printf("Error rendering tree: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(output)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("highlight-invalid", false, "Mark nodes with validation errors")
}
