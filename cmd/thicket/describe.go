package main

import (
	"fmt"
	"os"

	"github.com/aretw0/thicket/internal/cli"
	"github.com/aretw0/thicket/internal/presentation/tui"
	"github.com/aretw0/thicket/internal/validator"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe <tree-id>",
	Short: "Print a readable overview of a tree",
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
		report, err := validator.ValidateGraph(g, root)
		if err != nil {
			fmt.Printf("Error validating tree: %v\n", err)
			os.Exit(1)
		}

		markdown, err := tui.DescribeTree(g, args[0], report)
		if err != nil {
			fmt.Printf("Error describing tree: %v\n", err)
			os.Exit(1)
		}
		render, err := tui.NewRenderer(cmd.OutOrStdout())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		out, err := render(markdown)
		if err != nil {
			fmt.Printf("Error rendering: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
}
