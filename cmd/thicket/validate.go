package main

import (
	"fmt"
	"os"

	"github.com/aretw0/thicket/internal/validator"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [tree-id...]",
	Short: "Check stored trees for consistency",
	Long: `Checks the stored form of each root tree and every tree nested in it:
duplicate identifiers, dangling exits and references, trees without entries
or exits, and entries that cannot reach an exit. Without arguments every
stored root is checked.`,
	Run: func(cmd *cobra.Command, args []string) {
		strict, _ := cmd.Flags().GetBool("strict")
		b := mustBackend(cmd)
		defer b.Close()

		ids := args
		if len(ids) == 0 {
			var err error
			if ids, err = b.Source.List(cmd.Context()); err != nil {
				fmt.Printf("Error listing trees: %v\n", err)
				os.Exit(1)
			}
		}

		failed := false
		for _, id := range ids {
			report, err := validator.ValidateSource(cmd.Context(), b.Source, id, graph.WithLogger(logger))
			if err != nil {
				fmt.Printf("%s: %v\n", id, err)
				failed = true
				continue
			}
			for _, issue := range report.Issues {
				fmt.Printf("%s %s\n", issue.Severity, issue)
			}
			if err := report.Err(strict); err != nil {
				failed = true
				continue
			}
			fmt.Printf("%s is valid (%d trees, %d nodes) ✅\n", id, report.Trees, report.Nodes)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}
