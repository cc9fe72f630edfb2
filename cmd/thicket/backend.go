package main

import (
	"fmt"
	"os"

	"github.com/aretw0/thicket/internal/cli"
	"github.com/spf13/cobra"
)

// mustBackend opens the configured store or exits.
func mustBackend(cmd *cobra.Command) *cli.Backend {
	b, err := cli.OpenBackend(cmd.Context(), cfg.Store, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s store: %v\n", cfg.Store.Backend, err)
		os.Exit(1)
	}
	return b
}
