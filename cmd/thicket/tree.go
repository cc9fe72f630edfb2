package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/thicket/pkg/graph"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Manage stored trees",
	Long:  `List, inspect, and remove trees held by the configured store.`,
}

var treeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List root trees",
	Run: func(cmd *cobra.Command, args []string) {
		b := mustBackend(cmd)
		defer b.Close()

		ids, err := b.Source.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing trees: %v\n", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("No trees found.")
			return
		}

		fmt.Println("Trees:")
		for _, id := range ids {
			snap, err := b.Source.Load(cmd.Context(), id)
			if err != nil {
				fmt.Printf("- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("- %s  %q  %s  %d nodes\n", id, snap.Name, snap.Type, len(snap.Order))
		}
	},
}

var treeInspectCmd = &cobra.Command{
	Use:   "inspect <tree-id>",
	Short: "Print the stored snapshot of a tree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("output")
		b := mustBackend(cmd)
		defer b.Close()

		snap, err := b.Source.Load(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error loading tree '%s': %v\n", args[0], err)
			os.Exit(1)
		}

		var data []byte
		switch format {
		case "json":
			data, err = json.MarshalIndent(snap, "", "  ")
		case "yaml":
			data, err = yaml.Marshal(snap)
		default:
			err = fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

var treeRmCmd = &cobra.Command{
	Use:   "rm <tree-id>...",
	Short: "Remove trees and everything nested in them",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b := mustBackend(cmd)
		defer b.Close()
		store, err := b.Writable()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		hasError := false
		for _, id := range args {
			if err := graph.Forget(cmd.Context(), store, id); err != nil {
				fmt.Printf("Error removing '%s': %v\n", id, err)
				hasError = true
			} else {
				fmt.Printf("Removed tree '%s'\n", id)
			}
		}
		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.AddCommand(treeLsCmd)
	treeCmd.AddCommand(treeInspectCmd)
	treeCmd.AddCommand(treeRmCmd)
	treeInspectCmd.Flags().StringP("output", "o", "json", "Output format: json or yaml")
}
