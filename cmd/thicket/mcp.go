package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/thicket/internal/cli"
	"github.com/aretw0/thicket/pkg/adapters/mcp"
	"github.com/aretw0/thicket/pkg/adapters/memory"
	"github.com/aretw0/thicket/pkg/session"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the stored trees to AI agents as MCP tools: listing, inspecting,
validating, rendering and focusing trees. With --writable agents may also
submit patches, which are saved back to the store.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Run: func(cmd *cobra.Command, args []string) {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")
		writable, _ := cmd.Flags().GetBool("writable")

		b := mustBackend(cmd)
		defer b.Close()

		g, err := cli.LoadGraph(cmd.Context(), b.Source, logger)
		if err != nil {
			log.Fatalf("Error loading trees: %v", err)
		}

		opts := []mcp.Option{
			mcp.WithTrees(b.Source),
			mcp.WithNavigator(cli.NewNavigator(cfg.Focus, logger)),
			mcp.WithLogger(logger),
		}
		if writable {
			store, err := b.Writable()
			if err != nil {
				log.Fatalf("Error: %v", err)
			}
			sessions := session.NewManager(store, session.WithLocker(b.Locker), session.WithLogger(logger))
			opts = append(opts, mcp.WithAuthority(memory.NewAuthority(g,
				memory.WithSessions(sessions),
				memory.WithLogger(logger),
			)))
		}
		srv := mcp.NewServer(g, opts...)

		switch transport {
		case "stdio":
			// Logs go to stderr so they never corrupt JSON-RPC on stdout.
			log.SetOutput(os.Stderr)
			logger.Info("Starting thicket MCP server (stdio)")
			if err := srv.ServeStdio(); err != nil {
				logger.Error("MCP server execution failed", "error", err)
				os.Exit(1)
			}
		case "sse":
			logger.Info("Starting thicket MCP server (SSE)", "port", port)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("MCP server execution failed", "error", err)
				os.Exit(1)
			}
			logger.Info("MCP server stopped gracefully")
		default:
			log.Fatalf("Unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
	mcpCmd.Flags().Bool("writable", false, "Allow agents to submit patches")
}
