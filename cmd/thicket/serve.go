package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpAdapter "github.com/aretw0/thicket/pkg/adapters/http"
	"github.com/aretw0/thicket/pkg/adapters/memory"
	"github.com/aretw0/thicket/pkg/adapters/mqtt"
	"github.com/aretw0/thicket/pkg/graph"
	"github.com/aretw0/thicket/pkg/observability"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/aretw0/thicket/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authority HTTP server",
	Long: `Serves the stored trees as the authoritative copy editors submit patches to.
Accepted patches are streamed to subscribers on /events and, when a broker is
configured, published over MQTT. Prometheus metrics are exposed on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.HTTP.Port = port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b := mustBackend(cmd)
		defer b.Close()
		store, err := b.Writable()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		reg := prometheus.NewRegistry()
		metrics := observability.NewMetrics(reg)
		streams := httpAdapter.NewStreamManager(logger)
		broadcasters := ports.Broadcasters{streams}

		if cfg.MQTT.Broker != "" {
			client, err := mqtt.Dial(ctx, cfg.MQTT.Broker, cfg.MQTT.ClientID)
			if err != nil {
				fmt.Printf("Error connecting to MQTT broker: %v\n", err)
				os.Exit(1)
			}
			defer client.Disconnect(250)
			opts := []mqtt.Option{mqtt.WithOrigin(cfg.MQTT.ClientID), mqtt.WithLogger(logger)}
			if cfg.MQTT.Prefix != "" {
				opts = append(opts, mqtt.WithPrefix(cfg.MQTT.Prefix))
			}
			broadcasters = append(broadcasters, mqtt.NewBroadcaster(client, opts...))
		}

		sessionOpts := []session.Option{session.WithLogger(logger)}
		if b.Locker != nil {
			sessionOpts = append(sessionOpts, session.WithLocker(b.Locker))
		}
		g := graph.New(graph.WithLogger(logger))
		auth := memory.NewAuthority(g,
			memory.WithSessions(session.NewManager(store, sessionOpts...)),
			memory.WithBroadcaster(broadcasters),
			memory.WithErrorReporter(metrics.Reporter(observability.LogReporter(logger))),
			memory.WithLogger(logger),
		)

		ids, err := store.List(ctx)
		if err != nil {
			fmt.Printf("Error listing trees: %v\n", err)
			os.Exit(1)
		}
		for _, id := range ids {
			if err := auth.Open(ctx, id); err != nil {
				fmt.Printf("Error opening tree %s: %v\n", id, err)
				os.Exit(1)
			}
		}

		handler := httpAdapter.NewHandler(observability.InstrumentAuthority(auth, metrics),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithSnapshots(g),
			httpAdapter.WithTrees(store),
			httpAdapter.WithAllowedOrigins(cfg.HTTP.AllowedOrigins...),
			httpAdapter.WithHandler("/metrics", metrics.Handler()),
			httpAdapter.WithLogger(logger),
		)

		srv := &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.HTTP.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting thicket server", "addr", srv.Addr, "backend", cfg.Store.Backend, "trees", len(ids))
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				fmt.Printf("Server error: %v\n", err)
				os.Exit(1)
			}
		case <-ctx.Done():
			logger.Info("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				fmt.Printf("Graceful shutdown did not complete in %v: %v\n", 5*time.Second, err)
				if err := srv.Close(); err != nil {
					fmt.Printf("Error killing server: %v\n", err)
				}
			}
			logger.Info("Thicket server stopped gracefully")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on, overriding the configuration")
}
