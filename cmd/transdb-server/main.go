// Command transdb-server runs a single transdb node: a primary accepting
// GET/PUT/DELETE on /keys/{key}, or a replica that rejects all three
// with 405. No replication protocol runs behind the role flag; it only
// exists so a topology file can describe a two-node deployment and
// clients can observe distinct primary/replica behavior.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/transdb/transdb/internal/config"
	"github.com/transdb/transdb/internal/server"
	"github.com/transdb/transdb/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "transdb-server",
		Short: "transdb node: in-memory key-value store with monotonic versions and idempotent writes",
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		role         string
		topologyPath string
		addrOverride string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the node's HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(role, topologyPath, addrOverride)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", `node role: "primary" or "replica" (required)`)
	cmd.Flags().StringVar(&topologyPath, "topology", "", "path to the topology JSON file (required)")
	cmd.Flags().StringVar(&addrOverride, "addr", "", "bind address override (bypasses the topology file)")
	cmd.MarkFlagRequired("role")
	cmd.MarkFlagRequired("topology")

	return cmd
}

func runServe(roleFlag, topologyPath, addrOverride string) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	role := server.Role(roleFlag)
	if role != server.RolePrimary && role != server.RoleReplica {
		return fmt.Errorf(`--role must be "primary" or "replica", got %q`, roleFlag)
	}

	topology, err := config.LoadTopology(topologyPath)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}

	nodeCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load node config: %w", err)
	}

	addr, err := config.BindAddr(topology, role, addrOverride)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	state := store.New(nodeCfg.StoreOptions()...)
	handler := &server.Handler{
		State:        state,
		Role:         role,
		MaxKeySize:   nodeCfg.MaxKeySize,
		MaxValueSize: nodeCfg.MaxValueSize,
	}
	router := server.NewRouter(handler, logger)

	go func() {
		logger.Info().Str("addr", addr).Str("role", string(role)).Msg("starting server")
		fmt.Printf("Listening on %s\n", addr)
		if err := router.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := router.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
