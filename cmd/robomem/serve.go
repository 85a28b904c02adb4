package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/robomem/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the robomem HTTP server",
	Long: `Start the robomem HTTP server to provide REST API access to the memory graph.

The server provides endpoints for:
- Ingesting observations
- Querying the trajectory and world entities
- Describing the current belief state
- Decay, snapshots and invariant checks
- Health checks and Prometheus metrics

The memory is restored from the configured store on startup. When
memory.decay_interval is set, confidence decay runs in the background.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
	serveMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serveMode, "mode", "release", "Server mode (debug, release, test)")

	serveCmd.Flags().String("db-driver", "memory", "Database driver (memory, badger, neo4j)")
	serveCmd.Flags().String("db-uri", "", "Neo4j URI")
	serveCmd.Flags().String("db-path", "", "Badger data directory (empty for in-memory)")
	serveCmd.Flags().Duration("decay-interval", 0, "Run confidence decay at this interval (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serveMode
	}
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-uri") {
		cfg.Database.URI, _ = cmd.Flags().GetString("db-uri")
	}
	if cmd.Flags().Changed("db-path") {
		cfg.Database.Path, _ = cmd.Flags().GetString("db-path")
	}
	if cmd.Flags().Changed("decay-interval") {
		cfg.Memory.DecayInterval, _ = cmd.Flags().GetDuration("decay-interval")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	memory, store, err := newMemory(ctx, cfg, log, reg)
	if err != nil {
		return err
	}

	srv := server.New(cfg, memory,
		server.WithStore(store),
		server.WithGatherer(reg),
		server.WithLogger(log))
	srv.Setup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if interval := cfg.Memory.DecayInterval; interval > 0 {
		log.Info("Confidence decay enabled", "interval", interval)
		g.Go(func() error {
			return memory.RunDecayLoop(gctx, interval)
		})
	}

	runErr := g.Wait()

	// observations still waiting for reordering are committed before exit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if released, err := memory.Flush(shutdownCtx); err != nil {
		log.Error("Failed to flush buffered observations", "error", err)
	} else if len(released) > 0 {
		log.Info("Flushed buffered observations", "count", len(released))
	}
	if err := memory.Close(shutdownCtx); err != nil {
		log.Error("Failed to close store", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("server error: %w", runErr)
	}
	log.Info("Server stopped gracefully")
	return nil
}
