package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/robomem"
	"github.com/soundprediction/robomem/pkg/alert"
	"github.com/soundprediction/robomem/pkg/config"
	"github.com/soundprediction/robomem/pkg/driver"
	"github.com/soundprediction/robomem/pkg/logger"
	"github.com/soundprediction/robomem/pkg/metrics"
	"github.com/soundprediction/robomem/pkg/telemetry"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "robomem",
		Short: "robomem: spatio-temporal memory graph for mobile robots",
		Long: `robomem records what a mobile robot perceives as a graph of robot poses
and world entities, linked by temporal and spatial relations. It keeps the
trajectory, merges repeated sightings of the same entity and decays
confidence in entities that have not been seen for a while.`,
		SilenceUsage: true,
	}

	// errorSink records error logs when log.error_dir is configured.
	errorSink *telemetry.ParquetHandler
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if errorSink != nil {
		if cerr := errorSink.Close(); cerr != nil {
			fmt.Fprintln(os.Stderr, "Failed to write error records:", cerr)
		}
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.robomem.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "color", "log format (color, text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".robomem")
	}

	viper.SetEnvPrefix("ROBOMEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the configuration and builds the logger it names.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.ErrorDir != "" {
		errorSink, err = telemetry.NewParquetHandler(log.Handler(), cfg.Log.ErrorDir)
		if err != nil {
			return nil, nil, err
		}
		log = slog.New(errorSink)
	}
	slog.SetDefault(log)
	return cfg, log, nil
}

// openStore opens the configured graph store without resilience wrappers.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (driver.GraphStore, error) {
	switch cfg.Database.Driver {
	case "", string(driver.GraphProviderMemory):
		return driver.NewMemoryStore(), nil

	case string(driver.GraphProviderBadger):
		store, err := driver.NewBadgerStore(cfg.Database.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil

	case string(driver.GraphProviderNeo4j):
		store, err := driver.NewNeo4jStore(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
		if err != nil {
			return nil, err
		}
		if err := store.VerifyConnectivity(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, fmt.Errorf("neo4j not reachable at %s: %w", cfg.Database.URI, err)
		}
		if err := store.CreateIndices(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// newMemory opens the store, wraps it with circuit breaking and retries,
// creates the memory client and restores any persisted graph. The unwrapped
// store is returned for health checks.
func newMemory(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*robomem.Client, driver.GraphStore, error) {
	base, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled && reg != nil {
		rec = metrics.New(reg, cfg.Metrics.Namespace)
	}

	store := base
	if cfg.Store.CircuitBreaker.Enabled {
		store = driver.NewBreakerStore(store, cfg.Store.CircuitBreaker, alert.New(cfg.Alert), log)
	}
	retry := driver.NewRetryStore(store, driver.RetryConfigFrom(cfg.Store.Retry), log)
	retry.OnRetry(func(attempt int, err error) { rec.StoreRetry() })

	client, err := robomem.NewClient(retry, robomem.ConfigFrom(cfg.Memory), log, robomem.WithMetrics(rec))
	if err != nil {
		_ = base.Close(ctx)
		return nil, nil, err
	}
	if err := client.Restore(ctx); err != nil {
		_ = base.Close(ctx)
		return nil, nil, fmt.Errorf("failed to restore memory: %w", err)
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Memory ready",
		"store", base.Provider(),
		"world_type", cfg.Memory.WorldType,
		"robot_nodes", stats.RobotNodes,
		"world_nodes", stats.WorldNodes)
	return client, base, nil
}
