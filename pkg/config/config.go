package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Store holds persistence resilience settings
	Store StoreConfig `mapstructure:"store"`

	// Memory holds the memory graph update policy
	Memory MemoryConfig `mapstructure:"memory"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// Perception selects the vision model used for live frames
	Perception PerceptionConfig `mapstructure:"perception"`
}

// PerceptionConfig holds the vision-language model settings
type PerceptionConfig struct {
	Provider   string        `mapstructure:"provider" validate:"oneof=none openai"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey     string        `mapstructure:"api_key"`
	Detail     string        `mapstructure:"detail" validate:"oneof=low high auto"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	// Task tells the model what the robot is looking for.
	Task string `mapstructure:"task"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host" validate:"required_if=Enabled true"`
	SMTPPort int      `mapstructure:"smtp_port" validate:"omitempty,min=1,max=65535"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio" validate:"gte=0,lte=1"`
}

// RetryConfig holds retry settings for store transactions
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" validate:"gte=0"`
}

// StoreConfig holds resilience settings wrapped around the graph store
type StoreConfig struct {
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json color"`
	// ErrorDir, when set, receives Parquet files of error records.
	ErrorDir string `mapstructure:"error_dir"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"` // gin mode
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=memory neo4j badger"`
	URI      string `mapstructure:"uri" validate:"required_if=Driver neo4j"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// Path is the badger data directory; empty runs badger in memory.
	Path string `mapstructure:"path"`
}

// MemoryConfig holds the memory graph update policy
type MemoryConfig struct {
	WorldType        string        `mapstructure:"world_type" validate:"oneof=free static dynamic mixed demo"`
	MatchRadius      float64       `mapstructure:"match_radius" validate:"gt=0"`
	ConfidencePrior  float64       `mapstructure:"confidence_prior" validate:"gt=0,lte=1"`
	ConfidenceGain   float64       `mapstructure:"confidence_gain" validate:"gt=0,lte=1"`
	TieEpsilon       float64       `mapstructure:"tie_epsilon" validate:"gte=0"`
	DecayWindow      time.Duration `mapstructure:"decay_window" validate:"gte=0"`
	DecayHalfLife    time.Duration `mapstructure:"decay_half_life" validate:"gt=0"`
	DecayFloor       float64       `mapstructure:"decay_floor" validate:"gte=0,lt=1"`
	DecayInterval    time.Duration `mapstructure:"decay_interval" validate:"gte=0"`
	Mode3D           bool          `mapstructure:"mode_3d"`
	ReorderTolerance time.Duration `mapstructure:"reorder_tolerance" validate:"gte=0"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns the configuration with every default applied and no file
// or environment input.
func Default() *Config {
	v := viper.New()
	setDefaultsOn(v)
	config := &Config{}
	// defaults always decode
	_ = v.Unmarshal(config)
	return config
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	setDefaultsOn(viper.GetViper())
}

func setDefaultsOn(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")
	v.SetDefault("log.error_dir", "")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.uri", "")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.path", "")

	// Store resilience
	v.SetDefault("store.retry.max_retries", 3)
	v.SetDefault("store.retry.initial_delay", 100*time.Millisecond)
	v.SetDefault("store.retry.max_delay", 5*time.Second)
	v.SetDefault("store.retry.backoff_multiplier", 2.0)
	v.SetDefault("store.circuit_breaker.enabled", false)
	v.SetDefault("store.circuit_breaker.max_requests", 1)
	v.SetDefault("store.circuit_breaker.interval", 60)
	v.SetDefault("store.circuit_breaker.timeout", 30)
	v.SetDefault("store.circuit_breaker.ready_to_trip_ratio", 0.6)

	// Memory policy
	v.SetDefault("memory.world_type", "static")
	v.SetDefault("memory.match_radius", 1.0)
	v.SetDefault("memory.confidence_prior", 0.5)
	v.SetDefault("memory.confidence_gain", 0.2)
	v.SetDefault("memory.tie_epsilon", 1e-3)
	v.SetDefault("memory.decay_window", 30*time.Second)
	v.SetDefault("memory.decay_half_life", 5*time.Minute)
	v.SetDefault("memory.decay_floor", 0.0)
	v.SetDefault("memory.decay_interval", time.Duration(0))
	v.SetDefault("memory.mode_3d", false)
	v.SetDefault("memory.reorder_tolerance", time.Duration(0))

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "robomem")

	// Perception
	v.SetDefault("perception.provider", "none")
	v.SetDefault("perception.model", "")
	v.SetDefault("perception.base_url", "")
	v.SetDefault("perception.api_key", "")
	v.SetDefault("perception.detail", "auto")
	v.SetDefault("perception.timeout", 30*time.Second)
	v.SetDefault("perception.max_retries", 3)
	v.SetDefault("perception.task", "")

	v.SetDefault("alert.enabled", false)
	v.SetDefault("alert.smtp_port", 587)
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// Database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.Perception.APIKey = key
	}

	// Generic database settings
	if dbDriver := os.Getenv("ROBOMEM_DB_DRIVER"); dbDriver != "" {
		config.Database.Driver = dbDriver
	}
	if dbPath := os.Getenv("ROBOMEM_DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	// Server settings
	if host := os.Getenv("ROBOMEM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("ROBOMEM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("ROBOMEM_LOG_LEVEL"); level != "" {
		config.Log.Level = strings.ToLower(level)
	}
	if mode := os.Getenv("ROBOMEM_MODE_3D"); mode != "" {
		if b, err := strconv.ParseBool(mode); err == nil {
			config.Memory.Mode3D = b
		}
	}
}
