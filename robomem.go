package robomem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/robomem/pkg/config"
	"github.com/soundprediction/robomem/pkg/driver"
	"github.com/soundprediction/robomem/pkg/metrics"
	"github.com/soundprediction/robomem/pkg/registry"
	"github.com/soundprediction/robomem/pkg/relations"
	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/trajectory"
	"github.com/soundprediction/robomem/pkg/types"
)

// Memory is the main interface for interacting with the robot memory graph.
// It ingests timestamped observations, resolves the entities they mention and
// answers the trajectory and entity queries of a reasoning component.
type Memory interface {
	Ingester
	TrajectoryQuerier
	EntityQuerier
	MemoryAdmin
}

// Client is the main implementation of the Memory interface.
type Client struct {
	store   driver.GraphStore
	config  *Config
	logger  *slog.Logger
	metrics *metrics.Recorder
	clock   func() time.Time

	// writeMu serialises writers: ingest, annotate and decay.
	writeMu sync.Mutex
	reorder *reorderBuffer
	seq     int64

	// mu guards the state below. It is write-locked only while a persisted
	// transaction is applied.
	mu        sync.RWMutex
	log       *trajectory.Log
	registry  *registry.Registry
	relations *relations.Index
}

// Config holds configuration for the memory client.
type Config struct {
	// Mode selects planar or volumetric geometry.
	Mode spatial.Mode
	// WorldType labels the simulated world (free, static, dynamic, mixed, demo).
	WorldType string
	// MatchRadius is the maximum distance at which a mention merges into an
	// existing entity of the same type.
	MatchRadius float64
	// TieEpsilon is the distance band inside which candidates tie.
	TieEpsilon float64
	// ConfidencePrior is the confidence of a newly created entity.
	ConfidencePrior float64
	// ConfidenceGain drives the default saturating corroboration.
	ConfidenceGain float64
	DecayWindow    time.Duration
	DecayHalfLife  time.Duration
	DecayFloor     float64
	// ReorderTolerance enables the reorder buffer when positive.
	ReorderTolerance time.Duration

	// Corroborate and Decay override the default confidence strategies.
	Corroborate registry.CorroborateFunc
	Decay       registry.DecayFunc
	// NewID mints node, edge and annotation ids. Defaults to uuid.NewString.
	NewID func() string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:            spatial.Mode2D,
		WorldType:       "static",
		MatchRadius:     1.0,
		TieEpsilon:      1e-3,
		ConfidencePrior: 0.5,
		ConfidenceGain:  0.2,
		DecayWindow:     30 * time.Second,
		DecayHalfLife:   5 * time.Minute,
		DecayFloor:      0,
	}
}

// ConfigFrom converts the memory section of the application configuration.
func ConfigFrom(mc config.MemoryConfig) *Config {
	mode := spatial.Mode2D
	if mc.Mode3D {
		mode = spatial.Mode3D
	}
	return &Config{
		Mode:             mode,
		WorldType:        mc.WorldType,
		MatchRadius:      mc.MatchRadius,
		TieEpsilon:       mc.TieEpsilon,
		ConfidencePrior:  mc.ConfidencePrior,
		ConfidenceGain:   mc.ConfidenceGain,
		DecayWindow:      mc.DecayWindow,
		DecayHalfLife:    mc.DecayHalfLife,
		DecayFloor:       mc.DecayFloor,
		ReorderTolerance: mc.ReorderTolerance,
	}
}

func (c *Config) policy() registry.Policy {
	p := registry.Policy{
		Mode:            c.Mode,
		MatchRadius:     c.MatchRadius,
		TieEpsilon:      c.TieEpsilon,
		ConfidencePrior: c.ConfidencePrior,
		DecayWindow:     c.DecayWindow,
		Corroborate:     c.Corroborate,
		Decay:           c.Decay,
		NewID:           c.NewID,
	}
	if p.Corroborate == nil && c.ConfidenceGain > 0 {
		p.Corroborate = registry.SaturatingGain(c.ConfidenceGain)
	}
	if p.Decay == nil && c.DecayHalfLife > 0 {
		p.Decay = registry.ExponentialDecay(c.DecayHalfLife, c.DecayFloor)
	}
	return p
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records ingestion and maintenance metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// WithClock replaces time.Now, which is used for decay loops, snapshots and
// annotations.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient creates a new memory client on top of store. A nil store keeps the
// graph in process memory only.
func NewClient(store driver.GraphStore, config *Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if config.MatchRadius < 0 || config.TieEpsilon < 0 || config.ReorderTolerance < 0 {
		return nil, fmt.Errorf("invalid memory config: negative radius, tie band or tolerance")
	}
	if store == nil {
		store = driver.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		store:     store,
		config:    config,
		logger:    logger,
		clock:     time.Now,
		log:       trajectory.New(),
		registry:  registry.New(config.policy()),
		relations: relations.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if config.ReorderTolerance > 0 {
		c.reorder = newReorderBuffer(config.ReorderTolerance)
	}
	return c, nil
}

// Store returns the underlying graph store.
func (c *Client) Store() driver.GraphStore {
	return c.store
}

// Config returns the client configuration.
func (c *Client) Config() *Config {
	return c.config
}

// Close closes the graph store. Observations still held in the reorder buffer
// are discarded; call Flush first to keep them.
func (c *Client) Close(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.reorder != nil && c.reorder.Len() > 0 {
		c.logger.Warn("Closing with buffered observations", "count", c.reorder.Len())
	}
	return c.store.Close(ctx)
}

func (c *Client) mode() spatial.Mode {
	return c.config.Mode
}

// persist runs one store transaction and maps failures onto
// types.ErrStoreTransactionFailure.
func (c *Client) persist(ctx context.Context, what string, fn func(tx driver.Tx) error) error {
	if err := c.store.ExecuteWrite(ctx, fn); err != nil {
		c.metrics.StoreFailure()
		c.logger.Error("Store transaction failed", "operation", what, "error", err)
		return fmt.Errorf("%w: %s: %w", types.ErrStoreTransactionFailure, what, err)
	}
	return nil
}
