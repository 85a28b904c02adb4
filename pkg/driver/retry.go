package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/soundprediction/robomem/pkg/config"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// InitialDelay is the initial delay before the first retry (default: 100ms)
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 5 seconds)
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigFrom converts the file configuration.
func RetryConfigFrom(cfg config.RetryConfig) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        cfg.MaxRetries,
		InitialDelay:      cfg.InitialDelay,
		MaxDelay:          cfg.MaxDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
	}
}

// RetryObserver is told about every retry attempt.
type RetryObserver func(attempt int, err error)

// RetryStore wraps a GraphStore and retries failed write transactions with
// exponential backoff
type RetryStore struct {
	GraphStore
	config   *RetryConfig
	logger   *slog.Logger
	observer RetryObserver
}

// NewRetryStore creates a new retry store wrapper
func NewRetryStore(store GraphStore, config *RetryConfig, logger *slog.Logger) *RetryStore {
	if config == nil {
		config = DefaultRetryConfig()
	}
	// Ensure sensible defaults
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryStore{
		GraphStore: store,
		config:     config,
		logger:     logger,
	}
}

// OnRetry registers an observer for retry attempts.
func (r *RetryStore) OnRetry(observer RetryObserver) {
	r.observer = observer
}

// ExecuteWrite implements GraphStore with retry logic
func (r *RetryStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		// If this is a retry, wait with exponential backoff
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			if r.observer != nil {
				r.observer(attempt, lastErr)
			}
			r.logger.Warn("Retrying store transaction",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-time.After(delay):
				// Continue with retry
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}

		err := r.GraphStore.ExecuteWrite(ctx, fn)
		if err == nil {
			return nil
		}

		// Store the error
		lastErr = err

		// Check if the error is retryable
		if !isRetryableError(err) {
			// Non-retryable error, fail immediately
			return err
		}
	}

	// All retries exhausted
	return fmt.Errorf("failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// calculateDelay calculates the delay for a given retry attempt using exponential backoff
func (r *RetryStore) calculateDelay(attempt int) time.Duration {
	// Calculate exponential backoff: initialDelay * (multiplier ^ (attempt - 1))
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))

	// Cap at max delay
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	return time.Duration(delay)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return errors.Is(err, ErrTransient) ||
		errors.Is(err, badger.ErrConflict) ||
		neo4j.IsRetryable(err)
}
