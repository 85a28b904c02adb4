package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/robomem/pkg/alert"
	"github.com/soundprediction/robomem/pkg/config"
)

// BreakerStore wraps a GraphStore with circuit breaking logic
type BreakerStore struct {
	GraphStore
	cb *gobreaker.CircuitBreaker
}

// NewBreakerStore creates a new circuit breaker store. Transactions rejected by
// the store function itself count as failures like any backend error.
func NewBreakerStore(store GraphStore, cfg config.CircuitBreakerConfig, alerter alert.Alerter, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	if alerter == nil {
		alerter = &alert.NoOpAlerter{}
	}
	ratio := cfg.ReadyToTripRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	name := fmt.Sprintf("graph-store-%s", store.Provider())
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= ratio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				msg := fmt.Sprintf("Circuit Breaker '%s' changed status from %s to %s. Too many store failures detected.", name, from, to)
				if err := alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg); err != nil {
					logger.Error("Failed to send breaker alert", "error", err)
				}
			}
		},
	}

	return &BreakerStore{
		GraphStore: store,
		cb:         gobreaker.NewCircuitBreaker(st),
	}
}

// State reports the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

// ExecuteWrite implements GraphStore
func (b *BreakerStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.GraphStore.ExecuteWrite(ctx, fn)
	})
	return err
}

// Query implements GraphStore
func (b *BreakerStore) Query(ctx context.Context, pattern Pattern) (*Result, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.GraphStore.Query(ctx, pattern)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Result), nil
}
