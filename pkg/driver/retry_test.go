package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/robomem/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first n writes with err.
type flakyStore struct {
	*MemoryStore
	failures atomic.Int32
	err      error
	calls    atomic.Int32
}

func newFlakyStore(n int32, err error) *flakyStore {
	s := &flakyStore{MemoryStore: NewMemoryStore(), err: err}
	s.failures.Store(n)
	return s
}

func (f *flakyStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return f.err
	}
	return f.MemoryStore.ExecuteWrite(ctx, fn)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry(max int) *RetryConfig {
	return &RetryConfig{MaxRetries: max, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func createOne(tx Tx) error {
	return tx.CreateNode(NodeRecord{ID: "r-0", Kind: RobotNodeKind, Seq: 1})
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	base := newFlakyStore(2, ErrTransient)
	store := NewRetryStore(base, fastRetry(3), quietLogger())

	var attempts []int
	store.OnRetry(func(attempt int, err error) {
		attempts = append(attempts, attempt)
		assert.ErrorIs(t, err, ErrTransient)
	})

	require.NoError(t, store.ExecuteWrite(context.Background(), createOne))
	assert.Equal(t, int32(3), base.calls.Load())
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	base := newFlakyStore(100, ErrTransient)
	store := NewRetryStore(base, fastRetry(2), quietLogger())

	err := store.ExecuteWrite(context.Background(), createOne)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(3), base.calls.Load())

	res, err := base.Query(context.Background(), Pattern{NodeKind: RobotNodeKind})
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	permanent := errors.New("constraint violated")
	base := newFlakyStore(100, permanent)
	store := NewRetryStore(base, fastRetry(5), quietLogger())

	err := store.ExecuteWrite(context.Background(), createOne)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, int32(1), base.calls.Load())
}

func TestRetryStopsOnCancel(t *testing.T) {
	base := newFlakyStore(100, ErrTransient)
	store := NewRetryStore(base, &RetryConfig{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := store.ExecuteWrite(ctx, createOne)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	store := NewRetryStore(NewMemoryStore(), &RetryConfig{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiplier: 2}, nil)

	assert.Equal(t, 100*time.Millisecond, store.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, store.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, store.calculateDelay(3))
	assert.Equal(t, time.Second, store.calculateDelay(6))
}

type recordingAlerter struct {
	subjects []string
}

func (r *recordingAlerter) Alert(subject, message string) error {
	r.subjects = append(r.subjects, subject)
	return nil
}

func TestBreakerOpensAndAlerts(t *testing.T) {
	base := newFlakyStore(100, errors.New("connection refused"))
	alerter := &recordingAlerter{}
	store := NewBreakerStore(base, config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         60,
		Timeout:          60,
		ReadyToTripRatio: 0.5,
	}, alerter, quietLogger())

	for i := 0; i < 3; i++ {
		assert.Error(t, store.ExecuteWrite(context.Background(), createOne))
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())
	require.Len(t, alerter.subjects, 1)
	assert.Contains(t, alerter.subjects[0], "graph-store-memory")

	err := store.ExecuteWrite(context.Background(), createOne)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), base.calls.Load(), "open breaker does not reach the store")
	assert.False(t, isRetryableError(err))
}
