package perception

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/soundprediction/robomem/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDecodePercept(t *testing.T) {
	raw := "<think>the can is to the left</think>\nHere you go:\n" +
		`{"visual_description": "a red can near a wall", "objects": [` +
		`{"type": "Target", "distance": 2.5, "bearing_deg": 90, "description": "red can", "confidence": 0.8},` +
		`{"type": "wall", "distance": 1, "bearing": -0.5,}`

	p, err := DecodePercept(raw)
	require.NoError(t, err)
	assert.Equal(t, "a red can near a wall", p.VisualDescription)
	require.Len(t, p.Mentions, 2)

	can := p.Mentions[0]
	assert.Equal(t, types.TargetEntity, can.Type)
	assert.InDelta(t, math.Pi/2, can.Relative.Bearing, 1e-12)
	assert.Equal(t, 2.5, can.Relative.Distance)
	assert.Equal(t, 0.8, can.Confidence)

	wall := p.Mentions[1]
	assert.Equal(t, types.OtherEntity, wall.Type)
	assert.Equal(t, -0.5, wall.Relative.Bearing)
}

func TestDecodePerceptErrors(t *testing.T) {
	_, err := DecodePercept("   ")
	assert.Error(t, err)

	_, err = DecodePercept(`{"objects": [{"type": "target", "distance": 1}]}`)
	assert.ErrorContains(t, err, "no bearing")
}

type recordingIngester struct {
	observations []types.Observation
	fail         map[int]error
}

func (r *recordingIngester) Ingest(ctx context.Context, obs types.Observation) (*types.IngestResult, error) {
	n := len(r.observations)
	r.observations = append(r.observations, obs)
	if err := r.fail[n]; err != nil {
		return nil, err
	}
	return &types.IngestResult{RobotNode: &types.RobotNode{ID: fmt.Sprint(n), Time: obs.Time}}, nil
}

func ticks(n int) []Tick {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Tick, n)
	for i := range out {
		out[i] = Tick{Time: t0.Add(time.Duration(i) * time.Second), Lidar: []float64{float64(i)}}
	}
	return out
}

func TestRunDrivesTicksUntilEOF(t *testing.T) {
	pipeline := PipelineFunc(func(ctx context.Context, tick Tick) (Percept, error) {
		switch tick.Lidar[0] {
		case 2:
			return Percept{}, errors.New("model timeout")
		case 3:
			panic("nil image decoder")
		}
		return Percept{VisualDescription: fmt.Sprintf("tick %v", tick.Lidar[0])}, nil
	})
	ing := &recordingIngester{fail: map[int]error{
		1: types.NewSpatialInputError("pose", "must be finite"),
	}}

	var results int
	stats, err := Run(context.Background(), NewSliceBridge(ticks(5)), pipeline, ing, nil, func(*types.IngestResult) error {
		results++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, RunStats{Ticks: 5, Ingested: 2, Skipped: 3}, stats)
	assert.Equal(t, 2, results)
	require.Len(t, ing.observations, 3)
	assert.Equal(t, "tick 0", ing.observations[0].VisualDescription)
	assert.Equal(t, []float64{4}, ing.observations[2].LidarDistances)
}

func TestRunStopsOnStoreFailure(t *testing.T) {
	ing := &recordingIngester{fail: map[int]error{
		0: fmt.Errorf("%w: connection refused", types.ErrStoreTransactionFailure),
	}}
	pipeline := PipelineFunc(func(context.Context, Tick) (Percept, error) { return Percept{}, nil })

	stats, err := Run(context.Background(), NewSliceBridge(ticks(3)), pipeline, ing, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrStoreTransactionFailure)
	assert.Equal(t, 1, stats.Ticks)
}

// blockingBridge waits for ctx like a live simulator connection.
type blockingBridge struct{}

func (blockingBridge) Next(ctx context.Context) (Tick, error) {
	<-ctx.Done()
	return Tick{}, ctx.Err()
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	pipeline := PipelineFunc(func(context.Context, Tick) (Percept, error) { return Percept{}, nil })

	go func() {
		_, err := Run(ctx, blockingBridge{}, pipeline, &recordingIngester{}, nil, nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
