// Package perception is the boundary between the robot simulator, the
// perception models that describe what it sees, and the memory graph.
//
// A Bridge yields raw ticks, a Pipeline turns a tick into a Percept and Run
// feeds the resulting observations to an Ingester one tick at a time.
package perception

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Tick is one raw simulator step.
type Tick struct {
	Time        time.Time
	Pose        spatial.Position
	Orientation float64
	// Image is the encoded camera frame, if any.
	Image []byte
	Lidar []float64
}

// Bridge delivers simulator ticks. Next returns io.EOF when the run is over.
type Bridge interface {
	Next(ctx context.Context) (Tick, error)
}

// Percept is the interpretation of one tick.
type Percept struct {
	VisualDescription string
	LidarDescription  string
	Mentions          []types.EntityMention
}

// Pipeline interprets ticks.
type Pipeline interface {
	Perceive(ctx context.Context, tick Tick) (Percept, error)
}

// PipelineFunc adapts a function to Pipeline.
type PipelineFunc func(ctx context.Context, tick Tick) (Percept, error)

// Perceive calls f.
func (f PipelineFunc) Perceive(ctx context.Context, tick Tick) (Percept, error) {
	return f(ctx, tick)
}

// Ingester accepts observations.
type Ingester interface {
	Ingest(ctx context.Context, obs types.Observation) (*types.IngestResult, error)
}

// Observation combines a tick with its percept.
func (t Tick) Observation(p Percept) types.Observation {
	return types.Observation{
		Time:              t.Time,
		Pose:              t.Pose,
		Orientation:       t.Orientation,
		VisualDescription: p.VisualDescription,
		LidarDistances:    t.Lidar,
		LidarDescription:  p.LidarDescription,
		Mentions:          p.Mentions,
	}
}

// RunStats counts what a Run did.
type RunStats struct {
	Ticks    int
	Ingested int
	Skipped  int
}

// Run drives ticks from bridge through pipeline into ingester until the bridge
// reports io.EOF or ctx is cancelled. A tick whose pipeline fails or panics,
// or whose observation is rejected as invalid or out of order, is skipped.
// Any other error stops the run. onResult, if set, is called for every
// committed observation.
func Run(ctx context.Context, bridge Bridge, pipeline Pipeline, ingester Ingester, logger *slog.Logger, onResult func(*types.IngestResult) error) (RunStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats RunStats

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		tick, err := bridge.Next(ctx)
		if errors.Is(err, io.EOF) {
			logger.Info("Simulator run finished", "ticks", stats.Ticks, "ingested", stats.Ingested, "skipped", stats.Skipped)
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read tick %d: %w", stats.Ticks+1, err)
		}
		stats.Ticks++

		percept, err := perceiveSafely(ctx, pipeline, tick)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Skipped++
			var pe *PanicError
			if errors.As(err, &pe) {
				logger.Error("Perception panicked, skipping tick", "time", tick.Time, "panic", pe.Value, "stack", pe.StackTrace)
			} else {
				logger.Warn("Perception failed, skipping tick", "time", tick.Time, "error", err)
			}
			continue
		}

		res, err := ingester.Ingest(ctx, tick.Observation(percept))
		switch {
		case err == nil:
		case errors.Is(err, types.ErrInvalidSpatialInput),
			errors.Is(err, types.ErrOutOfOrderObservation),
			errors.Is(err, &types.ValidationError{}):
			stats.Skipped++
			logger.Warn("Observation rejected, skipping tick", "time", tick.Time, "error", err)
			continue
		default:
			return stats, fmt.Errorf("failed to ingest tick %d: %w", stats.Ticks, err)
		}

		// buffered observations have no result yet
		if res == nil {
			continue
		}
		stats.Ingested++
		if onResult != nil {
			if err := onResult(res); err != nil {
				return stats, err
			}
		}
	}
}

// SliceBridge replays a fixed list of ticks.
type SliceBridge struct {
	ticks []Tick
	next  int
}

// NewSliceBridge creates a bridge over ticks.
func NewSliceBridge(ticks []Tick) *SliceBridge {
	return &SliceBridge{ticks: ticks}
}

// Next returns the next tick or io.EOF.
func (b *SliceBridge) Next(ctx context.Context) (Tick, error) {
	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}
	if b.next >= len(b.ticks) {
		return Tick{}, io.EOF
	}
	t := b.ticks[b.next]
	b.next++
	return t, nil
}

// perceptJSON is the object perception models are asked to produce.
type perceptJSON struct {
	VisualDescription string       `json:"visual_description"`
	LidarDescription  string       `json:"lidar_description"`
	Objects           []objectJSON `json:"objects"`
}

type objectJSON struct {
	Type        string   `json:"type"`
	Distance    float64  `json:"distance"`
	Bearing     *float64 `json:"bearing"`
	BearingDeg  *float64 `json:"bearing_deg"`
	Elevation   float64  `json:"elevation"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
}

var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

// DecodePercept parses a percept produced by a language or vision model.
// Reasoning blocks, code fences and trailing text are removed and malformed
// JSON is repaired before decoding. Bearings may be given in radians
// ("bearing") or degrees ("bearing_deg").
func DecodePercept(raw string) (Percept, error) {
	s := thinkTags.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 {
		s = s[:j+1]
	}
	if s == "" {
		return Percept{}, fmt.Errorf("empty percept")
	}

	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return Percept{}, fmt.Errorf("failed to repair percept JSON: %w", err)
	}

	var p perceptJSON
	if err := json.Unmarshal([]byte(repaired), &p); err != nil {
		return Percept{}, fmt.Errorf("failed to decode percept: %w", err)
	}

	out := Percept{
		VisualDescription: p.VisualDescription,
		LidarDescription:  p.LidarDescription,
		Mentions:          make([]types.EntityMention, 0, len(p.Objects)),
	}
	for i, o := range p.Objects {
		var bearing float64
		switch {
		case o.Bearing != nil:
			bearing = *o.Bearing
		case o.BearingDeg != nil:
			bearing = *o.BearingDeg * math.Pi / 180
		default:
			return Percept{}, fmt.Errorf("object %d has no bearing", i)
		}
		out.Mentions = append(out.Mentions, types.EntityMention{
			Type: types.ParseEntityType(strings.ToLower(strings.TrimSpace(o.Type))),
			Relative: spatial.RelativePosition{
				Distance:  o.Distance,
				Bearing:   spatial.NormalizeBearing(bearing),
				Elevation: o.Elevation,
			},
			Description: o.Description,
			Confidence:  o.Confidence,
		})
	}
	return out, nil
}
