package perception

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/soundprediction/robomem/pkg/nlp"
)

// ErrNoImage is returned by VisionPipeline for a tick without a camera frame.
var ErrNoImage = errors.New("tick has no camera frame")

const visionSystemPrompt = `You are the perception module of a mobile robot.
You receive one camera frame and the robot's lidar ranges and report what the robot sees.

Respond with a single JSON object and nothing else:
{
  "visual_description": "<one or two sentences about the scene>",
  "lidar_description": "<one sentence about free space and close obstacles>",
  "objects": [
    {"type": "target|obstacle|other", "distance": <metres from the robot>,
     "bearing_deg": <degrees, positive to the left, 0 straight ahead>,
     "description": "<short noun phrase>", "confidence": <0 to 1>}
  ]
}

Targets are the objects the robot was sent to find. Walls, furniture and anything blocking the way are obstacles.
Only list objects you can see in the frame. Estimate distances from apparent size and from the lidar ranges.`

// VisionPipeline describes camera frames with a vision-language model and
// decodes the reply with DecodePercept.
type VisionPipeline struct {
	client nlp.Client
	logger *slog.Logger
	// Task is an optional sentence about what the robot is looking for.
	Task string
}

// NewVisionPipeline creates a pipeline backed by client.
func NewVisionPipeline(client nlp.Client, logger *slog.Logger) *VisionPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &VisionPipeline{client: client, logger: logger}
}

// Perceive asks the model about the tick's frame.
func (p *VisionPipeline) Perceive(ctx context.Context, tick Tick) (Percept, error) {
	if len(tick.Image) == 0 {
		return Percept{}, ErrNoImage
	}

	resp, err := p.client.Chat(ctx, p.messages(tick), true)
	if err != nil {
		return Percept{}, fmt.Errorf("failed to describe frame: %w", err)
	}
	if resp.TokensUsed != nil {
		p.logger.Debug("Frame described",
			"time", tick.Time,
			"model", resp.Model,
			"tokens", resp.TokensUsed.TotalTokens)
	}

	percept, err := DecodePercept(resp.Content)
	if err != nil {
		return Percept{}, err
	}
	return percept, nil
}

func (p *VisionPipeline) messages(tick Tick) []nlp.Message {
	var user strings.Builder
	if p.Task != "" {
		fmt.Fprintf(&user, "Task: %s\n", p.Task)
	}
	fmt.Fprintf(&user, "Robot heading: %.0f degrees.\n", tick.Orientation*180/math.Pi)
	if len(tick.Lidar) > 0 {
		fmt.Fprintf(&user, "Lidar ranges in metres, sweeping right to left: %s\n", formatRanges(tick.Lidar))
	}
	user.WriteString("Describe the frame.")

	return []nlp.Message{
		nlp.NewSystemMessage(visionSystemPrompt),
		nlp.NewImageMessage(user.String(), tick.Image),
	}
}

// formatRanges prints at most 36 evenly spaced beams.
func formatRanges(ranges []float64) string {
	step := 1
	if len(ranges) > 36 {
		step = (len(ranges) + 35) / 36
	}
	parts := make([]string, 0, len(ranges)/step+1)
	for i := 0; i < len(ranges); i += step {
		parts = append(parts, fmt.Sprintf("%.2f", ranges[i]))
	}
	return strings.Join(parts, " ")
}

// FallbackPipeline tries primary first and uses fallback when primary has no
// frame to work with.
func FallbackPipeline(primary, fallback Pipeline) Pipeline {
	return PipelineFunc(func(ctx context.Context, tick Tick) (Percept, error) {
		percept, err := primary.Perceive(ctx, tick)
		if errors.Is(err, ErrNoImage) {
			return fallback.Perceive(ctx, tick)
		}
		return percept, err
	})
}
