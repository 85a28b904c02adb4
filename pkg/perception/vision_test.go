package perception

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/robomem/pkg/nlp"
	"github.com/soundprediction/robomem/pkg/types"
)

type scriptedClient struct {
	reply string
	err   error
	seen  [][]nlp.Message
}

func (c *scriptedClient) Chat(ctx context.Context, messages []nlp.Message, jsonOutput bool) (*nlp.Response, error) {
	c.seen = append(c.seen, messages)
	if c.err != nil {
		return nil, c.err
	}
	return &nlp.Response{Content: c.reply, Model: "vlm", TokensUsed: &nlp.TokenUsage{TotalTokens: 10}}, nil
}

func (c *scriptedClient) Close() error { return nil }

func TestVisionPipeline(t *testing.T) {
	client := &scriptedClient{reply: "```json\n" + `{"visual_description": "a red can", "objects": [
		{"type": "Target", "distance": 2, "bearing_deg": 90, "description": "red can", "confidence": 0.8}]}` + "\n```"}
	p := NewVisionPipeline(client, nil)
	p.Task = "find the red can"

	tick := Tick{
		Time:        time.Unix(10, 0),
		Orientation: math.Pi / 2,
		Image:       []byte("jpeg"),
		Lidar:       []float64{1, 2.5},
	}
	percept, err := p.Perceive(context.Background(), tick)
	require.NoError(t, err)

	assert.Equal(t, "a red can", percept.VisualDescription)
	require.Len(t, percept.Mentions, 1)
	assert.Equal(t, types.TargetEntity, percept.Mentions[0].Type)
	assert.InDelta(t, math.Pi/2, percept.Mentions[0].Relative.Bearing, 1e-9)

	require.Len(t, client.seen, 1)
	msgs := client.seen[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, nlp.RoleSystem, msgs[0].Role)
	assert.Equal(t, [][]byte{[]byte("jpeg")}, msgs[1].Images)
	assert.Contains(t, msgs[1].Content, "Task: find the red can")
	assert.Contains(t, msgs[1].Content, "heading: 90 degrees")
	assert.Contains(t, msgs[1].Content, "1.00 2.50")
}

func TestVisionPipelineErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewVisionPipeline(&scriptedClient{}, nil).Perceive(ctx, Tick{})
	assert.ErrorIs(t, err, ErrNoImage)

	refused := &scriptedClient{err: &nlp.RefusalError{Reason: "no"}}
	_, err = NewVisionPipeline(refused, nil).Perceive(ctx, Tick{Image: []byte("x")})
	assert.ErrorIs(t, err, nlp.ErrRefused)

	garbled := &scriptedClient{reply: "I see a can."}
	_, err = NewVisionPipeline(garbled, nil).Perceive(ctx, Tick{Image: []byte("x")})
	assert.Error(t, err)
}

func TestFallbackPipeline(t *testing.T) {
	vision := NewVisionPipeline(&scriptedClient{reply: `{"visual_description": "live"}`}, nil)
	recorded := PipelineFunc(func(ctx context.Context, tick Tick) (Percept, error) {
		return Percept{VisualDescription: "recorded"}, nil
	})
	p := FallbackPipeline(vision, recorded)

	got, err := p.Perceive(context.Background(), Tick{Image: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "live", got.VisualDescription)

	got, err = p.Perceive(context.Background(), Tick{})
	require.NoError(t, err)
	assert.Equal(t, "recorded", got.VisualDescription)
}

func TestFormatRanges(t *testing.T) {
	ranges := make([]float64, 360)
	for i := range ranges {
		ranges[i] = float64(i)
	}
	fields := strings.Fields(formatRanges(ranges))
	require.Len(t, fields, 36)
	assert.Equal(t, "0.00", fields[0])
	assert.Equal(t, "10.00", fields[1])
}
