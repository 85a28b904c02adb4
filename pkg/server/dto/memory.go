package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Limits applied to request bodies to prevent abuse
const (
	MaxMentions         = 256
	MaxLidarBeams       = 4096
	MaxDescriptionChars = 64 * 1024
	MaxNoteChars        = 4096
)

// Validation errors
var (
	ErrTooManyMentions    = errors.New("mentions count exceeds maximum (256)")
	ErrTooManyLidarBeams  = errors.New("lidar_distances count exceeds maximum (4096)")
	ErrDescriptionTooLong = errors.New("description exceeds maximum length (64KB)")
	ErrEmptyNote          = errors.New("note cannot be empty")
)

// Position is a point in the world frame.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Mention is one perceived entity relative to the robot.
type Mention struct {
	Type        string  `json:"type" binding:"required"`
	Distance    float64 `json:"distance" binding:"gte=0"`
	Bearing     float64 `json:"bearing"`
	Elevation   float64 `json:"elevation"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence,omitempty" binding:"gte=0,lte=1"`
}

// ObservationRequest is the body of POST /api/v1/observations.
type ObservationRequest struct {
	Time              *time.Time `json:"time" binding:"required"`
	Pose              Position   `json:"pose"`
	Orientation       float64    `json:"orientation"`
	VisualDescription string     `json:"visual_description,omitempty"`
	LidarDistances    []float64  `json:"lidar_distances,omitempty"`
	LidarDescription  string     `json:"lidar_description,omitempty"`
	Mentions          []Mention  `json:"mentions,omitempty" binding:"dive"`
}

// Validate checks request limits. Geometry is validated by the memory.
func (r *ObservationRequest) Validate() error {
	if len(r.Mentions) > MaxMentions {
		return ErrTooManyMentions
	}
	if len(r.LidarDistances) > MaxLidarBeams {
		return ErrTooManyLidarBeams
	}
	if len(r.VisualDescription) > MaxDescriptionChars || len(r.LidarDescription) > MaxDescriptionChars {
		return ErrDescriptionTooLong
	}
	for i, m := range r.Mentions {
		if len(m.Description) > MaxDescriptionChars {
			return fmt.Errorf("mention %d: %w", i, ErrDescriptionTooLong)
		}
	}
	return nil
}

// Observation converts the request for ingestion.
func (r *ObservationRequest) Observation() types.Observation {
	obs := types.Observation{
		Pose:              spatial.Position{X: r.Pose.X, Y: r.Pose.Y, Z: r.Pose.Z},
		Orientation:       r.Orientation,
		VisualDescription: r.VisualDescription,
		LidarDistances:    r.LidarDistances,
		LidarDescription:  r.LidarDescription,
	}
	if r.Time != nil {
		obs.Time = *r.Time
	}
	for _, m := range r.Mentions {
		obs.Mentions = append(obs.Mentions, types.EntityMention{
			Type:        types.ParseEntityType(strings.ToLower(m.Type)),
			Relative:    spatial.RelativePosition{Distance: m.Distance, Bearing: m.Bearing, Elevation: m.Elevation},
			Description: m.Description,
			Confidence:  m.Confidence,
		})
	}
	return obs
}

// IngestResponse reports the outcome of an ingest request.
type IngestResponse struct {
	// Buffered is true when the observation waits in the reorder buffer.
	Buffered bool                `json:"buffered"`
	Result   *types.IngestResult `json:"result,omitempty"`
}

// FlushResponse lists the observations released by a flush.
type FlushResponse struct {
	Results []*types.IngestResult `json:"results"`
}

// AnnotationRequest is the body of POST /api/v1/trajectory/:id/annotations.
type AnnotationRequest struct {
	Kind string `json:"kind,omitempty" binding:"omitempty,max=64"`
	Note string `json:"note" binding:"required"`
}

// Validate performs validation on AnnotationRequest
func (r *AnnotationRequest) Validate() error {
	if strings.TrimSpace(r.Note) == "" {
		return ErrEmptyNote
	}
	if len(r.Note) > MaxNoteChars {
		return errors.New("note exceeds maximum length (4096)")
	}
	return nil
}

// EntityQuery holds the query parameters of GET /api/v1/entities.
type EntityQuery struct {
	Types         []string `form:"type"`
	MinConfidence float64  `form:"min_confidence" binding:"gte=0,lte=1"`
}

// Filter converts the query to an entity filter.
func (q *EntityQuery) Filter() *types.EntityFilter {
	f := &types.EntityFilter{MinConfidence: q.MinConfidence}
	for _, t := range q.Types {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Types = append(f.Types, types.ParseEntityType(strings.ToLower(part)))
			}
		}
	}
	return f
}

// NearQuery holds the query parameters of GET /api/v1/entities/near.
type NearQuery struct {
	X      float64  `form:"x"`
	Y      float64  `form:"y"`
	Z      float64  `form:"z"`
	Radius *float64 `form:"radius" binding:"required"`
}

// RangeQuery holds the query parameters of GET /api/v1/trajectory/range.
type RangeQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// Bounds parses the range as RFC 3339 times.
func (q *RangeQuery) Bounds() (time.Time, time.Time, error) {
	from, err := ParseTime(q.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from: %w", err)
	}
	to, err := ParseTime(q.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to: %w", err)
	}
	return from, to, nil
}

// ParseTime parses an RFC 3339 time with optional fractional seconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC 3339", s)
	}
	return t, nil
}

// DecayRequest is the optional body of POST /api/v1/maintenance/decay.
type DecayRequest struct {
	// At defaults to the server clock.
	At *time.Time `json:"at,omitempty"`
}

// DescribeResponse carries the textual belief summary.
type DescribeResponse struct {
	Description string `json:"description"`
}
