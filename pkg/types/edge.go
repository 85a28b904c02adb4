package types

import (
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
)

// EdgeType names the relationship kinds stored in the graph.
type EdgeType string

const (
	// TemporalEdgeType links consecutive RobotNodes.
	TemporalEdgeType EdgeType = "NEXT"
	// SpatialEdgeType links a RobotNode to a WorldNode it observed.
	SpatialEdgeType EdgeType = "OBSERVED"
	// AnnotationEdgeType links a RobotNode to an Annotation.
	AnnotationEdgeType EdgeType = "ANNOTATED"
)

// TemporalEdge is the chronological link from one RobotNode to the next.
type TemporalEdge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// Clone returns a copy.
func (e *TemporalEdge) Clone() *TemporalEdge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// SpatialEdge records that a RobotNode observed a WorldNode.
type SpatialEdge struct {
	ID          string                   `json:"id"`
	SourceID    string                   `json:"source_id"`
	TargetID    string                   `json:"target_id"`
	Time        time.Time                `json:"time"`
	RelativePos spatial.RelativePosition `json:"relative_pos"`
	Confidence  float64                  `json:"confidence"`
	// Estimate is the absolute position implied by RelativePos at creation.
	Estimate spatial.Position `json:"estimate"`
	// MatchDistance is how far Estimate was from the target's position just
	// before this observation merged into it. Zero when the edge created the
	// target.
	MatchDistance float64 `json:"match_distance"`
	Description   string  `json:"description,omitempty"`
}

// Validate checks if the SpatialEdge has all required fields set.
func (e *SpatialEdge) Validate() error {
	if e.ID == "" || e.SourceID == "" || e.TargetID == "" {
		return ErrEmptyID
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return newValidationError("edge confidence outside [0,1]")
	}
	if e.MatchDistance < 0 {
		return newValidationError("negative match distance")
	}
	return nil
}

// Clone returns a copy.
func (e *SpatialEdge) Clone() *SpatialEdge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
