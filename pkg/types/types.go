package types

import (
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
)

// Validation errors
var (
	ErrEmptyID          = newValidationError("id cannot be empty")
	ErrZeroTime         = newValidationError("time cannot be zero")
	ErrInvalidLimit     = newValidationError("limit must be positive")
	ErrInvalidRadius    = newValidationError("radius must be a finite non-negative number")
	ErrInvalidTimeRange = newValidationError("range start must not be after range end")
)

// EntityType classifies a world entity.
type EntityType string

const (
	// TargetEntity is something the robot is looking for.
	TargetEntity EntityType = "target"
	// ObstacleEntity is something the robot must avoid.
	ObstacleEntity EntityType = "obstacle"
	// OtherEntity is any other perceived object.
	OtherEntity EntityType = "other"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case TargetEntity, ObstacleEntity, OtherEntity:
		return true
	}
	return false
}

// ParseEntityType maps free text from perception onto an EntityType. Unknown
// values become OtherEntity.
func ParseEntityType(s string) EntityType {
	switch EntityType(s) {
	case TargetEntity, ObstacleEntity:
		return EntityType(s)
	}
	return OtherEntity
}

// EntityMention is one perceived world entity inside an observation.
type EntityMention struct {
	Type        EntityType               `json:"type" yaml:"type"`
	Relative    spatial.RelativePosition `json:"relative" yaml:"relative"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	// Confidence weights the mention when merged; zero means 1.0.
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Weight returns the effective merge weight of the mention.
func (m EntityMention) Weight() float64 {
	if m.Confidence <= 0 {
		return 1
	}
	if m.Confidence > 1 {
		return 1
	}
	return m.Confidence
}

// Observation is one tick of robot perception as delivered to the memory.
type Observation struct {
	Time              time.Time        `json:"time" yaml:"time"`
	Pose              spatial.Position `json:"pose" yaml:"pose"`
	Orientation       float64          `json:"orientation" yaml:"orientation"`
	VisualDescription string           `json:"visual_description,omitempty" yaml:"visual_description,omitempty"`
	LidarDistances    []float64        `json:"lidar_distances,omitempty" yaml:"lidar_distances,omitempty"`
	LidarDescription  string           `json:"lidar_description,omitempty" yaml:"lidar_description,omitempty"`
	Mentions          []EntityMention  `json:"mentions,omitempty" yaml:"mentions,omitempty"`
}

// Ambiguity records a resolution where more than one candidate survived the
// distance band and a later tie-break rule decided.
type Ambiguity struct {
	MentionIndex int      `json:"mention_index"`
	CandidateIDs []string `json:"candidate_ids"`
	ChosenID     string   `json:"chosen_id"`
	// Rule is the tie-break that decided: "confidence", "last_seen" or "id".
	Rule string `json:"rule"`
}

// Unresolved reports whether every ordered tie-break failed and the choice fell
// back to identifier order.
func (a Ambiguity) Unresolved() bool {
	return a.Rule == "id"
}

// IngestResult describes everything a single observation changed.
type IngestResult struct {
	RobotNode    *RobotNode     `json:"robot_node"`
	TemporalEdge *TemporalEdge  `json:"temporal_edge,omitempty"`
	Created      []*WorldNode   `json:"created"`
	Updated      []*WorldNode   `json:"updated"`
	SpatialEdges []*SpatialEdge `json:"spatial_edges"`
	Ambiguities  []Ambiguity    `json:"ambiguities,omitempty"`
}

// DecayResult describes one decay maintenance pass.
type DecayResult struct {
	At      time.Time    `json:"at"`
	Decayed []*WorldNode `json:"decayed"`
}

// EntityFilter narrows entity listings.
type EntityFilter struct {
	Types         []EntityType `json:"types,omitempty"`
	MinConfidence float64      `json:"min_confidence,omitempty"`
}

// Match reports whether n passes the filter.
func (f *EntityFilter) Match(n *WorldNode) bool {
	if f == nil {
		return true
	}
	if n.Confidence < f.MinConfidence {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == n.Type {
			return true
		}
	}
	return false
}

// NearbyEntity is a proximity query hit.
type NearbyEntity struct {
	Entity   *WorldNode `json:"entity"`
	Distance float64    `json:"distance"`
}

// Snapshot is a consistent copy of the whole memory graph.
type Snapshot struct {
	RobotNodes    []*RobotNode    `json:"robot_nodes"`
	TemporalEdges []*TemporalEdge `json:"temporal_edges"`
	WorldNodes    []*WorldNode    `json:"world_nodes"`
	SpatialEdges  []*SpatialEdge  `json:"spatial_edges"`
	Annotations   []*Annotation   `json:"annotations,omitempty"`
	TakenAt       time.Time       `json:"taken_at"`
}

// GraphStats holds counts about the memory graph.
type GraphStats struct {
	RobotNodes    int                `json:"robot_nodes"`
	WorldNodes    int                `json:"world_nodes"`
	SpatialEdges  int                `json:"spatial_edges"`
	TemporalEdges int                `json:"temporal_edges"`
	EntitiesBy    map[EntityType]int `json:"entities_by_type"`
}
