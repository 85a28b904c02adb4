package types

import (
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
)

// SensorData is the normalised perception attached to one RobotNode.
type SensorData struct {
	VisualDescription string    `json:"visual_description"`
	LidarDistances    []float64 `json:"lidar_distances"`
	LidarDescription  string    `json:"lidar_description"`
}

// NewSensorData builds a SensorData that does not alias the caller's slice.
func NewSensorData(visual string, lidar []float64, lidarDescription string) SensorData {
	return SensorData{
		VisualDescription: visual,
		LidarDistances:    append([]float64(nil), lidar...),
		LidarDescription:  lidarDescription,
	}
}

// Clone returns a deep copy.
func (s SensorData) Clone() SensorData {
	return NewSensorData(s.VisualDescription, s.LidarDistances, s.LidarDescription)
}

// RobotNode is one timestamped robot state in the trajectory log. It is never
// mutated after creation.
type RobotNode struct {
	ID           string           `json:"id"`
	Time         time.Time        `json:"time"`
	Pose         spatial.Position `json:"pose"`
	Orientation  float64          `json:"orientation"`
	Observations SensorData       `json:"observations"`
}

// Validate checks if the RobotNode has all required fields set.
func (n *RobotNode) Validate() error {
	if n.ID == "" {
		return ErrEmptyID
	}
	if n.Time.IsZero() {
		return ErrZeroTime
	}
	return nil
}

// Clone returns a deep copy.
func (n *RobotNode) Clone() *RobotNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Observations = n.Observations.Clone()
	return &c
}

// WorldNode is the current belief about one world entity.
type WorldNode struct {
	ID               string           `json:"id"`
	Type             EntityType       `json:"type"`
	GlobalPosition   spatial.Position `json:"global_position"`
	FirstSeen        time.Time        `json:"first_seen"`
	LastSeen         time.Time        `json:"last_seen"`
	Confidence       float64          `json:"confidence"`
	Description      string           `json:"description,omitempty"`
	ObservationCount int              `json:"observation_count"`
	// DecayedAt is when confidence decay was last applied; zero if never.
	DecayedAt time.Time `json:"decayed_at,omitempty"`
}

// Validate checks the node invariants.
func (n *WorldNode) Validate() error {
	if n.ID == "" {
		return ErrEmptyID
	}
	if !n.Type.Valid() {
		return newValidationError("unknown entity type " + string(n.Type))
	}
	if n.LastSeen.Before(n.FirstSeen) {
		return newValidationError("last_seen precedes first_seen")
	}
	if n.Confidence < 0 || n.Confidence > 1 {
		return newValidationError("confidence outside [0,1]")
	}
	return nil
}

// Clone returns a copy.
func (n *WorldNode) Clone() *WorldNode {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// DecayReference is the instant from which pending decay is measured.
func (n *WorldNode) DecayReference() time.Time {
	if n.DecayedAt.After(n.LastSeen) {
		return n.DecayedAt
	}
	return n.LastSeen
}

// Annotation is an append-only correction note attached to a RobotNode.
type Annotation struct {
	ID          string    `json:"id"`
	RobotNodeID string    `json:"robot_node_id"`
	Time        time.Time `json:"time"`
	Kind        string    `json:"kind"`
	Note        string    `json:"note"`
}

// Clone returns a copy.
func (a *Annotation) Clone() *Annotation {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
