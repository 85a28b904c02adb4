package driver

import (
	"fmt"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// RobotNodeRecord encodes a RobotNode.
func RobotNodeRecord(n *types.RobotNode, seq int64) NodeRecord {
	lidar := n.Observations.LidarDistances
	if lidar == nil {
		lidar = []float64{}
	}
	return NodeRecord{
		ID:   n.ID,
		Kind: RobotNodeKind,
		Seq:  seq,
		Properties: map[string]any{
			"time":               formatTime(n.Time),
			"x":                  n.Pose.X,
			"y":                  n.Pose.Y,
			"z":                  n.Pose.Z,
			"orientation":        n.Orientation,
			"visual_description": n.Observations.VisualDescription,
			"lidar_distances":    lidar,
			"lidar_description":  n.Observations.LidarDescription,
		},
	}
}

// WorldNodeRecord encodes a WorldNode.
func WorldNodeRecord(n *types.WorldNode, seq int64) NodeRecord {
	return NodeRecord{
		ID:   n.ID,
		Kind: WorldNodeKind,
		Seq:  seq,
		Properties: map[string]any{
			"type":              string(n.Type),
			"x":                 n.GlobalPosition.X,
			"y":                 n.GlobalPosition.Y,
			"z":                 n.GlobalPosition.Z,
			"first_seen":        formatTime(n.FirstSeen),
			"last_seen":         formatTime(n.LastSeen),
			"confidence":        n.Confidence,
			"description":       n.Description,
			"observation_count": int64(n.ObservationCount),
			"decayed_at":        formatTime(n.DecayedAt),
		},
	}
}

// AnnotationRecord encodes an Annotation.
func AnnotationRecord(a *types.Annotation, seq int64) NodeRecord {
	return NodeRecord{
		ID:   a.ID,
		Kind: AnnotationKind,
		Seq:  seq,
		Properties: map[string]any{
			"robot_node_id": a.RobotNodeID,
			"time":          formatTime(a.Time),
			"kind":          a.Kind,
			"note":          a.Note,
		},
	}
}

// TemporalEdgeID derives the stored id of a temporal edge.
func TemporalEdgeID(e *types.TemporalEdge) string {
	return e.SourceID + "->" + e.TargetID
}

// TemporalEdgeRecord encodes a TemporalEdge.
func TemporalEdgeRecord(e *types.TemporalEdge, seq int64) EdgeRecord {
	return EdgeRecord{
		ID:         TemporalEdgeID(e),
		Kind:       types.TemporalEdgeType,
		SourceID:   e.SourceID,
		TargetID:   e.TargetID,
		Seq:        seq,
		Properties: map[string]any{},
	}
}

// SpatialEdgeRecord encodes a SpatialEdge.
func SpatialEdgeRecord(e *types.SpatialEdge, seq int64) EdgeRecord {
	return EdgeRecord{
		ID:       e.ID,
		Kind:     types.SpatialEdgeType,
		SourceID: e.SourceID,
		TargetID: e.TargetID,
		Seq:      seq,
		Properties: map[string]any{
			"time":        formatTime(e.Time),
			"distance":    e.RelativePos.Distance,
			"bearing":     e.RelativePos.Bearing,
			"elevation":   e.RelativePos.Elevation,
			"confidence":  e.Confidence,
			"est_x":       e.Estimate.X,
			"est_y":       e.Estimate.Y,
			"est_z":       e.Estimate.Z,
			"match_dist":  e.MatchDistance,
			"description": e.Description,
		},
	}
}

// AnnotationEdgeRecord encodes the edge from an annotated robot node to its note.
func AnnotationEdgeRecord(a *types.Annotation, seq int64) EdgeRecord {
	return EdgeRecord{
		ID:         "annotates:" + a.ID,
		Kind:       types.AnnotationEdgeType,
		SourceID:   a.RobotNodeID,
		TargetID:   a.ID,
		Seq:        seq,
		Properties: map[string]any{},
	}
}

// propReader collects the first decode error so callers can read many fields
// and check once.
type propReader struct {
	props map[string]any
	err   error
}

func (r *propReader) str(field string) string {
	v, err := MustString(r.props, field)
	r.keep(err)
	return v
}

func (r *propReader) float(field string) float64 {
	v, err := MustFloat64(r.props, field)
	r.keep(err)
	return v
}

func (r *propReader) integer(field string) int64 {
	v, err := MustInt64(r.props, field)
	r.keep(err)
	return v
}

func (r *propReader) floats(field string) []float64 {
	v, err := MustFloat64Slice(r.props, field)
	r.keep(err)
	return v
}

func (r *propReader) timestamp(field string) time.Time {
	v, err := MustTime(r.props, field)
	r.keep(err)
	return v
}

func (r *propReader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func expectKind(got, want NodeKind) error {
	if got != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidKind, want, got)
	}
	return nil
}

// DecodeRobotNode decodes a RobotNode record.
func DecodeRobotNode(rec NodeRecord) (*types.RobotNode, error) {
	if err := expectKind(rec.Kind, RobotNodeKind); err != nil {
		return nil, err
	}
	r := &propReader{props: rec.Properties}
	n := &types.RobotNode{
		ID:          rec.ID,
		Time:        r.timestamp("time"),
		Pose:        spatial.Position{X: r.float("x"), Y: r.float("y"), Z: r.float("z")},
		Orientation: r.float("orientation"),
		Observations: types.SensorData{
			VisualDescription: r.str("visual_description"),
			LidarDistances:    r.floats("lidar_distances"),
			LidarDescription:  r.str("lidar_description"),
		},
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode robot node %s: %w", rec.ID, r.err)
	}
	return n, nil
}

// DecodeWorldNode decodes a WorldNode record.
func DecodeWorldNode(rec NodeRecord) (*types.WorldNode, error) {
	if err := expectKind(rec.Kind, WorldNodeKind); err != nil {
		return nil, err
	}
	r := &propReader{props: rec.Properties}
	n := &types.WorldNode{
		ID:               rec.ID,
		Type:             types.EntityType(r.str("type")),
		GlobalPosition:   spatial.Position{X: r.float("x"), Y: r.float("y"), Z: r.float("z")},
		FirstSeen:        r.timestamp("first_seen"),
		LastSeen:         r.timestamp("last_seen"),
		Confidence:       r.float("confidence"),
		Description:      r.str("description"),
		ObservationCount: int(r.integer("observation_count")),
		DecayedAt:        r.timestamp("decayed_at"),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode world node %s: %w", rec.ID, r.err)
	}
	return n, nil
}

// DecodeAnnotation decodes an Annotation record.
func DecodeAnnotation(rec NodeRecord) (*types.Annotation, error) {
	if err := expectKind(rec.Kind, AnnotationKind); err != nil {
		return nil, err
	}
	r := &propReader{props: rec.Properties}
	a := &types.Annotation{
		ID:          rec.ID,
		RobotNodeID: r.str("robot_node_id"),
		Time:        r.timestamp("time"),
		Kind:        r.str("kind"),
		Note:        r.str("note"),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode annotation %s: %w", rec.ID, r.err)
	}
	return a, nil
}

// DecodeTemporalEdge decodes a temporal edge record.
func DecodeTemporalEdge(rec EdgeRecord) (*types.TemporalEdge, error) {
	if rec.Kind != types.TemporalEdgeType {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidKind, types.TemporalEdgeType, rec.Kind)
	}
	return &types.TemporalEdge{SourceID: rec.SourceID, TargetID: rec.TargetID}, nil
}

// DecodeSpatialEdge decodes a spatial edge record.
func DecodeSpatialEdge(rec EdgeRecord) (*types.SpatialEdge, error) {
	if rec.Kind != types.SpatialEdgeType {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrInvalidKind, types.SpatialEdgeType, rec.Kind)
	}
	r := &propReader{props: rec.Properties}
	e := &types.SpatialEdge{
		ID:       rec.ID,
		SourceID: rec.SourceID,
		TargetID: rec.TargetID,
		Time:     r.timestamp("time"),
		RelativePos: spatial.RelativePosition{
			Distance:  r.float("distance"),
			Bearing:   r.float("bearing"),
			Elevation: r.float("elevation"),
		},
		Confidence:  r.float("confidence"),
		Estimate:      spatial.Position{X: r.float("est_x"), Y: r.float("est_y"), Z: r.float("est_z")},
		MatchDistance: r.float("match_dist"),
		Description:   r.str("description"),
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode spatial edge %s: %w", rec.ID, r.err)
	}
	return e, nil
}
