// Package export writes the memory graph to Parquet files for offline
// analysis of a run.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/soundprediction/robomem/pkg/types"
)

// Table directories under the base directory.
const (
	RobotNodesDir    = "robot_nodes"
	WorldNodesDir    = "world_nodes"
	SpatialEdgesDir  = "spatial_edges"
	TemporalEdgesDir = "temporal_edges"
	AnnotationsDir   = "annotations"
)

// ParquetWriter handles writing graph records to Parquet files
type ParquetWriter struct {
	baseDir string
}

// NewParquetWriter creates a new Parquet writer.
// baseDir is the directory where one sub-directory per table is created.
func NewParquetWriter(baseDir string) (*ParquetWriter, error) {
	dirs := []string{RobotNodesDir, WorldNodesDir, SpatialEdgesDir, TemporalEdgesDir, AnnotationsDir}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(baseDir, d), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	return &ParquetWriter{baseDir: baseDir}, nil
}

// ParquetRobotNode represents the schema for a robot node in Parquet
type ParquetRobotNode struct {
	ID                string    `parquet:"id"`
	Time              time.Time `parquet:"time"`
	X                 float64   `parquet:"x"`
	Y                 float64   `parquet:"y"`
	Z                 float64   `parquet:"z"`
	Orientation       float64   `parquet:"orientation"`
	VisualDescription string    `parquet:"visual_description"`
	LidarDistances    []float64 `parquet:"lidar_distances"`
	LidarDescription  string    `parquet:"lidar_description"`
}

// ParquetWorldNode represents the schema for a world entity in Parquet
type ParquetWorldNode struct {
	ID               string     `parquet:"id"`
	Type             string     `parquet:"type"`
	X                float64    `parquet:"x"`
	Y                float64    `parquet:"y"`
	Z                float64    `parquet:"z"`
	FirstSeen        time.Time  `parquet:"first_seen"`
	LastSeen         time.Time  `parquet:"last_seen"`
	Confidence       float64    `parquet:"confidence"`
	Description      string     `parquet:"description"`
	ObservationCount int64      `parquet:"observation_count"`
	DecayedAt        *time.Time `parquet:"decayed_at"`
	// Step is the robot node after which this state was recorded, empty for
	// whole-graph exports.
	Step string `parquet:"step"`
}

// ParquetSpatialEdge represents the schema for a spatial edge in Parquet
type ParquetSpatialEdge struct {
	ID          string    `parquet:"id"`
	SourceID    string    `parquet:"source_id"`
	TargetID    string    `parquet:"target_id"`
	Time        time.Time `parquet:"time"`
	Distance    float64   `parquet:"distance"`
	Bearing     float64   `parquet:"bearing"`
	Elevation   float64   `parquet:"elevation"`
	Confidence  float64   `parquet:"confidence"`
	EstimateX   float64   `parquet:"estimate_x"`
	EstimateY   float64   `parquet:"estimate_y"`
	EstimateZ   float64   `parquet:"estimate_z"`
	MatchDist   float64   `parquet:"match_distance"`
	Description string    `parquet:"description"`
}

// ParquetTemporalEdge represents the schema for a temporal edge in Parquet
type ParquetTemporalEdge struct {
	SourceID string `parquet:"source_id"`
	TargetID string `parquet:"target_id"`
}

// ParquetAnnotation represents the schema for an annotation in Parquet
type ParquetAnnotation struct {
	ID          string    `parquet:"id"`
	RobotNodeID string    `parquet:"robot_node_id"`
	Time        time.Time `parquet:"time"`
	Kind        string    `parquet:"kind"`
	Note        string    `parquet:"note"`
}

func robotNodeRow(n *types.RobotNode) ParquetRobotNode {
	return ParquetRobotNode{
		ID:                n.ID,
		Time:              n.Time.UTC(),
		X:                 n.Pose.X,
		Y:                 n.Pose.Y,
		Z:                 n.Pose.Z,
		Orientation:       n.Orientation,
		VisualDescription: n.Observations.VisualDescription,
		LidarDistances:    n.Observations.LidarDistances,
		LidarDescription:  n.Observations.LidarDescription,
	}
}

func worldNodeRow(n *types.WorldNode, step string) ParquetWorldNode {
	row := ParquetWorldNode{
		ID:               n.ID,
		Type:             string(n.Type),
		X:                n.GlobalPosition.X,
		Y:                n.GlobalPosition.Y,
		Z:                n.GlobalPosition.Z,
		FirstSeen:        n.FirstSeen.UTC(),
		LastSeen:         n.LastSeen.UTC(),
		Confidence:       n.Confidence,
		Description:      n.Description,
		ObservationCount: int64(n.ObservationCount),
		Step:             step,
	}
	if !n.DecayedAt.IsZero() {
		decayed := n.DecayedAt.UTC()
		row.DecayedAt = &decayed
	}
	return row
}

func spatialEdgeRow(e *types.SpatialEdge) ParquetSpatialEdge {
	return ParquetSpatialEdge{
		ID:          e.ID,
		SourceID:    e.SourceID,
		TargetID:    e.TargetID,
		Time:        e.Time.UTC(),
		Distance:    e.RelativePos.Distance,
		Bearing:     e.RelativePos.Bearing,
		Elevation:   e.RelativePos.Elevation,
		Confidence:  e.Confidence,
		EstimateX:   e.Estimate.X,
		EstimateY:   e.Estimate.Y,
		EstimateZ:   e.Estimate.Z,
		MatchDist:   e.MatchDistance,
		Description: e.Description,
	}
}

func writeTable[T any](path string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (w *ParquetWriter) path(dir, name string) string {
	return filepath.Join(w.baseDir, dir, name+".parquet")
}

// WriteSnapshot writes every table of a snapshot under the given run name.
// Empty tables produce no file.
func (w *ParquetWriter) WriteSnapshot(ctx context.Context, snap *types.Snapshot, run string) error {
	robots := make([]ParquetRobotNode, len(snap.RobotNodes))
	for i, n := range snap.RobotNodes {
		robots[i] = robotNodeRow(n)
	}
	worlds := make([]ParquetWorldNode, len(snap.WorldNodes))
	for i, n := range snap.WorldNodes {
		worlds[i] = worldNodeRow(n, "")
	}
	spatials := make([]ParquetSpatialEdge, len(snap.SpatialEdges))
	for i, e := range snap.SpatialEdges {
		spatials[i] = spatialEdgeRow(e)
	}
	temporals := make([]ParquetTemporalEdge, len(snap.TemporalEdges))
	for i, e := range snap.TemporalEdges {
		temporals[i] = ParquetTemporalEdge{SourceID: e.SourceID, TargetID: e.TargetID}
	}
	notes := make([]ParquetAnnotation, len(snap.Annotations))
	for i, a := range snap.Annotations {
		notes[i] = ParquetAnnotation{ID: a.ID, RobotNodeID: a.RobotNodeID, Time: a.Time.UTC(), Kind: a.Kind, Note: a.Note}
	}

	if err := writeTable(w.path(RobotNodesDir, "robot_nodes_"+run), robots); err != nil {
		return err
	}
	if err := writeTable(w.path(WorldNodesDir, "world_nodes_"+run), worlds); err != nil {
		return err
	}
	if err := writeTable(w.path(SpatialEdgesDir, "spatial_edges_"+run), spatials); err != nil {
		return err
	}
	if err := writeTable(w.path(TemporalEdgesDir, "temporal_edges_"+run), temporals); err != nil {
		return err
	}
	return writeTable(w.path(AnnotationsDir, "annotations_"+run), notes)
}

// WriteStep records the effects of one ingested observation: the robot node,
// its spatial edges and the state of every entity it touched.
func (w *ParquetWriter) WriteStep(ctx context.Context, res *types.IngestResult) error {
	step := res.RobotNode.ID

	if err := writeTable(w.path(RobotNodesDir, "robot_node_"+step), []ParquetRobotNode{robotNodeRow(res.RobotNode)}); err != nil {
		return err
	}

	worlds := make([]ParquetWorldNode, 0, len(res.Created)+len(res.Updated))
	for _, n := range res.Created {
		worlds = append(worlds, worldNodeRow(n, step))
	}
	for _, n := range res.Updated {
		worlds = append(worlds, worldNodeRow(n, step))
	}
	if err := writeTable(w.path(WorldNodesDir, "world_nodes_"+step), worlds); err != nil {
		return err
	}

	spatials := make([]ParquetSpatialEdge, len(res.SpatialEdges))
	for i, e := range res.SpatialEdges {
		spatials[i] = spatialEdgeRow(e)
	}
	if err := writeTable(w.path(SpatialEdgesDir, "spatial_edges_"+step), spatials); err != nil {
		return err
	}

	if e := res.TemporalEdge; e != nil {
		return writeTable(w.path(TemporalEdgesDir, "temporal_edge_"+step), []ParquetTemporalEdge{{SourceID: e.SourceID, TargetID: e.TargetID}})
	}
	return nil
}

// Close implements a closer interface, currently no-op as we write file-per-call
func (w *ParquetWriter) Close() error {
	return nil
}
