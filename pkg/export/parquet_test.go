package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

func testSnapshot() *types.Snapshot {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &types.Snapshot{
		RobotNodes: []*types.RobotNode{
			{ID: "r1", Time: t0, Pose: spatial.Position{X: 1}, Observations: types.NewSensorData("wall", []float64{1, 2}, "close")},
			{ID: "r2", Time: t0.Add(time.Second), Pose: spatial.Position{X: 2}, Orientation: 1.5},
		},
		TemporalEdges: []*types.TemporalEdge{{SourceID: "r1", TargetID: "r2"}},
		WorldNodes: []*types.WorldNode{
			{ID: "w1", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: 3, Y: 1}, FirstSeen: t0, LastSeen: t0.Add(time.Second), Confidence: 0.6, ObservationCount: 2},
		},
		SpatialEdges: []*types.SpatialEdge{
			{ID: "s1", SourceID: "r1", TargetID: "w1", Time: t0, RelativePos: spatial.RelativePosition{Distance: 2.2, Bearing: 0.46}, Confidence: 1},
			{ID: "s2", SourceID: "r2", TargetID: "w1", Time: t0.Add(time.Second), RelativePos: spatial.RelativePosition{Distance: 1.4, Bearing: -0.8}, Confidence: 1},
		},
	}
}

func TestWriteSnapshot(t *testing.T) {
	dir := t.TempDir()
	w, err := NewParquetWriter(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteSnapshot(context.Background(), testSnapshot(), "run1"))

	robots, err := parquet.ReadFile[ParquetRobotNode](filepath.Join(dir, RobotNodesDir, "robot_nodes_run1.parquet"))
	require.NoError(t, err)
	require.Len(t, robots, 2)
	assert.Equal(t, "r1", robots[0].ID)
	assert.Equal(t, []float64{1, 2}, robots[0].LidarDistances)
	assert.Equal(t, 1.5, robots[1].Orientation)

	worlds, err := parquet.ReadFile[ParquetWorldNode](filepath.Join(dir, WorldNodesDir, "world_nodes_run1.parquet"))
	require.NoError(t, err)
	require.Len(t, worlds, 1)
	assert.Equal(t, "target", worlds[0].Type)
	assert.Equal(t, int64(2), worlds[0].ObservationCount)
	assert.Nil(t, worlds[0].DecayedAt)

	edges, err := parquet.ReadFile[ParquetSpatialEdge](filepath.Join(dir, SpatialEdgesDir, "spatial_edges_run1.parquet"))
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	// no annotations, no file
	_, err = os.Stat(filepath.Join(dir, AnnotationsDir, "annotations_run1.parquet"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteStep(t *testing.T) {
	dir := t.TempDir()
	w, err := NewParquetWriter(dir)
	require.NoError(t, err)

	snap := testSnapshot()
	res := &types.IngestResult{
		RobotNode:    snap.RobotNodes[1],
		TemporalEdge: snap.TemporalEdges[0],
		Updated:      snap.WorldNodes,
		SpatialEdges: snap.SpatialEdges[1:],
	}
	require.NoError(t, w.WriteStep(context.Background(), res))

	worlds, err := parquet.ReadFile[ParquetWorldNode](filepath.Join(dir, WorldNodesDir, "world_nodes_r2.parquet"))
	require.NoError(t, err)
	require.Len(t, worlds, 1)
	assert.Equal(t, "r2", worlds[0].Step)

	temporal, err := parquet.ReadFile[ParquetTemporalEdge](filepath.Join(dir, TemporalEdgesDir, "temporal_edge_r2.parquet"))
	require.NoError(t, err)
	assert.Equal(t, []ParquetTemporalEdge{{SourceID: "r1", TargetID: "r2"}}, temporal)
}
