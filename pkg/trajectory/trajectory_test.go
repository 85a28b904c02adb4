package trajectory

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func node(i int) *types.RobotNode {
	return &types.RobotNode{
		ID:           fmt.Sprintf("r-%d", i),
		Time:         epoch.Add(time.Duration(i) * time.Second),
		Pose:         spatial.Position{X: float64(i)},
		Observations: types.NewSensorData("tick", []float64{1, 2}, ""),
	}
}

func fill(t *testing.T, n int) *Log {
	t.Helper()
	l := New()
	for i := 0; i < n; i++ {
		_, err := l.Append(node(i))
		require.NoError(t, err)
	}
	return l
}

func TestAppendBuildsSingleChain(t *testing.T) {
	l := New()
	const n = 10

	for i := 0; i < n; i++ {
		edge, err := l.Append(node(i))
		require.NoError(t, err)
		if i == 0 {
			assert.Nil(t, edge)
			continue
		}
		require.NotNil(t, edge)
		assert.Equal(t, fmt.Sprintf("r-%d", i-1), edge.SourceID)
		assert.Equal(t, fmt.Sprintf("r-%d", i), edge.TargetID)
	}

	assert.Equal(t, n, l.Len())
	edges := l.TemporalEdges()
	assert.Len(t, edges, n-1)

	in := map[string]int{}
	out := map[string]int{}
	for _, e := range edges {
		out[e.SourceID]++
		in[e.TargetID]++
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("r-%d", i)
		if i > 0 {
			assert.Equal(t, 1, in[id], "incoming for %s", id)
		}
		if i < n-1 {
			assert.Equal(t, 1, out[id], "outgoing for %s", id)
		}
	}
	assert.Zero(t, in["r-0"])
	assert.Zero(t, out[fmt.Sprintf("r-%d", n-1)])
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	l := fill(t, 3)

	same := node(2)
	same.ID = "dup-time"
	_, err := l.Append(same)
	assert.ErrorIs(t, err, types.ErrOutOfOrderObservation)

	older := node(1)
	older.ID = "older"
	_, err = l.Append(older)
	var oe *types.ObservationError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, epoch.Add(2*time.Second), oe.Tail)

	assert.Equal(t, 3, l.Len())
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	l := fill(t, 1)
	dup := node(5)
	dup.ID = "r-0"
	_, err := l.Append(dup)
	assert.Error(t, err)
}

func TestNodeAt(t *testing.T) {
	l := fill(t, 5)

	got, err := l.NodeAt(epoch.Add(2500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "r-2", got.ID)

	got, err = l.NodeAt(epoch.Add(3 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "r-3", got.ID)

	got, err = l.NodeAt(epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "r-4", got.ID)

	_, err = l.NodeAt(epoch.Add(-time.Second))
	assert.ErrorIs(t, err, types.ErrNodeNotFound)
}

func TestNodesInRange(t *testing.T) {
	l := fill(t, 6)

	got, err := l.NodesInRange(epoch.Add(time.Second), epoch.Add(3*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "r-1", got[0].ID)
	assert.Equal(t, "r-3", got[2].ID)

	got, err = l.NodesInRange(epoch.Add(10*time.Second), epoch.Add(20*time.Second))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = l.NodesInRange(epoch.Add(2*time.Second), epoch)
	assert.ErrorIs(t, err, types.ErrInvalidTimeRange)
}

func TestLatestAndCopies(t *testing.T) {
	l := New()
	_, err := l.Latest()
	assert.ErrorIs(t, err, types.ErrNodeNotFound)

	l = fill(t, 2)
	latest, err := l.Latest()
	require.NoError(t, err)
	assert.Equal(t, "r-1", latest.ID)

	latest.Observations.LidarDistances[0] = 1000
	again, _ := l.Get("r-1")
	assert.Equal(t, 1.0, again.Observations.LidarDistances[0], "readers must get copies")
}

func TestAnnotate(t *testing.T) {
	l := fill(t, 2)

	err := l.Annotate(&types.Annotation{ID: "a-1", RobotNodeID: "r-0", Kind: "correction", Note: "pose drifted"})
	require.NoError(t, err)
	err = l.Annotate(&types.Annotation{ID: "a-2", RobotNodeID: "missing"})
	assert.ErrorIs(t, err, types.ErrNodeNotFound)

	notes := l.Annotations("r-0")
	require.Len(t, notes, 1)
	assert.Equal(t, "pose drifted", notes[0].Note)
	assert.Len(t, l.AllAnnotations(), 1)

	original, _ := l.Get("r-0")
	assert.Equal(t, spatial.Position{}, original.Pose, "annotation never edits the node")
}
