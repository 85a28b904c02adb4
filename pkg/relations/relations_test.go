package relations

import (
	"testing"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func edge(id, robot, entity string, at time.Duration) *types.SpatialEdge {
	return &types.SpatialEdge{
		ID:          id,
		SourceID:    robot,
		TargetID:    entity,
		Time:        epoch.Add(at),
		RelativePos: spatial.RelativePosition{Distance: 2},
		Confidence:  0.5,
		Estimate:    spatial.Position{X: 2},
	}
}

func TestIndexQueries(t *testing.T) {
	x := New()
	require.NoError(t, x.Add(edge("e-3", "r-3", "w-1", 3*time.Second)))
	require.NoError(t, x.Add(
		edge("e-1", "r-1", "w-1", time.Second),
		edge("e-2", "r-1", "w-2", time.Second),
	))

	assert.Equal(t, 3, x.Len())
	assert.True(t, x.HasEdges("w-2"))
	assert.False(t, x.HasEdges("w-9"))

	history := x.History("w-1")
	require.Len(t, history, 2)
	assert.Equal(t, "e-1", history[0].ID)
	assert.Equal(t, "e-3", history[1].ID)

	from := x.From("r-1")
	require.Len(t, from, 2)
	assert.Equal(t, "e-1", from[0].ID)
	assert.Equal(t, "e-2", from[1].ID)

	assert.Empty(t, x.From("r-404"))
}

func TestAddIsAllOrNothing(t *testing.T) {
	x := New()
	require.NoError(t, x.Add(edge("e-1", "r-1", "w-1", 0)))

	err := x.Add(edge("e-2", "r-2", "w-1", time.Second), edge("e-1", "r-2", "w-1", time.Second))
	assert.Error(t, err)
	assert.Equal(t, 1, x.Len())

	err = x.Add(&types.SpatialEdge{ID: "bad", SourceID: "r-1"})
	assert.ErrorIs(t, err, types.ErrEmptyID)
}

func TestReturnsCopies(t *testing.T) {
	x := New()
	require.NoError(t, x.Add(edge("e-1", "r-1", "w-1", 0)))

	x.History("w-1")[0].Confidence = 1
	assert.Equal(t, 0.5, x.All()[0].Confidence)
}

type fakeGraph struct {
	robots   []*types.RobotNode
	temporal []*types.TemporalEdge
	worlds   []*types.WorldNode
	spatial  []*types.SpatialEdge
}

func (g fakeGraph) RobotNodes() []*types.RobotNode { return g.robots }
func (g fakeGraph) TemporalEdges() []*types.TemporalEdge { return g.temporal }
func (g fakeGraph) WorldNodes() []*types.WorldNode { return g.worlds }
func (g fakeGraph) SpatialEdges() []*types.SpatialEdge { return g.spatial }

func validGraph() fakeGraph {
	return fakeGraph{
		robots: []*types.RobotNode{
			{ID: "r-0", Time: epoch},
			{ID: "r-1", Time: epoch.Add(time.Second)},
		},
		temporal: []*types.TemporalEdge{{SourceID: "r-0", TargetID: "r-1"}},
		worlds: []*types.WorldNode{
			{ID: "w-1", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: 2}, FirstSeen: epoch, LastSeen: epoch.Add(time.Second), Confidence: 0.6},
		},
		spatial: []*types.SpatialEdge{
			edge("e-0", "r-0", "w-1", 0),
			edge("e-1", "r-1", "w-1", time.Second),
		},
	}
}

func TestVerifyAcceptsValidGraph(t *testing.T) {
	assert.Empty(t, Verify(validGraph(), spatial.Mode2D, 1))
	assert.Empty(t, Verify(fakeGraph{}, spatial.Mode2D, 1))
}

func TestVerifyReportsViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *fakeGraph)
		kind   string
	}{
		{
			name:   "missing temporal edge",
			mutate: func(g *fakeGraph) { g.temporal = nil },
			kind:   "temporal_chain",
		},
		{
			name:   "backwards time",
			mutate: func(g *fakeGraph) { g.robots[1].Time = epoch.Add(-time.Second) },
			kind:   "temporal_order",
		},
		{
			name:   "orphan entity",
			mutate: func(g *fakeGraph) { g.spatial = nil },
			kind:   "orphan_entity",
		},
		{
			name:   "dangling target",
			mutate: func(g *fakeGraph) { g.spatial[0].TargetID = "w-404" },
			kind:   "spatial_edge",
		},
		{
			name:   "merge beyond radius",
			mutate: func(g *fakeGraph) { g.spatial[1].MatchDistance = 1.5 },
			kind:   "match_radius",
		},
		{
			name:   "entity moved away from its sightings",
			mutate: func(g *fakeGraph) { g.worlds[0].GlobalPosition = spatial.Position{X: 100, Y: 100} },
			kind:   "entity_position",
		},
		{
			name:   "inconsistent estimate",
			mutate: func(g *fakeGraph) { g.spatial[1].Estimate = spatial.Position{X: 3} },
			kind:   "spatial_edge",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGraph()
			tt.mutate(&g)
			violations := Verify(g, spatial.Mode2D, 1)
			require.NotEmpty(t, violations)

			kinds := make([]string, len(violations))
			for i, v := range violations {
				kinds[i] = v.Kind
			}
			assert.Contains(t, kinds, tt.kind)
		})
	}
}

func TestVerifyAcceptsMergedPosition(t *testing.T) {
	g := validGraph()
	g.robots[1].Pose = spatial.Position{X: 0.5}
	g.spatial[1].Estimate = spatial.Position{X: 2.5}
	g.spatial[1].MatchDistance = 0.5
	g.worlds[0].GlobalPosition = spatial.WeightedAverage(spatial.Position{X: 2}, 0.5, spatial.Position{X: 2.5}, 0.5)

	assert.Empty(t, Verify(g, spatial.Mode2D, 0.5))

	violations := Verify(g, spatial.Mode2D, 0.4)
	require.Len(t, violations, 1)
	assert.Equal(t, "match_radius", violations[0].Kind)
	assert.Equal(t, "e-1", violations[0].Subject)
}
