package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func storesUnderTest(t *testing.T) map[string]GraphStore {
	t.Helper()
	badgerStore, err := NewBadgerStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close(context.Background()) })

	return map[string]GraphStore{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
}

func sampleGraph() *types.Snapshot {
	robots := []*types.RobotNode{
		{ID: "r-0", Time: epoch, Observations: types.NewSensorData("hallway", []float64{1.5, 2.25}, "clear")},
		{ID: "r-1", Time: epoch.Add(time.Second), Pose: spatial.Position{X: 1}, Orientation: 0.5, Observations: types.NewSensorData("door", nil, "")},
	}
	world := &types.WorldNode{
		ID:               "w-1",
		Type:             types.TargetEntity,
		GlobalPosition:   spatial.Position{X: 2, Y: 0.25},
		FirstSeen:        epoch,
		LastSeen:         epoch.Add(time.Second),
		Confidence:       0.6,
		Description:      "red ball",
		ObservationCount: 2,
	}
	return &types.Snapshot{
		RobotNodes:    robots,
		TemporalEdges: []*types.TemporalEdge{{SourceID: "r-0", TargetID: "r-1"}},
		WorldNodes:    []*types.WorldNode{world},
		SpatialEdges: []*types.SpatialEdge{
			{ID: "s-1", SourceID: "r-0", TargetID: "w-1", Time: epoch, RelativePos: spatial.RelativePosition{Distance: 2}, Confidence: 0.5, Estimate: spatial.Position{X: 2}},
			{ID: "s-2", SourceID: "r-1", TargetID: "w-1", Time: epoch.Add(time.Second), RelativePos: spatial.RelativePosition{Distance: 1.1, Bearing: -0.3}, Confidence: 0.6, Estimate: spatial.Position{X: 2.05, Y: 0.3}, MatchDistance: 0.304},
		},
		Annotations: []*types.Annotation{{ID: "a-1", RobotNodeID: "r-1", Time: epoch.Add(2 * time.Second), Kind: "correction", Note: "wheel slip"}},
	}
}

func writeGraph(t *testing.T, store GraphStore, g *types.Snapshot) {
	t.Helper()
	var seq int64
	next := func() int64 { seq++; return seq }

	err := store.ExecuteWrite(context.Background(), func(tx Tx) error {
		for _, n := range g.RobotNodes {
			if err := tx.CreateNode(RobotNodeRecord(n, next())); err != nil {
				return err
			}
		}
		for _, e := range g.TemporalEdges {
			if err := tx.CreateEdge(TemporalEdgeRecord(e, next())); err != nil {
				return err
			}
		}
		for _, w := range g.WorldNodes {
			if err := tx.CreateNode(WorldNodeRecord(w, next())); err != nil {
				return err
			}
		}
		for _, e := range g.SpatialEdges {
			if err := tx.CreateEdge(SpatialEdgeRecord(e, next())); err != nil {
				return err
			}
		}
		for _, a := range g.Annotations {
			if err := tx.CreateNode(AnnotationRecord(a, next())); err != nil {
				return err
			}
			if err := tx.CreateEdge(AnnotationEdgeRecord(a, next())); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStoreRoundTripsGraph(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleGraph()
			writeGraph(t, store, want)

			got, err := Load(context.Background(), store)
			require.NoError(t, err)
			assert.Equal(t, int64(8), got.LastSeq)

			diff := cmp.Diff(want, got.Snapshot,
				cmpopts.IgnoreFields(types.Snapshot{}, "TakenAt"),
				cmpopts.EquateEmpty())
			assert.Empty(t, diff)
		})
	}
}

func TestStoreDiscardsFailedTransaction(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("abort")
			err := store.ExecuteWrite(context.Background(), func(tx Tx) error {
				require.NoError(t, tx.CreateNode(RobotNodeRecord(sampleGraph().RobotNodes[0], 1)))
				return boom
			})
			assert.ErrorIs(t, err, boom)

			res, err := store.Query(context.Background(), Pattern{NodeKind: RobotNodeKind})
			require.NoError(t, err)
			assert.Empty(t, res.Nodes)
		})
	}
}

func TestStoreUpdateMergesProperties(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			g := sampleGraph()
			writeGraph(t, store, g)

			updated := g.WorldNodes[0].Clone()
			updated.Confidence = 0.3
			updated.DecayedAt = epoch.Add(time.Hour)
			err := store.ExecuteWrite(context.Background(), func(tx Tx) error {
				return tx.UpdateNode(WorldNodeRecord(updated, 999))
			})
			require.NoError(t, err)

			res, err := store.Query(context.Background(), Pattern{NodeKind: WorldNodeKind})
			require.NoError(t, err)
			require.Len(t, res.Nodes, 1)
			assert.Equal(t, int64(4), res.Nodes[0].Seq, "update keeps creation order")

			w, err := DecodeWorldNode(res.Nodes[0])
			require.NoError(t, err)
			assert.Equal(t, 0.3, w.Confidence)
			assert.True(t, w.DecayedAt.Equal(epoch.Add(time.Hour)))
		})
	}
}

func TestStoreRejectsInvalidWrites(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			g := sampleGraph()
			writeGraph(t, store, g)
			ctx := context.Background()

			err := store.ExecuteWrite(ctx, func(tx Tx) error {
				return tx.CreateNode(RobotNodeRecord(g.RobotNodes[0], 50))
			})
			assert.ErrorIs(t, err, ErrRecordExists)

			err = store.ExecuteWrite(ctx, func(tx Tx) error {
				return tx.UpdateNode(NodeRecord{ID: "ghost", Kind: WorldNodeKind})
			})
			assert.ErrorIs(t, err, ErrRecordNotFound)

			err = store.ExecuteWrite(ctx, func(tx Tx) error {
				return tx.CreateEdge(EdgeRecord{ID: "x", Kind: types.SpatialEdgeType, SourceID: "r-0", TargetID: "missing"})
			})
			assert.ErrorIs(t, err, ErrMissingEndpoint)

			err = store.ExecuteWrite(ctx, func(tx Tx) error {
				return tx.CreateEdge(EdgeRecord{ID: "y", Kind: types.SpatialEdgeType, SourceID: "r-0", TargetID: "r-1"})
			})
			assert.ErrorIs(t, err, ErrMissingEndpoint, "endpoint kind must match the edge kind")

			err = store.ExecuteWrite(ctx, func(tx Tx) error {
				return tx.CreateNode(NodeRecord{ID: "z", Kind: "Robot) DETACH DELETE (n"})
			})
			assert.ErrorIs(t, err, ErrInvalidKind)

			_, err = store.Query(ctx, Pattern{})
			assert.ErrorIs(t, err, ErrInvalidKind)
		})
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close(context.Background()))

	err := store.ExecuteWrite(context.Background(), func(Tx) error { return nil })
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.Query(context.Background(), Pattern{NodeKind: RobotNodeKind})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestDecodeRejectsWrongTypes(t *testing.T) {
	_, err := DecodeWorldNode(NodeRecord{ID: "w", Kind: WorldNodeKind, Properties: map[string]any{"confidence": "high"}})
	var conv *TypeConversionError
	require.ErrorAs(t, err, &conv)
	assert.Equal(t, "confidence", conv.Field)

	_, err = DecodeRobotNode(NodeRecord{ID: "w", Kind: WorldNodeKind})
	assert.ErrorIs(t, err, ErrInvalidKind)
}
