package registry

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("w-%d", n)
	}
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.NewID = sequentialIDs()
	return p
}

func mention(x, y float64, at time.Duration) Mention {
	return Mention{
		Type:     types.TargetEntity,
		Estimate: spatial.Position{X: x, Y: y},
		Weight:   1,
		Time:     epoch.Add(at),
	}
}

// commit resolves a single mention and applies it.
func commit(t *testing.T, r *Registry, m Mention) Resolution {
	t.Helper()
	s := r.Stage()
	res := s.Resolve(m)
	created, updated := s.Changes()
	require.NoError(t, r.Apply(created, updated))
	return res
}

func TestResolveCreatesThenMerges(t *testing.T) {
	r := New(testPolicy())

	first := commit(t, r, mention(2, 0, 0))
	require.True(t, first.Created)
	assert.Equal(t, "w-1", first.Entity.ID)
	assert.Equal(t, 0.5, first.Entity.Confidence)
	assert.Equal(t, 1, r.Len())

	second := commit(t, r, mention(2.05, 0.01, time.Second))
	require.False(t, second.Created)
	assert.Equal(t, "w-1", second.Entity.ID)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get("w-1")
	require.NoError(t, err)
	assert.Greater(t, got.GlobalPosition.X, 2.0)
	assert.Less(t, got.GlobalPosition.X, 2.05)
	assert.InDelta(t, 2.0333333, got.GlobalPosition.X, 1e-6)
	assert.InDelta(t, 0.6, got.Confidence, 1e-9)
	assert.Equal(t, epoch.Add(time.Second), got.LastSeen)
	assert.Equal(t, epoch, got.FirstSeen)
	assert.Equal(t, 2, got.ObservationCount)

	require.NotNil(t, second.Before)
	assert.Equal(t, 2.0, second.Before.GlobalPosition.X)
}

func TestResolveRespectsTypeAndRadius(t *testing.T) {
	r := New(testPolicy())
	commit(t, r, mention(0, 0, 0))

	far := commit(t, r, mention(1.5, 0, time.Second))
	assert.True(t, far.Created, "outside the match radius")

	obstacle := mention(0.1, 0, 2*time.Second)
	obstacle.Type = types.ObstacleEntity
	res := commit(t, r, obstacle)
	assert.True(t, res.Created, "type mismatch never merges")

	assert.Equal(t, 3, r.Len())
}

func TestRepeatedMentionsConverge(t *testing.T) {
	r := New(testPolicy())
	commit(t, r, mention(5, 5, 0))

	prev := 0.5
	for i := 1; i <= 20; i++ {
		res := commit(t, r, mention(5+0.1*math.Cos(float64(i)), 5+0.1*math.Sin(float64(i)), time.Duration(i)*time.Second))
		require.False(t, res.Created)
		assert.GreaterOrEqual(t, res.Entity.Confidence, prev)
		assert.LessOrEqual(t, res.Entity.Confidence, 1.0)
		prev = res.Entity.Confidence
	}
	assert.Equal(t, 1, r.Len())
}

func TestMentionWeightScalesGain(t *testing.T) {
	r := New(testPolicy())
	commit(t, r, mention(0, 0, 0))

	weak := mention(0, 0, time.Second)
	weak.Weight = 0.5
	res := commit(t, r, weak)
	assert.InDelta(t, 0.55, res.Entity.Confidence, 1e-9)
}

func TestTieBreakConfidence(t *testing.T) {
	r := New(testPolicy())
	require.NoError(t, r.Apply([]*types.WorldNode{
		{ID: "low", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: -0.5}, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.4},
		{ID: "high", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: 0.5}, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.8},
	}, nil))

	res := r.Stage().Resolve(mention(0, 0, time.Second))
	assert.Equal(t, "high", res.Entity.ID)
	require.NotNil(t, res.Ambiguity)
	assert.Equal(t, "confidence", res.Ambiguity.Rule)
	assert.Equal(t, []string{"high", "low"}, res.Ambiguity.CandidateIDs)
	assert.False(t, res.Ambiguity.Unresolved())
}

func TestTieBreakLastSeen(t *testing.T) {
	r := New(testPolicy())
	require.NoError(t, r.Apply([]*types.WorldNode{
		{ID: "old", Type: types.TargetEntity, GlobalPosition: spatial.Position{Y: 0.5}, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.5},
		{ID: "new", Type: types.TargetEntity, GlobalPosition: spatial.Position{Y: -0.5}, FirstSeen: epoch, LastSeen: epoch.Add(time.Second), Confidence: 0.5},
	}, nil))

	res := r.Stage().Resolve(mention(0, 0, 2*time.Second))
	assert.Equal(t, "new", res.Entity.ID)
	require.NotNil(t, res.Ambiguity)
	assert.Equal(t, "last_seen", res.Ambiguity.Rule)
}

func TestTieBreakID(t *testing.T) {
	r := New(testPolicy())
	require.NoError(t, r.Apply([]*types.WorldNode{
		{ID: "b", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: 0.5}, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.5},
		{ID: "a", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: -0.5}, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.5},
	}, nil))

	res := r.Stage().Resolve(mention(0, 0, time.Second))
	assert.Equal(t, "a", res.Entity.ID)
	require.NotNil(t, res.Ambiguity)
	assert.True(t, res.Ambiguity.Unresolved())
}

func TestNearestWinsWithoutAmbiguity(t *testing.T) {
	r := New(testPolicy())
	require.NoError(t, r.Apply([]*types.WorldNode{
		{ID: "near", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: 0.2}, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.1},
		{ID: "far", Type: types.TargetEntity, GlobalPosition: spatial.Position{X: -0.6}, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.9},
	}, nil))

	res := r.Stage().Resolve(mention(0, 0, time.Second))
	assert.Equal(t, "near", res.Entity.ID)
	assert.Nil(t, res.Ambiguity)
}

func TestStageSeesEarlierMentions(t *testing.T) {
	r := New(testPolicy())
	s := r.Stage()

	a := s.Resolve(mention(3, 3, 0))
	b := s.Resolve(mention(3.1, 3, 0))
	require.True(t, a.Created)
	require.False(t, b.Created)
	assert.Equal(t, a.Entity.ID, b.Entity.ID)

	assert.Zero(t, r.Len(), "stage does not touch the registry")

	created, updated := s.Changes()
	require.Len(t, created, 1)
	assert.Empty(t, updated)
	assert.Equal(t, 2, created[0].ObservationCount)

	require.NoError(t, r.Apply(created, updated))
	assert.Equal(t, 1, r.Len())
}

func TestStageSeesMovedEntity(t *testing.T) {
	r := New(testPolicy())
	commit(t, r, mention(0.95, 0, 0))

	s := r.Stage()
	// pulls the entity across the cell boundary at x=1
	first := s.Resolve(Mention{Type: types.TargetEntity, Estimate: spatial.Position{X: 1.9}, Weight: 1, Time: epoch.Add(time.Second)})
	require.False(t, first.Created)
	second := s.Resolve(mention(2.3, 0, time.Second))
	assert.False(t, second.Created)
	assert.Equal(t, first.Entity.ID, second.Entity.ID)

	_, updated := s.Changes()
	require.Len(t, updated, 1)
}

func TestApplyIsAllOrNothing(t *testing.T) {
	r := New(testPolicy())
	commit(t, r, mention(0, 0, 0))

	err := r.Apply(
		[]*types.WorldNode{{ID: "fresh", Type: types.TargetEntity, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.5}},
		[]*types.WorldNode{{ID: "ghost", Type: types.TargetEntity, FirstSeen: epoch, LastSeen: epoch, Confidence: 0.5}},
	)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	assert.Equal(t, 1, r.Len())

	_, err = r.Get("fresh")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
}

func TestNear(t *testing.T) {
	r := New(testPolicy())
	for i := 0; i < 10; i++ {
		commit(t, r, mention(float64(i)*3, 0, time.Duration(i)*time.Second))
	}

	hits := r.Near(spatial.Position{X: 4}, 4.5)
	require.Len(t, hits, 3)
	assert.InDelta(t, 1.0, hits[0].Distance, 1e-9)
	assert.Equal(t, 3.0, hits[0].Entity.GlobalPosition.X)

	all := r.Near(spatial.Position{}, math.Inf(1))
	assert.Len(t, all, 10)
}

func TestPlanDecay(t *testing.T) {
	r := New(testPolicy())
	commit(t, r, mention(0, 0, 0))

	assert.Empty(t, r.PlanDecay(epoch.Add(10*time.Second)), "inside the window")

	prev := 0.5
	for i := 1; i <= 5; i++ {
		now := epoch.Add(time.Duration(i) * time.Minute)
		decayed := r.PlanDecay(now)
		require.Len(t, decayed, 1)
		assert.Less(t, decayed[0].Confidence, prev)
		assert.GreaterOrEqual(t, decayed[0].Confidence, 0.0)
		assert.Equal(t, now, decayed[0].DecayedAt)
		require.NoError(t, r.Apply(nil, decayed))
		prev = decayed[0].Confidence
	}

	// half-life of five minutes from last seen regardless of how often decay ran
	got, _ := r.Get("w-1")
	assert.InDelta(t, 0.25, got.Confidence, 1e-9)
}

func TestPlanDecayFirstPassCountsFromLastSeen(t *testing.T) {
	r := New(testPolicy())
	commit(t, r, mention(0, 0, 0))

	assert.Empty(t, r.PlanDecay(epoch.Add(30*time.Second)), "window is exclusive")

	decayed := r.PlanDecay(epoch.Add(31 * time.Second))
	require.Len(t, decayed, 1)
	assert.InDelta(t, 0.5*math.Exp2(-31.0/300), decayed[0].Confidence, 1e-9)
	assert.InDelta(t, 0.465440, decayed[0].Confidence, 1e-6)
}

func TestExponentialDecayFloor(t *testing.T) {
	decay := ExponentialDecay(time.Minute, 0.1)
	assert.InDelta(t, 0.3, decay(0.5, time.Minute), 1e-12)
	assert.Equal(t, 0.1, decay(0.1, time.Hour))
	assert.Equal(t, 0.05, decay(0.05, time.Hour))
	assert.Greater(t, decay(0.5, 100*time.Hour), 0.1-1e-12)
	assert.Equal(t, 0.1, ExponentialDecay(0, 0.1)(0.5, time.Second))
}
