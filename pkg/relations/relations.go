// Package relations keeps the append-only set of spatial edges linking robot
// nodes to the world entities they observed.
package relations

import (
	"fmt"
	"sort"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Index stores SpatialEdges by id, by observing robot node and by observed
// entity. It is not safe for concurrent use.
type Index struct {
	edges    []*types.SpatialEdge
	byID     map[string]int
	byRobot  map[string][]int
	byEntity map[string][]int
}

// New returns an empty index.
func New() *Index {
	return &Index{
		byID:     make(map[string]int),
		byRobot:  make(map[string][]int),
		byEntity: make(map[string][]int),
	}
}

// Len returns the number of edges.
func (x *Index) Len() int {
	return len(x.edges)
}

// Check validates edges without adding them.
func (x *Index) Check(edges []*types.SpatialEdge) error {
	seen := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("invalid spatial edge %s: %w", e.ID, err)
		}
		if _, dup := x.byID[e.ID]; dup {
			return fmt.Errorf("spatial edge %s already exists", e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("spatial edge %s repeated", e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Add appends edges. Either all are added or none.
func (x *Index) Add(edges ...*types.SpatialEdge) error {
	if err := x.Check(edges); err != nil {
		return err
	}
	for _, e := range edges {
		c := e.Clone()
		i := len(x.edges)
		x.edges = append(x.edges, c)
		x.byID[c.ID] = i
		x.byRobot[c.SourceID] = append(x.byRobot[c.SourceID], i)
		x.byEntity[c.TargetID] = append(x.byEntity[c.TargetID], i)
	}
	return nil
}

func (x *Index) collect(positions []int) []*types.SpatialEdge {
	out := make([]*types.SpatialEdge, len(positions))
	for i, p := range positions {
		out[i] = x.edges[p].Clone()
	}
	return out
}

// From returns the edges created by one robot node, in mention order.
func (x *Index) From(robotNodeID string) []*types.SpatialEdge {
	return x.collect(x.byRobot[robotNodeID])
}

// History returns every edge into an entity in chronological order.
func (x *Index) History(entityID string) []*types.SpatialEdge {
	out := x.collect(x.byEntity[entityID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// HasEdges reports whether any edge targets the entity.
func (x *Index) HasEdges(entityID string) bool {
	return len(x.byEntity[entityID]) > 0
}

// All returns every edge in insertion order.
func (x *Index) All() []*types.SpatialEdge {
	out := make([]*types.SpatialEdge, len(x.edges))
	for i, e := range x.edges {
		out[i] = e.Clone()
	}
	return out
}

const estimateTolerance = 1e-6

// Graph is the read-only view needed to verify structural invariants.
type Graph interface {
	RobotNodes() []*types.RobotNode
	TemporalEdges() []*types.TemporalEdge
	WorldNodes() []*types.WorldNode
	SpatialEdges() []*types.SpatialEdge
}

// Violation describes one broken structural invariant.
type Violation struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Kind, v.Subject, v.Detail)
}

// Verify checks the structural invariants of the whole graph. The temporal
// chain must be a single strictly increasing path. Spatial edges must point
// from a robot node to an entity inside the entity's lifetime, their recorded
// estimate must agree with the relative position seen from the source pose,
// and each merge must have matched within radius. Every entity needs at
// least one observation, and its position must lie within the bounding box of
// the estimates that observed it, since merges only ever average positions.
func Verify(g Graph, mode spatial.Mode, radius float64) []Violation {
	var out []Violation
	add := func(kind, subject, format string, args ...any) {
		out = append(out, Violation{Kind: kind, Subject: subject, Detail: fmt.Sprintf(format, args...)})
	}

	robots := g.RobotNodes()
	robotIdx := make(map[string]int, len(robots))
	for i, r := range robots {
		robotIdx[r.ID] = i
		if i > 0 && !r.Time.After(robots[i-1].Time) {
			add("temporal_order", r.ID, "time %s does not follow %s", r.Time, robots[i-1].Time)
		}
	}

	temporal := g.TemporalEdges()
	if want := max(len(robots)-1, 0); len(temporal) != want {
		add("temporal_chain", "graph", "have %d temporal edges, want %d", len(temporal), want)
	}
	for _, e := range temporal {
		si, sok := robotIdx[e.SourceID]
		ti, tok := robotIdx[e.TargetID]
		if !sok || !tok {
			add("temporal_chain", e.SourceID+"->"+e.TargetID, "endpoint is not a robot node")
			continue
		}
		if ti != si+1 {
			add("temporal_chain", e.SourceID+"->"+e.TargetID, "does not link consecutive nodes")
		}
	}

	worlds := g.WorldNodes()
	worldByID := make(map[string]*types.WorldNode, len(worlds))
	for _, w := range worlds {
		worldByID[w.ID] = w
	}

	observed := make(map[string]*bounds, len(worlds))
	for _, e := range g.SpatialEdges() {
		if i, ok := robotIdx[e.SourceID]; !ok {
			add("spatial_edge", e.ID, "source %s is not a robot node", e.SourceID)
		} else {
			r := robots[i]
			implied := spatial.ToAbsolute(e.RelativePos, r.Pose, r.Orientation, mode)
			if !spatial.ApproxEqual(implied, e.Estimate, estimateTolerance) {
				add("spatial_edge", e.ID, "estimate %v disagrees with relative position (implies %v)", e.Estimate, implied)
			}
		}
		w, ok := worldByID[e.TargetID]
		if !ok {
			add("spatial_edge", e.ID, "target %s is not a world node", e.TargetID)
			continue
		}
		if b, ok := observed[w.ID]; ok {
			b.extend(e.Estimate)
		} else {
			observed[w.ID] = &bounds{min: e.Estimate, max: e.Estimate}
		}
		if !e.Estimate.IsFinite() {
			add("spatial_edge", e.ID, "estimate is not finite")
		}
		if e.MatchDistance > radius+estimateTolerance {
			add("match_radius", e.ID, "merged at %.3f, beyond radius %.3f", e.MatchDistance, radius)
		}
		if e.Time.Before(w.FirstSeen) || e.Time.After(w.LastSeen) {
			add("spatial_edge", e.ID, "time %s outside entity lifetime", e.Time)
		}
	}

	for _, w := range worlds {
		b, ok := observed[w.ID]
		if !ok {
			add("orphan_entity", w.ID, "no spatial edge references this entity")
		} else if !b.contains(w.GlobalPosition, mode) {
			add("entity_position", w.ID, "position %v outside its sightings %v..%v", w.GlobalPosition, b.min, b.max)
		}
		if w.Confidence < 0 || w.Confidence > 1 {
			add("confidence", w.ID, "confidence %f outside [0,1]", w.Confidence)
		}
	}

	return out
}

type bounds struct {
	min, max spatial.Position
}

func (b *bounds) extend(p spatial.Position) {
	b.min = spatial.Position{X: min(b.min.X, p.X), Y: min(b.min.Y, p.Y), Z: min(b.min.Z, p.Z)}
	b.max = spatial.Position{X: max(b.max.X, p.X), Y: max(b.max.Y, p.Y), Z: max(b.max.Z, p.Z)}
}

func (b *bounds) contains(p spatial.Position, mode spatial.Mode) bool {
	in := func(v, lo, hi float64) bool {
		return v >= lo-estimateTolerance && v <= hi+estimateTolerance
	}
	if !in(p.X, b.min.X, b.max.X) || !in(p.Y, b.min.Y, b.max.Y) {
		return false
	}
	return mode != spatial.Mode3D || in(p.Z, b.min.Z, b.max.Z)
}
