// Package registry implements the world entity registry: a deduplicated arena
// of WorldNodes with identity resolution, confidence-weighted merging and
// confidence decay.
//
// Resolution never mutates the registry directly. A Stage collects the effects
// of one observation against a private overlay; the caller persists those
// effects and only then calls Apply. Registry is not safe for concurrent use.
package registry

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Registry stores WorldNodes indexed by id and by position.
type Registry struct {
	policy Policy
	nodes  []*types.WorldNode
	index  map[string]int
	grid   *grid
}

// New creates an empty registry. Zero fields of policy take their defaults.
func New(policy Policy) *Registry {
	policy = policy.withDefaults()
	return &Registry{
		policy: policy,
		index:  make(map[string]int),
		grid:   newGrid(policy.MatchRadius, policy.Mode),
	}
}

// Policy returns the effective policy.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Len returns the number of entities.
func (r *Registry) Len() int {
	return len(r.nodes)
}

// Get returns a copy of the entity with the given id.
func (r *Registry) Get(id string) (*types.WorldNode, error) {
	n := r.lookup(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrEntityNotFound, id)
	}
	return n.Clone(), nil
}

func (r *Registry) lookup(id string) *types.WorldNode {
	i, ok := r.index[id]
	if !ok {
		return nil
	}
	return r.nodes[i]
}

// All returns copies of the entities passing filter, in creation order.
func (r *Registry) All(filter *types.EntityFilter) []*types.WorldNode {
	out := make([]*types.WorldNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		if filter.Match(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Near returns the entities within radius of p, nearest first.
func (r *Registry) Near(p spatial.Position, radius float64) []types.NearbyEntity {
	var hits []types.NearbyEntity
	visit := func(n *types.WorldNode) {
		if d := spatial.Distance(n.GlobalPosition, p, r.policy.Mode); d <= radius {
			hits = append(hits, types.NearbyEntity{Entity: n.Clone(), Distance: d})
		}
	}

	if math.IsInf(radius, 1) || r.grid.cellsFor(radius) > float64(len(r.nodes)) {
		for _, n := range r.nodes {
			visit(n)
		}
	} else {
		r.grid.within(p, radius, func(id string) { visit(r.lookup(id)) })
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Entity.ID < hits[j].Entity.ID
	})
	return hits
}

// Apply commits created and updated entities. It fails without changing
// anything if a created id already exists or an updated id does not.
func (r *Registry) Apply(created, updated []*types.WorldNode) error {
	seen := make(map[string]struct{}, len(created))
	for _, n := range created {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("invalid entity %s: %w", n.ID, err)
		}
		if _, dup := r.index[n.ID]; dup {
			return fmt.Errorf("entity %s already exists", n.ID)
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("entity %s created twice", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, n := range updated {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("invalid entity %s: %w", n.ID, err)
		}
		if _, ok := r.index[n.ID]; !ok {
			return fmt.Errorf("%w: %s", types.ErrEntityNotFound, n.ID)
		}
	}

	for _, n := range created {
		c := n.Clone()
		r.index[c.ID] = len(r.nodes)
		r.nodes = append(r.nodes, c)
		r.grid.put(c.ID, c.GlobalPosition)
	}
	for _, n := range updated {
		c := n.Clone()
		r.nodes[r.index[c.ID]] = c
		r.grid.put(c.ID, c.GlobalPosition)
	}
	return nil
}

// PlanDecay computes the decayed copies of every entity that has not been
// corroborated within the decay window as of now. Entities whose confidence
// would not change are omitted. Nothing is modified.
func (r *Registry) PlanDecay(now time.Time) []*types.WorldNode {
	var out []*types.WorldNode
	for _, n := range r.nodes {
		if now.Sub(n.LastSeen) <= r.policy.DecayWindow {
			continue
		}
		// Elapsed time runs from the last sighting or decay, not from the end
		// of the window, so the first pass after the window takes the whole
		// window's worth of decay at once.
		elapsed := now.Sub(n.DecayReference())
		if elapsed <= 0 {
			continue
		}
		c := clamp01(r.policy.Decay(n.Confidence, elapsed))
		if c >= n.Confidence {
			continue
		}
		d := n.Clone()
		d.Confidence = c
		d.DecayedAt = now
		out = append(out, d)
	}
	return out
}
