package registry

import (
	"math"
	"sort"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Mention is an entity mention already converted to the world frame.
type Mention struct {
	Index       int
	Type        types.EntityType
	Estimate    spatial.Position
	Weight      float64
	Description string
	Time        time.Time
}

// Resolution is the outcome of resolving one mention.
type Resolution struct {
	// Entity is the entity after the merge or creation.
	Entity *types.WorldNode
	// Before is the entity as it was before this merge; nil when created.
	Before *types.WorldNode
	// Created reports whether a new entity was minted.
	Created bool
	// Ambiguity is set when several candidates tied on distance.
	Ambiguity *types.Ambiguity
}

// Stage resolves the mentions of one observation against a private overlay of
// the registry so that later mentions see earlier ones.
type Stage struct {
	reg     *Registry
	overlay map[string]*types.WorldNode
	created []*types.WorldNode
	order   []string
}

// Stage starts a new staged view.
func (r *Registry) Stage() *Stage {
	return &Stage{
		reg:     r,
		overlay: make(map[string]*types.WorldNode),
	}
}

// current returns the staged value of an entity.
func (s *Stage) current(id string) *types.WorldNode {
	if n, ok := s.overlay[id]; ok {
		return n
	}
	return s.reg.lookup(id)
}

type candidate struct {
	node     *types.WorldNode
	distance float64
}

func (s *Stage) candidates(m Mention) []candidate {
	p := s.reg.policy
	seen := make(map[string]struct{})
	var out []candidate

	consider := func(n *types.WorldNode) {
		if n == nil || n.Type != m.Type {
			return
		}
		if _, dup := seen[n.ID]; dup {
			return
		}
		seen[n.ID] = struct{}{}
		if d := spatial.Distance(n.GlobalPosition, m.Estimate, p.Mode); d <= p.MatchRadius {
			out = append(out, candidate{node: n, distance: d})
		}
	}

	// overlay entries may have moved away from their committed grid cell
	for _, id := range s.order {
		consider(s.current(id))
	}
	s.reg.grid.within(m.Estimate, p.MatchRadius, func(id string) {
		consider(s.current(id))
	})
	return out
}

// pick applies the tie-break: nearest, then highest confidence, then most
// recently seen, then smallest id.
func (s *Stage) pick(m Mention, cands []candidate) (candidate, *types.Ambiguity) {
	nearest := math.Inf(1)
	for _, c := range cands {
		nearest = math.Min(nearest, c.distance)
	}

	var band []candidate
	for _, c := range cands {
		if c.distance <= nearest+s.reg.policy.TieEpsilon {
			band = append(band, c)
		}
	}
	if len(band) == 1 {
		return band[0], nil
	}

	sort.Slice(band, func(i, j int) bool {
		a, b := band[i].node, band[j].node
		if math.Abs(a.Confidence-b.Confidence) > confidenceTieEpsilon {
			return a.Confidence > b.Confidence
		}
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.ID < b.ID
	})

	first, second := band[0].node, band[1].node
	rule := "id"
	switch {
	case math.Abs(first.Confidence-second.Confidence) > confidenceTieEpsilon:
		rule = "confidence"
	case !first.LastSeen.Equal(second.LastSeen):
		rule = "last_seen"
	}

	ids := make([]string, len(band))
	for i, c := range band {
		ids[i] = c.node.ID
	}
	sort.Strings(ids)

	return band[0], &types.Ambiguity{
		MentionIndex: m.Index,
		CandidateIDs: ids,
		ChosenID:     first.ID,
		Rule:         rule,
	}
}

// Resolve matches a mention to an existing entity or creates a new one.
func (s *Stage) Resolve(m Mention) Resolution {
	p := s.reg.policy
	cands := s.candidates(m)

	if len(cands) == 0 {
		n := &types.WorldNode{
			ID:               p.NewID(),
			Type:             m.Type,
			GlobalPosition:   m.Estimate,
			FirstSeen:        m.Time,
			LastSeen:         m.Time,
			Confidence:       p.ConfidencePrior,
			Description:      m.Description,
			ObservationCount: 1,
		}
		s.overlay[n.ID] = n
		s.created = append(s.created, n)
		s.order = append(s.order, n.ID)
		return Resolution{Entity: n.Clone(), Created: true}
	}

	chosen, ambiguity := s.pick(m, cands)
	before := chosen.node
	merged := s.merge(before, m)

	if _, staged := s.overlay[merged.ID]; !staged {
		s.order = append(s.order, merged.ID)
	}
	s.overlay[merged.ID] = merged
	for i, c := range s.created {
		if c.ID == merged.ID {
			s.created[i] = merged
		}
	}

	return Resolution{Entity: merged.Clone(), Before: before.Clone(), Ambiguity: ambiguity}
}

func (s *Stage) merge(n *types.WorldNode, m Mention) *types.WorldNode {
	p := s.reg.policy
	out := n.Clone()

	out.GlobalPosition = spatial.WeightedAverage(n.GlobalPosition, n.Confidence, m.Estimate, m.Weight)
	out.Confidence = math.Max(n.Confidence, clamp01(p.Corroborate(n.Confidence, m.Weight)))
	if m.Time.After(out.LastSeen) {
		out.LastSeen = m.Time
	}
	if m.Time.Before(out.FirstSeen) {
		out.FirstSeen = m.Time
	}
	if m.Description != "" {
		out.Description = m.Description
	}
	out.ObservationCount++
	return out
}

// Changes returns the entities created and the pre-existing entities updated in
// this stage, in the order they were first touched.
func (s *Stage) Changes() (created, updated []*types.WorldNode) {
	isNew := make(map[string]struct{}, len(s.created))
	for _, n := range s.created {
		isNew[n.ID] = struct{}{}
	}
	for _, id := range s.order {
		n := s.overlay[id].Clone()
		if _, ok := isNew[id]; ok {
			created = append(created, n)
		} else {
			updated = append(updated, n)
		}
	}
	return created, updated
}
