package robomem

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// NodeAt returns the robot node nearest to t at or before it.
func (c *Client) NodeAt(ctx context.Context, t time.Time) (*types.RobotNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.NodeAt(t)
}

// NodesInRange returns the robot nodes with t0 <= time <= t1 in order.
func (c *Client) NodesInRange(ctx context.Context, t0, t1 time.Time) ([]*types.RobotNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.NodesInRange(t0, t1)
}

// Latest returns the newest robot node.
func (c *Client) Latest(ctx context.Context) (*types.RobotNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.Latest()
}

// GetRobotNode retrieves a robot node by id.
func (c *Client) GetRobotNode(ctx context.Context, id string) (*types.RobotNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.Get(id)
}

// TemporalEdges returns the trajectory chain in order.
func (c *Client) TemporalEdges(ctx context.Context) ([]*types.TemporalEdge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.TemporalEdges(), nil
}

// Annotations returns the correction notes attached to a robot node.
func (c *Client) Annotations(ctx context.Context, robotNodeID string) ([]*types.Annotation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.log.Contains(robotNodeID) {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, robotNodeID)
	}
	return c.log.Annotations(robotNodeID), nil
}

// GetEntity retrieves a world entity by id.
func (c *Client) GetEntity(ctx context.Context, id string) (*types.WorldNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Get(id)
}

// Entities lists the world entities passing filter in creation order. A nil
// filter returns all of them.
func (c *Client) Entities(ctx context.Context, filter *types.EntityFilter) ([]*types.WorldNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.All(filter), nil
}

// EntitiesNear returns the observed entities within radius of p, nearest first.
func (c *Client) EntitiesNear(ctx context.Context, p spatial.Position, radius float64) ([]types.NearbyEntity, error) {
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return nil, types.ErrInvalidRadius
	}
	if !p.IsFinite() {
		return nil, types.NewSpatialInputError("position", "must be finite")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := c.registry.Near(p, radius)
	out := make([]types.NearbyEntity, 0, len(hits))
	for _, h := range hits {
		if c.relations.HasEdges(h.Entity.ID) {
			out = append(out, h)
		}
	}
	return out, nil
}

// ObservationHistory returns every spatial edge into an entity in
// chronological order.
func (c *Client) ObservationHistory(ctx context.Context, entityID string) ([]*types.SpatialEdge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, err := c.registry.Get(entityID); err != nil {
		return nil, err
	}
	return c.relations.History(entityID), nil
}

// EdgesFrom returns the spatial edges recorded by one robot node.
func (c *Client) EdgesFrom(ctx context.Context, robotNodeID string) ([]*types.SpatialEdge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.log.Contains(robotNodeID) {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, robotNodeID)
	}
	return c.relations.From(robotNodeID), nil
}

// Snapshot returns a consistent copy of the whole graph.
func (c *Client) Snapshot(ctx context.Context) (*types.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot(), nil
}

// snapshot requires mu.
func (c *Client) snapshot() *types.Snapshot {
	return &types.Snapshot{
		RobotNodes:    c.log.Nodes(),
		TemporalEdges: c.log.TemporalEdges(),
		WorldNodes:    c.registry.All(nil),
		SpatialEdges:  c.relations.All(),
		Annotations:   c.log.AllAnnotations(),
		TakenAt:       c.clock(),
	}
}

// Describe renders the current belief state as compact text for a language
// model prompt. Entities are listed nearest first, with directions relative to
// the latest pose.
func (c *Client) Describe(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	latest, err := c.log.Latest()
	if err != nil {
		return "", err
	}
	now := c.clock()

	var b strings.Builder
	fmt.Fprintf(&b, "World: %s\n", c.config.WorldType)
	fmt.Fprintf(&b, "Robot at (%.2f, %.2f) facing %s, %d steps recorded\n",
		latest.Pose.X, latest.Pose.Y, spatial.Compass(latest.Orientation), c.log.Len())
	if obs := latest.Observations.VisualDescription; obs != "" {
		fmt.Fprintf(&b, "Sees: %s\n", obs)
	}
	if lidar := latest.Observations.LidarDescription; lidar != "" {
		fmt.Fprintf(&b, "Lidar: %s\n", lidar)
	}

	entities := c.registry.All(nil)
	if len(entities) == 0 {
		b.WriteString("No entities known\n")
		return b.String(), nil
	}

	type line struct {
		n        *types.WorldNode
		distance float64
	}
	lines := make([]line, len(entities))
	for i, n := range entities {
		lines[i] = line{n: n, distance: spatial.Distance(latest.Pose, n.GlobalPosition, c.mode())}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].distance < lines[j].distance })

	b.WriteString("Entities:\n")
	for _, l := range lines {
		rel := spatial.ToRelative(l.n.GlobalPosition, latest.Pose, latest.Orientation, c.mode())
		name := l.n.Description
		if name == "" {
			name = l.n.ID
		}
		fmt.Fprintf(&b, "- %s %s: %.2fm %s (%s), confidence %.2f, seen %d times, last %s ago\n",
			l.n.Type, name, l.distance,
			spatial.RelativeDirection(rel.Bearing),
			spatial.Compass(spatial.Heading(latest.Pose, l.n.GlobalPosition)),
			l.n.Confidence, l.n.ObservationCount,
			now.Sub(l.n.LastSeen).Round(time.Second))
	}
	return b.String(), nil
}
