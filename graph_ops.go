package robomem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soundprediction/robomem/pkg/driver"
	"github.com/soundprediction/robomem/pkg/relations"
	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Decay lowers the confidence of entities that have not been corroborated
// within the decay window as of now. Entities are never removed. Repeated calls
// compose: decaying to t1 and then to t2 gives the same confidence as decaying
// to t2 directly.
func (c *Client) Decay(ctx context.Context, now time.Time) (*types.DecayResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	planned := c.registry.PlanDecay(now)
	result := &types.DecayResult{At: now, Decayed: planned}
	if len(planned) == 0 {
		c.metrics.Decayed(0)
		return result, nil
	}

	records := make([]driver.NodeRecord, len(planned))
	for i, n := range planned {
		records[i] = driver.WorldNodeRecord(n, 0)
	}

	c.logger.Debug("Persisting decay", "entities", len(planned), "at", now)
	err := c.persist(ctx, "decay", func(tx driver.Tx) error {
		for _, rec := range records {
			if err := tx.UpdateNode(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	err = c.registry.Apply(nil, planned)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("memory diverged from store: %w", err)
	}

	c.metrics.Decayed(len(planned))
	c.logger.Info("Decay persisted", "entities", len(planned))

	out := make([]*types.WorldNode, len(planned))
	for i, n := range planned {
		out[i] = n.Clone()
	}
	result.Decayed = out
	return result, nil
}

// RunDecayLoop applies Decay every interval until ctx is cancelled. Failed
// passes are logged and retried on the next tick.
func (c *Client) RunDecayLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("decay interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Decay(ctx, c.clock()); err != nil && ctx.Err() == nil {
				c.logger.Warn("Decay pass failed", "error", err)
			}
		}
	}
}

// StartDecayLoop runs RunDecayLoop in a goroutine. The returned channel is
// closed when the loop has stopped.
func (c *Client) StartDecayLoop(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.RunDecayLoop(ctx, interval); err != nil {
			c.logger.Error("Decay loop stopped", "error", err)
		}
	}()
	return done
}

// Annotate attaches a correction note to a robot node. The node itself is
// never modified.
func (c *Client) Annotate(ctx context.Context, robotNodeID, kind, note string) (*types.Annotation, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if strings.TrimSpace(note) == "" {
		return nil, &types.ValidationError{Message: "annotation note cannot be empty"}
	}
	if kind == "" {
		kind = "note"
	}

	c.mu.RLock()
	exists := c.log.Contains(robotNodeID)
	c.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, robotNodeID)
	}

	a := &types.Annotation{
		ID:          c.config.NewID(),
		RobotNodeID: robotNodeID,
		Time:        c.clock(),
		Kind:        kind,
		Note:        note,
	}
	nodeRec := driver.AnnotationRecord(a, c.seq+1)
	edgeRec := driver.AnnotationEdgeRecord(a, c.seq+2)

	err := c.persist(ctx, "annotate", func(tx driver.Tx) error {
		if err := tx.CreateNode(nodeRec); err != nil {
			return err
		}
		return tx.CreateEdge(edgeRec)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.log.Annotate(a); err != nil {
		return nil, fmt.Errorf("memory diverged from store: %w", err)
	}
	c.seq += 2
	return a.Clone(), nil
}

// Verify checks the structural invariants of the current graph.
func (c *Client) Verify(ctx context.Context) ([]relations.Violation, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return VerifySnapshot(snap, c.mode(), c.config.MatchRadius), nil
}

// VerifySnapshot checks the structural invariants of a snapshot, such as one
// loaded directly from a store. radius is the match radius the graph was
// built with.
func VerifySnapshot(snap *types.Snapshot, mode spatial.Mode, radius float64) []relations.Violation {
	return relations.Verify(snapshotGraph{snap}, mode, radius)
}

type snapshotGraph struct {
	s *types.Snapshot
}

func (g snapshotGraph) RobotNodes() []*types.RobotNode       { return g.s.RobotNodes }
func (g snapshotGraph) TemporalEdges() []*types.TemporalEdge { return g.s.TemporalEdges }
func (g snapshotGraph) WorldNodes() []*types.WorldNode       { return g.s.WorldNodes }
func (g snapshotGraph) SpatialEdges() []*types.SpatialEdge   { return g.s.SpatialEdges }

// Stats returns counts about the memory graph.
func (c *Client) Stats(ctx context.Context) (*types.GraphStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &types.GraphStats{
		RobotNodes:   c.log.Len(),
		WorldNodes:   c.registry.Len(),
		SpatialEdges: c.relations.Len(),
		EntitiesBy:   make(map[types.EntityType]int),
	}
	if stats.RobotNodes > 1 {
		stats.TemporalEdges = stats.RobotNodes - 1
	}
	for _, n := range c.registry.All(nil) {
		stats.EntitiesBy[n.Type]++
	}
	return stats, nil
}

// ErrNotEmpty is returned by Restore on a client that already holds data.
var ErrNotEmpty = errors.New("memory is not empty")

// Restore rebuilds the in-memory graph from the store, typically on startup.
// The stored temporal chain must match the time order of the robot nodes.
func (c *Client) Restore(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.log.Len() > 0 || c.registry.Len() > 0 {
		return ErrNotEmpty
	}

	rec, err := driver.Load(ctx, c.store)
	if err != nil {
		return fmt.Errorf("failed to load memory from %s store: %w", c.store.Provider(), err)
	}
	snap := rec.Snapshot

	// Rebuild into fresh structures so a failure leaves the client empty.
	fresh, err := NewClient(c.store, c.config, c.logger)
	if err != nil {
		return err
	}
	for _, n := range snap.RobotNodes {
		if _, err := fresh.log.Append(n); err != nil {
			return fmt.Errorf("failed to restore robot node %s: %w", n.ID, err)
		}
	}
	stored := make(map[types.TemporalEdge]struct{}, len(snap.TemporalEdges))
	for _, e := range snap.TemporalEdges {
		stored[*e] = struct{}{}
	}
	for _, e := range fresh.log.TemporalEdges() {
		if _, ok := stored[*e]; !ok {
			return fmt.Errorf("failed to restore trajectory: missing temporal edge %s", driver.TemporalEdgeID(e))
		}
	}
	if err := fresh.registry.Apply(snap.WorldNodes, nil); err != nil {
		return fmt.Errorf("failed to restore entities: %w", err)
	}
	if err := fresh.relations.Add(snap.SpatialEdges...); err != nil {
		return fmt.Errorf("failed to restore spatial edges: %w", err)
	}
	for _, a := range snap.Annotations {
		if err := fresh.log.Annotate(a); err != nil {
			return fmt.Errorf("failed to restore annotation %s: %w", a.ID, err)
		}
	}

	c.log, c.registry, c.relations = fresh.log, fresh.registry, fresh.relations
	c.seq = rec.LastSeq
	c.metrics.Sizes(c.log.Len(), c.registry.Len())
	c.logger.Info("Memory restored from store",
		"provider", c.store.Provider(),
		"robot_nodes", c.log.Len(),
		"entities", c.registry.Len(),
		"spatial_edges", c.relations.Len())
	return nil
}
