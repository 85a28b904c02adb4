package robomem

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/soundprediction/robomem/pkg/driver"
	"github.com/soundprediction/robomem/pkg/registry"
	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Ingest adds one observation to the memory graph.
//
// The observation becomes a new RobotNode linked to the previous trajectory
// tail. Each mention is resolved to an existing WorldNode or creates one, and is
// recorded as a SpatialEdge. All effects are persisted in a single store
// transaction before they become visible to readers.
//
// With a reorder tolerance configured the observation is buffered instead and
// the result is nil until it is released by a later observation or by Flush.
func (c *Client) Ingest(ctx context.Context, obs types.Observation) (*types.IngestResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.reorder == nil {
		return c.ingest(ctx, obs)
	}

	if err := c.admit(&obs); err != nil {
		return nil, err
	}
	if err := c.reorder.push(obs); err != nil {
		c.metrics.Rejected("out_of_order")
		return nil, err
	}
	defer func() { c.metrics.Buffered(c.reorder.Len()) }()

	results, err := c.release(ctx, false)
	for _, r := range results {
		if r.RobotNode.Time.Equal(obs.Time) {
			return r, err
		}
	}
	return nil, err
}

// Flush releases every buffered observation in time order. It is a no-op
// without a reorder tolerance.
func (c *Client) Flush(ctx context.Context) ([]*types.IngestResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.reorder == nil {
		return nil, nil
	}
	defer func() { c.metrics.Buffered(c.reorder.Len()) }()
	return c.release(ctx, true)
}

// Pending returns the number of buffered observations.
func (c *Client) Pending() int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.reorder == nil {
		return 0
	}
	return c.reorder.Len()
}

// release ingests due observations, or all of them when all is set. A store
// failure stops the release and keeps the failed observation buffered.
func (c *Client) release(ctx context.Context, all bool) ([]*types.IngestResult, error) {
	var results []*types.IngestResult
	for c.reorder.Len() > 0 && (all || c.reorder.due()) {
		obs := c.reorder.pop()
		res, err := c.ingest(ctx, obs)
		if err != nil {
			if errors.Is(err, types.ErrStoreTransactionFailure) {
				c.reorder.requeue(obs)
				return results, err
			}
			c.logger.Warn("Dropping buffered observation", "time", obs.Time, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// admit validates obs and checks it against the trajectory tail. Entity types
// are normalised in place.
func (c *Client) admit(obs *types.Observation) error {
	if err := validateObservation(obs); err != nil {
		c.metrics.Rejected("invalid")
		return err
	}
	if err := c.log.CheckAppend(obs.Time); err != nil {
		c.metrics.Rejected("out_of_order")
		return err
	}
	return nil
}

// ingest plans, persists and applies one observation. writeMu must be held.
func (c *Client) ingest(ctx context.Context, obs types.Observation) (*types.IngestResult, error) {
	start := c.clock()
	if err := c.admit(&obs); err != nil {
		return nil, err
	}

	node := &types.RobotNode{
		ID:           c.config.NewID(),
		Time:         obs.Time,
		Pose:         obs.Pose,
		Orientation:  obs.Orientation,
		Observations: types.NewSensorData(obs.VisualDescription, obs.LidarDistances, obs.LidarDescription),
	}

	var temporal *types.TemporalEdge
	if tail := c.log.Tail(); tail != nil {
		temporal = &types.TemporalEdge{SourceID: tail.ID, TargetID: node.ID}
	}

	stage := c.registry.Stage()
	edges := make([]*types.SpatialEdge, 0, len(obs.Mentions))
	var ambiguities []types.Ambiguity

	for i, m := range obs.Mentions {
		estimate := spatial.ToAbsolute(m.Relative, obs.Pose, obs.Orientation, c.mode())
		res := stage.Resolve(registry.Mention{
			Index:       i,
			Type:        m.Type,
			Estimate:    estimate,
			Weight:      m.Weight(),
			Description: m.Description,
			Time:        obs.Time,
		})
		if res.Ambiguity != nil {
			ambiguities = append(ambiguities, *res.Ambiguity)
			c.reportAmbiguity(node, *res.Ambiguity)
		}
		var matchDistance float64
		if res.Before != nil {
			matchDistance = spatial.Distance(res.Before.GlobalPosition, estimate, c.mode())
		}
		edges = append(edges, &types.SpatialEdge{
			ID:            c.config.NewID(),
			SourceID:      node.ID,
			TargetID:      res.Entity.ID,
			Time:          obs.Time,
			RelativePos:   m.Relative,
			Confidence:    m.Weight(),
			Estimate:      estimate,
			MatchDistance: matchDistance,
			Description:   m.Description,
		})
	}
	created, updated := stage.Changes()

	// Records are built once so that a retried transaction writes the same data.
	seq := c.seq
	next := func() int64 {
		seq++
		return seq
	}
	nodeRecords := []driver.NodeRecord{driver.RobotNodeRecord(node, next())}
	for _, n := range created {
		nodeRecords = append(nodeRecords, driver.WorldNodeRecord(n, next()))
	}
	updateRecords := make([]driver.NodeRecord, 0, len(updated))
	for _, n := range updated {
		updateRecords = append(updateRecords, driver.WorldNodeRecord(n, 0))
	}
	var edgeRecords []driver.EdgeRecord
	if temporal != nil {
		edgeRecords = append(edgeRecords, driver.TemporalEdgeRecord(temporal, next()))
	}
	for _, e := range edges {
		edgeRecords = append(edgeRecords, driver.SpatialEdgeRecord(e, next()))
	}

	c.logger.Debug("Persisting observation",
		"robot_node", node.ID,
		"created", len(created),
		"updated", len(updated),
		"edges", len(edgeRecords))

	err := c.persist(ctx, "ingest", func(tx driver.Tx) error {
		for _, rec := range nodeRecords {
			if err := tx.CreateNode(rec); err != nil {
				return err
			}
		}
		for _, rec := range updateRecords {
			if err := tx.UpdateNode(rec); err != nil {
				return err
			}
		}
		for _, rec := range edgeRecords {
			if err := tx.CreateEdge(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.apply(node, created, updated, edges, seq); err != nil {
		return nil, err
	}

	c.metrics.Ingested(c.clock().Sub(start), len(created), len(updated))
	c.logger.Debug("Observation persisted", "robot_node", node.ID, "time", node.Time)

	result := &types.IngestResult{
		RobotNode:    node.Clone(),
		TemporalEdge: temporal,
		Created:      created,
		Updated:      updated,
		SpatialEdges: make([]*types.SpatialEdge, len(edges)),
		Ambiguities:  ambiguities,
	}
	for i, e := range edges {
		result.SpatialEdges[i] = e.Clone()
	}
	return result, nil
}

// apply makes a persisted observation visible to readers.
func (c *Client) apply(node *types.RobotNode, created, updated []*types.WorldNode, edges []*types.SpatialEdge, seq int64) error {
	if err := c.relations.Check(edges); err != nil {
		return fmt.Errorf("memory diverged from store: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.log.Append(node); err != nil {
		return fmt.Errorf("memory diverged from store: %w", err)
	}
	if err := c.registry.Apply(created, updated); err != nil {
		return fmt.Errorf("memory diverged from store: %w", err)
	}
	if err := c.relations.Add(edges...); err != nil {
		return fmt.Errorf("memory diverged from store: %w", err)
	}
	c.seq = seq
	c.metrics.Sizes(c.log.Len(), c.registry.Len())
	return nil
}

func (c *Client) reportAmbiguity(node *types.RobotNode, a types.Ambiguity) {
	c.metrics.Ambiguity(a.Rule)
	attrs := []any{
		"robot_node", node.ID,
		"mention", a.MentionIndex,
		"candidates", a.CandidateIDs,
		"chosen", a.ChosenID,
		"rule", a.Rule,
	}
	if a.Unresolved() {
		c.logger.Warn(types.ErrAmbiguousEntityMatch.Error(), attrs...)
		return
	}
	c.logger.Debug("Entity match decided by tie-break", attrs...)
}

// validateObservation rejects non-finite geometry and normalises mention
// types. Unknown types become "other".
func validateObservation(obs *types.Observation) error {
	if obs.Time.IsZero() {
		return types.ErrZeroTime
	}
	if !obs.Pose.IsFinite() {
		return types.NewSpatialInputError("pose", "must be finite")
	}
	if !spatial.ValidOrientation(obs.Orientation) {
		return types.NewSpatialInputError("orientation", "must be finite and in [0, 2π)")
	}
	for i, d := range obs.LidarDistances {
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return types.NewSpatialInputError(fmt.Sprintf("lidar_distances[%d]", i), "must be finite and non-negative")
		}
	}

	if len(obs.Mentions) == 0 {
		return nil
	}
	mentions := make([]types.EntityMention, len(obs.Mentions))
	for i, m := range obs.Mentions {
		field := fmt.Sprintf("mentions[%d]", i)
		if !m.Relative.IsFinite() {
			return types.NewSpatialInputError(field+".relative", "must be finite")
		}
		if m.Relative.Distance < 0 {
			return types.NewSpatialInputError(field+".relative.distance", "must be non-negative")
		}
		if math.IsNaN(m.Confidence) || math.IsInf(m.Confidence, 0) {
			return types.NewSpatialInputError(field+".confidence", "must be finite")
		}
		m.Type = types.ParseEntityType(string(m.Type))
		mentions[i] = m
	}
	// the caller's slice is left untouched
	obs.Mentions = mentions
	return nil
}
