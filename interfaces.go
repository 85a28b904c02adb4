package robomem

import (
	"context"
	"time"

	"github.com/soundprediction/robomem/pkg/relations"
	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// This file defines focused interfaces. The Memory interface is composed from
// them; consumers should depend on the smallest one that meets their needs.

// Ingester accepts observations. The perception tick driver and the HTTP API
// depend only on this.
type Ingester interface {
	// Ingest adds one observation to the memory graph.
	Ingest(ctx context.Context, obs types.Observation) (*types.IngestResult, error)

	// Flush releases every observation held in the reorder buffer.
	Flush(ctx context.Context) ([]*types.IngestResult, error)
}

// TrajectoryQuerier provides read-only access to the robot trajectory.
type TrajectoryQuerier interface {
	// NodeAt returns the nearest robot node at or before t.
	NodeAt(ctx context.Context, t time.Time) (*types.RobotNode, error)

	// NodesInRange returns the robot nodes with t0 <= time <= t1 in order.
	NodesInRange(ctx context.Context, t0, t1 time.Time) ([]*types.RobotNode, error)

	// Latest returns the newest robot node.
	Latest(ctx context.Context) (*types.RobotNode, error)

	GetRobotNode(ctx context.Context, id string) (*types.RobotNode, error)
	TemporalEdges(ctx context.Context) ([]*types.TemporalEdge, error)
	Annotations(ctx context.Context, robotNodeID string) ([]*types.Annotation, error)
}

// EntityQuerier provides read-only access to world entities and the spatial
// edges that observed them.
type EntityQuerier interface {
	GetEntity(ctx context.Context, id string) (*types.WorldNode, error)

	// Entities lists entities passing filter; nil lists all.
	Entities(ctx context.Context, filter *types.EntityFilter) ([]*types.WorldNode, error)

	// EntitiesNear returns observed entities within radius of p, nearest first.
	EntitiesNear(ctx context.Context, p spatial.Position, radius float64) ([]types.NearbyEntity, error)

	// ObservationHistory returns the spatial edges into an entity in
	// chronological order.
	ObservationHistory(ctx context.Context, entityID string) ([]*types.SpatialEdge, error)

	// EdgesFrom returns the spatial edges recorded by a robot node.
	EdgesFrom(ctx context.Context, robotNodeID string) ([]*types.SpatialEdge, error)

	// Describe renders the belief state as prompt text.
	Describe(ctx context.Context) (string, error)
}

// MemoryAdmin provides maintenance operations.
type MemoryAdmin interface {
	// Annotate attaches a correction note to a robot node.
	Annotate(ctx context.Context, robotNodeID, kind, note string) (*types.Annotation, error)

	// Decay applies confidence decay as of now.
	Decay(ctx context.Context, now time.Time) (*types.DecayResult, error)

	Snapshot(ctx context.Context) (*types.Snapshot, error)
	Stats(ctx context.Context) (*types.GraphStats, error)
	Verify(ctx context.Context) ([]relations.Violation, error)

	// Restore rebuilds the memory from its graph store.
	Restore(ctx context.Context) error

	// Close closes the graph store.
	Close(ctx context.Context) error
}

// Ensure Client implements Memory.
var _ Memory = (*Client)(nil)
