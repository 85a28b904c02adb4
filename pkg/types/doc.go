// Package types defines the core data types for the robomem memory graph.
//
// This package contains the fundamental types used throughout robomem:
//   - RobotNode: one timestamped robot state with its SensorData
//   - WorldNode: the current belief about a target, obstacle or other entity
//   - TemporalEdge: the chronological link between consecutive RobotNodes
//   - SpatialEdge: an observation link from a RobotNode to a WorldNode
//   - Observation and EntityMention: the ingestion input
//
// # Ownership
//
// RobotNodes, TemporalEdges and SpatialEdges are append-only. WorldNodes are
// updated in place by merges and decay but never removed. Values handed out by
// the memory are copies; use the Clone methods when passing them on.
//
// # Errors
//
// Sentinel errors (ErrOutOfOrderObservation, ErrInvalidSpatialInput, ...) are
// wrapped by the typed ObservationError and SpatialInputError so callers can use
// errors.Is and errors.As:
//
//	if errors.Is(err, types.ErrOutOfOrderObservation) {
//	    // drop the stale tick
//	}
package types
