// Package driver provides the graph store adapters behind the robot memory.
//
// The memory graph is persisted as labelled nodes (RobotNode, WorldNode,
// Annotation) and typed edges (NEXT, OBSERVED, ANNOTATED). Every mutation of
// the memory is written as one store transaction through GraphStore.ExecuteWrite
// before it becomes visible to readers.
//
// # Supported Stores
//
//   - MemoryStore: in-process maps, the default
//   - Neo4jStore: Neo4j or any Bolt-compatible server
//   - BadgerStore: embedded badger key-value store, on disk or in memory
//
// # Resilience
//
// NewRetryStore retries transient failures with exponential backoff and
// NewBreakerStore fails fast while the backend is unhealthy. Load rebuilds a
// snapshot of the whole graph from any store.
//
// # Thread Safety
//
// All store implementations are safe for concurrent use from multiple goroutines.
package driver
