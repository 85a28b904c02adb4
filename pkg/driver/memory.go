package driver

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the graph in process memory. Writes are staged per
// transaction and merged only when the transaction function succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[string]NodeRecord
	edges  map[string]EdgeRecord
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]NodeRecord),
		edges: make(map[string]EdgeRecord),
	}
}

func (m *MemoryStore) Provider() GraphProvider {
	return GraphProviderMemory
}

// ExecuteWrite runs fn against a staged view and commits it if fn returns nil.
func (m *MemoryStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	tx := &memoryTx{
		store: m,
		nodes: make(map[string]NodeRecord),
		edges: make(map[string]EdgeRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, n := range tx.nodes {
		m.nodes[id] = n
	}
	for id, e := range tx.edges {
		m.edges[id] = e
	}
	return nil
}

// Query returns copies of the records matching pattern.
func (m *MemoryStore) Query(ctx context.Context, pattern Pattern) (*Result, error) {
	if err := pattern.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	result := &Result{}
	if pattern.NodeKind != "" {
		for _, n := range m.nodes {
			if n.Kind == pattern.NodeKind {
				n.Properties = copyProps(n.Properties)
				result.Nodes = append(result.Nodes, n)
			}
		}
	} else {
		for _, e := range m.edges {
			if e.Kind == pattern.EdgeKind {
				e.Properties = copyProps(e.Properties)
				result.Edges = append(result.Edges, e)
			}
		}
	}
	sortResult(result)
	return result, nil
}

func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memoryTx struct {
	store *MemoryStore
	nodes map[string]NodeRecord
	edges map[string]EdgeRecord
}

func (t *memoryTx) node(id string) (NodeRecord, bool) {
	if n, ok := t.nodes[id]; ok {
		return n, true
	}
	n, ok := t.store.nodes[id]
	return n, ok
}

func (t *memoryTx) CreateNode(node NodeRecord) error {
	if err := checkNode(node); err != nil {
		return err
	}
	if _, exists := t.node(node.ID); exists {
		return fmt.Errorf("%w: node %s", ErrRecordExists, node.ID)
	}
	node.Properties = copyProps(node.Properties)
	t.nodes[node.ID] = node
	return nil
}

func (t *memoryTx) UpdateNode(node NodeRecord) error {
	if err := checkNode(node); err != nil {
		return err
	}
	current, exists := t.node(node.ID)
	if !exists || current.Kind != node.Kind {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, node.Kind, node.ID)
	}
	merged := copyProps(current.Properties)
	for k, v := range node.Properties {
		merged[k] = v
	}
	current.Properties = merged
	t.nodes[node.ID] = current
	return nil
}

func (t *memoryTx) CreateEdge(edge EdgeRecord) error {
	if err := checkEdge(edge); err != nil {
		return err
	}
	if _, exists := t.edges[edge.ID]; exists {
		return fmt.Errorf("%w: edge %s", ErrRecordExists, edge.ID)
	}
	if _, exists := t.store.edges[edge.ID]; exists {
		return fmt.Errorf("%w: edge %s", ErrRecordExists, edge.ID)
	}
	kinds := edgeEndpoints[edge.Kind]
	for i, id := range []string{edge.SourceID, edge.TargetID} {
		n, ok := t.node(id)
		if !ok || n.Kind != kinds[i] {
			return fmt.Errorf("%w: %s %s", ErrMissingEndpoint, kinds[i], id)
		}
	}
	edge.Properties = copyProps(edge.Properties)
	t.edges[edge.ID] = edge
	return nil
}
