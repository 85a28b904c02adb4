// Package trajectory implements the append-only robot trajectory log.
//
// RobotNodes are stored in an arena ordered by time and indexed by id. The
// temporal chain is implicit in the arena order: node i links to node i+1.
// Nothing is ever removed or reordered; corrections are Annotations.
//
// Log is not safe for concurrent use. The memory client serialises writers and
// guards readers with its own lock.
package trajectory

import (
	"fmt"
	"sort"
	"time"

	"github.com/soundprediction/robomem/pkg/types"
)

// Log is the ordered sequence of RobotNodes.
type Log struct {
	nodes       []*types.RobotNode
	index       map[string]int
	annotations map[string][]*types.Annotation
}

// New creates an empty log.
func New() *Log {
	return &Log{
		index:       make(map[string]int),
		annotations: make(map[string][]*types.Annotation),
	}
}

// Len returns the number of nodes.
func (l *Log) Len() int {
	return len(l.nodes)
}

// Tail returns the newest node without copying, or nil when empty.
func (l *Log) Tail() *types.RobotNode {
	if len(l.nodes) == 0 {
		return nil
	}
	return l.nodes[len(l.nodes)-1]
}

// CheckAppend reports whether a node at time t may be appended.
func (l *Log) CheckAppend(t time.Time) error {
	if tail := l.Tail(); tail != nil && !t.After(tail.Time) {
		return types.NewObservationError(t, tail.Time)
	}
	return nil
}

// Append adds a node to the end of the log and returns the temporal edge from
// the previous tail, or nil for the first node.
func (l *Log) Append(node *types.RobotNode) (*types.TemporalEdge, error) {
	if err := node.Validate(); err != nil {
		return nil, err
	}
	if _, exists := l.index[node.ID]; exists {
		return nil, fmt.Errorf("robot node %s already in log", node.ID)
	}
	if err := l.CheckAppend(node.Time); err != nil {
		return nil, err
	}

	var edge *types.TemporalEdge
	if tail := l.Tail(); tail != nil {
		edge = &types.TemporalEdge{SourceID: tail.ID, TargetID: node.ID}
	}

	l.index[node.ID] = len(l.nodes)
	l.nodes = append(l.nodes, node)
	return edge, nil
}

// Get returns a copy of the node with the given id.
func (l *Log) Get(id string) (*types.RobotNode, error) {
	i, ok := l.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, id)
	}
	return l.nodes[i].Clone(), nil
}

// Latest returns a copy of the newest node.
func (l *Log) Latest() (*types.RobotNode, error) {
	tail := l.Tail()
	if tail == nil {
		return nil, fmt.Errorf("%w: trajectory is empty", types.ErrNodeNotFound)
	}
	return tail.Clone(), nil
}

// NodeAt returns the nearest node at or before t.
func (l *Log) NodeAt(t time.Time) (*types.RobotNode, error) {
	// first node strictly after t
	i := sort.Search(len(l.nodes), func(i int) bool { return l.nodes[i].Time.After(t) })
	if i == 0 {
		return nil, fmt.Errorf("%w: no node at or before %s", types.ErrNodeNotFound, t.Format(time.RFC3339Nano))
	}
	return l.nodes[i-1].Clone(), nil
}

// NodesInRange returns the nodes with t0 <= time <= t1 in chronological order.
func (l *Log) NodesInRange(t0, t1 time.Time) ([]*types.RobotNode, error) {
	if t0.After(t1) {
		return nil, types.ErrInvalidTimeRange
	}
	lo := sort.Search(len(l.nodes), func(i int) bool { return !l.nodes[i].Time.Before(t0) })
	hi := sort.Search(len(l.nodes), func(i int) bool { return l.nodes[i].Time.After(t1) })

	out := make([]*types.RobotNode, 0, hi-lo)
	for _, n := range l.nodes[lo:hi] {
		out = append(out, n.Clone())
	}
	return out, nil
}

// Nodes returns copies of every node in order.
func (l *Log) Nodes() []*types.RobotNode {
	out := make([]*types.RobotNode, len(l.nodes))
	for i, n := range l.nodes {
		out[i] = n.Clone()
	}
	return out
}

// TemporalEdges returns the chain edges in order.
func (l *Log) TemporalEdges() []*types.TemporalEdge {
	if len(l.nodes) < 2 {
		return []*types.TemporalEdge{}
	}
	out := make([]*types.TemporalEdge, 0, len(l.nodes)-1)
	for i := 1; i < len(l.nodes); i++ {
		out = append(out, &types.TemporalEdge{SourceID: l.nodes[i-1].ID, TargetID: l.nodes[i].ID})
	}
	return out
}

// Contains reports whether a node with id exists.
func (l *Log) Contains(id string) bool {
	_, ok := l.index[id]
	return ok
}

// Annotate attaches a correction note to an existing node.
func (l *Log) Annotate(a *types.Annotation) error {
	if a.ID == "" {
		return types.ErrEmptyID
	}
	if !l.Contains(a.RobotNodeID) {
		return fmt.Errorf("%w: %s", types.ErrNodeNotFound, a.RobotNodeID)
	}
	l.annotations[a.RobotNodeID] = append(l.annotations[a.RobotNodeID], a)
	return nil
}

// Annotations returns the notes attached to a node, oldest first.
func (l *Log) Annotations(robotNodeID string) []*types.Annotation {
	src := l.annotations[robotNodeID]
	out := make([]*types.Annotation, len(src))
	for i, a := range src {
		out[i] = a.Clone()
	}
	return out
}

// AllAnnotations returns every annotation ordered by node position then age.
func (l *Log) AllAnnotations() []*types.Annotation {
	var out []*types.Annotation
	for _, n := range l.nodes {
		out = append(out, l.Annotations(n.ID)...)
	}
	return out
}
