package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soundprediction/robomem/pkg/types"
)

// GraphProvider represents the type of graph store backend
type GraphProvider string

const (
	GraphProviderMemory GraphProvider = "memory"
	GraphProviderNeo4j  GraphProvider = "neo4j"
	GraphProviderBadger GraphProvider = "badger"
)

// NodeKind is the label of a stored node.
type NodeKind string

const (
	RobotNodeKind  NodeKind = "RobotNode"
	WorldNodeKind  NodeKind = "WorldNode"
	AnnotationKind NodeKind = "Annotation"
)

// Store errors
var (
	// ErrTransient marks a failure that may succeed when retried.
	ErrTransient       = errors.New("transient store error")
	ErrRecordExists    = errors.New("record already exists")
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidKind     = errors.New("invalid record kind")
	ErrStoreClosed     = errors.New("store is closed")
	ErrMissingEndpoint = errors.New("edge endpoint does not exist")
)

// NodeRecord is the persisted form of a node.
type NodeRecord struct {
	ID   string
	Kind NodeKind
	// Seq orders records by creation. It is set on create and never updated.
	Seq        int64
	Properties map[string]any
}

// EdgeRecord is the persisted form of an edge.
type EdgeRecord struct {
	ID         string
	Kind       types.EdgeType
	SourceID   string
	TargetID   string
	Seq        int64
	Properties map[string]any
}

// Tx is one store transaction. Its writes become visible together when the
// function passed to ExecuteWrite returns nil and are discarded otherwise.
type Tx interface {
	CreateNode(node NodeRecord) error
	// UpdateNode merges Properties into an existing node.
	UpdateNode(node NodeRecord) error
	CreateEdge(edge EdgeRecord) error
}

// Pattern selects records for Query. Exactly one of NodeKind and EdgeKind is set.
type Pattern struct {
	NodeKind NodeKind
	EdgeKind types.EdgeType
}

// Result holds the records matched by a Pattern, ordered by Seq.
type Result struct {
	Nodes []NodeRecord
	Edges []EdgeRecord
}

// GraphStore is the persistence adapter behind the memory graph.
type GraphStore interface {
	ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error
	Query(ctx context.Context, pattern Pattern) (*Result, error)
	Close(ctx context.Context) error
	Provider() GraphProvider
}

// edgeEndpoints lists the node kinds each edge kind connects.
var edgeEndpoints = map[types.EdgeType][2]NodeKind{
	types.TemporalEdgeType:   {RobotNodeKind, RobotNodeKind},
	types.SpatialEdgeType:    {RobotNodeKind, WorldNodeKind},
	types.AnnotationEdgeType: {RobotNodeKind, AnnotationKind},
}

func validNodeKind(k NodeKind) bool {
	switch k {
	case RobotNodeKind, WorldNodeKind, AnnotationKind:
		return true
	}
	return false
}

func (p Pattern) validate() error {
	switch {
	case p.NodeKind != "" && p.EdgeKind != "":
		return fmt.Errorf("%w: pattern selects both nodes and edges", ErrInvalidKind)
	case p.NodeKind != "":
		if !validNodeKind(p.NodeKind) {
			return fmt.Errorf("%w: %s", ErrInvalidKind, p.NodeKind)
		}
	case p.EdgeKind != "":
		if _, ok := edgeEndpoints[p.EdgeKind]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidKind, p.EdgeKind)
		}
	default:
		return fmt.Errorf("%w: empty pattern", ErrInvalidKind)
	}
	return nil
}

func checkNode(n NodeRecord) error {
	if n.ID == "" {
		return types.ErrEmptyID
	}
	if !validNodeKind(n.Kind) {
		return fmt.Errorf("%w: %s", ErrInvalidKind, n.Kind)
	}
	return nil
}

func checkEdge(e EdgeRecord) error {
	if e.ID == "" || e.SourceID == "" || e.TargetID == "" {
		return types.ErrEmptyID
	}
	if _, ok := edgeEndpoints[e.Kind]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidKind, e.Kind)
	}
	return nil
}

func sortResult(r *Result) {
	sort.SliceStable(r.Nodes, func(i, j int) bool { return r.Nodes[i].Seq < r.Nodes[j].Seq })
	sort.SliceStable(r.Edges, func(i, j int) bool { return r.Edges[i].Seq < r.Edges[j].Seq })
}

func copyProps(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
