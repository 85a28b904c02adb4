package driver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/soundprediction/robomem/pkg/types"
)

// Recovered is the graph read back from a store.
type Recovered struct {
	Snapshot *types.Snapshot
	// LastSeq is the highest record sequence number seen.
	LastSeq int64
}

// Load reads the whole memory graph from store.
func Load(ctx context.Context, store GraphStore) (*Recovered, error) {
	out := &Recovered{Snapshot: &types.Snapshot{TakenAt: time.Now()}}
	snap := out.Snapshot

	track := func(seq int64) {
		if seq > out.LastSeq {
			out.LastSeq = seq
		}
	}

	nodes := func(kind NodeKind, decode func(NodeRecord) error) error {
		res, err := store.Query(ctx, Pattern{NodeKind: kind})
		if err != nil {
			return fmt.Errorf("failed to load %s nodes: %w", kind, err)
		}
		for _, rec := range res.Nodes {
			track(rec.Seq)
			if err := decode(rec); err != nil {
				return err
			}
		}
		return nil
	}
	edges := func(kind types.EdgeType, decode func(EdgeRecord) error) error {
		res, err := store.Query(ctx, Pattern{EdgeKind: kind})
		if err != nil {
			return fmt.Errorf("failed to load %s edges: %w", kind, err)
		}
		for _, rec := range res.Edges {
			track(rec.Seq)
			if err := decode(rec); err != nil {
				return err
			}
		}
		return nil
	}

	err := nodes(RobotNodeKind, func(rec NodeRecord) error {
		n, err := DecodeRobotNode(rec)
		if err == nil {
			snap.RobotNodes = append(snap.RobotNodes, n)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	err = nodes(WorldNodeKind, func(rec NodeRecord) error {
		n, err := DecodeWorldNode(rec)
		if err == nil {
			snap.WorldNodes = append(snap.WorldNodes, n)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	err = nodes(AnnotationKind, func(rec NodeRecord) error {
		a, err := DecodeAnnotation(rec)
		if err == nil {
			snap.Annotations = append(snap.Annotations, a)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	err = edges(types.TemporalEdgeType, func(rec EdgeRecord) error {
		e, err := DecodeTemporalEdge(rec)
		if err == nil {
			snap.TemporalEdges = append(snap.TemporalEdges, e)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	err = edges(types.SpatialEdgeType, func(rec EdgeRecord) error {
		e, err := DecodeSpatialEdge(rec)
		if err == nil {
			snap.SpatialEdges = append(snap.SpatialEdges, e)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	// annotation edges carry nothing the annotation node does not
	if err := edges(types.AnnotationEdgeType, func(EdgeRecord) error { return nil }); err != nil {
		return nil, err
	}

	// trajectory order is time order even if sequence numbers were reused
	sort.SliceStable(snap.RobotNodes, func(i, j int) bool {
		return snap.RobotNodes[i].Time.Before(snap.RobotNodes[j].Time)
	})
	return out, nil
}
