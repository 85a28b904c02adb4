package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore implements GraphStore on a Neo4j (or Bolt-compatible) server.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a new Neo4j store instance.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jStore{
		client:   driver,
		database: database,
	}, nil
}

func (n *Neo4jStore) Provider() GraphProvider {
	return GraphProviderNeo4j
}

// VerifyConnectivity checks that the server is reachable.
func (n *Neo4jStore) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

// CreateIndices creates uniqueness constraints on node ids.
func (n *Neo4jStore) CreateIndices(ctx context.Context) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	for _, kind := range []NodeKind{RobotNodeKind, WorldNodeKind, AnnotationKind} {
		query := fmt.Sprintf("CREATE CONSTRAINT %s_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", kind, kind)
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create constraint for %s: %w", kind, err)
		}
	}
	return nil
}

// ExecuteWrite runs fn in one managed write transaction. The driver retries
// transient failures itself; anything it gives up on and classifies as
// retryable is reported as ErrTransient.
func (n *Neo4jStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(&neo4jTx{ctx: ctx, tx: tx})
	})
	if err != nil && neo4j.IsRetryable(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// Query reads every node with a label or every relationship with a type.
func (n *Neo4jStore) Query(ctx context.Context, pattern Pattern) (*Result, error) {
	if err := pattern.validate(); err != nil {
		return nil, err
	}

	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var query string
		if pattern.NodeKind != "" {
			query = fmt.Sprintf(`MATCH (n:%s) RETURN n ORDER BY n.seq`, pattern.NodeKind)
		} else {
			query = fmt.Sprintf(`
				MATCH (a)-[r:%s]->(b)
				RETURN a.id AS source, b.id AS target, r
				ORDER BY r.seq
			`, pattern.EdgeKind)
		}
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, ok := AsRecordSlice(result)
	if !ok {
		return nil, NewTypeConversionError("[]*db.Record", fmt.Sprintf("%T", result), "")
	}

	out := &Result{}
	for _, record := range records {
		if pattern.NodeKind != "" {
			v, _ := record.Get("n")
			node, ok := AsDBNode(v)
			if !ok {
				return nil, NewTypeConversionError("dbtype.Node", fmt.Sprintf("%T", v), "n")
			}
			rec, err := nodeFromProps(pattern.NodeKind, node.Props)
			if err != nil {
				return nil, err
			}
			out.Nodes = append(out.Nodes, rec)
			continue
		}

		v, _ := record.Get("r")
		rel, ok := AsDBRelationship(v)
		if !ok {
			return nil, NewTypeConversionError("dbtype.Relationship", fmt.Sprintf("%T", v), "r")
		}
		source, _ := record.Get("source")
		target, _ := record.Get("target")
		rec, err := edgeFromProps(pattern, rel.Props, source, target)
		if err != nil {
			return nil, err
		}
		out.Edges = append(out.Edges, rec)
	}
	return out, nil
}

func nodeFromProps(kind NodeKind, props map[string]any) (NodeRecord, error) {
	props = copyProps(props)
	id, err := MustString(props, "id")
	if err != nil {
		return NodeRecord{}, err
	}
	seq, err := MustInt64(props, "seq")
	if err != nil {
		return NodeRecord{}, err
	}
	delete(props, "id")
	delete(props, "seq")
	return NodeRecord{ID: id, Kind: kind, Seq: seq, Properties: props}, nil
}

func edgeFromProps(pattern Pattern, props map[string]any, source, target any) (EdgeRecord, error) {
	props = copyProps(props)
	id, err := MustString(props, "id")
	if err != nil {
		return EdgeRecord{}, err
	}
	seq, err := MustInt64(props, "seq")
	if err != nil {
		return EdgeRecord{}, err
	}
	src, ok := AsString(source)
	if !ok {
		return EdgeRecord{}, NewTypeConversionError("string", fmt.Sprintf("%T", source), "source")
	}
	dst, ok := AsString(target)
	if !ok {
		return EdgeRecord{}, NewTypeConversionError("string", fmt.Sprintf("%T", target), "target")
	}
	delete(props, "id")
	delete(props, "seq")
	return EdgeRecord{ID: id, Kind: pattern.EdgeKind, SourceID: src, TargetID: dst, Seq: seq, Properties: props}, nil
}

func (n *Neo4jStore) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

type neo4jTx struct {
	ctx context.Context
	tx  neo4j.ManagedTransaction
}

// CreateNode merges on id so a transaction replayed by the driver stays idempotent.
func (t *neo4jTx) CreateNode(node NodeRecord) error {
	if err := checkNode(node); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		MERGE (n:%s {id: $id})
		ON CREATE SET n.seq = $seq
		SET n += $properties
	`, node.Kind)
	_, err := t.tx.Run(t.ctx, query, map[string]any{
		"id":         node.ID,
		"seq":        node.Seq,
		"properties": node.Properties,
	})
	return err
}

func (t *neo4jTx) UpdateNode(node NodeRecord) error {
	if err := checkNode(node); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		MATCH (n:%s {id: $id})
		SET n += $properties
		RETURN count(n) AS updated
	`, node.Kind)
	res, err := t.tx.Run(t.ctx, query, map[string]any{
		"id":         node.ID,
		"properties": node.Properties,
	})
	if err != nil {
		return err
	}
	record, err := res.Single(t.ctx)
	if err != nil {
		return err
	}
	v, _ := record.Get("updated")
	if count, _ := AsInt64(v); count == 0 {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, node.Kind, node.ID)
	}
	return nil
}

func (t *neo4jTx) CreateEdge(edge EdgeRecord) error {
	if err := checkEdge(edge); err != nil {
		return err
	}
	kinds := edgeEndpoints[edge.Kind]
	query := fmt.Sprintf(`
		MATCH (a:%s {id: $source}), (b:%s {id: $target})
		MERGE (a)-[r:%s {id: $id}]->(b)
		ON CREATE SET r.seq = $seq
		SET r += $properties
		RETURN count(r) AS created
	`, kinds[0], kinds[1], edge.Kind)
	res, err := t.tx.Run(t.ctx, query, map[string]any{
		"source":     edge.SourceID,
		"target":     edge.TargetID,
		"id":         edge.ID,
		"seq":        edge.Seq,
		"properties": edge.Properties,
	})
	if err != nil {
		return err
	}
	record, err := res.Single(t.ctx)
	if err != nil {
		return err
	}
	v, _ := record.Get("created")
	if count, _ := AsInt64(v); count == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrMissingEndpoint, edge.SourceID, edge.TargetID)
	}
	return nil
}
