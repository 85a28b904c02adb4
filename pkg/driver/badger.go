package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

const (
	badgerNodePrefix = "n/"
	badgerEdgePrefix = "e/"
)

// BadgerStore persists the graph in an embedded badger database. Each
// ExecuteWrite maps to one badger read-write transaction.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore opens a badger database at path. An empty path opens an
// in-memory database.
func NewBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path).WithLogger(&badgerLogger{logger: logger.With("component", "badger")})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func (b *BadgerStore) Provider() GraphProvider {
	return GraphProviderBadger
}

// ExecuteWrite runs fn inside a badger update transaction. Conflicts are
// reported as ErrTransient.
func (b *BadgerStore) ExecuteWrite(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return ErrStoreClosed
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		if err := fn(&badgerTx{txn: txn}); err != nil {
			return err
		}
		return ctx.Err()
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// Query scans the records of one kind.
func (b *BadgerStore) Query(ctx context.Context, pattern Pattern) (*Result, error) {
	if err := pattern.validate(); err != nil {
		return nil, err
	}
	if b.db.IsClosed() {
		return nil, ErrStoreClosed
	}

	result := &Result{}
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerNodePrefix)
		if pattern.EdgeKind != "" {
			prefix = []byte(badgerEdgePrefix)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			if pattern.NodeKind != "" {
				var n NodeRecord
				if err := json.Unmarshal(raw, &n); err != nil {
					return fmt.Errorf("corrupt node %s: %w", it.Item().Key(), err)
				}
				if n.Kind == pattern.NodeKind {
					result.Nodes = append(result.Nodes, n)
				}
				continue
			}
			var e EdgeRecord
			if err := json.Unmarshal(raw, &e); err != nil {
				return fmt.Errorf("corrupt edge %s: %w", it.Item().Key(), err)
			}
			if e.Kind == pattern.EdgeKind {
				result.Edges = append(result.Edges, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortResult(result)
	return result, nil
}

func (b *BadgerStore) Close(ctx context.Context) error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

type badgerTx struct {
	txn *badger.Txn
}

func nodeKey(id string) []byte { return []byte(badgerNodePrefix + id) }
func edgeKey(id string) []byte { return []byte(badgerEdgePrefix + id) }

func (t *badgerTx) getNode(id string) (NodeRecord, bool, error) {
	var n NodeRecord
	item, err := t.txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return n, false, nil
	}
	if err != nil {
		return n, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &n)
	})
	return n, err == nil, err
}

func (t *badgerTx) putNode(n NodeRecord) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", n.ID, err)
	}
	return t.txn.Set(nodeKey(n.ID), raw)
}

func (t *badgerTx) CreateNode(node NodeRecord) error {
	if err := checkNode(node); err != nil {
		return err
	}
	_, exists, err := t.getNode(node.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: node %s", ErrRecordExists, node.ID)
	}
	return t.putNode(node)
}

func (t *badgerTx) UpdateNode(node NodeRecord) error {
	if err := checkNode(node); err != nil {
		return err
	}
	current, exists, err := t.getNode(node.ID)
	if err != nil {
		return err
	}
	if !exists || current.Kind != node.Kind {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, node.Kind, node.ID)
	}
	if current.Properties == nil {
		current.Properties = make(map[string]any, len(node.Properties))
	}
	for k, v := range node.Properties {
		current.Properties[k] = v
	}
	return t.putNode(current)
}

func (t *badgerTx) CreateEdge(edge EdgeRecord) error {
	if err := checkEdge(edge); err != nil {
		return err
	}
	_, err := t.txn.Get(edgeKey(edge.ID))
	switch {
	case err == nil:
		return fmt.Errorf("%w: edge %s", ErrRecordExists, edge.ID)
	case !errors.Is(err, badger.ErrKeyNotFound):
		return err
	}

	kinds := edgeEndpoints[edge.Kind]
	for i, id := range []string{edge.SourceID, edge.TargetID} {
		n, ok, err := t.getNode(id)
		if err != nil {
			return err
		}
		if !ok || n.Kind != kinds[i] {
			return fmt.Errorf("%w: %s %s", ErrMissingEndpoint, kinds[i], id)
		}
	}

	raw, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("encode edge %s: %w", edge.ID, err)
	}
	return t.txn.Set(edgeKey(edge.ID), raw)
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
