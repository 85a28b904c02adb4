package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// TypeConversionError represents an error during type conversion of a stored property.
type TypeConversionError struct {
	Expected string
	Actual   string
	Field    string
}

func (e *TypeConversionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("type conversion error for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type conversion error: expected %s, got %s", e.Expected, e.Actual)
}

// NewTypeConversionError creates a new TypeConversionError.
func NewTypeConversionError(expected, actual, field string) *TypeConversionError {
	return &TypeConversionError{
		Expected: expected,
		Actual:   actual,
		Field:    field,
	}
}

// AsRecordSlice safely converts an interface{} to []*db.Record.
func AsRecordSlice(v any) ([]*db.Record, bool) {
	if v == nil {
		return nil, false
	}
	records, ok := v.([]*db.Record)
	return records, ok
}

// AsDBNode safely converts an interface{} to dbtype.Node.
func AsDBNode(v any) (dbtype.Node, bool) {
	if v == nil {
		return dbtype.Node{}, false
	}
	node, ok := v.(dbtype.Node)
	return node, ok
}

// AsDBRelationship safely converts an interface{} to dbtype.Relationship.
func AsDBRelationship(v any) (dbtype.Relationship, bool) {
	if v == nil {
		return dbtype.Relationship{}, false
	}
	rel, ok := v.(dbtype.Relationship)
	return rel, ok
}

// AsString safely converts an interface{} to string.
func AsString(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AsInt64 converts the integer encodings used by the stores to int64. JSON
// round trips turn integers into float64, so whole floats are accepted.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// AsFloat64 converts any numeric property to float64.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// AsFloat64Slice converts a list property to []float64.
func AsFloat64Slice(v any) ([]float64, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case []float64:
		out := make([]float64, len(s))
		copy(out, s)
		return out, true
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, ok := AsFloat64(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// AsTime converts a timestamp property. Empty strings are the zero time.
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if t == "" {
			return time.Time{}, true
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	case nil:
		return time.Time{}, true
	}
	return time.Time{}, false
}

// MustString reads a string property or returns an error. Missing is empty.
func MustString(props map[string]any, field string) (string, error) {
	v, present := props[field]
	if !present || v == nil {
		return "", nil
	}
	s, ok := AsString(v)
	if !ok {
		return "", NewTypeConversionError("string", fmt.Sprintf("%T", v), field)
	}
	return s, nil
}

// MustFloat64 reads a numeric property or returns an error. Missing is zero.
func MustFloat64(props map[string]any, field string) (float64, error) {
	v, present := props[field]
	if !present || v == nil {
		return 0, nil
	}
	f, ok := AsFloat64(v)
	if !ok {
		return 0, NewTypeConversionError("float64", fmt.Sprintf("%T", v), field)
	}
	return f, nil
}

// MustInt64 reads an integer property or returns an error. Missing is zero.
func MustInt64(props map[string]any, field string) (int64, error) {
	v, present := props[field]
	if !present || v == nil {
		return 0, nil
	}
	i, ok := AsInt64(v)
	if !ok {
		return 0, NewTypeConversionError("int64", fmt.Sprintf("%T", v), field)
	}
	return i, nil
}

// MustFloat64Slice reads a list property or returns an error.
func MustFloat64Slice(props map[string]any, field string) ([]float64, error) {
	v := props[field]
	s, ok := AsFloat64Slice(v)
	if !ok {
		return nil, NewTypeConversionError("[]float64", fmt.Sprintf("%T", v), field)
	}
	return s, nil
}

// MustTime reads a timestamp property or returns an error.
func MustTime(props map[string]any, field string) (time.Time, error) {
	v := props[field]
	t, ok := AsTime(v)
	if !ok {
		return time.Time{}, NewTypeConversionError("time", fmt.Sprintf("%T", v), field)
	}
	return t, nil
}
