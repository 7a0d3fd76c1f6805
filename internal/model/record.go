package model

import (
	"context"
	"fmt"
	"strconv"
)

// Loader resolves relations of a record on first access. The relational
// store installs one on every record it fetches.
type Loader interface {
	LoadRelated(ctx context.Context, r *Record, f *Field) (any, error)
}

// Record is a writable instance of a Model. Values are keyed by attribute
// name: scalar columns and single-relation ids by AttName, loaded relations
// by field name (*Record or []*Record). A value may also be a func() any,
// which is called when the record is encoded.
type Record struct {
	Model  *Model
	Values map[string]any

	loader Loader
}

// NewRecord returns a record of m holding values.
func NewRecord(m *Model, values map[string]any) *Record {
	if values == nil {
		values = make(map[string]any)
	}
	return &Record{Model: m, Values: values}
}

// As returns a view of r as the ancestor m. The view shares r's values and
// loader.
func (r *Record) As(m *Model) *Record {
	return &Record{Model: m, Values: r.Values, loader: r.loader}
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Set stores v under key.
func (r *Record) Set(key string, v any) {
	r.Values[key] = v
}

// PK returns the primary key value.
func (r *Record) PK() any {
	pk := r.Model.PK()
	if pk == nil {
		return nil
	}
	if v, ok := r.Values[pk.AttName()]; ok && v != nil {
		return v
	}
	// Subtypes also carry the root's key.
	chain := r.Model.Chain()
	if len(chain) > 1 {
		if root := chain[0].PK(); root != nil {
			return r.Values[root.AttName()]
		}
	}
	return nil
}

// ID returns the primary key formatted as a document id.
func (r *Record) ID() string {
	return FormatID(r.PK())
}

// SetLoader installs the loader used by Related.
func (r *Record) SetLoader(l Loader) {
	r.loader = l
}

// Related returns the value of relation f, loading and caching it when it
// is not already present.
func (r *Record) Related(ctx context.Context, f *Field) (any, error) {
	if v, ok := r.Values[f.Name]; ok {
		return v, nil
	}
	if r.loader == nil {
		return nil, nil
	}
	v, err := r.loader.LoadRelated(ctx, r, f)
	if err != nil {
		return nil, fmt.Errorf("load %s.%s: %w", r.Model.Label(), f.Name, err)
	}
	r.Values[f.Name] = v
	return v, nil
}

// FormatID renders a primary key value as a document id.
func FormatID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case []byte:
		return string(id)
	case int:
		return strconv.Itoa(id)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
