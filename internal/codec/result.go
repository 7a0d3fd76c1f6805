package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/alfredjeanlab/docsync/internal/mapping"
	"github.com/alfredjeanlab/docsync/internal/model"
)

// Result is a record reconstructed from a document. It is read-only: it
// cannot be handed to the relational store, which only accepts records.
type Result struct {
	// ID, Index and DocType are set when the result comes from a search hit
	// or a get.
	ID      string
	Index   string
	DocType string

	typ    *resultType
	values map[string]any
}

// Model returns the model the result was decoded as.
func (r *Result) Model() *model.Model {
	return r.typ.model
}

// Get returns the decoded value of the document key name.
func (r *Result) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Values returns a copy of the decoded values.
func (r *Result) Values() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Fields returns the document keys the result's type decodes.
func (r *Result) Fields() []string {
	names := make([]string, len(r.typ.fields))
	for i, f := range r.typ.fields {
		names[i] = f.name
	}
	return names
}

// PK returns the primary key value, falling back to ID.
func (r *Result) PK() any {
	if pk := r.typ.model.PK(); pk != nil {
		if v, ok := r.values[pk.AttName()]; ok {
			return v
		}
	}
	if r.ID != "" {
		return r.ID
	}
	return nil
}

// resultType is the per-model decoder table, built once per model.
type resultType struct {
	model  *model.Model
	fields []fieldDecoder
}

type fieldDecoder struct {
	name   string
	decode func(c *Codec, v any) (any, error)
}

// FromDocument decodes body as a result of model m. Keys not in the
// mapping are ignored. Identifier lists of non-indexable collections are
// dropped since they cannot be reconstructed from the document.
func (c *Codec) FromDocument(body map[string]any, m *model.Model) (*Result, error) {
	typ, err := c.resultType(m)
	if err != nil {
		return nil, err
	}
	return c.decode(body, typ)
}

func (c *Codec) decode(body map[string]any, typ *resultType) (*Result, error) {
	res := &Result{typ: typ, values: make(map[string]any, len(typ.fields))}
	for _, f := range typ.fields {
		raw, ok := body[f.name]
		if !ok || raw == nil {
			continue
		}
		v, err := f.decode(c, raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", typ.model.DocType(), f.name, err)
		}
		res.values[f.name] = v
	}
	return res, nil
}

func (c *Codec) resultType(m *model.Model) (*resultType, error) {
	mp, err := c.builder.Build(m)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultTypeLocked(mp), nil
}

func (c *Codec) resultTypeLocked(mp *mapping.Mapping) *resultType {
	if typ, ok := c.types[mp.Model]; ok {
		return typ
	}
	typ := &resultType{model: mp.Model}
	// Registered before the fields so nested self-references resolve.
	c.types[mp.Model] = typ
	for _, f := range mp.Fields() {
		if f.Source != nil && f.Source.IsMultiRelation() && f.Related == nil {
			continue
		}
		typ.fields = append(typ.fields, fieldDecoder{name: f.Name, decode: c.decoderFor(f)})
	}
	return typ
}

func (c *Codec) decoderFor(f *mapping.Field) func(*Codec, any) (any, error) {
	if f.Custom != nil && f.Custom.Decode != nil {
		decode := f.Custom.Decode
		return func(_ *Codec, v any) (any, error) { return decode(v) }
	}
	if f.Related != nil {
		nested := c.resultTypeLocked(f.Related)
		return func(c *Codec, v any) (any, error) { return c.decodeNested(v, nested) }
	}
	switch f.Property.Type {
	case mapping.TypeLong:
		return func(_ *Codec, v any) (any, error) { return decodeLong(v) }
	case mapping.TypeDouble:
		return func(_ *Codec, v any) (any, error) { return decodeDouble(v) }
	case mapping.TypeDate:
		return func(_ *Codec, v any) (any, error) { return decodeDate(v) }
	case mapping.TypeBinary:
		return func(_ *Codec, v any) (any, error) { return decodeBinary(v) }
	default:
		return func(_ *Codec, v any) (any, error) { return v, nil }
	}
}

func (c *Codec) decodeNested(v any, typ *resultType) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		return c.decode(x, typ)
	case []any:
		out := make([]*Result, 0, len(x))
		for _, item := range x {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("nested item: expected object, got %T", item)
			}
			res, err := c.decode(obj, typ)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("nested: expected object or array, got %T", v)
	}
}

func decodeLong(v any) (any, error) {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := decodeLong(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("long: non-integer value %v", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	default:
		return nil, fmt.Errorf("long: unexpected %T", v)
	}
}

func decodeDouble(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("double: unexpected %T", v)
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func decodeDate(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("date: cannot parse %q", x)
	case float64:
		return time.UnixMilli(int64(x)).UTC(), nil
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return nil, fmt.Errorf("date: unexpected %T", v)
	}
}

// decodeBinary reverses the base64 encoding JSON gives byte slices.
func decodeBinary(v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(x)
		if err != nil {
			return nil, fmt.Errorf("binary: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("binary: unexpected %T", v)
	}
}
