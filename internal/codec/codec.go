// Package codec converts records to document bodies and documents back to
// read-only results.
package codec

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/docsync/internal/mapping"
	"github.com/alfredjeanlab/docsync/internal/model"
)

// Codec encodes and decodes documents using the mappings of a builder. It
// is safe for concurrent use.
type Codec struct {
	builder *mapping.Builder

	mu    sync.Mutex
	types map[*model.Model]*resultType
}

// New returns a codec deriving mappings with b.
func New(b *mapping.Builder) *Codec {
	return &Codec{
		builder: b,
		types:   make(map[*model.Model]*resultType),
	}
}

// ToDocument encodes r into a document body. Keys whose value resolves to
// nil are omitted.
func (c *Codec) ToDocument(ctx context.Context, r *model.Record) (map[string]any, error) {
	mp, err := c.builder.Build(r.Model)
	if err != nil {
		return nil, err
	}
	return c.encode(ctx, r, mp)
}

func (c *Codec) encode(ctx context.Context, r *model.Record, mp *mapping.Mapping) (map[string]any, error) {
	doc := make(map[string]any, len(mp.Fields()))
	for _, f := range mp.Fields() {
		v, err := resolve(ctx, r, f)
		if err != nil {
			return nil, err
		}
		if f.Custom != nil && f.Custom.Encode != nil {
			v = f.Custom.Encode(call(v))
		} else {
			v, err = c.encodeValue(ctx, v, f.Related)
			if err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", mp.DocType, f.Name, err)
			}
		}
		if v == nil {
			continue
		}
		doc[f.Name] = v
	}
	return doc, nil
}

// resolve returns the raw attribute value backing f.
func resolve(ctx context.Context, r *model.Record, f *mapping.Field) (any, error) {
	src := f.Source
	switch {
	case src == nil:
		if f.Custom != nil && f.Custom.Value != nil {
			return f.Custom.Value(r), nil
		}
		return r.Values[f.Name], nil
	case src.IsMultiRelation() || f.Related != nil:
		return r.Related(ctx, src)
	default:
		if v, ok := r.Values[src.AttName()]; ok {
			return v, nil
		}
		if src.IsSingleRelation() {
			if target, ok := r.Values[src.Name].(*model.Record); ok && target != nil {
				return target.PK(), nil
			}
		}
		return nil, nil
	}
}

// encodeValue applies the value precedence: related collections become
// nested documents or identifiers, callables are invoked, indexable records
// become nested documents, anything else is used as is.
func (c *Codec) encodeValue(ctx context.Context, v any, related *mapping.Mapping) (any, error) {
	switch x := v.(type) {
	case []*model.Record:
		out := make([]any, 0, len(x))
		for _, item := range x {
			enc, err := c.encodeRecord(ctx, item, related)
			if err != nil {
				return nil, err
			}
			if enc != nil {
				out = append(out, enc)
			}
		}
		return out, nil
	case func() any:
		return c.encodeValue(ctx, x(), related)
	case *model.Record:
		return c.encodeRecord(ctx, x, related)
	default:
		return v, nil
	}
}

func (c *Codec) encodeRecord(ctx context.Context, r *model.Record, related *mapping.Mapping) (any, error) {
	if r == nil {
		return nil, nil
	}
	if !r.Model.Indexable() {
		return r.PK(), nil
	}
	mp := related
	if mp == nil || mp.Model != r.Model {
		var err error
		if mp, err = c.builder.Build(r.Model); err != nil {
			return nil, err
		}
	}
	return c.encode(ctx, r, mp)
}

func call(v any) any {
	if fn, ok := v.(func() any); ok {
		return fn()
	}
	return v
}
