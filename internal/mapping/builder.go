package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alfredjeanlab/docsync/internal/model"
)

// Builder derives and caches mappings. It is safe for concurrent use.
type Builder struct {
	defaultIndex string

	mu    sync.Mutex
	cache map[*model.Model]*Mapping
}

// NewBuilder returns a builder that assigns defaultIndex to models that do
// not name an index.
func NewBuilder(defaultIndex string) *Builder {
	return &Builder{
		defaultIndex: defaultIndex,
		cache:        make(map[*model.Model]*Mapping),
	}
}

// DefaultIndex returns the index assigned to models without one.
func (b *Builder) DefaultIndex() string {
	return b.defaultIndex
}

// Build returns the mapping of m, deriving it on first use.
func (b *Builder) Build(m *model.Model) (*Mapping, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.build(m, nil)
}

func (b *Builder) build(m *model.Model, stack []*model.Model) (*Mapping, error) {
	if cached, ok := b.cache[m]; ok {
		return cached, nil
	}
	opts := m.Options()
	if opts == nil {
		return nil, &model.ConfigError{Model: m.Label(), Message: "model is not indexable"}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	stack = append(stack, m)

	index := opts.Index
	if index == "" {
		index = b.defaultIndex
	}
	dynamic := opts.Dynamic
	if dynamic == "" {
		dynamic = model.DynamicStrict
	}
	out := newMapping(m, m.DocType(), index, dynamic)

	used := make(map[string]bool)
	for _, f := range m.AllFields() {
		if key, cf := customFor(opts, f); cf != nil {
			used[key] = true
			out.add(&Field{Name: key, Property: cf.Property, Source: f, Custom: cf})
			continue
		}
		if opts.Excluded(f.Name) || opts.Excluded(f.AttName()) {
			continue
		}
		if f.IsMultiRelation() && !opts.Included(f.Name) {
			continue
		}
		field, err := b.deriveField(m, f, stack)
		if err != nil {
			return nil, err
		}
		out.add(field)
	}

	var virtual []string
	for name := range opts.Fields {
		if !used[name] && !opts.Excluded(name) {
			virtual = append(virtual, name)
		}
	}
	sort.Strings(virtual)
	for _, name := range virtual {
		cf := opts.Fields[name]
		out.add(&Field{Name: name, Property: cf.Property, Custom: cf})
	}

	b.cache[m] = out
	return out, nil
}

func (b *Builder) deriveField(m *model.Model, f *model.Field, stack []*model.Model) (*Field, error) {
	if f.IsRelation() {
		if f.Target.Indexable() && !f.ParentLink {
			for _, seen := range stack {
				if seen == f.Target {
					return nil, &model.ConfigError{
						Model:   m.Label(),
						Field:   f.Name,
						Message: "relation cycle " + cyclePath(stack, f.Target) + "; exclude one side",
					}
				}
			}
			related, err := b.build(f.Target, stack)
			if err != nil {
				return nil, err
			}
			return &Field{Name: f.Name, Source: f, Related: related}, nil
		}
		p, err := identifierProperty(f.Target)
		if err != nil {
			return nil, fieldError(m, f, err)
		}
		return &Field{Name: f.AttName(), Property: p, Source: f}, nil
	}
	p, err := PropertyFor(f.Type)
	if err != nil {
		return nil, fieldError(m, f, err)
	}
	return &Field{Name: f.AttName(), Property: p, Source: f}, nil
}

// identifierProperty maps a relation stored by identifier to the type of
// the target's primary key.
func identifierProperty(target *model.Model) (model.Property, error) {
	pk := target.PK()
	if pk == nil || pk.IsRelation() {
		return longProperty, nil
	}
	return PropertyFor(pk.Type)
}

// customFor returns the custom field overriding f, matched by attribute or
// field name.
func customFor(opts *model.SearchOptions, f *model.Field) (string, *model.CustomField) {
	if cf, ok := opts.Fields[f.AttName()]; ok {
		return f.AttName(), cf
	}
	if cf, ok := opts.Fields[f.Name]; ok {
		return f.Name, cf
	}
	return "", nil
}

func fieldError(m *model.Model, f *model.Field, err error) error {
	var ce *model.ConfigError
	if errors.As(err, &ce) {
		return &model.ConfigError{Model: m.Label(), Field: f.Name, Message: ce.Message}
	}
	return fmt.Errorf("%s.%s: %w", m.Label(), f.Name, err)
}

func cyclePath(stack []*model.Model, target *model.Model) string {
	var names []string
	start := 0
	for i, m := range stack {
		if m == target {
			start = i
			break
		}
	}
	for _, m := range stack[start:] {
		names = append(names, m.Label())
	}
	names = append(names, target.Label())
	return strings.Join(names, " -> ")
}
