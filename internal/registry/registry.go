// Package registry catalogs the indexable models of a process, grouped by
// polymorphic family and by target index.
package registry

import (
	"fmt"

	"github.com/alfredjeanlab/docsync/internal/mapping"
	"github.com/alfredjeanlab/docsync/internal/model"
)

// Registry maps document types to models. It is populated once through
// Scan and is read-only afterwards, so it needs no locking.
type Registry struct {
	builder *mapping.Builder
	sealed  bool

	types     []*model.Model
	byDocType map[string]*model.Model
	families  map[*model.Model][]*model.Model
	indexes   map[string][]*model.Model
	indexList []string
}

// New returns an empty registry deriving mappings with b.
func New(b *mapping.Builder) *Registry {
	return &Registry{
		builder:   b,
		byDocType: make(map[string]*model.Model),
		families:  make(map[*model.Model][]*model.Model),
		indexes:   make(map[string][]*model.Model),
	}
}

// Register adds a concrete indexable model. Its mapping is derived
// immediately so declaration errors surface at startup.
func (r *Registry) Register(m *model.Model) error {
	if r.sealed {
		return &model.ConfigError{Model: m.Label(), Message: "registry is sealed"}
	}
	if m.Abstract {
		return &model.ConfigError{Model: m.Label(), Message: "abstract models cannot be registered"}
	}
	if !m.Indexable() {
		return &model.ConfigError{Model: m.Label(), Message: "model has no search options"}
	}
	mp, err := r.builder.Build(m)
	if err != nil {
		return err
	}
	if prev, ok := r.byDocType[mp.DocType]; ok {
		return &model.ConfigError{
			Model:   m.Label(),
			Message: fmt.Sprintf("document type %q already registered by %s", mp.DocType, prev.Label()),
		}
	}

	r.types = append(r.types, m)
	r.byDocType[mp.DocType] = m
	base := BaseOf(m)
	r.families[base] = append(r.families[base], m)
	if _, ok := r.indexes[mp.Index]; !ok {
		r.indexList = append(r.indexList, mp.Index)
	}
	r.indexes[mp.Index] = append(r.indexes[mp.Index], m)
	return nil
}

// Scan registers every concrete indexable model in models, in order, and
// seals the registry. Abstract and non-indexable models are skipped.
func (r *Registry) Scan(models ...*model.Model) error {
	for _, m := range models {
		if m.Abstract || !m.Indexable() {
			continue
		}
		if err := r.Register(m); err != nil {
			return err
		}
	}
	r.Seal()
	return nil
}

// Seal rejects further registrations.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Builder returns the mapping builder the registry derives with.
func (r *Registry) Builder() *mapping.Builder {
	return r.builder
}

// Types returns the registered models in registration order.
func (r *Registry) Types() []*model.Model {
	out := make([]*model.Model, len(r.types))
	copy(out, r.types)
	return out
}

// AllTypes returns every registered model keyed by document type.
func (r *Registry) AllTypes() map[string]*model.Model {
	out := make(map[string]*model.Model, len(r.byDocType))
	for k, v := range r.byDocType {
		out[k] = v
	}
	return out
}

// Lookup returns the model registered under docType.
func (r *Registry) Lookup(docType string) (*model.Model, bool) {
	m, ok := r.byDocType[docType]
	return m, ok
}

// Mapping returns the mapping of m.
func (r *Registry) Mapping(m *model.Model) (*mapping.Mapping, error) {
	return r.builder.Build(m)
}

// Family returns the registered models sharing m's base, in registration
// order.
func (r *Registry) Family(m *model.Model) []*model.Model {
	family := r.families[BaseOf(m)]
	out := make([]*model.Model, len(family))
	copy(out, family)
	return out
}

// FamilyOf returns the registered models sharing m's base keyed by
// document type.
func (r *Registry) FamilyOf(m *model.Model) map[string]*model.Model {
	out := make(map[string]*model.Model)
	for _, member := range r.families[BaseOf(m)] {
		out[member.DocType()] = member
	}
	return out
}

// DocTypes returns the document types of m's family in registration order.
func (r *Registry) DocTypes(m *model.Model) []string {
	family := r.families[BaseOf(m)]
	out := make([]string, len(family))
	for i, member := range family {
		out[i] = member.DocType()
	}
	return out
}

// TypesForIndex returns the models targeting the logical index name, in
// registration order.
func (r *Registry) TypesForIndex(name string) []*model.Model {
	types := r.indexes[name]
	out := make([]*model.Model, len(types))
	copy(out, types)
	return out
}

// HasIndex reports whether any model targets the logical index name.
func (r *Registry) HasIndex(name string) bool {
	_, ok := r.indexes[name]
	return ok
}

// Indexes returns the logical index names in first-registration order.
func (r *Registry) Indexes() []string {
	out := make([]string, len(r.indexList))
	copy(out, r.indexList)
	return out
}

// BaseOf returns the topmost non-abstract ancestor of m, the key of its
// polymorphic family. A model whose parent is abstract is its own base.
func BaseOf(m *model.Model) *model.Model {
	cur := m
	for cur.Parent != nil && !cur.Parent.Abstract {
		cur = cur.Parent
	}
	return cur
}
