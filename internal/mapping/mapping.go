// Package mapping derives document schemas (mappings) from model
// declarations.
package mapping

import "github.com/alfredjeanlab/docsync/internal/model"

// Field is one top-level entry of a Mapping.
type Field struct {
	// Name is the document key.
	Name     string
	Property model.Property

	// Source is the model field backing the entry; nil for virtual fields.
	Source *model.Field
	// Custom is set for developer-declared fields.
	Custom *model.CustomField
	// Related is the target's mapping for nested relations.
	Related *Mapping
}

// Nested reports whether the field embeds related documents.
func (f *Field) Nested() bool {
	return f.Related != nil
}

// Map returns the field's JSON descriptor.
func (f *Field) Map() map[string]any {
	if f.Related != nil {
		return map[string]any{
			"type":       TypeNested,
			"properties": f.Related.Properties(),
		}
	}
	return f.Property.Map()
}

// Mapping is the derived document schema of one model. It is immutable once
// built.
type Mapping struct {
	Model   *model.Model
	DocType string
	Index   string
	Dynamic string

	fields []*Field
	byName map[string]*Field
}

func newMapping(m *model.Model, docType, index, dynamic string) *Mapping {
	return &Mapping{
		Model:   m,
		DocType: docType,
		Index:   index,
		Dynamic: dynamic,
		byName:  make(map[string]*Field),
	}
}

func (m *Mapping) add(f *Field) {
	if _, ok := m.byName[f.Name]; ok {
		return
	}
	m.fields = append(m.fields, f)
	m.byName[f.Name] = f
}

// Fields returns the fields in derivation order.
func (m *Mapping) Fields() []*Field {
	out := make([]*Field, len(m.fields))
	copy(out, m.fields)
	return out
}

// Field returns the field stored under the document key name.
func (m *Mapping) Field(name string) (*Field, bool) {
	f, ok := m.byName[name]
	return f, ok
}

// Names returns the document keys in derivation order.
func (m *Mapping) Names() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// Properties returns the "properties" object of the mapping.
func (m *Mapping) Properties() map[string]any {
	props := make(map[string]any, len(m.fields))
	for _, f := range m.fields {
		props[f.Name] = f.Map()
	}
	return props
}

// Body returns the put-mapping body for the document type.
func (m *Mapping) Body() map[string]any {
	return map[string]any{
		"dynamic":    m.Dynamic,
		"properties": m.Properties(),
	}
}

// ToDict returns the mapping keyed by its document type, the shape used in
// index creation bodies.
func (m *Mapping) ToDict() map[string]any {
	return map[string]any{m.DocType: m.Body()}
}
