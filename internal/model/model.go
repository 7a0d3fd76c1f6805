// Package model declares relational record types (models), their fields and
// the search options that make a model indexable.
package model

import (
	"fmt"
	"strings"
	"sync"
)

// Model describes a relational record type backed by one table. Subtypes
// point at their parent through Parent and share the parent's primary key
// through a one-to-one parent link.
type Model struct {
	Namespace string
	Name      string
	Table     string
	Fields    []*Field
	Parent    *Model
	Abstract  bool

	// Search marks the model as indexable. Subtypes of an indexable model are
	// indexable too and inherit every option except DocType.
	Search *SearchOptions

	once sync.Once
	link *Field
}

// Label returns "namespace.Name", the form used in exclusion lists.
func (m *Model) Label() string {
	return m.Namespace + "." + m.Name
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	return m.Label()
}

// TableName returns the model's table, defaulting to "namespace_name".
func (m *Model) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return m.Namespace + "_" + strings.ToLower(m.Name)
}

// ParentLink returns the one-to-one field pointing at the parent table, or
// nil for root models. A link is synthesized as "<parent>_ptr" when the
// model does not declare one.
func (m *Model) ParentLink() *Field {
	if m.Parent == nil || m.Parent.Abstract {
		return nil
	}
	m.once.Do(func() {
		for _, f := range m.Fields {
			if f.ParentLink {
				m.link = f
				return
			}
		}
		m.link = &Field{
			Name:       strings.ToLower(m.Parent.Name) + "_ptr",
			Type:       OneToOneField,
			Relation:   OneToOne,
			Target:     m.Parent,
			ParentLink: true,
			Primary:    true,
		}
	})
	return m.link
}

// LocalFields returns the fields stored on the model's own table, starting
// with the parent link for subtypes, followed by fields inherited from
// abstract ancestors and the declared fields.
func (m *Model) LocalFields() []*Field {
	var out []*Field
	link := m.ParentLink()
	if link != nil {
		out = append(out, link)
	}
	out = append(out, m.abstractFields()...)
	for _, f := range m.Fields {
		if f == link {
			continue
		}
		out = append(out, f)
	}
	return out
}

// abstractFields returns the fields of the abstract ancestors directly
// above m, root first. Abstract models have no table of their own.
func (m *Model) abstractFields() []*Field {
	var levels []*Model
	for cur := m.Parent; cur != nil && cur.Abstract; cur = cur.Parent {
		levels = append([]*Model{cur}, levels...)
	}
	var out []*Field
	for _, level := range levels {
		out = append(out, level.Fields...)
	}
	return out
}

// Chain returns the concrete inheritance chain, root first and m last.
// Abstract ancestors are left out.
func (m *Model) Chain() []*Model {
	var chain []*Model
	for cur := m; cur != nil && !cur.Abstract; cur = cur.Parent {
		chain = append([]*Model{cur}, chain...)
	}
	return chain
}

// AllFields returns every field of the model including those inherited
// from ancestors, ancestors first, each level in declaration order.
func (m *Model) AllFields() []*Field {
	var out []*Field
	for _, level := range m.Chain() {
		out = append(out, level.LocalFields()...)
	}
	return out
}

// FieldByName looks a field up by name or attribute name across the chain.
func (m *Model) FieldByName(name string) *Field {
	for _, f := range m.AllFields() {
		if f.Name == name || f.AttName() == name {
			return f
		}
	}
	return nil
}

// PK returns the primary key field. Subtypes use their parent link.
func (m *Model) PK() *Field {
	if link := m.ParentLink(); link != nil {
		return link
	}
	local := m.LocalFields()
	for _, f := range local {
		if f.Primary {
			return f
		}
	}
	for _, f := range local {
		if f.Name == "id" {
			return f
		}
	}
	return nil
}

// Options returns the search options of the nearest model in the chain that
// declares them, or nil if the model is not indexable.
func (m *Model) Options() *SearchOptions {
	for cur := m; cur != nil; cur = cur.Parent {
		if cur.Search != nil {
			return cur.Search
		}
	}
	return nil
}

// Indexable reports whether the model carries the search capability marker
// itself or through an ancestor.
func (m *Model) Indexable() bool {
	return m.Options() != nil
}

// DocType returns the document-type name for the model. Only the model's
// own options can override the "namespace_name" default.
func (m *Model) DocType() string {
	if m.Search != nil && m.Search.DocType != "" {
		return m.Search.DocType
	}
	return m.Namespace + "_" + strings.ToLower(m.Name)
}

// Validate checks the declaration for errors that would otherwise surface
// later as broken queries or schemas.
func (m *Model) Validate() error {
	if m.Namespace == "" || m.Name == "" {
		return &ConfigError{Model: m.Label(), Message: "namespace and name are required"}
	}
	if m.Parent != nil && m.Abstract && !m.Parent.Abstract {
		return &ConfigError{Model: m.Label(), Message: "abstract model cannot extend a concrete model"}
	}
	if m.Abstract {
		return nil
	}
	if m.PK() == nil {
		return &ConfigError{Model: m.Label(), Message: "no primary key field"}
	}
	seen := make(map[string]bool)
	for _, f := range m.LocalFields() {
		if f.Name == "" {
			return &ConfigError{Model: m.Label(), Message: "field without a name"}
		}
		if seen[f.Name] {
			return &ConfigError{Model: m.Label(), Field: f.Name, Message: "declared twice"}
		}
		seen[f.Name] = true
		if f.IsRelation() && f.Target == nil {
			return &ConfigError{Model: m.Label(), Field: f.Name, Message: "relation without a target"}
		}
		switch f.Relation {
		case ManyToMany:
			if f.JoinTable == "" || f.JoinColumn == "" || f.JoinTargetColumn == "" {
				return &ConfigError{Model: m.Label(), Field: f.Name, Message: "many-to-many without a join table"}
			}
		case Reverse:
			if f.RelatedColumn == "" {
				return &ConfigError{Model: m.Label(), Field: f.Name, Message: "reverse relation without a related column"}
			}
		}
	}
	if opts := m.Options(); opts != nil {
		for name, cf := range opts.Fields {
			if cf == nil {
				return &ConfigError{Model: m.Label(), Field: name, Message: "nil custom field"}
			}
			if cf.Property.Type == "" {
				return &ConfigError{Model: m.Label(), Field: name, Message: "custom field without a type"}
			}
		}
	}
	return nil
}

// ConfigError reports a declaration that cannot be mapped or registered.
// It is never retried.
type ConfigError struct {
	Model   string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s.%s: %s", e.Model, e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Model, e.Message)
}
