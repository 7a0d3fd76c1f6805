package model

// DynamicStrict rejects documents carrying fields the mapping does not
// declare.
const DynamicStrict = "strict"

// SearchOptions is the capability marker of an indexable model together with
// its schema overrides.
type SearchOptions struct {
	// DocType overrides the "namespace_name" document type.
	DocType string
	// Index is the logical index name; empty means the default index.
	Index string
	// Excludes lists attribute names left out of the schema.
	Excludes []string
	// Includes opts reverse and many-to-many relations into the schema.
	Includes []string
	// Dynamic is the mapping's dynamic setting. Empty means strict.
	Dynamic string
	// Fields are developer-declared document fields keyed by attribute
	// name. They replace automatic derivation for matching columns and are
	// appended as virtual fields otherwise.
	Fields map[string]*CustomField
}

// Excluded reports whether name is in the exclude list.
func (o *SearchOptions) Excluded(name string) bool {
	return contains(o.Excludes, name)
}

// Included reports whether name is in the include list.
func (o *SearchOptions) Included(name string) bool {
	return contains(o.Includes, name)
}

func contains(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

// Property is a document field type descriptor.
type Property struct {
	Type       string              `json:"type"`
	Index      string              `json:"index,omitempty"`
	Analyzer   string              `json:"analyzer,omitempty"`
	Format     string              `json:"format,omitempty"`
	Fields     map[string]Property `json:"fields,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// Map returns the descriptor as a generic JSON object.
func (p Property) Map() map[string]any {
	out := map[string]any{"type": p.Type}
	if p.Index != "" {
		out["index"] = p.Index
	}
	if p.Analyzer != "" {
		out["analyzer"] = p.Analyzer
	}
	if p.Format != "" {
		out["format"] = p.Format
	}
	if len(p.Fields) > 0 {
		out["fields"] = propertyMaps(p.Fields)
	}
	if len(p.Properties) > 0 {
		out["properties"] = propertyMaps(p.Properties)
	}
	return out
}

func propertyMaps(props map[string]Property) map[string]any {
	out := make(map[string]any, len(props))
	for name, p := range props {
		out[name] = p.Map()
	}
	return out
}

// CustomField is a document field supplied by the developer.
type CustomField struct {
	Property Property
	// Value computes the field for virtual fields with no backing column.
	Value func(r *Record) any
	// Encode converts the resolved value into its document form.
	Encode func(v any) any
	// Decode converts the stored document form back into a native value.
	Decode func(v any) (any, error)
}
