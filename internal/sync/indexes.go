package sync

import (
	"fmt"

	"github.com/alfredjeanlab/docsync/internal/registry"
)

// TypeMapping is the desired put-mapping body of one document type.
type TypeMapping struct {
	DocType string
	Body    map[string]any
}

// IndexBody is the desired state of one logical index.
type IndexBody struct {
	Settings map[string]any
	// Mappings are kept in registration order; sync applies them in turn.
	Mappings []TypeMapping
}

// CreateBody returns the create-index request body.
func (b *IndexBody) CreateBody() map[string]any {
	mappings := make(map[string]any, len(b.Mappings))
	for _, tm := range b.Mappings {
		mappings[tm.DocType] = tm.Body
	}
	body := map[string]any{"mappings": mappings}
	if len(b.Settings) > 0 {
		body["settings"] = b.Settings
	}
	return body
}

// BuildIndexes assembles the desired body of every logical index in the
// registry. settings is keyed by logical index name; excluded lists
// "namespace.Name" labels left out of every index. Indexes whose types are
// all excluded are omitted.
func BuildIndexes(reg *registry.Registry, settings map[string]map[string]any, excluded []string) (map[string]*IndexBody, error) {
	skip := make(map[string]bool, len(excluded))
	for _, label := range excluded {
		skip[label] = true
	}

	out := make(map[string]*IndexBody)
	for _, name := range reg.Indexes() {
		body := &IndexBody{Settings: settings[name]}
		for _, m := range reg.TypesForIndex(name) {
			if skip[m.Label()] {
				continue
			}
			mp, err := reg.Mapping(m)
			if err != nil {
				return nil, fmt.Errorf("build mapping for %s: %w", m.Label(), err)
			}
			body.Mappings = append(body.Mappings, TypeMapping{DocType: mp.DocType, Body: mp.Body()})
		}
		if len(body.Mappings) > 0 {
			out[name] = body
		}
	}
	return out, nil
}
