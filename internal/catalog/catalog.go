// Package catalog declares the demo models shipped with docsync and the
// relational schema backing them.
package catalog

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/docsync/internal/mapping"
	"github.com/alfredjeanlab/docsync/internal/model"
)

// Namespace of every catalog model.
const Namespace = "app"

// Catalog holds one instance of each demo model. Use New to get a fresh
// set; models are not shared between catalogs.
type Catalog struct {
	SimpleObject                 *model.Model
	ManualMappingObject          *model.Model
	ChildObject                  *model.Model
	GrandchildObject             *model.Model
	RelatedSimpleObject          *model.Model
	RelatedNestedObject          *model.Model
	RelatableObject              *model.Model
	Tag                          *model.Model
	DumbTag                      *model.Model
	RelationsTestObject          *model.Model
	ReverseRelationsParentObject *model.Model
	ReverseRelationsChildObject  *model.Model
	CustomFieldObject            *model.Model
	PolyParent                   *model.Model
	PolyOrphan                   *model.Model
}

// New declares the catalog models.
func New() *Catalog {
	c := &Catalog{}

	c.SimpleObject = &model.Model{
		Namespace: Namespace,
		Name:      "SimpleObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("foo", model.IntegerField),
			model.Col("bar", model.CharField),
			model.Col("baz", model.SlugField),
			{Name: "published", Type: model.DateTimeField, Null: true},
		},
		Search: &model.SearchOptions{},
	}

	c.ManualMappingObject = &model.Model{
		Namespace: Namespace,
		Name:      "ManualMappingObject",
		Parent:    c.SimpleObject,
		Fields: []*model.Field{
			model.Col("qux", model.CharField),
			model.Col("garbage", model.CharField),
			model.Col("status", model.CharField),
		},
		Search: &model.SearchOptions{
			DocType:  "super_manual_mapping",
			Excludes: []string{"garbage"},
			Fields: map[string]*model.CustomField{
				"bar": {Property: model.Property{
					Type: mapping.TypeString,
					Fields: map[string]model.Property{
						"raw": {Type: mapping.TypeString, Index: mapping.NotAnalyzed},
					},
				}},
				"status": {Property: model.Property{Type: mapping.TypeString, Index: mapping.NotAnalyzed}},
			},
		},
	}

	c.ChildObject = &model.Model{
		Namespace: Namespace,
		Name:      "ChildObject",
		Parent:    c.SimpleObject,
		Fields:    []*model.Field{model.Col("zoo", model.CharField)},
		Search:    &model.SearchOptions{},
	}

	c.GrandchildObject = &model.Model{
		Namespace: Namespace,
		Name:      "GrandchildObject",
		Parent:    c.ChildObject,
		Fields:    []*model.Field{model.Col("qux", model.CharField)},
	}

	c.RelatedSimpleObject = &model.Model{
		Namespace: Namespace,
		Name:      "RelatedSimpleObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("datums", model.TextField),
		},
	}

	c.RelatedNestedObject = &model.Model{
		Namespace: Namespace,
		Name:      "RelatedNestedObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("denormalized_datums", model.TextField),
		},
		Search: &model.SearchOptions{},
	}

	c.RelatableObject = &model.Model{
		Namespace: Namespace,
		Name:      "RelatableObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("name", model.CharField),
			model.FK("simple", c.RelatedSimpleObject),
			model.FK("nested", c.RelatedNestedObject),
		},
		Search: &model.SearchOptions{},
	}

	c.Tag = &model.Model{
		Namespace: Namespace,
		Name:      "Tag",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("name", model.CharField),
		},
		Search: &model.SearchOptions{},
	}

	c.DumbTag = &model.Model{
		Namespace: Namespace,
		Name:      "DumbTag",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("name", model.CharField),
		},
	}

	c.RelationsTestObject = &model.Model{
		Namespace: Namespace,
		Name:      "RelationsTestObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("data", model.CharField),
		},
		Search: &model.SearchOptions{Includes: []string{"tags", "dumb_tags"}},
	}
	c.RelationsTestObject.Fields = append(c.RelationsTestObject.Fields,
		model.M2M(c.RelationsTestObject, "tags", c.Tag),
		model.M2M(c.RelationsTestObject, "dumb_tags", c.DumbTag),
	)

	c.ReverseRelationsParentObject = &model.Model{
		Namespace: Namespace,
		Name:      "ReverseRelationsParentObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("name", model.CharField),
		},
		Search: &model.SearchOptions{Includes: []string{"children"}},
	}
	c.ReverseRelationsChildObject = &model.Model{
		Namespace: Namespace,
		Name:      "ReverseRelationsChildObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("name", model.CharField),
			model.FK("parent", c.ReverseRelationsParentObject),
		},
		Search: &model.SearchOptions{Excludes: []string{"parent"}},
	}
	c.ReverseRelationsParentObject.Fields = append(c.ReverseRelationsParentObject.Fields,
		model.ReverseFK("children", c.ReverseRelationsChildObject, "parent_id"),
	)

	c.CustomFieldObject = &model.Model{
		Namespace: Namespace,
		Name:      "CustomFieldObject",
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("color", model.CharField),
		},
		Search: &model.SearchOptions{
			Fields: map[string]*model.CustomField{"color": ColorField()},
		},
	}

	c.PolyParent = &model.Model{
		Namespace: Namespace,
		Name:      "PolyParent",
		Abstract:  true,
		Fields:    []*model.Field{model.Col("title", model.CharField)},
		Search:    &model.SearchOptions{},
	}
	c.PolyOrphan = &model.Model{
		Namespace: Namespace,
		Name:      "PolyOrphan",
		Parent:    c.PolyParent,
		Fields: []*model.Field{
			model.AutoID(),
			model.Col("extra", model.CharField),
		},
	}

	return c
}

// Models returns every catalog model in registration order.
func (c *Catalog) Models() []*model.Model {
	return []*model.Model{
		c.SimpleObject,
		c.ManualMappingObject,
		c.ChildObject,
		c.GrandchildObject,
		c.RelatedSimpleObject,
		c.RelatedNestedObject,
		c.RelatableObject,
		c.Tag,
		c.DumbTag,
		c.RelationsTestObject,
		c.ReverseRelationsParentObject,
		c.ReverseRelationsChildObject,
		c.CustomFieldObject,
		c.PolyParent,
		c.PolyOrphan,
	}
}

// ColorField stores a "#rrggbb" column as an object of hex components.
func ColorField() *model.CustomField {
	return &model.CustomField{
		Property: model.Property{
			Type: mapping.TypeObject,
			Properties: map[string]model.Property{
				"red":   {Type: mapping.TypeString},
				"green": {Type: mapping.TypeString},
				"blue":  {Type: mapping.TypeString},
			},
		},
		Encode: func(v any) any {
			s, ok := v.(string)
			if !ok || len(s) != 7 || s[0] != '#' {
				return nil
			}
			return map[string]any{
				"red":   s[1:3],
				"green": s[3:5],
				"blue":  s[5:7],
			}
		},
		Decode: func(v any) (any, error) {
			obj, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("color: expected object, got %T", v)
			}
			var b strings.Builder
			b.WriteByte('#')
			for _, k := range []string{"red", "green", "blue"} {
				part, _ := obj[k].(string)
				if len(part) != 2 {
					return nil, fmt.Errorf("color: bad %s component %q", k, part)
				}
				b.WriteString(part)
			}
			return b.String(), nil
		},
	}
}
