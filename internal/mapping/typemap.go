package mapping

import (
	"fmt"

	"github.com/alfredjeanlab/docsync/internal/model"
)

// Document field types.
const (
	TypeLong    = "long"
	TypeDouble  = "double"
	TypeString  = "string"
	TypeDate    = "date"
	TypeBoolean = "boolean"
	TypeBinary  = "binary"
	TypeNested  = "nested"
	TypeObject  = "object"

	NotAnalyzed = "not_analyzed"
)

var (
	longProperty        = model.Property{Type: TypeLong}
	doubleProperty      = model.Property{Type: TypeDouble}
	stringProperty      = model.Property{Type: TypeString}
	exactStringProperty = model.Property{Type: TypeString, Index: NotAnalyzed}
	dateProperty        = model.Property{Type: TypeDate}
	booleanProperty     = model.Property{Type: TypeBoolean}
	binaryProperty      = model.Property{Type: TypeBinary}
)

// columnTypes is the fixed column type table. Types missing from it cannot
// be mapped.
var columnTypes = map[model.ColumnType]model.Property{
	model.AutoField:            longProperty,
	model.BigAutoField:         longProperty,
	model.IntegerField:         longProperty,
	model.BigIntegerField:      longProperty,
	model.SmallIntegerField:    longProperty,
	model.PositiveIntegerField: longProperty,
	model.ForeignKeyField:      longProperty,
	model.OneToOneField:        longProperty,
	model.ManyToManyField:      longProperty,

	model.FloatField:   doubleProperty,
	model.DecimalField: doubleProperty,

	model.CharField:  stringProperty,
	model.TextField:  stringProperty,
	model.EmailField: stringProperty,

	model.SlugField: exactStringProperty,
	model.UUIDField: exactStringProperty,
	model.URLField:  exactStringProperty,

	model.DateTimeField: dateProperty,
	model.DateField:     dateProperty,

	model.BooleanField: booleanProperty,
	model.BinaryField:  binaryProperty,
}

// PropertyFor returns the document field descriptor for a column type.
func PropertyFor(t model.ColumnType) (model.Property, error) {
	p, ok := columnTypes[t]
	if !ok {
		return model.Property{}, &model.ConfigError{Message: fmt.Sprintf("unsupported column type %q", t)}
	}
	return p, nil
}
