package model

import "strings"

// ColumnType is the declared type of a relational column.
type ColumnType string

const (
	AutoField            ColumnType = "AutoField"
	BigAutoField         ColumnType = "BigAutoField"
	IntegerField         ColumnType = "IntegerField"
	BigIntegerField      ColumnType = "BigIntegerField"
	SmallIntegerField    ColumnType = "SmallIntegerField"
	PositiveIntegerField ColumnType = "PositiveIntegerField"
	FloatField           ColumnType = "FloatField"
	DecimalField         ColumnType = "DecimalField"
	CharField            ColumnType = "CharField"
	TextField            ColumnType = "TextField"
	EmailField           ColumnType = "EmailField"
	SlugField            ColumnType = "SlugField"
	UUIDField            ColumnType = "UUIDField"
	URLField             ColumnType = "URLField"
	DateTimeField        ColumnType = "DateTimeField"
	DateField            ColumnType = "DateField"
	BooleanField         ColumnType = "BooleanField"
	BinaryField          ColumnType = "BinaryField"
	ForeignKeyField      ColumnType = "ForeignKey"
	OneToOneField        ColumnType = "OneToOneField"
	ManyToManyField      ColumnType = "ManyToManyField"
)

// String returns the string representation of the column type.
func (t ColumnType) String() string {
	return string(t)
}

// RelationKind classifies how a field points at another model.
type RelationKind int

const (
	NoRelation RelationKind = iota
	// ForeignKey is a many-to-one column holding the target's primary key.
	ForeignKey
	// OneToOne is a unique foreign key. Parent links use this kind.
	OneToOne
	// ManyToMany is stored in a join table.
	ManyToMany
	// Reverse is the one-to-many side of a foreign key declared on Target.
	Reverse
)

// Field is a named, typed attribute of a Model.
type Field struct {
	Name     string
	Column   string // database column, defaults to AttName()
	Type     ColumnType
	Primary  bool
	Null     bool
	Relation RelationKind
	Target   *Model

	// ParentLink marks the one-to-one pointer from a subtype's table to its
	// parent's table. Parent links are never nested into documents.
	ParentLink bool

	// JoinTable, JoinColumn and JoinTargetColumn describe a ManyToMany join
	// table: JoinColumn references this model, JoinTargetColumn the target.
	JoinTable        string
	JoinColumn       string
	JoinTargetColumn string

	// RelatedColumn is the column on Target that references this model for
	// Reverse relations.
	RelatedColumn string
}

// AttName returns the attribute name used for the field's stored value.
// Single relations store the target's primary key under "<name>_id".
func (f *Field) AttName() string {
	if f.IsSingleRelation() {
		return f.Name + "_id"
	}
	return f.Name
}

// DBColumn returns the column name on the model's table.
func (f *Field) DBColumn() string {
	if f.Column != "" {
		return f.Column
	}
	return f.AttName()
}

// IsRelation reports whether the field points at another model.
func (f *Field) IsRelation() bool {
	return f.Relation != NoRelation
}

// IsSingleRelation reports whether the field is a foreign key or one-to-one.
func (f *Field) IsSingleRelation() bool {
	return f.Relation == ForeignKey || f.Relation == OneToOne
}

// IsMultiRelation reports whether the field resolves to a collection.
func (f *Field) IsMultiRelation() bool {
	return f.Relation == ManyToMany || f.Relation == Reverse
}

// HasColumn reports whether the field is backed by a column on the model's
// own table.
func (f *Field) HasColumn() bool {
	return !f.IsMultiRelation()
}

// Col declares a scalar column.
func Col(name string, t ColumnType) *Field {
	return &Field{Name: name, Type: t}
}

// AutoID declares the conventional auto-increment "id" primary key.
func AutoID() *Field {
	return &Field{Name: "id", Type: AutoField, Primary: true}
}

// FK declares a nullable foreign key to target.
func FK(name string, target *Model) *Field {
	return &Field{Name: name, Type: ForeignKeyField, Relation: ForeignKey, Target: target, Null: true}
}

// M2M declares a many-to-many relation using the conventional join table
// "<table>_<name>" with "<owner>_id" and "<target>_id" columns.
func M2M(owner *Model, name string, target *Model) *Field {
	return &Field{
		Name:             name,
		Type:             ManyToManyField,
		Relation:         ManyToMany,
		Target:           target,
		JoinTable:        owner.TableName() + "_" + name,
		JoinColumn:       strings.ToLower(owner.Name) + "_id",
		JoinTargetColumn: strings.ToLower(target.Name) + "_id",
	}
}

// ReverseFK declares the collection side of a foreign key named column on
// target.
func ReverseFK(name string, target *Model, column string) *Field {
	return &Field{Name: name, Type: ForeignKeyField, Relation: Reverse, Target: target, RelatedColumn: column}
}
