package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/docsync/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// column is one selected column: the table alias it is read from and the
// field it fills.
type column struct {
	alias string
	field *model.Field
}

func (c column) expr() string {
	return c.alias + "." + c.field.DBColumn()
}

// selection is the SELECT over a model's inheritance chain. Level i of the
// chain is aliased "t<i>" and joined to its parent on the parent link.
type selection struct {
	model   *model.Model
	columns []column
	from    string
	pk      string
}

func selectionFor(m *model.Model) selection {
	chain := m.Chain()
	sel := selection{model: m}
	var from strings.Builder
	for i, level := range chain {
		alias := "t" + strconv.Itoa(i)
		if i == 0 {
			from.WriteString(level.TableName() + " " + alias)
		} else {
			fmt.Fprintf(&from, " JOIN %s %s ON %s.%s = t%d.%s",
				level.TableName(), alias, alias, level.ParentLink().DBColumn(), i-1, chain[i-1].PK().DBColumn())
		}
		for _, f := range level.LocalFields() {
			if f.HasColumn() {
				sel.columns = append(sel.columns, column{alias: alias, field: f})
			}
		}
	}
	sel.from = from.String()
	sel.pk = fmt.Sprintf("t%d.%s", len(chain)-1, m.PK().DBColumn())
	return sel
}

func (s selection) sql() string {
	exprs := make([]string, len(s.columns))
	for i, c := range s.columns {
		exprs[i] = c.expr()
	}
	return "SELECT " + strings.Join(exprs, ", ") + " FROM " + s.from
}

// aliasOf returns the alias of the chain level whose table holds column,
// defaulting to the leaf.
func (s selection) aliasOf(column string) string {
	for _, c := range s.columns {
		if c.field.DBColumn() == column {
			return c.alias
		}
	}
	return "t" + strconv.Itoa(len(s.model.Chain())-1)
}

// scanRecord scans a single row into a record of sel's model. The row must
// contain the columns of sel in order.
func scanRecord(row scannable, sel selection) (*model.Record, error) {
	raw := make([]any, len(sel.columns))
	dest := make([]any, len(sel.columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	values := make(map[string]any, len(sel.columns))
	for i, c := range sel.columns {
		v, err := normalize(c.field, raw[i])
		if err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", sel.model.Label(), c.field.Name, err)
		}
		values[c.field.AttName()] = v
	}
	return model.NewRecord(sel.model, values), nil
}

// scanRecords scans every row, closing rows when done.
func scanRecords(rows *sql.Rows, sel selection) ([]*model.Record, error) {
	defer rows.Close()
	var out []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// dateLayouts are the textual forms drivers return for date columns.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// normalize converts a driver value to the Go type the codec expects for
// the field's column type.
func normalize(f *model.Field, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		if f.Type == model.BinaryField {
			return b, nil
		}
		v = string(b)
	}
	if v == nil {
		return nil, nil
	}

	switch f.Type {
	case model.DateTimeField, model.DateField:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, x); err == nil {
					return t.UTC(), nil
				}
			}
			return nil, fmt.Errorf("unrecognized date %q", x)
		}
	case model.FloatField, model.DecimalField:
		switch x := v.(type) {
		case string:
			return strconv.ParseFloat(x, 64)
		case int64:
			return float64(x), nil
		}
	case model.BooleanField:
		switch x := v.(type) {
		case int64:
			return x != 0, nil
		case string:
			return strconv.ParseBool(x)
		}
	case model.AutoField, model.BigAutoField, model.IntegerField, model.BigIntegerField,
		model.SmallIntegerField, model.PositiveIntegerField, model.ForeignKeyField, model.OneToOneField:
		if x, ok := v.(string); ok {
			return strconv.ParseInt(x, 10, 64)
		}
	}
	return v, nil
}

// columnValue returns the value written to f's column for r, and false
// when r does not set it. Single relations fall back to the primary key of
// a loaded target record.
func columnValue(r *model.Record, f *model.Field) (any, bool) {
	if v, ok := r.Values[f.AttName()]; ok {
		return v, true
	}
	if f.IsSingleRelation() {
		if target, ok := r.Values[f.Name].(*model.Record); ok && target != nil {
			return target.PK(), true
		}
	}
	return nil, false
}
