package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryRecords(ctx context.Context, db executor, sel selection, loader model.Loader, b *sqlBuilder) ([]*model.Record, error) {
	rows, err := db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(rows, sel)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		r.SetLoader(loader)
	}
	return records, nil
}

func queryChunk(ctx context.Context, db executor, d *Dialect, loader model.Loader, m *model.Model, afterPK any, limit int) ([]*model.Record, error) {
	sel := selectionFor(m)
	b := newSQL(d, sel.sql())
	if afterPK != nil {
		b.write(" WHERE ", sel.pk, " > ", b.arg(afterPK))
	}
	b.write(" ORDER BY ", sel.pk)
	if limit > 0 {
		b.write(" LIMIT ", b.arg(limit))
	}
	return queryRecords(ctx, db, sel, loader, b)
}

func queryGet(ctx context.Context, db executor, d *Dialect, loader model.Loader, m *model.Model, pk any) (*model.Record, error) {
	sel := selectionFor(m)
	b := newSQL(d, sel.sql())
	b.write(" WHERE ", sel.pk, " = ", b.arg(pk))
	r, err := scanRecord(db.QueryRowContext(ctx, b.String(), b.args...), sel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.SetLoader(loader)
	return r, nil
}

func queryInBulk(ctx context.Context, db executor, d *Dialect, loader model.Loader, m *model.Model, pks []any) (map[string]*model.Record, error) {
	out := make(map[string]*model.Record, len(pks))
	if len(pks) == 0 {
		return out, nil
	}
	sel := selectionFor(m)
	b := newSQL(d, sel.sql())
	b.write(" WHERE ", sel.pk, " IN (", b.argList(pks), ")")
	records, err := queryRecords(ctx, db, sel, loader, b)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		out[r.ID()] = r
	}
	return out, nil
}

func queryCount(ctx context.Context, db executor, m *model.Model) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+m.TableName()).Scan(&n)
	return n, err
}

// querySave updates r's rows when it has a primary key that exists and
// inserts them otherwise.
func querySave(ctx context.Context, db executor, d *Dialect, r *model.Record) error {
	if r.PK() != nil {
		updated, err := queryUpdate(ctx, db, d, r)
		if err != nil || updated {
			return err
		}
	}
	return queryInsert(ctx, db, d, r)
}

// queryInsert inserts one row per chain level, root first, threading the
// root's generated key into each parent link.
func queryInsert(ctx context.Context, db executor, d *Dialect, r *model.Record) error {
	pk := r.PK()
	for i, level := range r.Model.Chain() {
		levelPK := level.PK()
		var cols []string
		var vals []any
		for _, f := range level.LocalFields() {
			if !f.HasColumn() {
				continue
			}
			v, ok := columnValue(r, f)
			switch {
			case f.ParentLink:
				v = pk
			case f == levelPK:
				if v == nil {
					v = pk
				}
				if v == nil {
					continue
				}
			case !ok:
				continue
			}
			cols = append(cols, f.DBColumn())
			vals = append(vals, v)
		}

		b := newSQL(d, "INSERT INTO "+level.TableName())
		if len(cols) == 0 {
			b.write(" DEFAULT VALUES")
		} else {
			b.write(" (", strings.Join(cols, ", "), ") VALUES (", b.argList(vals), ")")
		}
		b.write(" RETURNING ", levelPK.DBColumn())

		var raw any
		if err := db.QueryRowContext(ctx, b.String(), b.args...).Scan(&raw); err != nil {
			return fmt.Errorf("insert %s: %w", level.Label(), err)
		}
		v, err := normalize(levelPK, raw)
		if err != nil {
			return fmt.Errorf("insert %s: %w", level.Label(), err)
		}
		if i == 0 {
			pk = v
		}
		r.Values[levelPK.AttName()] = v
	}
	return nil
}

// queryUpdate rewrites every chain level of r. It reports false when the
// root row does not exist.
func queryUpdate(ctx context.Context, db executor, d *Dialect, r *model.Record) (bool, error) {
	pk := r.PK()
	for i, level := range r.Model.Chain() {
		levelPK := level.PK()
		b := newSQL(d, "UPDATE "+level.TableName()+" SET ")
		var sets []string
		for _, f := range level.LocalFields() {
			if !f.HasColumn() || f == levelPK {
				continue
			}
			v, ok := columnValue(r, f)
			if !ok {
				continue
			}
			sets = append(sets, f.DBColumn()+" = "+b.arg(v))
		}
		if len(sets) == 0 {
			sets = append(sets, levelPK.DBColumn()+" = "+levelPK.DBColumn())
		}
		b.write(strings.Join(sets, ", "), " WHERE ", levelPK.DBColumn(), " = ", b.arg(pk))

		res, err := db.ExecContext(ctx, b.String(), b.args...)
		if err != nil {
			return false, fmt.Errorf("update %s: %w", level.Label(), err)
		}
		if i == 0 {
			n, err := res.RowsAffected()
			if err != nil {
				return false, fmt.Errorf("update %s: %w", level.Label(), err)
			}
			if n == 0 {
				return false, nil
			}
		}
	}
	return true, nil
}

// queryDelete removes r's join rows and table rows, leaf table first.
func queryDelete(ctx context.Context, db executor, d *Dialect, r *model.Record) error {
	pk := r.PK()
	if pk == nil {
		return fmt.Errorf("delete %s: record has no primary key", r.Model.Label())
	}
	chain := r.Model.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		level := chain[i]
		for _, f := range level.LocalFields() {
			if f.Relation != model.ManyToMany {
				continue
			}
			b := newSQL(d, "DELETE FROM "+f.JoinTable+" WHERE "+f.JoinColumn+" = ")
			b.write(b.arg(pk))
			if _, err := db.ExecContext(ctx, b.String(), b.args...); err != nil {
				return fmt.Errorf("delete %s.%s: %w", level.Label(), f.Name, err)
			}
		}

		b := newSQL(d, "DELETE FROM "+level.TableName()+" WHERE "+level.PK().DBColumn()+" = ")
		b.write(b.arg(pk))
		res, err := db.ExecContext(ctx, b.String(), b.args...)
		if err != nil {
			return fmt.Errorf("delete %s: %w", level.Label(), err)
		}
		if i == 0 {
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete %s: %w", level.Label(), err)
			}
			if n == 0 {
				return store.ErrNotFound
			}
		}
	}
	return nil
}

func queryLink(ctx context.Context, db executor, d *Dialect, r *model.Record, name string, targets []any) error {
	f := r.Model.FieldByName(name)
	if f == nil || f.Relation != model.ManyToMany {
		return fmt.Errorf("link %s.%s: not a many-to-many field", r.Model.Label(), name)
	}
	pk := r.PK()
	if pk == nil {
		return fmt.Errorf("link %s.%s: record has no primary key", r.Model.Label(), name)
	}
	for _, target := range targets {
		b := newSQL(d, "INSERT INTO "+f.JoinTable+" ("+f.JoinColumn+", "+f.JoinTargetColumn+") VALUES (")
		b.write(b.arg(pk), ", ", b.arg(target), ")")
		if _, err := db.ExecContext(ctx, b.String(), b.args...); err != nil {
			return fmt.Errorf("link %s.%s: %w", r.Model.Label(), name, err)
		}
	}
	return nil
}

// queryManyToMany returns the targets of f joined through its join table.
func queryManyToMany(ctx context.Context, db executor, d *Dialect, loader model.Loader, f *model.Field, ownerPK any) ([]*model.Record, error) {
	sel := selectionFor(f.Target)
	b := newSQL(d, sel.sql())
	b.write(" JOIN ", f.JoinTable, " j ON j.", f.JoinTargetColumn, " = ", sel.pk)
	b.write(" WHERE j.", f.JoinColumn, " = ", b.arg(ownerPK), " ORDER BY ", sel.pk)
	return queryRecords(ctx, db, sel, loader, b)
}

// queryReverse returns the records of f.Target whose related column points
// at ownerPK.
func queryReverse(ctx context.Context, db executor, d *Dialect, loader model.Loader, f *model.Field, ownerPK any) ([]*model.Record, error) {
	sel := selectionFor(f.Target)
	b := newSQL(d, sel.sql())
	b.write(" WHERE ", sel.aliasOf(f.RelatedColumn), ".", f.RelatedColumn, " = ", b.arg(ownerPK), " ORDER BY ", sel.pk)
	return queryRecords(ctx, db, sel, loader, b)
}
