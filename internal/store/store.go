package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/docsync/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// DeleteHook runs after a record's rows are gone.
type DeleteHook func(ctx context.Context, r *model.Record)

// Store defines the relational persistence interface for model records.
type Store interface {
	// Reads. Every returned record carries a loader for its relations.
	Chunk(ctx context.Context, m *model.Model, afterPK any, limit int) ([]*model.Record, error)
	Get(ctx context.Context, m *model.Model, pk any) (*model.Record, error)
	// InBulk returns the records with the given keys, keyed by document id.
	InBulk(ctx context.Context, m *model.Model, pks []any) (map[string]*model.Record, error)
	Count(ctx context.Context, m *model.Model) (int64, error)

	// Writes
	Save(ctx context.Context, r *model.Record) error
	Delete(ctx context.Context, r *model.Record) error
	// Link adds many-to-many rows from r to each target key of field.
	Link(ctx context.Context, r *model.Record, field string, targets ...any) error

	// OnDelete registers a hook fired after every successful delete.
	OnDelete(hook DeleteHook)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// Batches walks every record of m in primary-key order, size records at a
// time. Rows deleted mid-walk are skipped and rows inserted behind the
// cursor are not revisited.
func Batches(ctx context.Context, s Store, m *model.Model, size int, fn func([]*model.Record) error) error {
	var after any
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, err := s.Chunk(ctx, m, after, size)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		if len(records) < size {
			return nil
		}
		after = records[len(records)-1].PK()
	}
}
