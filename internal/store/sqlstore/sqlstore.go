// Package sqlstore implements the store.Store interface over database/sql
// for PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/store"
)

// Store implements store.Store backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect *Dialect

	mu    sync.RWMutex
	hooks []store.DeleteHook
}

// Compile-time checks that Store implements store.Store and model.Loader.
var (
	_ store.Store  = (*Store)(nil)
	_ model.Loader = (*Store)(nil)
)

// Open connects to the database at databaseURL, configures the connection
// pool and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	d, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, d), nil
}

// New wraps an open database.
func New(db *sql.DB, d *Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() *Dialect {
	return s.dialect
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Chunk(ctx context.Context, m *model.Model, afterPK any, limit int) ([]*model.Record, error) {
	return queryChunk(ctx, s.db, s.dialect, s, m, afterPK, limit)
}

func (s *Store) Get(ctx context.Context, m *model.Model, pk any) (*model.Record, error) {
	return queryGet(ctx, s.db, s.dialect, s, m, pk)
}

func (s *Store) InBulk(ctx context.Context, m *model.Model, pks []any) (map[string]*model.Record, error) {
	return queryInBulk(ctx, s.db, s.dialect, s, m, pks)
}

func (s *Store) Count(ctx context.Context, m *model.Model) (int64, error) {
	return queryCount(ctx, s.db, m)
}

// Save writes every table of r's chain in one transaction.
func (s *Store) Save(ctx context.Context, r *model.Record) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.Save(ctx, r)
	})
}

// Delete removes r in one transaction and then fires the delete hooks.
func (s *Store) Delete(ctx context.Context, r *model.Record) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.Delete(ctx, r)
	})
}

func (s *Store) Link(ctx context.Context, r *model.Record, field string, targets ...any) error {
	return queryLink(ctx, s.db, s.dialect, r, field, targets)
}

// OnDelete registers hook to run after every committed delete.
func (s *Store) OnDelete(hook store.DeleteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Store) fireDeleted(ctx context.Context, records []*model.Record) {
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, r := range records {
		for _, hook := range hooks {
			hook(ctx, r)
		}
	}
}

// LoadRelated resolves relation f of r from the database.
func (s *Store) LoadRelated(ctx context.Context, r *model.Record, f *model.Field) (any, error) {
	switch f.Relation {
	case model.ForeignKey, model.OneToOne:
		id := r.Values[f.AttName()]
		if id == nil {
			return nil, nil
		}
		target, err := queryGet(ctx, s.db, s.dialect, s, f.Target, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return target, nil
	case model.ManyToMany:
		return queryManyToMany(ctx, s.db, s.dialect, s, f, r.PK())
	case model.Reverse:
		return queryReverse(ctx, s.db, s.dialect, s, f, r.PK())
	default:
		return nil, fmt.Errorf("%s is not a relation", f.Name)
	}
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
// Delete hooks for records removed inside the transaction fire after the
// commit.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx, parent: s}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.fireDeleted(ctx, txS.deleted)
	return nil
}

// txStore implements store.Store using a *sql.Tx. Records it returns load
// their relations through the parent store.
type txStore struct {
	tx      *sql.Tx
	parent  *Store
	deleted []*model.Record
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) Chunk(ctx context.Context, m *model.Model, afterPK any, limit int) ([]*model.Record, error) {
	return queryChunk(ctx, s.tx, s.parent.dialect, s.parent, m, afterPK, limit)
}

func (s *txStore) Get(ctx context.Context, m *model.Model, pk any) (*model.Record, error) {
	return queryGet(ctx, s.tx, s.parent.dialect, s.parent, m, pk)
}

func (s *txStore) InBulk(ctx context.Context, m *model.Model, pks []any) (map[string]*model.Record, error) {
	return queryInBulk(ctx, s.tx, s.parent.dialect, s.parent, m, pks)
}

func (s *txStore) Count(ctx context.Context, m *model.Model) (int64, error) {
	return queryCount(ctx, s.tx, m)
}

func (s *txStore) Save(ctx context.Context, r *model.Record) error {
	return querySave(ctx, s.tx, s.parent.dialect, r)
}

func (s *txStore) Delete(ctx context.Context, r *model.Record) error {
	if err := queryDelete(ctx, s.tx, s.parent.dialect, r); err != nil {
		return err
	}
	s.deleted = append(s.deleted, r)
	return nil
}

func (s *txStore) Link(ctx context.Context, r *model.Record, field string, targets ...any) error {
	return queryLink(ctx, s.tx, s.parent.dialect, r, field, targets)
}

func (s *txStore) OnDelete(hook store.DeleteHook) {
	s.parent.OnDelete(hook)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
