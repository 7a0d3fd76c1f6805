// Package backfill streams relational records into a physical index.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/docsync/internal/codec"
	"github.com/alfredjeanlab/docsync/internal/docstore"
	"github.com/alfredjeanlab/docsync/internal/idgen"
	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/registry"
	"github.com/alfredjeanlab/docsync/internal/store"
)

// DefaultChunkSize is the number of records fetched and sent per bulk
// request when Options.ChunkSize is unset.
const DefaultChunkSize = 500

// Refresh intervals applied around a backfill.
const (
	refreshSuppressed = "-1"
	refreshRestored   = "1s"
)

// Options configures a Driver.
type Options struct {
	ChunkSize int
	// Excluded lists "namespace.Name" labels of models never indexed.
	Excluded []string
	Logger   *slog.Logger
}

// Driver fills physical indexes from the relational store.
type Driver struct {
	registry  *registry.Registry
	store     store.Store
	client    docstore.Client
	codec     *codec.Codec
	chunkSize int
	excluded  map[string]bool
	logger    *slog.Logger
}

// New creates a Driver.
func New(reg *registry.Registry, st store.Store, client docstore.Client, c *codec.Codec, opts Options) *Driver {
	d := &Driver{
		registry:  reg,
		store:     st,
		client:    client,
		codec:     c,
		chunkSize: opts.ChunkSize,
		excluded:  make(map[string]bool, len(opts.Excluded)),
		logger:    opts.Logger,
	}
	if d.chunkSize <= 0 {
		d.chunkSize = DefaultChunkSize
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	for _, label := range opts.Excluded {
		d.excluded[label] = true
	}
	return d
}

// Stats counts the outcome of a backfill.
type Stats struct {
	RunID   string `json:"run_id,omitempty"`
	Index   string `json:"index,omitempty"`
	Types   int    `json:"types"`
	Indexed int    `json:"indexed"`
	// Failed counts documents the store rejected.
	Failed int `json:"failed"`
	// Skipped counts records that could not be encoded.
	Skipped int `json:"skipped"`
}

func (s *Stats) add(o *Stats) {
	s.Types += o.Types
	s.Indexed += o.Indexed
	s.Failed += o.Failed
	s.Skipped += o.Skipped
}

// Backfill streams every registered, non-excluded type of the logical index
// name into its physical index at version. Refresh is suppressed for the
// duration and restored afterwards, even on failure. An index with no
// registered types is a no-op.
func (d *Driver) Backfill(ctx context.Context, name string, version int) (stats *Stats, err error) {
	stats = &Stats{Index: docstore.VersionedName(name, version)}
	types := d.registry.TypesForIndex(name)
	if len(types) == 0 {
		return stats, nil
	}
	target := stats.Index
	stats.RunID = idgen.MustRunID(idgen.BackfillPrefix)
	logger := d.logger.With("run_id", stats.RunID, "index", target)
	logger.Debug("backfill started", "types", len(types))

	if err := d.client.PutSettings(ctx, target, refreshSettings(refreshSuppressed)); err != nil {
		return nil, fmt.Errorf("suppress refresh on %s: %w", target, err)
	}
	defer func() {
		if rerr := d.client.PutSettings(ctx, target, refreshSettings(refreshRestored)); rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore refresh on %s: %w", target, rerr))
		}
	}()

	for _, m := range types {
		if d.excluded[m.Label()] {
			continue
		}
		stats.Types++
		err := store.Batches(ctx, d.store, m, d.chunkSize, func(records []*model.Record) error {
			return d.sendChunk(ctx, target, m, records, stats)
		})
		if err != nil {
			return stats, fmt.Errorf("backfill %s into %s: %w", m.Label(), target, err)
		}
	}

	logger.Info("backfill completed",
		"types", stats.Types, "indexed", stats.Indexed,
		"failed", stats.Failed, "skipped", stats.Skipped)
	return stats, nil
}

// sendChunk encodes records and indexes them in one bulk request.
func (d *Driver) sendChunk(ctx context.Context, target string, m *model.Model, records []*model.Record, stats *Stats) error {
	items := make([]docstore.BulkItem, 0, len(records))
	for _, r := range records {
		doc, err := d.codec.ToDocument(ctx, r)
		if err != nil {
			d.logger.Warn("skipping record that cannot be encoded", "type", m.Label(), "id", r.ID(), "err", err)
			stats.Skipped++
			continue
		}
		items = append(items, docstore.BulkItem{
			Action: docstore.ActionIndex,
			Type:   m.DocType(),
			ID:     r.ID(),
			Doc:    doc,
		})
	}
	if len(items) == 0 {
		return nil
	}

	res, err := d.client.Bulk(ctx, target, items)
	if err != nil {
		return err
	}
	failed := res.Failed()
	for _, item := range failed {
		d.logger.Warn("document rejected", "index", target, "type", m.DocType(), "id", item.ID, "err", item.Err)
	}
	stats.Failed += len(failed)
	stats.Indexed += len(items) - len(failed)
	return nil
}

// Reindex backfills the currently aliased version of every registered
// index. Indexes that have not been provisioned yet are skipped.
func (d *Driver) Reindex(ctx context.Context) (*Stats, error) {
	total := &Stats{}
	for _, name := range d.registry.Indexes() {
		physical, err := d.client.GetAlias(ctx, name)
		if errors.Is(err, docstore.ErrNotFound) {
			d.logger.Warn("index not provisioned, skipping", "index", name)
			continue
		}
		if err != nil {
			return total, fmt.Errorf("resolve alias %s: %w", name, err)
		}
		if len(physical) != 1 {
			return total, fmt.Errorf("alias %s points at %d indexes", name, len(physical))
		}
		version, err := docstore.ParseVersion(physical[0])
		if err != nil {
			return total, err
		}
		stats, err := d.Backfill(ctx, name, version)
		if stats != nil {
			total.add(stats)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func refreshSettings(interval string) map[string]any {
	return map[string]any{"index": map[string]any{"refresh_interval": interval}}
}
