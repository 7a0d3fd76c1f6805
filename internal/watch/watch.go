// Package watch applies record change events to the index.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alfredjeanlab/docsync/internal/events"
	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/registry"
	"github.com/alfredjeanlab/docsync/internal/store"
)

// Indexer writes and removes single documents.
type Indexer interface {
	Index(ctx context.Context, r *model.Record) error
	DeleteByID(ctx context.Context, m *model.Model, id string) error
}

// Worker consumes record events and keeps the index current.
type Worker struct {
	sub     events.Subscriber
	reg     *registry.Registry
	store   store.Store
	indexer Indexer
	logger  *slog.Logger
}

// New creates a Worker.
func New(sub events.Subscriber, reg *registry.Registry, st store.Store, idx Indexer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sub: sub, reg: reg, store: st, indexer: idx, logger: logger}
}

// Run handles record events until ctx is cancelled or the subscription
// closes. Failures to apply a single event are logged and skipped.
func (w *Worker) Run(ctx context.Context) error {
	msgs, cancel, err := w.sub.Subscribe(events.TopicRecords)
	if err != nil {
		return err
	}
	defer cancel()

	w.logger.Info("watching record events", "subject", events.TopicRecords)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("watch: subscription closed")
			}
			if err := w.Handle(ctx, msg); err != nil {
				w.logger.Warn("event skipped", "subject", msg.Subject, "err", err)
			}
		}
	}
}

// Handle dispatches one record event by its subject.
func (w *Worker) Handle(ctx context.Context, msg events.Message) error {
	root, docType, ok := events.ParseSubject(msg.Subject)
	if !ok {
		return fmt.Errorf("unexpected subject %q", msg.Subject)
	}
	switch root {
	case events.TopicRecordSaved:
		return w.HandleSaved(ctx, docType, msg.Data)
	case events.TopicRecordDeleted:
		return w.HandleDeleted(ctx, docType, msg.Data)
	default:
		return fmt.Errorf("unexpected subject %q", msg.Subject)
	}
}

// HandleSaved indexes the record named by a RecordSaved payload published
// for docType. A record that is gone by the time the event arrives is
// removed instead.
func (w *Worker) HandleSaved(ctx context.Context, docType string, data []byte) error {
	var ev events.RecordSaved
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	m, err := w.lookup(docType, ev.DocType, ev.ID)
	if err != nil {
		return err
	}
	r, err := w.store.Get(ctx, m, parseID(ev.ID))
	if errors.Is(err, store.ErrNotFound) {
		return w.indexer.DeleteByID(ctx, m, ev.ID)
	}
	if err != nil {
		return fmt.Errorf("load %s %s: %w", m.Label(), ev.ID, err)
	}
	return w.indexer.Index(ctx, r)
}

// HandleDeleted removes the document named by a RecordDeleted payload
// published for docType.
func (w *Worker) HandleDeleted(ctx context.Context, docType string, data []byte) error {
	var ev events.RecordDeleted
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	m, err := w.lookup(docType, ev.DocType, ev.ID)
	if err != nil {
		return err
	}
	return w.indexer.DeleteByID(ctx, m, ev.ID)
}

// lookup resolves the subject's document type. A payload naming a
// different type is rejected.
func (w *Worker) lookup(docType, payloadType, id string) (*model.Model, error) {
	if payloadType != "" && payloadType != docType {
		return nil, fmt.Errorf("event on %q names document type %q", docType, payloadType)
	}
	if id == "" {
		return nil, fmt.Errorf("event for %q has no id", docType)
	}
	m, ok := w.reg.Lookup(docType)
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
	return m, nil
}

func parseID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
