package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/store"
)

// Subject roots. Record events are published on "<root>.<doc_type>" and
// sync results on "<root>.<index>", so a consumer can follow one document
// type or one index.
const (
	TopicRecordSaved   = "docsync.record.saved"
	TopicRecordDeleted = "docsync.record.deleted"
	TopicIndexSynced   = "docsync.index.synced"

	// TopicRecords matches every record event.
	TopicRecords = "docsync.record.>"
)

// Subject scopes root to one document type or index name.
func Subject(root, name string) string {
	return root + "." + name
}

// All matches every subject under root.
func All(root string) string {
	return root + ".>"
}

// ParseSubject splits a scoped subject into its root and the document type
// or index name it is scoped to.
func ParseSubject(subject string) (root, name string, ok bool) {
	for _, root := range []string{TopicRecordSaved, TopicRecordDeleted, TopicIndexSynced} {
		if name, found := strings.CutPrefix(subject, root+"."); found && name != "" {
			return root, name, true
		}
	}
	return "", "", false
}

// encode validates a publish subject and marshals the event payload.
func encode(subject string, event any) ([]byte, error) {
	if subject == "" || strings.ContainsAny(subject, "*> \t\r\n") {
		return nil, fmt.Errorf("publish: %q is not a concrete subject", subject)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	return data, nil
}

// Event types

// RecordSaved announces that a record was written to the relational store.
type RecordSaved struct {
	DocType string `json:"doc_type"`
	ID      string `json:"id"`
}

// RecordDeleted announces that a record's rows are gone.
type RecordDeleted struct {
	DocType string `json:"doc_type"`
	ID      string `json:"id"`
}

// IndexSynced reports the outcome of one index synchronization.
type IndexSynced struct {
	RunID    string   `json:"run_id,omitempty"`
	Index    string   `json:"index"`
	Version  int      `json:"version"`
	Created  bool     `json:"created"`
	Previous []string `json:"previous,omitempty"`
	Conflict string   `json:"conflict,omitempty"`
	Indexed  int      `json:"indexed,omitempty"`
}

// Publisher emits JSON events on concrete subjects.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// PublishSaved emits a RecordSaved event for an indexable record on its
// document type's subject.
func PublishSaved(ctx context.Context, pub Publisher, r *model.Record) error {
	if !r.Model.Indexable() {
		return nil
	}
	ev := RecordSaved{DocType: r.Model.DocType(), ID: r.ID()}
	return pub.Publish(ctx, Subject(TopicRecordSaved, ev.DocType), ev)
}

// PublishSynced emits the outcome of one index synchronization on the
// index's subject.
func PublishSynced(ctx context.Context, pub Publisher, ev IndexSynced) error {
	return pub.Publish(ctx, Subject(TopicIndexSynced, ev.Index), ev)
}

// DeleteHook returns a store hook that emits a RecordDeleted event for every
// deleted indexable record. Publish failures are logged; the delete has
// already been committed.
func DeleteHook(pub Publisher, logger *slog.Logger) store.DeleteHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, r *model.Record) {
		if !r.Model.Indexable() {
			return
		}
		ev := RecordDeleted{DocType: r.Model.DocType(), ID: r.ID()}
		if err := pub.Publish(ctx, Subject(TopicRecordDeleted, ev.DocType), ev); err != nil {
			logger.Error("publish delete event failed", "doc_type", ev.DocType, "id", ev.ID, "err", err)
		}
	}
}
