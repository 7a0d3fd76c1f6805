// Package export writes every indexable record as JSON lines, the documents
// a full backfill would send, for offline inspection or restore.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/docsync/internal/codec"
	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/registry"
	"github.com/alfredjeanlab/docsync/internal/store"
)

// chunkSize is the number of records read per store query.
const chunkSize = 500

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version   string           `json:"version"`
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Indexes   []string         `json:"indexes"`
	Counts    map[string]int64 `json:"counts"`
}

// line is one exported document.
type line struct {
	Index   string         `json:"index"`
	DocType string         `json:"doc_type"`
	ID      string         `json:"id"`
	Source  map[string]any `json:"source"`
}

// WriteJSONL writes a header line followed by the document of every
// registered record, type by type in registration order and by primary key
// within a type. It returns the number of documents written.
func WriteJSONL(ctx context.Context, reg *registry.Registry, s store.Store, c *codec.Codec, w io.Writer) (int, error) {
	types := reg.Types()
	counts := make(map[string]int64, len(types))
	for _, m := range types {
		n, err := s.Count(ctx, m)
		if err != nil {
			return 0, fmt.Errorf("count %s: %w", m.Label(), err)
		}
		counts[m.DocType()] = n
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:   "1",
		Type:      "header",
		Timestamp: time.Now().UTC(),
		Indexes:   reg.Indexes(),
		Counts:    counts,
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	written := 0
	for _, m := range types {
		mp, err := reg.Mapping(m)
		if err != nil {
			return written, err
		}
		err = store.Batches(ctx, s, m, chunkSize, func(records []*model.Record) error {
			for _, r := range records {
				doc, err := c.ToDocument(ctx, r)
				if err != nil {
					return fmt.Errorf("encode %s %s: %w", m.Label(), r.ID(), err)
				}
				if err := enc.Encode(line{Index: mp.Index, DocType: mp.DocType, ID: r.ID(), Source: doc}); err != nil {
					return fmt.Errorf("write %s %s: %w", m.Label(), r.ID(), err)
				}
				written++
			}
			return nil
		})
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
