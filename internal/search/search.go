// Package search reads and writes the documents of indexable models.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alfredjeanlab/docsync/internal/codec"
	"github.com/alfredjeanlab/docsync/internal/docstore"
	"github.com/alfredjeanlab/docsync/internal/mapping"
	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/registry"
	"github.com/alfredjeanlab/docsync/internal/store"
)

// ErrDoesNotExist is matched by every *DoesNotExistError.
var ErrDoesNotExist = errors.New("search: document does not exist")

// DoesNotExistError reports a document missing from the index.
type DoesNotExistError struct {
	DocType string
	ID      string
}

func (e *DoesNotExistError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: no id given", e.DocType)
	}
	return fmt.Sprintf("%s %s does not exist", e.DocType, e.ID)
}

func (e *DoesNotExistError) Unwrap() error { return ErrDoesNotExist }

// Manager is the search-side counterpart of the relational store.
type Manager struct {
	registry *registry.Registry
	client   docstore.Client
	codec    *codec.Codec
	store    store.Store
	logger   *slog.Logger
}

// NewManager creates a Manager. st is used by SearchFull and may be nil
// otherwise.
func NewManager(reg *registry.Registry, client docstore.Client, c *codec.Codec, st store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{registry: reg, client: client, codec: c, store: st, logger: logger}
}

func (m *Manager) mapping(mdl *model.Model) (*mapping.Mapping, error) {
	if _, ok := m.registry.Lookup(mdl.DocType()); !ok {
		return nil, &model.ConfigError{Model: mdl.Label(), Message: "model is not registered"}
	}
	return m.registry.Mapping(mdl)
}

// Get fetches the document id of mdl and decodes it.
func (m *Manager) Get(ctx context.Context, mdl *model.Model, id string) (*codec.Result, error) {
	mp, err := m.mapping(mdl)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &DoesNotExistError{DocType: mp.DocType}
	}
	hit, err := m.client.Get(ctx, mp.Index, mp.DocType, id)
	if errors.Is(err, docstore.ErrNotFound) || (err == nil && hit == nil) {
		return nil, &DoesNotExistError{DocType: mp.DocType, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", mp.DocType, id, err)
	}
	return m.decode(hit, mdl)
}

func (m *Manager) decode(hit *docstore.Hit, mdl *model.Model) (*codec.Result, error) {
	res, err := m.codec.FromDocument(hit.Source, mdl)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", hit.Type, hit.ID, err)
	}
	res.ID, res.Index, res.DocType = hit.ID, hit.Index, hit.Type
	return res, nil
}

// indexedAs returns mdl and every registered ancestor. A subtype row is
// also a row of each ancestor table, so it is indexed under each type.
func (m *Manager) indexedAs(mdl *model.Model) []*model.Model {
	var out []*model.Model
	for _, cur := range mdl.Chain() {
		if _, ok := m.registry.Lookup(cur.DocType()); ok {
			out = append(out, cur)
		}
	}
	return out
}

// Index writes the document of r.
func (m *Manager) Index(ctx context.Context, r *model.Record) error {
	if _, err := m.mapping(r.Model); err != nil {
		return err
	}
	id := r.ID()
	if id == "" {
		return fmt.Errorf("index %s: record has no primary key", r.Model.Label())
	}
	for _, mdl := range m.indexedAs(r.Model) {
		mp, err := m.registry.Mapping(mdl)
		if err != nil {
			return err
		}
		doc, err := m.codec.ToDocument(ctx, r.As(mdl))
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", mp.DocType, id, err)
		}
		if err := m.client.Index(ctx, mp.Index, mp.DocType, id, doc); err != nil {
			return fmt.Errorf("index %s/%s: %w", mp.DocType, id, err)
		}
	}
	return nil
}

// Delete removes the document of r. A missing document is not an error.
func (m *Manager) Delete(ctx context.Context, r *model.Record) error {
	return m.DeleteByID(ctx, r.Model, r.ID())
}

// DeleteByID removes the document id of mdl and of its registered
// ancestors.
func (m *Manager) DeleteByID(ctx context.Context, mdl *model.Model, id string) error {
	if _, err := m.mapping(mdl); err != nil {
		return err
	}
	for _, as := range m.indexedAs(mdl) {
		mp, err := m.registry.Mapping(as)
		if err != nil {
			return err
		}
		err = m.client.Delete(ctx, mp.Index, mp.DocType, id)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("delete %s/%s: %w", mp.DocType, id, err)
		}
	}
	return nil
}

// DeleteHook returns a store hook that removes deleted records from the
// index. Failures are logged; the rows are already gone.
func (m *Manager) DeleteHook() store.DeleteHook {
	return func(ctx context.Context, r *model.Record) {
		if !r.Model.Indexable() {
			return
		}
		if _, ok := m.registry.Lookup(r.Model.DocType()); !ok {
			return
		}
		if err := m.Delete(ctx, r); err != nil {
			m.logger.Error("delete document failed", "type", r.Model.Label(), "id", r.ID(), "err", err)
		}
	}
}

// Save writes r to the relational store and, when index is set, its
// document to the index.
func (m *Manager) Save(ctx context.Context, st store.Store, r *model.Record, index bool) error {
	if err := st.Save(ctx, r); err != nil {
		return fmt.Errorf("save %s: %w", r.Model.Label(), err)
	}
	if !index {
		return nil
	}
	return m.Index(ctx, r)
}

// Refresh makes recent writes to mdl's index visible to search.
func (m *Manager) Refresh(ctx context.Context, mdl *model.Model) error {
	mp, err := m.mapping(mdl)
	if err != nil {
		return err
	}
	return m.client.Refresh(ctx, mp.Index)
}

// Response is a page of decoded hits.
type Response struct {
	Total   int64
	Results []*codec.Result
}

// Search runs query over the document types of mdl's family and decodes
// each hit as the model of its own type.
func (m *Manager) Search(ctx context.Context, mdl *model.Model, query map[string]any) (*Response, error) {
	mp, err := m.mapping(mdl)
	if err != nil {
		return nil, err
	}
	family := m.registry.FamilyOf(mdl)
	sr, err := m.client.Search(ctx, mp.Index, m.registry.DocTypes(mdl), query)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", mp.Index, err)
	}

	resp := &Response{Total: sr.Total, Results: make([]*codec.Result, 0, len(sr.Hits))}
	for i := range sr.Hits {
		hit := &sr.Hits[i]
		hitModel, ok := family[hit.Type]
		if !ok {
			return nil, fmt.Errorf("search %s: hit of unknown type %q", mp.Index, hit.Type)
		}
		res, err := m.decode(hit, hitModel)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, res)
	}
	return resp, nil
}

// FullResponse is a page of hits re-read from the relational store.
type FullResponse struct {
	Total   int64
	Records []*model.Record
}

// SearchFull runs query like Search, then loads the hits from the
// relational store with one query per document type. Hit order is kept;
// hits whose rows are gone are dropped.
func (m *Manager) SearchFull(ctx context.Context, mdl *model.Model, query map[string]any) (*FullResponse, error) {
	if m.store == nil {
		return nil, errors.New("search: full results need a relational store")
	}
	mp, err := m.mapping(mdl)
	if err != nil {
		return nil, err
	}
	family := m.registry.FamilyOf(mdl)
	sr, err := m.client.Search(ctx, mp.Index, m.registry.DocTypes(mdl), query)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", mp.Index, err)
	}

	byType := make(map[string][]any)
	var order []string
	for _, hit := range sr.Hits {
		if _, ok := byType[hit.Type]; !ok {
			order = append(order, hit.Type)
		}
		byType[hit.Type] = append(byType[hit.Type], parseID(hit.ID))
	}
	loaded := make(map[string]map[string]*model.Record, len(byType))
	for _, docType := range order {
		hitModel, ok := family[docType]
		if !ok {
			return nil, fmt.Errorf("search %s: hit of unknown type %q", mp.Index, docType)
		}
		records, err := m.store.InBulk(ctx, hitModel, byType[docType])
		if err != nil {
			return nil, fmt.Errorf("load %s hits: %w", hitModel.Label(), err)
		}
		loaded[docType] = records
	}

	resp := &FullResponse{Total: sr.Total, Records: make([]*model.Record, 0, len(sr.Hits))}
	for _, hit := range sr.Hits {
		r, ok := loaded[hit.Type][hit.ID]
		if !ok {
			m.logger.Warn("hit has no row", "type", hit.Type, "id", hit.ID)
			continue
		}
		resp.Records = append(resp.Records, r)
	}
	return resp, nil
}

// parseID returns numeric ids as integers so they compare equal to integer
// key columns.
func parseID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
