package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alfredjeanlab/docsync/internal/catalog"
	"github.com/alfredjeanlab/docsync/internal/codec"
	"github.com/alfredjeanlab/docsync/internal/docstore"
	"github.com/alfredjeanlab/docsync/internal/docstore/memory"
	"github.com/alfredjeanlab/docsync/internal/mapping"
	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/registry"
	"github.com/alfredjeanlab/docsync/internal/store/sqlstore"
	"github.com/alfredjeanlab/docsync/internal/sync"
)

type fixture struct {
	cat     *catalog.Catalog
	store   *sqlstore.Store
	client  *memory.Store
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cat := catalog.New()
	b := mapping.NewBuilder("docsync")
	reg := registry.New(b)
	if err := reg.Scan(cat.Models()...); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	st, err := sqlstore.Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "docsync.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := catalog.Migrate(st.DB(), st.Dialect().Name); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	client := memory.New()
	bodies, err := sync.BuildIndexes(reg, nil, nil)
	if err != nil {
		t.Fatalf("BuildIndexes: %v", err)
	}
	if _, err := sync.New(client, nil, logger).SyncAll(ctx, bodies, false); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	client.ResetOps()

	return &fixture{
		cat:     cat,
		store:   st,
		client:  client,
		manager: NewManager(reg, client, codec.New(b), st, logger),
	}
}

func (f *fixture) save(t *testing.T, m *model.Model, values map[string]any) *model.Record {
	t.Helper()
	r := model.NewRecord(m, values)
	if err := f.manager.Save(context.Background(), f.store, r, true); err != nil {
		t.Fatalf("Save(%s): %v", m, err)
	}
	return r
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.save(t, f.cat.SimpleObject, map[string]any{"foo": int64(7), "bar": "hello", "baz": "slug"})

	res, err := f.manager.Get(ctx, f.cat.SimpleObject, r.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.ID != r.ID() || res.DocType != "app_simpleobject" || res.Index != "docsync_0001" {
		t.Errorf("hit metadata = %s %s %s", res.ID, res.DocType, res.Index)
	}
	if foo, _ := res.Get("foo"); foo != int64(7) {
		t.Errorf("foo = %#v, want int64(7)", foo)
	}
	if res.Model() != f.cat.SimpleObject {
		t.Errorf("Model() = %v", res.Model())
	}
}

func TestGet_DoesNotExist(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"404", ""} {
		_, err := f.manager.Get(context.Background(), f.cat.SimpleObject, id)
		if !errors.Is(err, ErrDoesNotExist) {
			t.Fatalf("Get(%q) err = %v, want ErrDoesNotExist", id, err)
		}
		var dne *DoesNotExistError
		if !errors.As(err, &dne) || dne.DocType != "app_simpleobject" || dne.ID != id {
			t.Errorf("Get(%q) err = %#v", id, err)
		}
	}
}

func TestGet_TransportErrorIsNotMissing(t *testing.T) {
	f := newFixture(t)
	f.client.FailNext("get", &docstore.Error{Status: 500, Reason: "boom"})
	_, err := f.manager.Get(context.Background(), f.cat.SimpleObject, "1")
	if err == nil || errors.Is(err, ErrDoesNotExist) {
		t.Fatalf("err = %v, want a transport error", err)
	}
}

func TestUnregisteredModel(t *testing.T) {
	f := newFixture(t)
	_, err := f.manager.Get(context.Background(), f.cat.DumbTag, "1")
	var ce *model.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *model.ConfigError", err)
	}
}

func TestIndex_SubtypeIsIndexedUnderAncestors(t *testing.T) {
	f := newFixture(t)
	child := f.save(t, f.cat.ChildObject, map[string]any{"foo": int64(1), "bar": "b", "baz": "c", "zoo": "z"})

	childDoc := f.client.Documents("docsync", "app_childobject")[child.ID()]
	if childDoc["zoo"] != "z" {
		t.Errorf("child doc = %v", childDoc)
	}
	parentDoc, ok := f.client.Documents("docsync", "app_simpleobject")[child.ID()]
	if !ok {
		t.Fatal("child row not indexed as its parent type")
	}
	if _, ok := parentDoc["zoo"]; ok {
		t.Errorf("parent doc carries child fields: %v", parentDoc)
	}
}

func TestSave_WithoutIndex(t *testing.T) {
	f := newFixture(t)
	r := model.NewRecord(f.cat.SimpleObject, map[string]any{"foo": int64(1)})
	if err := f.manager.Save(context.Background(), f.store, r, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if r.PK() == nil {
		t.Error("record has no primary key after save")
	}
	if ops := f.client.Ops(); len(ops) != 0 {
		t.Errorf("ops = %v, want none", ops)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	child := f.save(t, f.cat.ChildObject, map[string]any{"zoo": "z"})

	if err := f.manager.Delete(ctx, child); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, docType := range []string{"app_childobject", "app_simpleobject"} {
		if _, ok := f.client.Documents("docsync", docType)[child.ID()]; ok {
			t.Errorf("%s document survived delete", docType)
		}
	}
	// Deleting again is not an error.
	if err := f.manager.DeleteByID(ctx, f.cat.ChildObject, child.ID()); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestDeleteHook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.OnDelete(f.manager.DeleteHook())
	r := f.save(t, f.cat.SimpleObject, map[string]any{"foo": int64(1)})
	tag := model.NewRecord(f.cat.DumbTag, map[string]any{"name": "plain"})
	if err := f.store.Save(ctx, tag); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := f.store.Delete(ctx, r); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.store.Delete(ctx, tag); err != nil {
		t.Fatalf("Delete(tag): %v", err)
	}
	_, err := f.manager.Get(ctx, f.cat.SimpleObject, r.ID())
	if !errors.Is(err, ErrDoesNotExist) {
		t.Errorf("Get after delete err = %v, want ErrDoesNotExist", err)
	}
}

func TestSearch_Family(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	simple := f.save(t, f.cat.SimpleObject, map[string]any{"foo": int64(1), "bar": "s"})
	child := f.save(t, f.cat.ChildObject, map[string]any{"foo": int64(2), "bar": "c", "zoo": "z"})
	f.save(t, f.cat.Tag, map[string]any{"name": "other family"})

	resp, err := f.manager.Search(ctx, f.cat.SimpleObject, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	type hit struct{ DocType, ID string }
	var got []hit
	for _, res := range resp.Results {
		got = append(got, hit{res.DocType, res.ID})
		if res.Model().DocType() != res.DocType {
			t.Errorf("hit %s/%s decoded as %s", res.DocType, res.ID, res.Model())
		}
	}
	// Hits come back grouped by the family's document types.
	want := []hit{
		{"app_simpleobject", simple.ID()},
		{"app_simpleobject", child.ID()},
		{"app_childobject", child.ID()},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hits mismatch (-want +got):\n%s", diff)
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}

	zoo, _ := resp.Results[2].Get("zoo")
	if zoo != "z" {
		t.Errorf("child result zoo = %v", zoo)
	}
}

func TestSearchFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var records []*model.Record
	var ids []any
	for _, bar := range []string{"a", "b", "c"} {
		r := f.save(t, f.cat.SimpleObject, map[string]any{"foo": int64(1), "bar": bar})
		records = append(records, r)
		ids = append(ids, r.ID())
	}
	// A row deleted behind the index's back drops out of full results.
	if err := f.store.Delete(ctx, records[1]); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	query := map[string]any{"query": map[string]any{"ids": map[string]any{"values": []any{ids[2], ids[1], ids[0]}}}}
	resp, err := f.manager.SearchFull(ctx, f.cat.SimpleObject, query)
	if err != nil {
		t.Fatalf("SearchFull: %v", err)
	}
	var got []string
	for _, r := range resp.Records {
		bar, _ := r.Get("bar")
		got = append(got, bar.(string))
	}
	if diff := cmp.Diff([]string{"a", "c"}, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	if err := f.manager.Refresh(context.Background(), f.cat.Tag); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}
