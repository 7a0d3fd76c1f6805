package memory

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alfredjeanlab/docsync/internal/docstore"
)

func mustCreate(t *testing.T, s *Store, name string, body map[string]any) {
	t.Helper()
	if err := s.CreateIndex(context.Background(), name, body); err != nil {
		t.Fatalf("CreateIndex(%s): %v", name, err)
	}
}

func errType(err error) string {
	var de *docstore.Error
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

func TestStore_DocumentsThroughAlias(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, "w_0001", nil)
	if err := s.UpdateAliases(ctx, []docstore.AliasAction{docstore.AddAlias("w_0001", "w")}); err != nil {
		t.Fatalf("UpdateAliases: %v", err)
	}

	if err := s.Index(ctx, "w", "app_widget", "1", map[string]any{"n": int64(3)}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	hit, err := s.Get(ctx, "w", "app_widget", "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hit.Index != "w_0001" || hit.Source["n"] != float64(3) || hit.Version != 1 {
		t.Errorf("hit = %+v", hit)
	}

	if err := s.Delete(ctx, "w", "app_widget", "1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "w", "app_widget", "1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "w", "app_widget", "1"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "missing", "app_widget", "1"); errType(err) != docstore.TypeIndexNotFound {
		t.Errorf("Get(missing index) = %v", err)
	}
}

func TestStore_ClosedIndex(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, "w_0001", nil)
	if err := s.CloseIndex(ctx, "w_0001"); err != nil {
		t.Fatalf("CloseIndex: %v", err)
	}

	err := s.Index(ctx, "w_0001", "t", "1", map[string]any{})
	var de *docstore.Error
	if !errors.As(err, &de) || de.Status != http.StatusForbidden || de.Type != docstore.TypeIndexClosed {
		t.Fatalf("Index on closed index = %v, want 403 index_closed", err)
	}
	if err := s.PutSettings(ctx, "w_0001", map[string]any{"index": map[string]any{"analysis": map[string]any{}}}); err != nil {
		t.Errorf("PutSettings(analysis) on closed index: %v", err)
	}
	if err := s.OpenIndex(ctx, "w_0001"); err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	if err := s.Index(ctx, "w_0001", "t", "1", map[string]any{}); err != nil {
		t.Errorf("Index after open: %v", err)
	}
}

func TestStore_Settings(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, "w_0001", map[string]any{
		"settings": map[string]any{"index": map[string]any{"number_of_replicas": 2}},
	})

	got, err := s.GetSettings(ctx, "w_0001")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	want := map[string]any{"index": map[string]any{"number_of_shards": "5", "number_of_replicas": "2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	analysis := map[string]any{"index": map[string]any{"analysis": map[string]any{
		"analyzer": map[string]any{"folding": map[string]any{"tokenizer": "standard"}},
	}}}
	if err := s.PutSettings(ctx, "w_0001", analysis); errType(err) != docstore.TypeIllegalArg {
		t.Errorf("PutSettings(analysis) on open index = %v, want illegal_argument", err)
	}
	if err := s.PutSettings(ctx, "w_0001", map[string]any{"number_of_shards": 3}); errType(err) != docstore.TypeIllegalArg {
		t.Errorf("PutSettings(number_of_shards) = %v, want illegal_argument", err)
	}
	if err := s.PutSettings(ctx, "w_0001", map[string]any{"index.refresh_interval": "-1"}); err != nil {
		t.Fatalf("PutSettings(refresh_interval): %v", err)
	}
	got, _ = s.GetSettings(ctx, "w_0001")
	if idx := got["index"].(map[string]any); idx["refresh_interval"] != "-1" {
		t.Errorf("refresh_interval = %v, want -1", idx["refresh_interval"])
	}
}

func TestStore_PutMapping(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, "w_0001", map[string]any{"mappings": map[string]any{
		"t": map[string]any{"properties": map[string]any{"color": map[string]any{"type": "string"}}},
	}})

	for _, tc := range []struct {
		name     string
		body     map[string]any
		conflict bool
	}{
		{"Additive", map[string]any{"properties": map[string]any{"size": map[string]any{"type": "long"}}}, false},
		{"Same", map[string]any{"properties": map[string]any{"color": map[string]any{"type": "string"}}}, false},
		{"TypeChange", map[string]any{"properties": map[string]any{"color": map[string]any{"type": "long"}}}, true},
		{"IndexChange", map[string]any{"properties": map[string]any{"color": map[string]any{"type": "string", "index": "not_analyzed"}}}, true},
		{"AnalyzerChange", map[string]any{"properties": map[string]any{"color": map[string]any{"type": "string", "analyzer": "english"}}}, true},
		{"AddDate", map[string]any{"properties": map[string]any{"seen": map[string]any{"type": "date", "format": "dateOptionalTime"}}}, false},
		{"FormatChange", map[string]any{"properties": map[string]any{"seen": map[string]any{"type": "date", "format": "epoch_millis"}}}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := s.PutMapping(ctx, "w_0001", "t", tc.body)
			if got := docstore.IsMergeConflict(err); got != tc.conflict {
				t.Errorf("IsMergeConflict(%v) = %v, want %v", err, got, tc.conflict)
			}
			if tc.conflict && errType(err) != docstore.TypeIllegalArg {
				t.Errorf("conflict type = %q, want %q", errType(err), docstore.TypeIllegalArg)
			}
		})
	}

	m, err := s.GetMapping(ctx, "w_0001", "t")
	if err != nil {
		t.Fatalf("GetMapping: %v", err)
	}
	props := m["properties"].(map[string]any)
	if _, ok := props["size"]; !ok {
		t.Error("additive property was not merged")
	}
	if typ := props["color"].(map[string]any)["type"]; typ != "string" {
		t.Errorf("color type = %v, want unchanged string", typ)
	}
	if m, _ := s.GetMapping(ctx, "w_0001", "other"); m != nil {
		t.Errorf("GetMapping(other) = %v, want nil", m)
	}
}

func TestStore_StrictMapping(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, "w_0001", map[string]any{"mappings": map[string]any{
		"t": map[string]any{
			"dynamic": "strict",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
				"tags": map[string]any{"type": "nested", "properties": map[string]any{"id": map[string]any{"type": "long"}}},
			},
		},
	}})

	if err := s.Index(ctx, "w_0001", "t", "1", map[string]any{"name": "a", "tags": []any{map[string]any{"id": 1}}}); err != nil {
		t.Fatalf("Index(valid): %v", err)
	}
	if err := s.Index(ctx, "w_0001", "t", "2", map[string]any{"extra": 1}); errType(err) != docstore.TypeStrictMapping {
		t.Errorf("Index(extra) = %v, want strict_dynamic_mapping", err)
	}
	if err := s.Index(ctx, "w_0001", "t", "3", map[string]any{"tags": []any{map[string]any{"color": "red"}}}); errType(err) != docstore.TypeStrictMapping {
		t.Errorf("Index(nested extra) = %v, want strict_dynamic_mapping", err)
	}
}

func TestStore_UpdateAliasesAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, "w_0001", nil)
	mustCreate(t, s, "w_0002", nil)
	if err := s.UpdateAliases(ctx, []docstore.AliasAction{docstore.AddAlias("w_0001", "w")}); err != nil {
		t.Fatalf("UpdateAliases: %v", err)
	}

	// The second action is invalid, so the first must not apply.
	err := s.UpdateAliases(ctx, []docstore.AliasAction{
		docstore.RemoveAlias("w_0001", "w"),
		docstore.AddAlias("w_0009", "w"),
	})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("UpdateAliases(invalid) = %v, want not found", err)
	}
	got, err := s.GetAlias(ctx, "w")
	if err != nil {
		t.Fatalf("GetAlias: %v", err)
	}
	if diff := cmp.Diff([]string{"w_0001"}, got); diff != "" {
		t.Errorf("alias mismatch (-want +got):\n%s", diff)
	}

	err = s.UpdateAliases(ctx, []docstore.AliasAction{
		docstore.RemoveAlias("w_0001", "w"),
		docstore.AddAlias("w_0002", "w"),
	})
	if err != nil {
		t.Fatalf("UpdateAliases(swap): %v", err)
	}
	got, _ = s.GetAlias(ctx, "w")
	if diff := cmp.Diff([]string{"w_0002"}, got); diff != "" {
		t.Errorf("alias mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteIndex(ctx, "w_0002"); err != nil {
		t.Fatalf("DeleteIndex: %v", err)
	}
	if ok, _ := s.AliasExists(ctx, "w"); ok {
		t.Error("alias survived deletion of its index")
	}
	if err := s.CreateIndex(ctx, "w_0001", nil); errType(err) != docstore.TypeIndexExists {
		t.Errorf("CreateIndex(existing) = %v, want index_already_exists", err)
	}
}

func TestStore_SearchAndBulk(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustCreate(t, s, "w_0001", map[string]any{"mappings": map[string]any{
		"b": map[string]any{"dynamic": "strict", "properties": map[string]any{"n": map[string]any{"type": "long"}}},
	}})

	var items []docstore.BulkItem
	for _, id := range []string{"10", "2", "1"} {
		items = append(items, docstore.BulkItem{Action: docstore.ActionIndex, Type: "a", ID: id, Doc: map[string]any{"n": id}})
	}
	items = append(items,
		docstore.BulkItem{Action: docstore.ActionIndex, Type: "b", ID: "1", Doc: map[string]any{"bad": true}},
		docstore.BulkItem{Action: docstore.ActionDelete, Type: "a", ID: "99"},
	)
	res, err := s.Bulk(ctx, "w_0001", items)
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}
	failed := res.Failed()
	if len(failed) != 1 || failed[0].Err.Type != docstore.TypeStrictMapping {
		t.Errorf("Failed() = %+v, want one strict mapping failure", failed)
	}
	if last := res.Items[len(res.Items)-1]; last.Status != http.StatusNotFound || last.Err != nil {
		t.Errorf("delete of missing doc = %+v, want 404 without error", last)
	}

	all, err := s.Search(ctx, "w_0001", []string{"a"}, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var ids []string
	for _, h := range all.Hits {
		ids = append(ids, h.ID)
	}
	if diff := cmp.Diff([]string{"1", "2", "10"}, ids); diff != "" {
		t.Errorf("hit order mismatch (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		name  string
		query map[string]any
		total int64
		hits  int
	}{
		{"Ids", map[string]any{"query": map[string]any{"ids": map[string]any{"values": []any{"2", "10"}}}}, 2, 2},
		{"Term", map[string]any{"query": map[string]any{"term": map[string]any{"n": "1"}}}, 1, 1},
		{"Paged", map[string]any{"query": map[string]any{"match_all": map[string]any{}}, "from": 1, "size": 1}, 3, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Search(ctx, "w_0001", []string{"a"}, tc.query)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if res.Total != tc.total || len(res.Hits) != tc.hits {
				t.Errorf("Total = %d, hits = %d; want %d, %d", res.Total, len(res.Hits), tc.total, tc.hits)
			}
		})
	}
}

func TestStore_OpsAndFailNext(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")
	s.FailNext("create_index", boom)
	if err := s.CreateIndex(ctx, "w_0001", nil); !errors.Is(err, boom) {
		t.Fatalf("CreateIndex = %v, want injected error", err)
	}
	mustCreate(t, s, "w_0001", nil)
	if err := s.PutMapping(ctx, "w_0001", "t", map[string]any{}); err != nil {
		t.Fatalf("PutMapping: %v", err)
	}
	want := []string{"create_index w_0001", "put_mapping w_0001/t"}
	if diff := cmp.Diff(want, s.Ops()); diff != "" {
		t.Errorf("Ops mismatch (-want +got):\n%s", diff)
	}
}
