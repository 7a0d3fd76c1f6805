package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alfredjeanlab/docsync/internal/backfill"
	"github.com/alfredjeanlab/docsync/internal/catalog"
	"github.com/alfredjeanlab/docsync/internal/docstore/memory"
	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/server"
	"github.com/alfredjeanlab/docsync/internal/store/sqlstore"
	"github.com/alfredjeanlab/docsync/internal/sync"
	"github.com/alfredjeanlab/docsync/internal/ui"
)

// setupEnv points the CLI at a fresh SQLite file and the in-process
// document store, and returns the database URL.
func setupEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"DOCSYNC_NATS_URL", "DOCSYNC_SETTINGS_FILE", "DOCSYNC_EXCLUDED_MODELS",
		"DOCSYNC_DEFAULT_INDEX", "DOCSYNC_CHUNK_SIZE", "DOCSYNC_SYNC_INTERVAL",
		"DOCSYNC_EXPORT_S3_BUCKET",
	} {
		t.Setenv(key, "")
	}
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "docsync.db")
	t.Setenv("DOCSYNC_DATABASE_URL", dbURL)
	t.Setenv("DOCSYNC_SEARCH_URL", "mem://")
	t.Setenv("NO_COLOR", "1")
	return dbURL
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	jsonOutput, verbose = false, false
	syncNoBackfill = false
	exportOut, exportS3 = "", false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seed saves records straight into the database behind the CLI.
func seed(t *testing.T, dbURL string) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlstore.Open(ctx, dbURL)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	cat := catalog.New()
	for _, r := range []*model.Record{
		model.NewRecord(cat.Tag, map[string]any{"name": "a"}),
		model.NewRecord(cat.Tag, map[string]any{"name": "b"}),
		model.NewRecord(cat.SimpleObject, map[string]any{"foo": int64(1), "bar": "x"}),
	} {
		if err := st.Save(ctx, r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
}

func TestMigrateAndSync(t *testing.T) {
	dbURL := setupEnv(t)

	out, err := runCmd(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "sqlite schema is up to date") {
		t.Errorf("migrate output = %q", out)
	}
	seed(t, dbURL)

	out, err = runCmd(t, "sync", "--json")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	var results []sync.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decoding sync output %q: %v", out, err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want one index", results)
	}
	res := results[0]
	if res.Name != "docsync" || res.Index != "docsync_0001" || !res.Created {
		t.Errorf("result = %+v", res)
	}
	if res.Backfill == nil || res.Backfill.Indexed != 3 {
		t.Errorf("backfill = %+v, want 3 indexed", res.Backfill)
	}

	out, err = runCmd(t, "sync", "--no-backfill")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(out, "docsync_0001") || !strings.Contains(out, "created") {
		t.Errorf("sync output = %q", out)
	}
	if strings.Contains(out, "indexed") {
		t.Errorf("sync --no-backfill backfilled: %q", out)
	}
}

func TestOpenApp_DeleteRemovesDocument(t *testing.T) {
	setupEnv(t)
	if _, err := runCmd(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	a, err := openApp(ctx, rootCmd)
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()
	bodies, err := a.indexBodies()
	if err != nil {
		t.Fatalf("indexBodies: %v", err)
	}
	if _, err := a.synchronizer().SyncAll(ctx, bodies, false); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	r := model.NewRecord(a.catalog.Tag, map[string]any{"name": "gone"})
	if err := a.manager.Save(ctx, a.store, r, true); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mem := a.client.(*memory.Store)
	if _, ok := mem.Documents("docsync", "app_tag")[r.ID()]; !ok {
		t.Fatalf("tag %s was not indexed", r.ID())
	}

	if err := a.store.Delete(ctx, r); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := mem.Documents("docsync", "app_tag")[r.ID()]; ok {
		t.Errorf("tag %s still indexed after delete", r.ID())
	}
}

func TestSync_UnknownIndex(t *testing.T) {
	setupEnv(t)
	if _, err := runCmd(t, "sync", "nope"); err == nil {
		t.Fatal("expected error for an index no model uses")
	}
}

func TestBulkIndex_NothingProvisioned(t *testing.T) {
	dbURL := setupEnv(t)
	if _, err := runCmd(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seed(t, dbURL)

	out, err := runCmd(t, "bulk-index", "--json")
	if err != nil {
		t.Fatalf("bulk-index: %v", err)
	}
	var stats backfill.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if stats.Indexed != 0 {
		t.Errorf("Indexed = %d, want 0 with no index provisioned", stats.Indexed)
	}
}

func TestMapping(t *testing.T) {
	setupEnv(t)

	out, err := runCmd(t, "mapping", "app_tag")
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	var dict map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &dict); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if _, ok := dict["app_tag"]["properties"]; !ok {
		t.Errorf("mapping = %v, want app_tag properties", dict)
	}

	out, err = runCmd(t, "mapping")
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	var bodies map[string]map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &bodies); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if _, ok := bodies["docsync"]["mappings"]["app_simpleobject"]; !ok {
		t.Errorf("index bodies = %v", bodies)
	}
	if _, ok := bodies["docsync"]["mappings"]["app_dumbtag"]; ok {
		t.Error("non-indexable model has a mapping")
	}

	if _, err := runCmd(t, "mapping", "app_nope"); err == nil {
		t.Error("expected error for an unknown document type")
	}
}

func TestExport_File(t *testing.T) {
	dbURL := setupEnv(t)
	if _, err := runCmd(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	seed(t, dbURL)

	path := filepath.Join(t.TempDir(), "export.jsonl")
	if _, err := runCmd(t, "export", "--out", path); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var v map[string]any
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			t.Fatalf("decoding %q: %v", sc.Text(), err)
		}
		lines = append(lines, v)
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header plus 3 records", len(lines))
	}
	if lines[0]["type"] != "header" {
		t.Errorf("first line = %v, want header", lines[0])
	}

	if _, err := runCmd(t, "export", "--out", path, "--s3"); err == nil {
		t.Error("expected error for --out with --s3")
	}
}

func TestGet(t *testing.T) {
	setupEnv(t)
	if _, err := runCmd(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := runCmd(t, "get", "app_nope", "1"); err == nil {
		t.Error("expected error for an unknown document type")
	}
	// Each invocation gets a fresh in-process store, so nothing is indexed.
	if _, err := runCmd(t, "get", "app_tag", "1"); err == nil {
		t.Error("expected error for a missing document")
	}
}

func TestDescribeResult(t *testing.T) {
	ui.ForceNoColor()
	for _, tc := range []struct {
		name string
		res  *sync.Result
		want string
	}{
		{"UpToDate", &sync.Result{Name: "docsync"}, "up to date"},
		{"Created", &sync.Result{Created: true, Backfill: &backfill.Stats{Indexed: 4}}, "created; 4 indexed"},
		{
			"Rebuilt",
			&sync.Result{Created: true, Previous: []string{"docsync_0001"}, Backfill: &backfill.Stats{Indexed: 2, Failed: 1}},
			"rebuilt from docsync_0001; 2 indexed, 1 failed",
		},
		{
			"Updated",
			&sync.Result{SettingsUpdated: true, AnalysisUpdated: true, UpdatedTypes: []string{"app_tag"}},
			"settings updated; analysis updated; mappings updated: app_tag",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := describeResult(tc.res); got != tc.want {
				t.Errorf("describeResult = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParsePK(t *testing.T) {
	if got := parsePK("42"); got != int64(42) {
		t.Errorf("parsePK(42) = %#v", got)
	}
	if got := parsePK("abc"); got != "abc" {
		t.Errorf("parsePK(abc) = %#v", got)
	}
}

func TestHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hs := server.NewHealth()
	srv := server.NewGRPCServer(hs)
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(srv.Stop)
	t.Setenv("NO_COLOR", "1")

	if _, err := runCmd(t, "health", "--server", lis.Addr().String()); err == nil {
		t.Error("expected error before the worker is ready")
	}
	server.MarkServing(hs)
	out, err := runCmd(t, "health", "--server", lis.Addr().String())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if out != "Health: SERVING\n" {
		t.Errorf("output = %q", out)
	}
}
