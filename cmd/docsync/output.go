package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/docsync/internal/backfill"
	"github.com/alfredjeanlab/docsync/internal/codec"
	"github.com/alfredjeanlab/docsync/internal/sync"
	"github.com/alfredjeanlab/docsync/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// describeResult summarises what a sync did to one logical index.
func describeResult(r *sync.Result) string {
	var parts []string
	switch {
	case r.Created && len(r.Previous) > 0:
		parts = append(parts, ui.RenderWarn("rebuilt")+" from "+strings.Join(r.Previous, ", "))
	case r.Created:
		parts = append(parts, ui.RenderPass("created"))
	}
	if r.SettingsUpdated {
		parts = append(parts, "settings updated")
	}
	if r.AnalysisUpdated {
		parts = append(parts, "analysis updated")
	}
	if len(r.UpdatedTypes) > 0 {
		parts = append(parts, "mappings updated: "+strings.Join(r.UpdatedTypes, ", "))
	}
	if r.Backfill != nil {
		parts = append(parts, describeStats(r.Backfill))
	}
	if len(parts) == 0 {
		return ui.RenderMuted("up to date")
	}
	return strings.Join(parts, "; ")
}

func describeStats(s *backfill.Stats) string {
	out := fmt.Sprintf("%d indexed", s.Indexed)
	if s.Failed > 0 {
		out += ", " + ui.RenderWarn(fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Skipped > 0 {
		out += ", " + ui.RenderWarn(fmt.Sprintf("%d skipped", s.Skipped))
	}
	return out
}

func printResults(w io.Writer, results []*sync.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIAS\tINDEX\tCHANGES")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Index, describeResult(r))
		if r.Conflict != "" {
			fmt.Fprintf(tw, "\t\t%s\n", ui.RenderMuted("conflict: "+r.Conflict))
		}
	}
	tw.Flush()
}

// printDocument writes the decoded fields of res one per line, in name order.
func printDocument(w io.Writer, res *codec.Result) {
	fmt.Fprintf(w, "%s %s %s\n", ui.RenderAccent(res.DocType), res.ID, ui.RenderMuted("("+res.Index+")"))
	values := res.Values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s:\t%s\n", name, formatValue(values[name]))
	}
	tw.Flush()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ui.RenderMuted("null")
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(plain(v))
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// plain unwraps nested results into maps so they marshal as documents.
func plain(v any) any {
	switch v := v.(type) {
	case *codec.Result:
		out := make(map[string]any)
		for k, x := range v.Values() {
			out[k] = plain(x)
		}
		return out
	case []*codec.Result:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = plain(x)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = plain(x)
		}
		return out
	}
	return v
}
