// Package sync keeps physical indexes, their settings and mappings in line
// with the registry, versioning an index whenever a mapping change cannot be
// applied in place.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alfredjeanlab/docsync/internal/backfill"
	"github.com/alfredjeanlab/docsync/internal/docstore"
)

// Backfiller fills a freshly created physical index.
type Backfiller interface {
	Backfill(ctx context.Context, name string, version int) (*backfill.Stats, error)
}

// Result describes what one Sync did.
type Result struct {
	Name    string `json:"name"`
	Index   string `json:"index"`
	Version int    `json:"version"`
	// Created is set when a new physical index was provisioned.
	Created bool `json:"created,omitempty"`
	// Previous lists the physical indexes the alias pointed at before a
	// version bump. They are left in place.
	Previous []string `json:"previous,omitempty"`
	// Conflict is the store's rejection that forced a version bump.
	Conflict        string          `json:"conflict,omitempty"`
	SettingsUpdated bool            `json:"settings_updated,omitempty"`
	AnalysisUpdated bool            `json:"analysis_updated,omitempty"`
	UpdatedTypes    []string        `json:"updated_types,omitempty"`
	Backfill        *backfill.Stats `json:"backfill,omitempty"`
}

// Synchronizer reconciles logical indexes with their desired bodies.
type Synchronizer struct {
	client     docstore.Client
	backfiller Backfiller
	logger     *slog.Logger
}

// New creates a Synchronizer. backfiller may be nil when Sync is never asked
// to index.
func New(client docstore.Client, backfiller Backfiller, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{client: client, backfiller: backfiller, logger: logger}
}

// Sync brings the logical index name in line with body. An unprovisioned
// index is created at version 1. A provisioned one has its settings,
// analysis and mappings updated in place; when a mapping cannot be merged
// the full body is provisioned at the next version and the alias is swapped
// over in one request. shouldIndex backfills every newly created index.
func (s *Synchronizer) Sync(ctx context.Context, name string, body *IndexBody, shouldIndex bool) (*Result, error) {
	res := &Result{Name: name}

	aliased, err := s.client.AliasExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check alias %s: %w", name, err)
	}
	if !aliased {
		concrete, err := s.client.IndexExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("check index %s: %w", name, err)
		}
		if concrete {
			return nil, fmt.Errorf("%s is a concrete index; remove it so the name can be used as an alias", name)
		}
		return res, s.provision(ctx, res, 1, body, shouldIndex, nil)
	}

	physical, err := s.client.GetAlias(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve alias %s: %w", name, err)
	}
	if len(physical) != 1 {
		return nil, fmt.Errorf("alias %s points at %d indexes, want 1", name, len(physical))
	}
	version, err := docstore.ParseVersion(physical[0])
	if err != nil {
		return nil, err
	}
	res.Index, res.Version = physical[0], version

	if err := s.reconcileSettings(ctx, res, body.Settings); err != nil {
		return res, err
	}

	for _, tm := range body.Mappings {
		live, err := s.client.GetMapping(ctx, res.Index, tm.DocType)
		if err != nil {
			return res, fmt.Errorf("get mapping %s/%s: %w", res.Index, tm.DocType, err)
		}
		if covers(live, tm.Body) {
			continue
		}
		err = s.client.PutMapping(ctx, res.Index, tm.DocType, tm.Body)
		if err == nil {
			res.UpdatedTypes = append(res.UpdatedTypes, tm.DocType)
			s.logger.Info("mapping updated", "index", res.Index, "type", tm.DocType)
			continue
		}
		if !docstore.IsMergeConflict(err) {
			return res, fmt.Errorf("put mapping %s/%s: %w", res.Index, tm.DocType, err)
		}
		res.Conflict = err.Error()
		s.logger.Warn("mapping cannot be merged, bumping version",
			"index", res.Index, "type", tm.DocType, "next", version+1, "err", err)
		return res, s.provision(ctx, res, version+1, body, shouldIndex, physical)
	}
	return res, nil
}

// provision creates the physical index for version, optionally backfills
// it, then points the alias at it, removing it from previous.
func (s *Synchronizer) provision(ctx context.Context, res *Result, version int, body *IndexBody, shouldIndex bool, previous []string) error {
	target := docstore.VersionedName(res.Name, version)

	// An unaliased target is left over from an interrupted run.
	exists, err := s.client.IndexExists(ctx, target)
	if err != nil {
		return fmt.Errorf("check index %s: %w", target, err)
	}
	if exists {
		s.logger.Warn("rebuilding orphaned index", "index", target)
		if err := s.client.DeleteIndex(ctx, target); err != nil {
			return fmt.Errorf("delete orphaned index %s: %w", target, err)
		}
	}

	if err := s.client.CreateIndex(ctx, target, body.CreateBody()); err != nil {
		return fmt.Errorf("create index %s: %w", target, err)
	}
	res.Index, res.Version, res.Created, res.Previous = target, version, true, previous
	s.logger.Info("index created", "index", target, "types", len(body.Mappings))

	if shouldIndex {
		if s.backfiller == nil {
			return errors.New("backfill requested without a backfiller")
		}
		stats, err := s.backfiller.Backfill(ctx, res.Name, version)
		res.Backfill = stats
		if err != nil {
			return fmt.Errorf("backfill %s: %w", target, err)
		}
	}

	actions := make([]docstore.AliasAction, 0, len(previous)+1)
	for _, old := range previous {
		actions = append(actions, docstore.RemoveAlias(old, res.Name))
	}
	actions = append(actions, docstore.AddAlias(target, res.Name))
	if err := s.client.UpdateAliases(ctx, actions); err != nil {
		return fmt.Errorf("point alias %s at %s: %w", res.Name, target, err)
	}
	s.logger.Info("alias updated", "alias", res.Name, "index", target, "previous", previous)
	return nil
}

// reconcileSettings applies desired settings that differ from the live
// ones. Analysis changes need the index closed while they are applied.
func (s *Synchronizer) reconcileSettings(ctx context.Context, res *Result, desiredSettings map[string]any) error {
	if len(desiredSettings) == 0 {
		return nil
	}
	raw, err := s.client.GetSettings(ctx, res.Index)
	if err != nil {
		return fmt.Errorf("get settings %s: %w", res.Index, err)
	}
	live := docstore.NormalizeSettings(raw)
	desired := docstore.NormalizeSettings(desiredSettings)

	analysis, _ := desired["analysis"].(map[string]any)
	delete(desired, "analysis")
	liveAnalysis, _ := live["analysis"].(map[string]any)
	delete(live, "analysis")

	if shards, ok := desired["number_of_shards"]; ok {
		if shards != live["number_of_shards"] {
			s.logger.Warn("number_of_shards cannot change in place",
				"index", res.Index, "live", live["number_of_shards"], "desired", shards)
		}
		delete(desired, "number_of_shards")
	}

	if len(desired) > 0 && !sameJSON(overlay(live, desired), live) {
		if err := s.client.PutSettings(ctx, res.Index, map[string]any{"index": desired}); err != nil {
			return fmt.Errorf("put settings %s: %w", res.Index, err)
		}
		res.SettingsUpdated = true
		s.logger.Info("settings updated", "index", res.Index)
	}

	if len(analysis) > 0 && !sameJSON(overlay(liveAnalysis, analysis), liveAnalysis) {
		if err := s.updateAnalysis(ctx, res.Index, analysis); err != nil {
			return err
		}
		res.AnalysisUpdated = true
		s.logger.Info("analysis updated", "index", res.Index)
	}
	return nil
}

func (s *Synchronizer) updateAnalysis(ctx context.Context, index string, analysis map[string]any) (err error) {
	if err := s.client.CloseIndex(ctx, index); err != nil {
		return fmt.Errorf("close %s: %w", index, err)
	}
	defer func() {
		if oerr := s.client.OpenIndex(ctx, index); oerr != nil {
			err = errors.Join(err, fmt.Errorf("open %s: %w", index, oerr))
		}
	}()
	if err := s.client.PutSettings(ctx, index, map[string]any{"index": map[string]any{"analysis": analysis}}); err != nil {
		return fmt.Errorf("put analysis %s: %w", index, err)
	}
	return nil
}

// SyncAll syncs every index in bodies in name order, stopping at the first
// error.
func (s *Synchronizer) SyncAll(ctx context.Context, bodies map[string]*IndexBody, shouldIndex bool) ([]*Result, error) {
	names := make([]string, 0, len(bodies))
	for name := range bodies {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]*Result, 0, len(names))
	for _, name := range names {
		res, err := s.Sync(ctx, name, bodies[name], shouldIndex)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, fmt.Errorf("sync %s: %w", name, err)
		}
	}
	return results, nil
}
