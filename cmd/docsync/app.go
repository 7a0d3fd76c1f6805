package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/backfill"
	"github.com/alfredjeanlab/docsync/internal/catalog"
	"github.com/alfredjeanlab/docsync/internal/codec"
	"github.com/alfredjeanlab/docsync/internal/config"
	"github.com/alfredjeanlab/docsync/internal/docstore"
	"github.com/alfredjeanlab/docsync/internal/docstore/memory"
	"github.com/alfredjeanlab/docsync/internal/mapping"
	"github.com/alfredjeanlab/docsync/internal/registry"
	"github.com/alfredjeanlab/docsync/internal/search"
	"github.com/alfredjeanlab/docsync/internal/store/sqlstore"
	"github.com/alfredjeanlab/docsync/internal/sync"
)

// app holds the components every command is built from.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	catalog  *catalog.Catalog
	registry *registry.Registry
	codec    *codec.Codec
	store    *sqlstore.Store
	client   docstore.Client
	manager  *search.Manager
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// loadRegistry scans the catalog into a sealed registry without touching
// either store.
func loadRegistry(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cat := catalog.New()
	b := mapping.NewBuilder(cfg.DefaultIndex)
	reg := registry.New(b)
	if err := reg.Scan(cat.Models()...); err != nil {
		return nil, fmt.Errorf("scanning models: %w", err)
	}
	return &app{
		cfg:      cfg,
		logger:   newLogger(cmd),
		catalog:  cat,
		registry: reg,
		codec:    codec.New(b),
	}, nil
}

// openApp loads the registry and connects both stores.
func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	a, err := loadRegistry(cmd)
	if err != nil {
		return nil, err
	}
	st, err := sqlstore.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.store = st
	if a.cfg.MemorySearch() {
		a.logger.Warn("using the in-process document store; nothing is persisted")
		a.client = memory.New()
	} else {
		client, err := docstore.NewHTTPClient(a.cfg.SearchURL)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.client = client
	}
	a.manager = search.NewManager(a.registry, a.client, a.codec, a.store, a.logger)
	a.store.OnDelete(a.manager.DeleteHook())
	return a, nil
}

func (a *app) driver() *backfill.Driver {
	return backfill.New(a.registry, a.store, a.client, a.codec, backfill.Options{
		ChunkSize: a.cfg.ChunkSize,
		Excluded:  a.cfg.ExcludedModels,
		Logger:    a.logger,
	})
}

func (a *app) synchronizer() *sync.Synchronizer {
	return sync.New(a.client, a.driver(), a.logger)
}

func (a *app) indexBodies() (map[string]*sync.IndexBody, error) {
	return sync.BuildIndexes(a.registry, a.cfg.IndexSettings, a.cfg.ExcludedModels)
}

func (a *app) Close() {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.logger.Error("error closing document store", "err", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing database", "err", err)
		}
	}
}
