package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/docsync/internal/events"
	"github.com/alfredjeanlab/docsync/internal/idgen"
)

// Scheduler runs SyncAll periodically and announces each result.
type Scheduler struct {
	syncer      *Synchronizer
	bodies      map[string]*IndexBody
	shouldIndex bool
	publisher   events.Publisher
	interval    time.Duration
	logger      *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that syncs bodies at the given interval.
// A non-positive interval syncs once at start only.
func NewScheduler(syncer *Synchronizer, bodies map[string]*IndexBody, shouldIndex bool, pub events.Publisher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		syncer:      syncer,
		bodies:      bodies,
		shouldIndex: shouldIndex,
		publisher:   pub,
		interval:    interval,
		logger:      logger,
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the first sync has finished, successfully or not.
func (s *Scheduler) Ready() <-chan struct{} {
	return s.ready
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.syncOnce(ctx)
	s.readyOnce.Do(func() { close(s.ready) })

	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	runID := idgen.MustRunID(idgen.SyncPrefix)
	logger := s.logger.With("run", runID)

	results, err := s.syncer.SyncAll(ctx, s.bodies, s.shouldIndex)
	for _, res := range results {
		ev := events.IndexSynced{
			RunID:    runID,
			Index:    res.Name,
			Version:  res.Version,
			Created:  res.Created,
			Previous: res.Previous,
			Conflict: res.Conflict,
		}
		if res.Backfill != nil {
			ev.Indexed = res.Backfill.Indexed
		}
		if perr := events.PublishSynced(ctx, s.publisher, ev); perr != nil {
			logger.Error("publish sync event failed", "index", res.Name, "err", perr)
		}
	}
	if err != nil {
		logger.Error("sync failed", "err", err)
		return
	}
	logger.Info("sync completed", "indexes", len(results))
}
