package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/events"
	"github.com/alfredjeanlab/docsync/internal/server"
	"github.com/alfredjeanlab/docsync/internal/sync"
	"github.com/alfredjeanlab/docsync/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the sync scheduler, the event watcher and the health server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		logger := a.logger

		bodies, err := a.indexBodies()
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if a.cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(a.cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			a.store.OnDelete(events.DeleteHook(publisher, logger))
			logger.Info("events enabled", "nats_url", a.cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (DOCSYNC_NATS_URL not set)")
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("error closing publisher", "err", err)
			}
		}()

		// Start gRPC listener.
		hs := server.NewHealth()
		grpcServer := server.NewGRPCServer(hs)
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", a.cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start the sync scheduler; the worker is healthy once the first
		// pass has run.
		scheduler := sync.NewScheduler(a.synchronizer(), bodies, true, publisher, a.cfg.SyncInterval, logger)
		scheduler.Start()
		logger.Info("sync scheduler started", "interval", a.cfg.SyncInterval)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-scheduler.Ready():
				server.MarkServing(hs)
				logger.Info("worker ready")
			case <-runCtx.Done():
			}
		}()

		// Start the record watcher if NATS is available.
		watchDone := make(chan struct{})
		if a.cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(a.cfg.NATSURL, logger)
			if err != nil {
				logger.Error("failed to create watch subscriber", "err", err)
				close(watchDone)
			} else {
				worker := watch.New(sub, a.registry, a.store, a.manager, logger)
				go func() {
					defer close(watchDone)
					if err := worker.Run(runCtx); err != nil {
						logger.Error("watcher error", "err", err)
					}
					sub.Close()
				}()
			}
		} else {
			close(watchDone)
		}

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		hs.Shutdown()
		cancel()
		<-watchDone
		logger.Info("watcher stopped")

		scheduler.Stop()
		logger.Info("sync scheduler stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		logger.Info("shutdown complete")
		return nil
	},
}
