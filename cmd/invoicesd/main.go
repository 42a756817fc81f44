package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoices-tracker/internal/app"
	"github.com/joseph-ayodele/invoices-tracker/internal/async"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/ingest"
	svc "github.com/joseph-ayodele/invoices-tracker/internal/server"
	"github.com/joseph-ayodele/invoices-tracker/internal/trigger"
)

func main() {
	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stdout, cfg.Logging)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer svc.CloseDB(store, logger)

	if err := svc.PingDB(ctx, store, logger, 5*time.Second); err != nil {
		os.Exit(1)
	}

	stack, err := app.New(ctx, cfg, store, logger)
	if err != nil {
		logger.Error("failed to build scan stack", "error", err)
		os.Exit(1)
	}
	orch, err := stack.Orchestrator(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	queue := async.NewScanQueue(orch, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithCapacity(cfg.Queue.Capacity),
		async.WithJobTimeout(cfg.Queue.JobTimeout),
		async.WithUserGuard(cfg.Queue.GuardByUser),
	)
	ingestor := ingest.NewFSIngestor(stack.Pipeline, store, logger)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := svc.NewGRPCServer(svc.NewScanService(queue, store, stack.Sheet, ingestor, logger), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("invoices-tracker listening", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if cfg.Scan.Interval > 0 {
		scheduler := trigger.NewScheduler(queue, cfg.Scan.Users, store, cfg.Scan.Interval, logger)
		g.Go(func() error { return ignoreCanceled(scheduler.Run(gctx)) })
	}

	if cfg.PubSub.Subscription != "" {
		listener, err := trigger.NewListener(ctx, trigger.PubSubConfig{
			ProjectID:       cfg.PubSub.ProjectID,
			Subscription:    cfg.PubSub.Subscription,
			CredentialsFile: cfg.PubSub.CredentialsFile,
		}, queue, logger)
		if err != nil {
			logger.Error("failed to start pubsub listener", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := listener.Close(); err != nil {
				logger.Warn("close pubsub client", "error", err)
			}
		}()
		g.Go(func() error { return listener.Run(gctx) })
	}

	if cfg.Uploads.Dir != "" {
		g.Go(func() error {
			return ignoreCanceled(ingest.Watch(gctx, ingest.WatchConfig{
				Root:        cfg.Uploads.Dir,
				InitialScan: true,
				Debounce:    cfg.Uploads.Debounce,
			}, ingestor, logger))
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("invoices-tracker stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.JobTimeout)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	logger.Info("invoices-tracker stopped")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
