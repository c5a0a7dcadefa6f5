package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/navgraph/internal/cache"
	"github.com/alfredjeanlab/navgraph/internal/config"
	"github.com/alfredjeanlab/navgraph/internal/events"
	"github.com/alfredjeanlab/navgraph/internal/executor"
	"github.com/alfredjeanlab/navgraph/internal/invalidation"
	"github.com/alfredjeanlab/navgraph/internal/report"
	"github.com/alfredjeanlab/navgraph/internal/server"
	"github.com/alfredjeanlab/navgraph/internal/store"
	"github.com/alfredjeanlab/navgraph/internal/store/postgres"
	"github.com/alfredjeanlab/navgraph/internal/sweep"
	"github.com/alfredjeanlab/navgraph/internal/treefile"
)

const (
	healthInterval = 15 * time.Second
	shutdownGrace  = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the navgraph HTTP and gRPC server",
	GroupID: "system",
	// Override PersistentPreRunE so no client is created.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := cfg.NewLogger()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func openSource(cfg *config.Config, logger *slog.Logger) (store.TreeSource, func() error, error) {
	if cfg.DatabaseURL != "" {
		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("tree store: postgres")
		return st, st.Close, nil
	}
	logger.Info("tree store: directory (read-only)", "dir", cfg.TreeDir)
	return treefile.DirSource{Root: cfg.TreeDir}, func() error { return nil }, nil
}

func newExecutor(cfg *config.Config) executor.Executor {
	if cfg.ExecutorURL != "" {
		return executor.NewHTTP(cfg.ExecutorURL, cfg.ExecutorToken)
	}
	return &executor.Shell{Dir: cfg.ExecutorDir, Timeout: cfg.StepTimeout}
}

func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*report.Uploader, error) {
	switch {
	case cfg.ReportS3Bucket != "":
		dest, err := report.NewS3Destination(ctx, cfg.ReportS3Bucket, cfg.ReportS3Region, cfg.ReportS3Endpoint)
		if err != nil {
			return nil, err
		}
		logger.Info("reports: s3", "bucket", cfg.ReportS3Bucket, "prefix", cfg.ReportS3Prefix)
		return report.NewUploader(dest, cfg.ReportS3Prefix, logger), nil
	case cfg.ReportDir != "":
		logger.Info("reports: directory", "dir", cfg.ReportDir)
		return report.NewUploader(report.DirDestination{Root: cfg.ReportDir}, "", logger), nil
	}
	logger.Info("reports disabled (NAVGRAPH_REPORT_S3_BUCKET and NAVGRAPH_REPORT_DIR not set)")
	return nil, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	source, closeSource, err := openSource(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSource(); err != nil {
			logger.Error("error closing tree store", "err", err)
		}
	}()

	var publisher events.Publisher = &events.NoopPublisher{}
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Info("events disabled (NAVGRAPH_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
	}()

	uploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("report destination: %w", err)
	}

	graphs := cache.New()
	nav := server.NewNavServer(graphs, server.Options{
		Source:      source,
		Executor:    newExecutor(cfg),
		Publisher:   publisher,
		Uploader:    uploader,
		StepTimeout: cfg.StepTimeout,
		CacheMaxAge: cfg.CacheMaxAge,
		Logger:      logger,
	})
	grpcServer, healthServer := server.NewGRPCServer(nav, cfg.AuthToken)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           nav.NewHTTPHandler(cfg.AuthToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	scheduler := sweep.NewScheduler(graphs, cfg.CacheMaxAge, cfg.SweepInterval, publisher, logger)
	scheduler.Start()
	defer scheduler.Stop()

	nav.Runs.StartReaper(cfg.RunRetention, time.Minute)
	defer nav.Runs.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		nav.WatchHealth(gctx, healthServer, healthInterval)
		return nil
	})

	if cfg.NATSURL != "" {
		sub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			logger.Error("failed to create invalidation subscriber", "err", err)
		} else {
			listener := invalidation.NewListener(graphs, publisher, logger)
			g.Go(func() error {
				defer sub.Close()
				return listener.Start(gctx, sub)
			})
		}
	}

	// Shutdown waits for the first failure or a signal.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("navgraph server started", "grpc_addr", cfg.GRPCAddr, "http_addr", cfg.HTTPAddr)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
