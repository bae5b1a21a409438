package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/config"
	"github.com/eugener/tasteworker/internal/diag"
	"github.com/eugener/tasteworker/internal/server"
	"github.com/eugener/tasteworker/internal/sink"
	"github.com/eugener/tasteworker/internal/storage/sqlite"
	"github.com/eugener/tasteworker/internal/telemetry"
	"github.com/eugener/tasteworker/internal/worker"
)

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}

	logger := telemetry.SetupLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting tasteworker", "version", version, "workers", cfg.Job.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal stops the workers cooperatively, the second cancels.
	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		logger.Info("stop requested", "signal", sig.String())
		close(stopCh)
		select {
		case sig = <-sigCh:
			logger.Warn("cancelling in-flight work", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err := runJob(ctx, cfg, logger, stopCh)
	return err
}

// runJob executes one job run end to end and returns its summary. Closing
// stop requests a cooperative stop of the pool.
func runJob(ctx context.Context, cfg *config.Config, logger *slog.Logger, stop <-chan struct{}) (worker.RunSummary, error) {
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate, version)
		if err != nil {
			return worker.RunSummary{}, err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	}
	metrics, reg := newMetrics(cfg.Telemetry.Metrics)

	store, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return worker.RunSummary{}, err
	}
	defer store.Close()

	if err := config.Bootstrap(ctx, cfg, store); err != nil {
		return worker.RunSummary{}, err
	}

	runID := uuid.Must(uuid.NewV7()).String()
	ctx = taste.ContextWithRunID(ctx, runID)

	eng, err := newEngine(ctx, cfg, store, metrics)
	if err != nil {
		return worker.RunSummary{}, err
	}

	cur, release, err := newCursor(ctx, cfg.Job, store)
	if err != nil {
		return worker.RunSummary{}, err
	}
	defer release()

	// The sink outlives the workers: its context is cancelled only once the
	// pool has returned, so every accepted write is flushed.
	var writer taste.Writer
	var sinkWG sync.WaitGroup
	sinkCtx, stopSink := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSink()
	if cfg.Sink.Kind == "direct" {
		writer = sink.NewDirect(store, runID)
	} else {
		b := sink.NewBatcher(store, sink.Options{
			QueueSize: cfg.Sink.QueueSize,
			BatchSize: cfg.Sink.BatchSize,
			Linger:    cfg.Sink.Linger,
			RunID:     runID,
			Metrics:   metrics,
		})
		writer = b
		sinkWG.Go(func() {
			if err := worker.NewRunner(b).Run(sinkCtx); err != nil {
				logger.Error("result sink failed", "error", err)
			}
		})
	}

	reporters := worker.MultiReporter{worker.ForLogger(logger, diag.NewMemory(logger))}
	if metrics != nil {
		reporters = append(reporters, worker.NewMetricsReporter(metrics))
	}

	pool := worker.NewPool(worker.PoolConfig{
		Workers:  cfg.Job.Workers,
		Cursor:   cur,
		Engine:   eng,
		Writer:   writer,
		HowMany:  cfg.Job.HowMany,
		Reporter: reporters,
	})

	rec := &taste.Run{
		ID:        runID,
		Workers:   pool.Size(),
		HowMany:   cfg.Job.HowMany,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, rec); err != nil {
		return worker.RunSummary{}, err
	}

	var srv *http.Server
	if cfg.Admin.Enabled {
		deps := server.Deps{
			Workers:    pool,
			RunID:      runID,
			Runs:       store,
			Results:    store,
			ReadyCheck: store.Ping,
			Token:      cfg.Admin.Token,
			Metrics:    metrics,
		}
		if reg != nil {
			deps.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		}
		srv = &http.Server{
			Addr:         cfg.Admin.Addr,
			Handler:      server.New(deps),
			ReadTimeout:  cfg.Admin.ReadTimeout,
			WriteTimeout: cfg.Admin.WriteTimeout,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", "error", err)
			}
		}()
		logger.Info("admin server listening", "addr", cfg.Admin.Addr)
	}

	go func() {
		select {
		case <-stop:
			pool.Stop()
		case <-ctx.Done():
		}
	}()

	sum, runErr := pool.Run(ctx)

	stopSink()
	sinkWG.Wait()

	now := time.Now()
	rec.Processed = sum.Processed
	rec.Failed = sum.Failed
	rec.Abandoned = sum.Abandoned
	rec.FinishedAt = &now
	if err := store.FinishRun(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("recording run failed", "run_id", runID, "error", err)
	}

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Admin.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("admin server shutdown failed", "error", err)
		}
	}

	logger.Info("run finished",
		"run_id", runID,
		"processed", sum.Processed,
		"failed", sum.Failed,
		"abandoned", sum.Abandoned,
		"elapsed", sum.Elapsed.String(),
	)
	return sum, runErr
}
