package worker

import (
	"context"
	"log/slog"
	"time"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/diag"
	"github.com/eugener/tasteworker/internal/telemetry"
)

// EventKind identifies a reporting event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventItem
	EventFailure
	EventAbandoned
	EventFinished
)

// Event is a single observation emitted by a worker.
// Processed is the worker's processed count including the item the event is about.
type Event struct {
	Kind      EventKind
	WorkerID  int
	ItemID    int64
	Elapsed   time.Duration
	Items     []taste.RecommendedItem
	Processed int64
	Err       error
	Summary   Summary
}

// Reporter receives worker events. It is purely observational and must not
// block for long; it never influences the worker's control flow.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

const (
	fineSnapshotEvery   = 100
	coarseSnapshotEvery = 1000
)

// LogReporter writes events to slog and triggers a diagnostics snapshot
// every snapshotEvery processed items.
type LogReporter struct {
	logger        *slog.Logger
	collector     diag.Collector
	detailed      bool
	snapshotEvery int64
}

// NewFineReporter logs every item at debug level with its full result list
// and snapshots diagnostics every 100 items.
func NewFineReporter(logger *slog.Logger, c diag.Collector) *LogReporter {
	return &LogReporter{logger: logger, collector: c, detailed: true, snapshotEvery: fineSnapshotEvery}
}

// NewCoarseReporter logs every item at info level with its result count
// and snapshots diagnostics every 1000 items.
func NewCoarseReporter(logger *slog.Logger, c diag.Collector) *LogReporter {
	return &LogReporter{logger: logger, collector: c, snapshotEvery: coarseSnapshotEvery}
}

// ForLogger picks the fine policy when logger has debug enabled, the coarse one otherwise.
func ForLogger(logger *slog.Logger, c diag.Collector) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = diag.NewMemory(logger)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		return NewFineReporter(logger, c)
	}
	return NewCoarseReporter(logger, c)
}

// Report implements Reporter.
func (r *LogReporter) Report(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventStarted:
		r.logger.LogAttrs(ctx, slog.LevelInfo, "worker started",
			slog.Int("worker", ev.WorkerID),
			slog.String("run_id", taste.RunIDFromContext(ctx)),
		)

	case EventItem:
		if r.detailed {
			r.logger.LogAttrs(ctx, slog.LevelDebug, "item processed",
				slog.Int64("item", ev.ItemID),
				slog.Int64("time_ms", ev.Elapsed.Milliseconds()),
				slog.Any("result", ev.Items),
			)
		} else {
			r.logger.LogAttrs(ctx, slog.LevelInfo, "item processed",
				slog.Int64("item", ev.ItemID),
				slog.Int64("time_ms", ev.Elapsed.Milliseconds()),
				slog.Int("result_count", len(ev.Items)),
			)
		}
		r.maybeSnapshot(ctx, ev.Processed)

	case EventFailure:
		r.logger.LogAttrs(ctx, slog.LevelError, "item could not be processed",
			slog.Int64("item", ev.ItemID),
			slog.Int("worker", ev.WorkerID),
			slog.String("error", ev.Err.Error()),
		)
		r.maybeSnapshot(ctx, ev.Processed)

	case EventAbandoned:
		r.logger.LogAttrs(ctx, slog.LevelInfo, "item abandoned after stop request",
			slog.Int64("item", ev.ItemID),
			slog.Int("worker", ev.WorkerID),
			slog.String("run_id", taste.RunIDFromContext(ctx)),
		)

	case EventFinished:
		s := ev.Summary
		r.logger.LogAttrs(ctx, slog.LevelInfo, "worker finished",
			slog.Int("worker", s.WorkerID),
			slog.String("run_id", taste.RunIDFromContext(ctx)),
			slog.Int64("processed", s.Processed),
			slog.Int64("failed", s.Failed),
			slog.Int64("abandoned", s.Abandoned),
			slog.Int64("elapsed_ms", s.Elapsed.Milliseconds()),
			slog.String("reason", string(s.Reason)),
		)
	}
}

func (r *LogReporter) maybeSnapshot(ctx context.Context, processed int64) {
	if processed > 0 && processed%r.snapshotEvery == 0 {
		r.collector.Snapshot(ctx)
	}
}

// MetricsReporter records events as Prometheus metrics.
type MetricsReporter struct {
	m *telemetry.Metrics
}

// NewMetricsReporter creates a MetricsReporter.
func NewMetricsReporter(m *telemetry.Metrics) *MetricsReporter {
	return &MetricsReporter{m: m}
}

// Report implements Reporter.
func (r *MetricsReporter) Report(_ context.Context, ev Event) {
	switch ev.Kind {
	case EventStarted:
		r.m.ActiveWorkers.Inc()
	case EventItem:
		r.m.ItemsTotal.WithLabelValues("success").Inc()
		r.m.ItemDuration.Observe(ev.Elapsed.Seconds())
	case EventFailure:
		r.m.ItemsTotal.WithLabelValues("failure").Inc()
	case EventAbandoned:
		r.m.ItemsAbandoned.Inc()
	case EventFinished:
		r.m.ActiveWorkers.Dec()
	}
}

// MultiReporter fans each event out to every reporter in order.
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(ctx context.Context, ev Event) {
	for _, r := range m {
		r.Report(ctx, ev)
	}
}
