package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/cursor"
	"github.com/eugener/tasteworker/internal/telemetry"
)

const defaultHowMany = 10

var tracer = telemetry.Tracer("github.com/eugener/tasteworker/internal/worker")

// Config holds the collaborators of a SimilarItemsWorker.
type Config struct {
	ID       int          // identity for log correlation
	Cursor   taste.Cursor // shared with sibling workers
	Engine   taste.Engine
	Writer   taste.Writer
	HowMany  int      // results per item (default: 10)
	Reporter Reporter // nil = ForLogger(slog.Default(), nil)
}

// Summary describes a finished worker.
type Summary struct {
	WorkerID  int           `json:"worker_id"`
	Processed int64         `json:"processed"`
	Failed    int64         `json:"failed"`
	Abandoned int64         `json:"abandoned"`
	Elapsed   time.Duration `json:"elapsed"`
	Reason    Reason        `json:"reason"`
}

// Status is a point-in-time view of a worker, safe to take while it runs.
type Status struct {
	WorkerID  int    `json:"worker_id"`
	State     string `json:"state"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Abandoned int64  `json:"abandoned"`
}

// SimilarItemsWorker claims item IDs from a shared cursor, computes the most
// similar items for each and writes the result. A failing item is reported
// and skipped; only exhaustion, Stop or context cancellation end the loop.
type SimilarItemsWorker struct {
	id       int
	cursor   taste.Cursor
	engine   taste.Engine
	writer   taste.Writer
	howMany  int
	reporter Reporter

	state     atomic.Int32
	processed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64

	summary Summary // written once by Run before it returns
}

// NewSimilarItemsWorker creates a worker. It must be run at most once.
func NewSimilarItemsWorker(cfg Config) *SimilarItemsWorker {
	howMany := cfg.HowMany
	if howMany <= 0 {
		howMany = defaultHowMany
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = ForLogger(slog.Default(), nil)
	}

	return &SimilarItemsWorker{
		id:       cfg.ID,
		cursor:   cfg.Cursor,
		engine:   cfg.Engine,
		writer:   cfg.Writer,
		howMany:  howMany,
		reporter: reporter,
	}
}

// Name returns the worker identifier.
func (w *SimilarItemsWorker) Name() string { return "similar_items_" + strconv.Itoa(w.id) }

// Run drains the cursor until it is exhausted, Stop is observed or ctx is
// cancelled. Per-item failures never escape; Run always returns nil. A
// finished event carrying the Summary is reported exactly once.
func (w *SimilarItemsWorker) Run(ctx context.Context) error {
	start := time.Now()
	w.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
	w.reporter.Report(ctx, Event{Kind: EventStarted, WorkerID: w.id})

	reason := w.loop(ctx)

	w.state.Store(int32(StateTerminated))
	w.summary = Summary{
		WorkerID:  w.id,
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Abandoned: w.abandoned.Load(),
		Elapsed:   time.Since(start),
		Reason:    reason,
	}
	w.reporter.Report(context.WithoutCancel(ctx), Event{
		Kind:      EventFinished,
		WorkerID:  w.id,
		Processed: w.summary.Processed,
		Summary:   w.summary,
	})
	return nil
}

func (w *SimilarItemsWorker) loop(ctx context.Context) Reason {
	for {
		if ctx.Err() != nil {
			return ReasonCancelled
		}
		if w.stopRequested() {
			return ReasonStopped
		}

		itemID, ok, err := cursor.Claim(w.cursor)
		if err != nil {
			slog.LogAttrs(ctx, slog.LevelError, "cursor advance failed",
				slog.Int("worker", w.id),
				slog.String("error", err.Error()),
			)
			return ReasonCursorError
		}
		if !ok {
			return ReasonExhausted
		}

		// Stop may have raced with the claim; the claimed ID is given up.
		if w.stopRequested() {
			w.abandoned.Add(1)
			w.reporter.Report(ctx, Event{Kind: EventAbandoned, WorkerID: w.id, ItemID: itemID})
			return ReasonStopped
		}

		if !w.process(ctx, itemID) {
			return ReasonCancelled
		}
	}
}

// process handles one item. It returns false when cancellation was detected
// while handling a failure.
func (w *SimilarItemsWorker) process(ctx context.Context, itemID int64) bool {
	ctx, span := tracer.Start(ctx, "worker.item", trace.WithAttributes(
		attribute.Int64("item.id", itemID),
		attribute.Int("worker.id", w.id),
	))
	defer span.End()

	start := time.Now()
	items, err := w.computeAndWrite(ctx, itemID)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return false
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.failed.Add(1)
		w.reporter.Report(ctx, Event{
			Kind:      EventFailure,
			WorkerID:  w.id,
			ItemID:    itemID,
			Elapsed:   elapsed,
			Processed: w.processed.Add(1),
			Err:       err,
		})
		return true
	}

	span.SetAttributes(attribute.Int("result.count", len(items)))
	w.reporter.Report(ctx, Event{
		Kind:      EventItem,
		WorkerID:  w.id,
		ItemID:    itemID,
		Elapsed:   elapsed,
		Items:     items,
		Processed: w.processed.Add(1),
	})
	return true
}

// computeAndWrite runs the engine and the writer, turning a panic in either
// into an error so that one bad item cannot take the worker down.
func (w *SimilarItemsWorker) computeAndWrite(ctx context.Context, itemID int64) (items []taste.RecommendedItem, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing item %d: %v", itemID, rec)
		}
	}()

	items, err = w.engine.MostSimilarItems(ctx, itemID, w.howMany)
	if err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}
	if err := w.writer.Write(ctx, itemID, items); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return items, nil
}

// Stop asks the worker to finish. It is cooperative: an item being computed
// or written is allowed to complete, and the request is observed before the
// next claim. Stop is safe to call from any goroutine, any number of times,
// and is a no-op once the worker has terminated.
func (w *SimilarItemsWorker) Stop() {
	for {
		s := w.state.Load()
		if State(s) == StateStopRequested || State(s) == StateTerminated {
			return
		}
		if w.state.CompareAndSwap(s, int32(StateStopRequested)) {
			return
		}
	}
}

func (w *SimilarItemsWorker) stopRequested() bool {
	return State(w.state.Load()) == StateStopRequested
}

// State returns the current lifecycle state.
func (w *SimilarItemsWorker) State() State { return State(w.state.Load()) }

// Summary returns the finish summary. It is only meaningful after Run returns.
func (w *SimilarItemsWorker) Summary() Summary { return w.summary }

// Status returns live counters for the admin surface.
func (w *SimilarItemsWorker) Status() Status {
	return Status{
		WorkerID:  w.id,
		State:     w.State().String(),
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Abandoned: w.abandoned.Load(),
	}
}
