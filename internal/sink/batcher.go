// Package sink persists computed similar-item lists.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/telemetry"
)

const (
	defaultQueueSize = 1000
	defaultBatchSize = 100
	drainTimeout     = 30 * time.Second
)

// Store is the persistence interface consumed by the sinks.
type Store interface {
	WriteSimilarItems(ctx context.Context, batch []taste.SimilarItems) error
}

// Options tunes a Batcher. Zero values pick the defaults.
type Options struct {
	QueueSize int
	BatchSize int
	// Linger is how long a batch waits for more lists once the queue runs
	// dry. Zero flushes as soon as no further list is queued.
	Linger  time.Duration
	RunID   string
	Metrics *telemetry.Metrics // nil = no metrics
}

// pending is one queued list and the channel its flush result is sent on.
type pending struct {
	si     taste.SimilarItems
	result chan error // buffered, receives exactly one value
}

// Batcher group-commits result lists: lists queued by concurrent workers are
// written in one transaction, and each Write returns the outcome of the
// transaction that carried its list. A failed flush therefore surfaces as a
// failed Write for every item in the batch.
//
// Batcher is also a worker.Worker: Run must be running for writes to
// complete, and its context should be cancelled only after every producer has
// stopped calling Write.
type Batcher struct {
	ch        chan pending
	done      chan struct{} // closed when Run stops accepting lists
	stopped   chan struct{} // closed once the queue is drained
	store     Store
	batchSize int
	linger    time.Duration
	runID     string
	metrics   *telemetry.Metrics
}

// NewBatcher creates a Batcher backed by store.
func NewBatcher(store Store, opts Options) *Batcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Batcher{
		ch:        make(chan pending, opts.QueueSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		store:     store,
		batchSize: opts.BatchSize,
		linger:    max(opts.Linger, 0),
		runID:     opts.RunID,
		metrics:   opts.Metrics,
	}
}

// Name returns the worker identifier.
func (b *Batcher) Name() string { return "result_sink" }

// Write queues one result list and waits for the flush that persists it.
// It returns the flush error, taste.ErrSinkClosed once Run has stopped, or
// ctx.Err() if ctx ends first.
func (b *Batcher) Write(ctx context.Context, itemID int64, items []taste.RecommendedItem) error {
	select {
	case <-b.done:
		return taste.ErrSinkClosed
	default:
	}

	p := pending{
		si: taste.SimilarItems{
			ItemID:     itemID,
			Items:      items,
			RunID:      b.runID,
			ComputedAt: time.Now(),
		},
		result: make(chan error, 1),
	}
	select {
	case b.ch <- p:
	case <-b.done:
		return taste.ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-p.result:
		return err
	case <-b.stopped:
		// Queued after the final drain.
		select {
		case err := <-p.result:
			return err
		default:
			return taste.ErrSinkClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run flushes batches until ctx is cancelled, then drains what is queued.
func (b *Batcher) Run(ctx context.Context) error {
	defer close(b.stopped)

	buf := make([]pending, 0, b.batchSize)
	for {
		select {
		case p := <-b.ch:
			buf = b.collect(ctx, append(buf, p))
			b.flush(ctx, buf)
			buf = buf[:0]

		case <-ctx.Done():
			close(b.done)
			b.drain()
			return nil
		}
	}
}

// collect tops buf up to the batch size with whatever is queued, waiting at
// most the linger time for stragglers.
func (b *Batcher) collect(ctx context.Context, buf []pending) []pending {
	var timeout <-chan time.Time
	if b.linger > 0 {
		t := time.NewTimer(b.linger)
		defer t.Stop()
		timeout = t.C
	}
	for len(buf) < b.batchSize {
		if timeout == nil {
			select {
			case p := <-b.ch:
				buf = append(buf, p)
			default:
				return buf
			}
			continue
		}
		select {
		case p := <-b.ch:
			buf = append(buf, p)
		case <-timeout:
			return buf
		case <-ctx.Done():
			return buf
		}
	}
	return buf
}

func (b *Batcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	buf := make([]pending, 0, b.batchSize)
	for {
		select {
		case p := <-b.ch:
			buf = append(buf, p)
			if len(buf) >= b.batchSize {
				b.flush(ctx, buf)
				buf = buf[:0]
			}
		default:
			if len(buf) > 0 {
				b.flush(ctx, buf)
			}
			return
		}
	}
}

// flush writes buf in one transaction and answers every waiting Write.
func (b *Batcher) flush(ctx context.Context, buf []pending) {
	batch := make([]taste.SimilarItems, len(buf))
	for i, p := range buf {
		batch[i] = p.si
	}

	err := b.store.WriteSimilarItems(ctx, batch)
	if b.metrics != nil {
		b.metrics.SinkQueueLength.Set(float64(len(b.ch)))
		status := "ok"
		if err != nil {
			status = "error"
		}
		b.metrics.SinkFlushes.WithLabelValues(status).Inc()
	}
	if err != nil {
		ids := make([]int64, len(batch))
		for i, si := range batch {
			ids[i] = si.ItemID
		}
		slog.LogAttrs(ctx, slog.LevelError, "similar items flush failed",
			slog.Int("count", len(batch)),
			slog.Any("items", ids),
			slog.String("error", err.Error()),
		)
		err = fmt.Errorf("flush similar items: %w", err)
	}
	for _, p := range buf {
		p.result <- err
	}
}

// Direct writes every list straight to the store as a batch of one.
type Direct struct {
	store Store
	runID string
}

// NewDirect creates a Direct sink.
func NewDirect(store Store, runID string) *Direct {
	return &Direct{store: store, runID: runID}
}

// Write implements taste.Writer.
func (d *Direct) Write(ctx context.Context, itemID int64, items []taste.RecommendedItem) error {
	return d.store.WriteSimilarItems(ctx, []taste.SimilarItems{{
		ItemID:     itemID,
		Items:      items,
		RunID:      d.runID,
		ComputedAt: time.Now(),
	}})
}
