package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/cursor"
	"github.com/eugener/tasteworker/internal/testutil"
)

type recordingReporter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingReporter) Report(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingReporter) ofKind(k EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func newTestWorker(c taste.Cursor, e taste.Engine, w taste.Writer, r Reporter) *SimilarItemsWorker {
	return NewSimilarItemsWorker(Config{ID: 1, Cursor: c, Engine: e, Writer: w, HowMany: 3, Reporter: r})
}

func TestSimilarItemsWorker_FailureIsIsolated(t *testing.T) {
	t.Parallel()
	engine := testutil.NewFakeEngine()
	engine.FailOn(20, nil)
	writer := testutil.NewFakeWriter()
	rep := &recordingReporter{}

	w := newTestWorker(cursor.NewSlice([]int64{10, 20, 30}), engine, writer, rep)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := writer.Order(); !slices.Equal(got, []int64{10, 30}) {
		t.Errorf("writes = %v, want [10 30]", got)
	}
	failures := rep.ofKind(EventFailure)
	if len(failures) != 1 || failures[0].ItemID != 20 {
		t.Fatalf("failures = %+v, want one for item 20", failures)
	}
	if !errors.Is(failures[0].Err, testutil.ErrFakeEngine) {
		t.Errorf("failure cause = %v, want ErrFakeEngine", failures[0].Err)
	}

	finished := rep.ofKind(EventFinished)
	if len(finished) != 1 {
		t.Fatalf("finished events = %d, want 1", len(finished))
	}
	s := finished[0].Summary
	if s.Processed != 3 || s.Failed != 1 || s.Reason != ReasonExhausted {
		t.Errorf("summary = %+v, want processed=3 failed=1 reason=exhausted", s)
	}
	if w.State() != StateTerminated {
		t.Errorf("state = %v, want terminated", w.State())
	}
}

func TestSimilarItemsWorker_PreservesRankOrder(t *testing.T) {
	t.Parallel()
	ranked := []taste.RecommendedItem{{ItemID: 7, Value: 0.9}, {ItemID: 3, Value: 0.5}, {ItemID: 9, Value: 0.1}}
	engine := taste.EngineFunc(func(context.Context, int64, int) ([]taste.RecommendedItem, error) {
		return ranked, nil
	})
	writer := testutil.NewFakeWriter()

	w := newTestWorker(cursor.NewSlice([]int64{1}), engine, writer, &recordingReporter{})
	w.Run(context.Background())

	got, ok := writer.Get(1)
	if !ok {
		t.Fatal("item 1 not written")
	}
	if !slices.Equal(got, ranked) {
		t.Errorf("written = %v, want %v", got, ranked)
	}
}

func TestSimilarItemsWorker_WriteFailureCountsAsItemFailure(t *testing.T) {
	t.Parallel()
	writer := testutil.NewFakeWriter()
	writer.Err = errors.New("disk full")
	rep := &recordingReporter{}

	w := newTestWorker(cursor.NewSlice([]int64{1, 2}), testutil.NewFakeEngine(), writer, rep)
	w.Run(context.Background())

	if n := len(rep.ofKind(EventFailure)); n != 2 {
		t.Errorf("failures = %d, want 2", n)
	}
	if s := w.Summary(); s.Processed != 2 || s.Failed != 2 {
		t.Errorf("summary = %+v, want processed=2 failed=2", s)
	}
}

func TestSimilarItemsWorker_PanicIsIsolated(t *testing.T) {
	t.Parallel()
	engine := taste.EngineFunc(func(_ context.Context, id int64, _ int) ([]taste.RecommendedItem, error) {
		if id == 2 {
			panic("bad item")
		}
		return nil, nil
	})
	writer := testutil.NewFakeWriter()
	rep := &recordingReporter{}

	w := newTestWorker(cursor.NewSlice([]int64{1, 2, 3}), engine, writer, rep)
	w.Run(context.Background())

	if got := writer.Order(); !slices.Equal(got, []int64{1, 3}) {
		t.Errorf("writes = %v, want [1 3]", got)
	}
	if n := len(rep.ofKind(EventFailure)); n != 1 {
		t.Errorf("failures = %d, want 1", n)
	}
}

func TestSimilarItemsWorker_StopBeforeRun(t *testing.T) {
	t.Parallel()
	c := cursor.NewSlice([]int64{1, 2, 3})
	engine := testutil.NewFakeEngine()
	rep := &recordingReporter{}

	w := newTestWorker(c, engine, testutil.NewFakeWriter(), rep)
	w.Stop()
	w.Run(context.Background())

	if n := len(engine.Calls()); n != 0 {
		t.Errorf("engine calls = %d, want 0", n)
	}
	if c.Remaining() != 3 {
		t.Errorf("remaining = %d, want 3 (no claim after stop)", c.Remaining())
	}
	finished := rep.ofKind(EventFinished)
	if len(finished) != 1 {
		t.Fatalf("finished events = %d, want 1", len(finished))
	}
	if s := finished[0].Summary; s.Processed != 0 || s.Reason != ReasonStopped {
		t.Errorf("summary = %+v, want processed=0 reason=stopped", s)
	}
}

func TestSimilarItemsWorker_StopDuringItemLetsItFinish(t *testing.T) {
	t.Parallel()
	const k = 3
	c := cursor.NewSlice([]int64{1, 2, 3, 4, 5, 6})
	writer := testutil.NewFakeWriter()

	entered := make(chan struct{})
	release := make(chan struct{})
	engine := testutil.NewFakeEngine()
	engine.Hook = func(_ context.Context, id int64) error {
		if id == k {
			close(entered)
			<-release
		}
		return nil
	}

	w := newTestWorker(c, engine, writer, &recordingReporter{})
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	<-entered
	w.Stop()
	w.Stop() // idempotent
	if w.State() != StateStopRequested {
		t.Errorf("state = %v, want stop_requested", w.State())
	}
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	if got := writer.Order(); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("writes = %v, want [1 2 3]", got)
	}
	if c.Remaining() != 3 {
		t.Errorf("remaining = %d, want 3 (item %d must not be claimed)", c.Remaining(), k+1)
	}
	if s := w.Summary(); s.Processed != k || s.Abandoned != 0 || s.Reason != ReasonStopped {
		t.Errorf("summary = %+v", s)
	}

	w.Stop() // no-op after termination
	if w.State() != StateTerminated {
		t.Errorf("state after late Stop = %v, want terminated", w.State())
	}
}

// stopOnClaim requests a stop from inside the cursor advance, simulating a
// Stop that races with a claim.
type stopOnClaim struct {
	taste.Cursor
	w *SimilarItemsWorker
}

func (s *stopOnClaim) Next() (int64, error) {
	id, err := s.Cursor.Next()
	s.w.Stop()
	return id, err
}

func TestSimilarItemsWorker_ClaimRacingStopIsAbandoned(t *testing.T) {
	t.Parallel()
	rep := &recordingReporter{}
	engine := testutil.NewFakeEngine()
	w := newTestWorker(nil, engine, testutil.NewFakeWriter(), rep)
	w.cursor = &stopOnClaim{Cursor: cursor.NewSlice([]int64{42, 43}), w: w}

	w.Run(context.Background())

	abandoned := rep.ofKind(EventAbandoned)
	if len(abandoned) != 1 || abandoned[0].ItemID != 42 {
		t.Fatalf("abandoned = %+v, want item 42", abandoned)
	}
	if len(engine.Calls()) != 0 {
		t.Errorf("engine should not be called for an abandoned item")
	}
	if s := w.Summary(); s.Processed != 0 || s.Abandoned != 1 {
		t.Errorf("summary = %+v, want processed=0 abandoned=1", s)
	}
}

func TestSimilarItemsWorker_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	engine := testutil.NewFakeEngine()
	rep := &recordingReporter{}

	w := newTestWorker(cursor.NewSlice([]int64{1, 2}), engine, testutil.NewFakeWriter(), rep)
	w.Run(ctx)

	if len(engine.Calls()) != 0 {
		t.Error("no item should be processed after cancellation")
	}
	finished := rep.ofKind(EventFinished)
	if len(finished) != 1 || finished[0].Summary.Reason != ReasonCancelled {
		t.Errorf("finished = %+v, want one with reason cancelled", finished)
	}
}

func TestSimilarItemsWorker_CancellationSuppressesFailureReport(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := testutil.NewFakeEngine()
	engine.Hook = func(ctx context.Context, id int64) error {
		if id == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	writer := testutil.NewFakeWriter()
	rep := &recordingReporter{}

	w := newTestWorker(cursor.NewSlice([]int64{1, 2, 3}), engine, writer, rep)
	w.Run(ctx)

	if n := len(rep.ofKind(EventFailure)); n != 0 {
		t.Errorf("failure reports = %d, want 0", n)
	}
	if got := writer.Order(); !slices.Equal(got, []int64{1}) {
		t.Errorf("writes = %v, want [1]", got)
	}
	if s := w.Summary(); s.Processed != 1 || s.Reason != ReasonCancelled {
		t.Errorf("summary = %+v, want processed=1 reason=cancelled", s)
	}
}

type brokenCursor struct{}

func (brokenCursor) Next() (int64, error) { return 0, errors.New("connection reset") }

func TestSimilarItemsWorker_CursorError(t *testing.T) {
	t.Parallel()
	rep := &recordingReporter{}
	w := newTestWorker(brokenCursor{}, testutil.NewFakeEngine(), testutil.NewFakeWriter(), rep)
	w.Run(context.Background())

	if s := w.Summary(); s.Reason != ReasonCursorError {
		t.Errorf("reason = %q, want %q", s.Reason, ReasonCursorError)
	}
	if n := len(rep.ofKind(EventFinished)); n != 1 {
		t.Errorf("finished events = %d, want 1", n)
	}
}

func TestSimilarItemsWorker_ReportsProcessedCount(t *testing.T) {
	t.Parallel()
	engine := testutil.NewFakeEngine()
	engine.FailOn(2, nil)
	rep := &recordingReporter{}

	w := newTestWorker(cursor.NewSlice([]int64{1, 2, 3}), engine, testutil.NewFakeWriter(), rep)
	w.Run(context.Background())

	var got []int64
	for _, ev := range rep.events {
		if ev.Kind == EventItem || ev.Kind == EventFailure {
			got = append(got, ev.Processed)
		}
	}
	if !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("processed sequence = %v, want [1 2 3]", got)
	}
}
