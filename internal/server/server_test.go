package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/cursor"
	"github.com/eugener/tasteworker/internal/testutil"
	"github.com/eugener/tasteworker/internal/worker"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// fakeWorkers is a WorkerController with fixed counters.
type fakeWorkers struct {
	stops atomic.Int32
	panic bool
}

func (f *fakeWorkers) Status() []worker.Status {
	if f.panic {
		panic("status exploded")
	}
	state := worker.StateRunning
	if f.stops.Load() > 0 {
		state = worker.StateStopRequested
	}
	return []worker.Status{
		{WorkerID: 1, State: state.String(), Processed: 10, Failed: 1},
		{WorkerID: 2, State: state.String(), Processed: 5, Abandoned: 1},
	}
}

func (f *fakeWorkers) Stop() { f.stops.Add(1) }

func do(t *testing.T, h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Deps{})

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		check ReadyChecker
		want  int
	}{
		{"no_check", nil, http.StatusOK},
		{"ready", func(context.Context) error { return nil }, http.StatusOK},
		{"not_ready", func(context.Context) error { return errors.New("db down") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(Deps{Workers: &fakeWorkers{}, RunID: "run-1", ReadyCheck: tt.check})
			rec := do(t, h, http.MethodGet, "/readyz", nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var resp readyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.RunID != "run-1" || resp.Running != 2 {
				t.Errorf("readyz = %+v, want run-1 with 2 running", resp)
			}
			if (tt.want == http.StatusOK) != (resp.Status == "ready") {
				t.Errorf("status field = %q for code %d", resp.Status, rec.Code)
			}
		})
	}
}

func TestListWorkers(t *testing.T) {
	t.Parallel()
	h := New(Deps{Workers: &fakeWorkers{}, RunID: "run-1"})

	rec := do(t, h, http.MethodGet, "/v1/workers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var resp workersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RunID != "run-1" || len(resp.Workers) != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Processed != 15 || resp.Failed != 1 || resp.Abandoned != 1 {
		t.Errorf("totals = %d/%d/%d, want 15/1/1", resp.Processed, resp.Failed, resp.Abandoned)
	}
}

func TestListWorkers_NoPool(t *testing.T) {
	t.Parallel()

	rec := do(t, New(Deps{}), http.MethodGet, "/v1/workers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp workersResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Workers == nil || len(resp.Workers) != 0 {
		t.Errorf("workers = %v, want empty list", resp.Workers)
	}
}

func TestStopWorkers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		token     string
		auth      string
		wantCode  int
		wantStops int32
	}{
		{"open", "", "", http.StatusAccepted, 1},
		{"valid_token", "s3cret", "Bearer s3cret", http.StatusAccepted, 1},
		{"missing_token", "s3cret", "", http.StatusUnauthorized, 0},
		{"wrong_token", "s3cret", "Bearer nope", http.StatusUnauthorized, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			workers := &fakeWorkers{}
			h := New(Deps{Workers: workers, Token: tt.token})

			header := http.Header{}
			if tt.auth != "" {
				header.Set("Authorization", tt.auth)
			}
			rec := do(t, h, http.MethodPost, "/v1/workers/stop", header)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := workers.stops.Load(); got != tt.wantStops {
				t.Errorf("stops = %d, want %d", got, tt.wantStops)
			}
		})
	}
}

func TestStopWorkers_StopsRealPool(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	engine := testutil.NewFakeEngine()
	engine.Hook = func(ctx context.Context, _ int64) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	ids := make([]int64, 100)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	pool := worker.NewPool(worker.PoolConfig{
		Workers: 2,
		Cursor:  cursor.NewSlice(ids),
		Engine:  engine,
		Writer:  testutil.NewFakeWriter(),
	})
	h := New(Deps{Workers: pool})

	done := make(chan worker.RunSummary, 1)
	go func() {
		s, _ := pool.Run(context.Background())
		done <- s
	}()

	// Wait until both workers are inside the engine.
	deadline := time.After(2 * time.Second)
	for len(engine.Calls()) < 2 {
		select {
		case <-deadline:
			t.Fatal("workers never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	rec := do(t, h, http.MethodPost, "/v1/workers/stop", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	close(release)

	select {
	case s := <-done:
		if s.Processed != 2 {
			t.Errorf("processed = %d, want 2 (in-flight items only)", s.Processed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	store.CreateRun(context.Background(), &taste.Run{ID: "run-9", Workers: 3, HowMany: 10})
	h := New(Deps{Runs: store})

	rec := do(t, h, http.MethodGet, "/v1/runs/run-9", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var run taste.Run
	json.Unmarshal(rec.Body.Bytes(), &run)
	if run.ID != "run-9" || run.Workers != 3 {
		t.Errorf("run = %+v", run)
	}

	if rec := do(t, h, http.MethodGet, "/v1/runs/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", rec.Code)
	}
}

func TestGetSimilarItems(t *testing.T) {
	t.Parallel()

	store := testutil.NewFakeStore()
	store.WriteSimilarItems(context.Background(), []taste.SimilarItems{
		{ItemID: 7, Items: []taste.RecommendedItem{{ItemID: 8, Value: 0.9}, {ItemID: 9, Value: 0.4}}},
	})
	h := New(Deps{Results: store})

	tests := []struct {
		path string
		want int
	}{
		{"/v1/items/7/similar", http.StatusOK},
		{"/v1/items/6/similar", http.StatusNotFound},
		{"/v1/items/abc/similar", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.path, nil)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}

	rec := do(t, h, http.MethodGet, "/v1/items/7/similar", nil)
	var resp similarItemsResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Items) != 2 || resp.Items[0].ItemID != 8 {
		t.Errorf("items = %+v, want rank order preserved", resp.Items)
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	t.Parallel()
	h := New(Deps{})

	for _, path := range []string{"/v1/runs/x", "/v1/items/1/similar", "/metrics"} {
		if rec := do(t, h, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	rec := do(t, New(Deps{Workers: &fakeWorkers{panic: true}}), http.MethodGet, "/v1/workers", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set(requestIDHeader, "req-123")
	rec := do(t, New(Deps{}), http.MethodGet, "/healthz", header)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Errorf("request id = %q, want req-123", got)
	}
}
