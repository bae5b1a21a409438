package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/dnscache"

	taste "github.com/eugener/tasteworker/internal"
)

func newScoringServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", NewTransport(&dnscache.Resolver{}), 5*time.Second)
}

func TestClient_MostSimilarItems(t *testing.T) {
	t.Parallel()

	var gotPath, gotCount string
	c := newScoringServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotCount = r.URL.Path, r.URL.Query().Get("count")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"item_id":42,"items":[{"item_id":7,"value":0.9},{"item_id":42,"value":1},{"item_id":3,"value":0.5},{"item_id":9,"value":0.1}]}`)
	})

	items, err := c.MostSimilarItems(context.Background(), 42, 2)
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/items/42/similar" || gotCount != "2" {
		t.Errorf("request = %s?count=%s", gotPath, gotCount)
	}
	want := []taste.RecommendedItem{{ItemID: 7, Value: 0.9}, {ItemID: 3, Value: 0.5}}
	if len(items) != len(want) {
		t.Fatalf("items = %v, want %v", items, want)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, items[i], want[i])
		}
	}
}

func TestClient_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantIs     error
	}{
		{"not_found", http.StatusNotFound, `{"error":"unknown item"}`, 404, taste.ErrItemNotFound},
		{"unavailable", http.StatusServiceUnavailable, "overloaded", 503, nil},
		{"rate_limited", http.StatusTooManyRequests, "", 429, nil},
		{"malformed", http.StatusOK, `{"items":`, 0, errMalformed},
		{"no_items", http.StatusOK, `{"item_id":1}`, 0, errMalformed},
		{"bad_entry", http.StatusOK, `{"items":[{"item_id":"x","value":1}]}`, 0, errMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newScoringServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.MostSimilarItems(context.Background(), 1, 5)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantStatus != 0 {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.HTTPStatus() != tt.wantStatus {
					t.Errorf("err = %v, want APIError %d", err, tt.wantStatus)
				}
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("err = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	c := newScoringServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.MostSimilarItems(ctx, 1, 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestParseItems_ZeroCount(t *testing.T) {
	t.Parallel()

	items, err := parseItems([]byte(`{"items":[{"item_id":2,"value":1}]}`), 1, 0)
	if err != nil || len(items) != 0 {
		t.Errorf("got (%v, %v), want empty", items, err)
	}
}
