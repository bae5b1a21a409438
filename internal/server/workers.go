package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/worker"
)

type workersResponse struct {
	RunID     string          `json:"run_id,omitempty"`
	Workers   []worker.Status `json:"workers"`
	Processed int64           `json:"processed"`
	Failed    int64           `json:"failed"`
	Abandoned int64           `json:"abandoned"`
}

func (s *server) workersSnapshot() workersResponse {
	resp := workersResponse{RunID: s.deps.RunID, Workers: []worker.Status{}}
	if s.deps.Workers == nil {
		return resp
	}
	resp.Workers = s.deps.Workers.Status()
	for _, st := range resp.Workers {
		resp.Processed += st.Processed
		resp.Failed += st.Failed
		resp.Abandoned += st.Abandoned
	}
	return resp
}

func (s *server) handleListWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.workersSnapshot())
}

// handleStopWorkers requests a cooperative stop and returns immediately;
// workers finish their in-flight item first.
func (s *server) handleStopWorkers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Workers != nil {
		s.deps.Workers.Stop()
	}
	slog.LogAttrs(r.Context(), slog.LevelInfo, "stop requested via admin api",
		slog.String("run_id", s.deps.RunID),
		slog.String("request_id", requestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, s.workersSnapshot())
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type similarItemsResponse struct {
	ItemID int64                   `json:"item_id"`
	Items  []taste.RecommendedItem `json:"items"`
}

func (s *server) handleGetSimilarItems(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid item id", taste.ErrBadRequest))
		return
	}
	items, err := s.deps.Results.GetSimilarItems(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, similarItemsResponse{ItemID: id, Items: items})
}
