package server

import (
	"io"
	"net/http"

	"github.com/eugener/tasteworker/internal/worker"
)

// handleHealthz is a liveness probe: the process answers.
func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "ok")
}

type readyResponse struct {
	Status  string `json:"status"` // ready, not_ready
	RunID   string `json:"run_id,omitempty"`
	Running int    `json:"running"`
	Error   string `json:"error,omitempty"`
}

// handleReadyz reports whether storage answers, plus how many workers are
// still draining the cursor.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ready", RunID: s.deps.RunID}
	if s.deps.Workers != nil {
		for _, st := range s.deps.Workers.Status() {
			if st.State == worker.StateRunning.String() {
				resp.Running++
			}
		}
	}
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			resp.Status = "not_ready"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
