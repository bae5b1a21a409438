package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	taste "github.com/eugener/tasteworker/internal"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = "admin_error"
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, taste.ErrNotFound), errors.Is(err, taste.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, taste.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs unexpected errors and returns a sanitized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	switch status {
	case http.StatusNotFound:
		writeJSON(w, status, errorResponse("not found"))
	case http.StatusBadRequest:
		writeJSON(w, status, errorResponse(err.Error()))
	default:
		slog.LogAttrs(r.Context(), slog.LevelError, "admin error",
			slog.String("error", err.Error()),
			slog.String("request_id", requestIDFromContext(r.Context())),
		)
		writeJSON(w, status, errorResponse("internal error"))
	}
}

var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
