package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// observe logs every request at debug level (probes and scrapes are
// frequent) and, when metrics are configured, counts and times it per route.
func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		status := sw.code()
		elapsed := time.Since(start)
		route := routePattern(r)

		if m := s.deps.Metrics; m != nil {
			m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		}
		slog.LogAttrs(r.Context(), slog.LevelDebug, "admin request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("elapsed", elapsed),
			slog.String("request_id", requestIDFromContext(r.Context())),
		)
	})
}

// routePattern keeps label cardinality bounded: matched requests are
// labelled by their chi pattern, everything else by "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
