// Package engine provides decorators that wrap a taste.Engine with fault
// isolation, throttling and instrumentation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/circuitbreaker"
	"github.com/eugener/tasteworker/internal/ratelimit"
	"github.com/eugener/tasteworker/internal/telemetry"
)

// Middleware wraps an Engine.
type Middleware func(taste.Engine) taste.Engine

// Chain applies mws to e. The first middleware is the outermost.
func Chain(e taste.Engine, mws ...Middleware) taste.Engine {
	for i := len(mws) - 1; i >= 0; i-- {
		e = mws[i](e)
	}
	return e
}

// WithBreaker short-circuits calls with taste.ErrEngineUnavailable while b is
// open. m may be nil.
func WithBreaker(b *circuitbreaker.Breaker, m *telemetry.Metrics) Middleware {
	return func(next taste.Engine) taste.Engine {
		return taste.EngineFunc(func(ctx context.Context, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
			if !b.Allow() {
				if m != nil {
					m.BreakerRejects.Inc()
				}
				return nil, fmt.Errorf("item %d: %w", itemID, taste.ErrEngineUnavailable)
			}
			items, err := next.MostSimilarItems(ctx, itemID, howMany)
			b.Record(err)
			return items, err
		})
	}
}

// BreakerLogger returns an OnStateChange hook that logs transitions.
func BreakerLogger(engine string) func(from, to circuitbreaker.State) {
	return func(from, to circuitbreaker.State) {
		level := slog.LevelInfo
		if to == circuitbreaker.StateOpen {
			level = slog.LevelWarn
		}
		slog.LogAttrs(context.Background(), level, "engine breaker state changed",
			slog.String("engine", engine),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}
}

// WithRateLimit blocks each call until l admits it. A nil limiter is a no-op.
func WithRateLimit(l *ratelimit.Limiter) Middleware {
	return func(next taste.Engine) taste.Engine {
		if l == nil {
			return next
		}
		return taste.EngineFunc(func(ctx context.Context, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
			if err := l.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
			return next.MostSimilarItems(ctx, itemID, howMany)
		})
	}
}

// WithMetrics records call duration and errors labelled with the engine name.
func WithMetrics(name string, m *telemetry.Metrics) Middleware {
	return func(next taste.Engine) taste.Engine {
		if m == nil {
			return next
		}
		hist := m.EngineDuration.WithLabelValues(name)
		return taste.EngineFunc(func(ctx context.Context, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
			start := time.Now()
			items, err := next.MostSimilarItems(ctx, itemID, howMany)
			hist.Observe(time.Since(start).Seconds())
			if err != nil {
				m.EngineErrors.WithLabelValues(name, ErrorStatus(err)).Inc()
			}
			return items, err
		})
	}
}

// WithTracing wraps each call in a span named "engine.<name>".
func WithTracing(name string, tracer trace.Tracer) Middleware {
	spanName := "engine." + name
	return func(next taste.Engine) taste.Engine {
		return taste.EngineFunc(func(ctx context.Context, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
			ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
				attribute.Int64("item.id", itemID),
				attribute.Int("engine.how_many", howMany),
			))
			defer span.End()

			items, err := next.MostSimilarItems(ctx, itemID, howMany)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			span.SetAttributes(attribute.Int("engine.result_count", len(items)))
			return items, nil
		})
	}
}

type httpStatusError interface {
	HTTPStatus() int
}

// ErrorStatus maps an engine error to a short metric label.
func ErrorStatus(err error) string {
	var he httpStatusError
	switch {
	case errors.Is(err, taste.ErrEngineUnavailable):
		return "unavailable"
	case errors.Is(err, taste.ErrItemNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &he):
		return strconv.Itoa(he.HTTPStatus())
	default:
		return "error"
	}
}
