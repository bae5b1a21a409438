package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/dnscache"

	taste "github.com/eugener/tasteworker/internal"
	"github.com/eugener/tasteworker/internal/cache"
	"github.com/eugener/tasteworker/internal/circuitbreaker"
	"github.com/eugener/tasteworker/internal/cloudauth"
	"github.com/eugener/tasteworker/internal/config"
	"github.com/eugener/tasteworker/internal/cursor"
	"github.com/eugener/tasteworker/internal/engine"
	"github.com/eugener/tasteworker/internal/engine/remote"
	"github.com/eugener/tasteworker/internal/engine/similarity"
	"github.com/eugener/tasteworker/internal/ratelimit"
	"github.com/eugener/tasteworker/internal/storage/sqlite"
	"github.com/eugener/tasteworker/internal/telemetry"
)

// newMetrics returns nil metrics when disabled.
func newMetrics(cfg config.MetricsConfig) (*telemetry.Metrics, *prometheus.Registry) {
	if !cfg.Enabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return telemetry.NewMetrics(reg), reg
}

// newCursor builds the shared item cursor. The returned func releases it.
func newCursor(ctx context.Context, cfg config.JobConfig, store *sqlite.Store) (taste.Cursor, func(), error) {
	noop := func() {}

	if cfg.Cursor == "rows" {
		it, err := store.OpenItemIterator(ctx)
		if err != nil {
			return nil, nil, err
		}
		return cursor.NewLocked(it), func() { it.Close() }, nil
	}

	ids, err := store.ListItemIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list items: %w", err)
	}
	if cfg.Cursor == "chan" {
		cctx, cancel := context.WithCancel(ctx)
		return cursor.NewChan(cctx, cfg.ChanBuffer, cursor.FromSlice(ids)), cancel, nil
	}
	return cursor.NewSlice(ids), noop, nil
}

// newEngine builds the configured engine and wraps it in tracing, metrics,
// breaker and rate limiting, outermost first.
func newEngine(ctx context.Context, cfg *config.Config, store *sqlite.Store, m *telemetry.Metrics) (taste.Engine, error) {
	var base taste.Engine
	switch cfg.Engine.Kind {
	case "remote":
		rc := cfg.Engine.Remote
		var resolver *dnscache.Resolver
		if rc.DNSCache {
			resolver = &dnscache.Resolver{}
			if rc.DNSRefresh > 0 {
				go remote.RefreshDNS(ctx, resolver, rc.DNSRefresh)
			}
		}
		rt, err := cloudauth.New(ctx, authConfig(rc.Auth), remote.NewTransport(resolver))
		if err != nil {
			return nil, err
		}
		base = remote.New(rc.BaseURL, rt, rc.Timeout)

	default:
		model, err := similarity.LoadDataModel(ctx, store)
		if err != nil {
			return nil, err
		}
		measure, err := similarity.ParseMeasure(cfg.Engine.Similarity.Measure)
		if err != nil {
			return nil, err
		}
		var c cache.Cache
		if cfg.Cache.Enabled {
			mem, err := cache.NewMemory(cfg.Cache.MaxSize, cfg.Cache.TTL, m)
			if err != nil {
				return nil, err
			}
			c = mem
		}
		sim := similarity.New(model, measure, c)
		slog.Info("data model loaded",
			"items", sim.Model().NumItems(),
			"users", sim.Model().NumUsers(),
			"measure", string(measure),
		)
		base = sim
	}

	kind := cfg.Engine.Kind
	mws := []engine.Middleware{
		engine.WithTracing(kind, telemetry.Tracer("tasteworker/engine")),
		engine.WithMetrics(kind, m),
	}
	if bc := cfg.Engine.Breaker; bc.Enabled {
		mws = append(mws, engine.WithBreaker(circuitbreaker.NewBreaker(circuitbreaker.Config{
			ErrorThreshold: bc.ErrorThreshold,
			MinSamples:     bc.MinSamples,
			WindowSeconds:  bc.WindowSeconds,
			OpenTimeout:    bc.OpenTimeout,
			OnStateChange:  engine.BreakerLogger(kind),
		}), m))
	}
	mws = append(mws, engine.WithRateLimit(ratelimit.New(cfg.Engine.RateLimit.PerSecond, cfg.Engine.RateLimit.Burst)))

	return engine.Chain(base, mws...), nil
}

func authConfig(a config.AuthConfig) cloudauth.Config {
	return cloudauth.Config{
		Kind:            a.Kind,
		APIKey:          a.APIKey,
		Header:          a.Header,
		Prefix:          a.Prefix,
		TokenURL:        a.TokenURL,
		ClientID:        a.ClientID,
		ClientSecret:    a.ClientSecret,
		Scopes:          a.Scopes,
		Region:          a.Region,
		Service:         a.Service,
		AccessKeyID:     a.AccessKeyID,
		SecretAccessKey: a.SecretAccessKey,
		SessionToken:    a.SessionToken,
	}
}

// shutdownTimeout bounds tracer flush and admin server shutdown.
const shutdownTimeout = 10 * time.Second
