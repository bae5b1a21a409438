package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/eugener/tasteworker/internal/telemetry"
)

// Memory is an in-memory W-TinyLFU similarity cache backed by otter.
type Memory struct {
	cache   *otter.Cache[Pair, float64]
	metrics *telemetry.Metrics
}

// NewMemory creates a cache holding at most maxSize pairs. A positive ttl
// expires entries that long after they were written. m may be nil.
func NewMemory(maxSize int, ttl time.Duration, m *telemetry.Metrics) (*Memory, error) {
	opts := &otter.Options[Pair, float64]{MaximumSize: maxSize}
	if ttl > 0 {
		opts.ExpiryCalculator = otter.ExpiryWriting[Pair, float64](ttl)
	}
	c, err := otter.New[Pair, float64](opts)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c, metrics: m}, nil
}

// GetOrCompute implements Cache.
func (m *Memory) GetOrCompute(ctx context.Context, p Pair, compute func() (float64, error)) (float64, error) {
	if v, ok := m.cache.GetIfPresent(p); ok {
		if m.metrics != nil {
			m.metrics.CacheHits.Inc()
		}
		return v, nil
	}
	if m.metrics != nil {
		m.metrics.CacheMisses.Inc()
	}
	return m.cache.Get(ctx, p, otter.LoaderFunc[Pair, float64](func(context.Context, Pair) (float64, error) {
		return compute()
	}))
}

// Purge removes all values from the cache.
func (m *Memory) Purge() {
	m.cache.InvalidateAll()
}
