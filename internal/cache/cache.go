// Package cache provides bounded in-memory caching of pairwise item similarities.
package cache

import "context"

// Pair identifies an unordered pair of items. Use NewPair so that (a, b) and
// (b, a) share one entry.
type Pair struct {
	A, B int64
}

// NewPair returns the normalized pair with A <= B.
func NewPair(a, b int64) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Cache is the interface for similarity caching.
type Cache interface {
	// GetOrCompute returns the cached value for p, calling compute on a miss.
	// Concurrent misses for the same pair share a single compute call.
	GetOrCompute(ctx context.Context, p Pair, compute func() (float64, error)) (float64, error)
	// Purge removes all cached values.
	Purge()
}
