// Package diag collects process resource statistics for periodic logging.
package diag

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/dustin/go-humanize"
)

// Collector emits a resource-statistics snapshot.
type Collector interface {
	Snapshot(ctx context.Context)
}

// Memory reports Go heap and GC statistics through slog.
type Memory struct {
	logger *slog.Logger
}

// NewMemory creates a Memory collector. A nil logger uses slog.Default().
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{logger: logger}
}

// Stats is a point-in-time view of the runtime memory counters.
type Stats struct {
	HeapAlloc  uint64
	HeapSys    uint64
	Sys        uint64
	NumGC      uint32
	Goroutines int
}

// Read samples the runtime. ReadMemStats stops the world briefly, so callers
// throttle how often they invoke it.
func Read() Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Stats{
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.HeapSys,
		Sys:        ms.Sys,
		NumGC:      ms.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

// Snapshot logs the current memory statistics at info level.
func (m *Memory) Snapshot(ctx context.Context) {
	s := Read()
	m.logger.LogAttrs(ctx, slog.LevelInfo, "memory statistics",
		slog.String("heap_alloc", humanize.IBytes(s.HeapAlloc)),
		slog.String("heap_sys", humanize.IBytes(s.HeapSys)),
		slog.String("sys", humanize.IBytes(s.Sys)),
		slog.Uint64("num_gc", uint64(s.NumGC)),
		slog.Int("goroutines", s.Goroutines),
	)
}

// Func adapts a plain function to the Collector interface.
type Func func(ctx context.Context)

// Snapshot calls f.
func (f Func) Snapshot(ctx context.Context) { f(ctx) }
