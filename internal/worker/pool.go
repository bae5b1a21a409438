package worker

import (
	"context"
	"time"

	taste "github.com/eugener/tasteworker/internal"
)

const defaultWorkers = 4

// PoolConfig describes a set of workers draining one cursor.
type PoolConfig struct {
	Workers  int          // number of concurrent workers (default: 4)
	Cursor   taste.Cursor // shared by every worker
	Engine   taste.Engine
	Writer   taste.Writer
	HowMany  int
	Reporter Reporter
}

// RunSummary aggregates the summaries of every worker in a pool.
type RunSummary struct {
	Workers   []Summary     `json:"workers"`
	Processed int64         `json:"processed"`
	Failed    int64         `json:"failed"`
	Abandoned int64         `json:"abandoned"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Pool runs N SimilarItemsWorkers over a shared cursor. Its only coordination
// duty is starting the workers and waiting for all of them to terminate.
type Pool struct {
	workers []*SimilarItemsWorker
}

// NewPool creates the pool's workers. Worker IDs are 1..N.
func NewPool(cfg PoolConfig) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = defaultWorkers
	}
	p := &Pool{workers: make([]*SimilarItemsWorker, n)}
	for i := range n {
		p.workers[i] = NewSimilarItemsWorker(Config{
			ID:       i + 1,
			Cursor:   cfg.Cursor,
			Engine:   cfg.Engine,
			Writer:   cfg.Writer,
			HowMany:  cfg.HowMany,
			Reporter: cfg.Reporter,
		})
	}
	return p
}

// Run starts every worker and blocks until all have terminated.
func (p *Pool) Run(ctx context.Context) (RunSummary, error) {
	start := time.Now()

	ws := make([]Worker, len(p.workers))
	for i, w := range p.workers {
		ws[i] = w
	}
	err := NewRunner(ws...).Run(ctx)

	sum := RunSummary{
		Workers: make([]Summary, len(p.workers)),
		Elapsed: time.Since(start),
	}
	for i, w := range p.workers {
		s := w.Summary()
		sum.Workers[i] = s
		sum.Processed += s.Processed
		sum.Failed += s.Failed
		sum.Abandoned += s.Abandoned
	}
	return sum, err
}

// Stop requests a cooperative stop of every worker.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

// Status returns a live snapshot of every worker.
func (p *Pool) Status() []Status {
	out := make([]Status, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Status()
	}
	return out
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }
