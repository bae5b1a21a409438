package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner runs a set of workers concurrently. The first worker to return an
// error cancels the context shared by the others.
type Runner struct {
	workers []Worker
}

// NewRunner creates a Runner over workers.
func NewRunner(workers ...Worker) *Runner {
	return &Runner{workers: workers}
}

// Run blocks until every worker has returned and yields the first error.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		name := workerName(w)
		slog.LogAttrs(ctx, slog.LevelDebug, "launching worker", slog.String("worker", name))
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				slog.LogAttrs(gctx, slog.LevelError, "worker failed",
					slog.String("worker", name),
					slog.String("error", err.Error()),
				)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

type named interface {
	Name() string
}

func workerName(w Worker) string {
	if n, ok := w.(named); ok {
		return n.Name()
	}
	return "unnamed"
}
