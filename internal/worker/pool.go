package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
)

// Pool runs indexed work concurrently while handing results to a consumer in
// index order. Work is dispatched in windows of Workers items; the consumer
// sees every item of a window before the next window starts.
type Pool struct {
	workers int
	logger  *logger.Logger
}

func NewPool(workers int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{workers: workers, logger: log}
}

func (p *Pool) Workers() int {
	return p.workers
}

// Ordered calls work for every index in [0, n) and consume for each index in
// ascending order once its work finished. The first error from either
// callback, or cancellation of ctx, stops dispatching.
func (p *Pool) Ordered(ctx context.Context, n int, work func(ctx context.Context, i int) error, consume func(i int) error) error {
	for start := 0; start < n; start += p.workers {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + p.workers
		if end > n {
			end = n
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.workers)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				return work(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			p.logger.Debugw("Worker window failed", "start", start, "end", end, "error", err)
			return fmt.Errorf("work item in [%d,%d): %w", start, end, err)
		}

		for i := start; i < end; i++ {
			if err := consume(i); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}
