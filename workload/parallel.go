package workload

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/deadpool/alloc"
)

// RunParallel runs workers copies of cfg concurrently. Worker i gets the
// allocator returned by newAllocator(i) and seed cfg.Seed+i. Workers may share
// one allocator only if it is safe for concurrent use, such as
// *alloc.LockedAllocator; cfg.Verify must then be safe too. Traces are not
// recorded. The first failure cancels the remaining workers.
func RunParallel(ctx context.Context, workers int, newAllocator func(worker int) (alloc.Allocator, error), cfg Config) ([]Report, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workload: worker count %d must be positive", workers)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reports := make([]Report, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := range workers {
		g.Go(func() error {
			a, err := newAllocator(w)
			if err != nil {
				return fmt.Errorf("workload: worker %d: %w", w, err)
			}
			c := cfg
			c.Seed = cfg.Seed + int64(w)
			c.Trace = nil
			rep, err := Run(ctx, a, c)
			reports[w] = rep
			if err != nil {
				return fmt.Errorf("workload: worker %d: %w", w, err)
			}
			return nil
		})
	}
	return reports, g.Wait()
}
