package incremental

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// RunParallel fans a batch of read-only queries out across goroutines,
// each driven from its own Snapshot of s (§4.6), and reports the first
// error returned by any of them. It is the idiomatic replacement for
// hand-rolling a WaitGroup + snapshot-per-goroutine loop at every call
// site, grounded in the fan-out/first-error shape of
// bufbuild-protocompile's Executor.Run.
//
// At most s.Database().Config()'s "runtime.parallelism" setting
// (defaulting to GOMAXPROCS) work functions run at once. Every work
// function still gets its own goroutine and its own Snapshot up front:
// len(work) goroutines are started and len(work) snapshots are taken
// before any work runs, and each snapshot is held until its goroutine
// returns. Only the calls to the work functions are bounded.
//
// Each work function receives its own *Session; it must not retain or
// use s, nor any Session belonging to another call's snapshot, after
// returning.
func RunParallel(ctx context.Context, s *Session, work ...func(ctx context.Context, snap *Session) error) error {
	limit := int64(s.Database().Config().GetInt("runtime.parallelism"))
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	g, ctx := errgroup.WithContext(ctx)
	for _, fn := range work {
		fn := fn
		snap := s.Snapshot()
		g.Go(func() error {
			defer snap.Close()
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return fn(ctx, snap)
		})
	}
	return g.Wait()
}
