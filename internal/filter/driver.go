package filter

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/clapfilter/internal/fuzzy"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/topn"
)

// Driver runs one Matcher over one Source, partitioning work across a
// pool of goroutines and feeding every scored item into a topn.Window.
type Driver struct {
	Workers int
}

// NewDriver creates a Driver with the given worker count; 0 or negative
// defaults to runtime.NumCPU().
func NewDriver(workers int) *Driver {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Driver{Workers: workers}
}

// Run drives src through matcher into window until src is exhausted or
// ctx is canceled. Cancellation is cooperative: a shared stop flag is
// checked by the producer and every worker, so no worker's matcher call
// is ever interrupted mid-item, only between items. Run always calls
// window.Finish() before returning, even on error or cancellation, so
// the caller's last view of the window is always fully consistent.
func (d *Driver) Run(ctx context.Context, src Source, matcher *match.Matcher, window *topn.Window) error {
	defer window.Finish()

	var stopped atomic.Bool
	go func() {
		<-ctx.Done()
		stopped.Store(true)
	}()

	items := make(chan match.Item, d.Workers*4)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(items)
		for {
			if stopped.Load() {
				return nil
			}
			item, ok, err := src.Next(gctx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			select {
			case items <- item:
			case <-gctx.Done():
				return nil
			}
		}
	})

	// Every worker scores against the same Matcher but needs its own Slab:
	// Slab's D/M matrices are scratch buffers mutated in place by
	// fuzzy.Score with no locking, so sharing one across goroutines would
	// race (see MatchWithSlab).
	for i := 0; i < d.Workers; i++ {
		slab := fuzzy.NewSlab()
		g.Go(func() error {
			for item := range items {
				if stopped.Load() {
					continue
				}
				mi, ok := matcher.MatchWithSlab(item, slab)
				window.Observe(mi, ok)
			}
			return nil
		})
	}

	return g.Wait()
}

// RunOnceToCompletion is the batch-mode driving loop: no stop flag, no
// cancellation short-circuit, runs src to the end and returns the final
// window snapshot via window.Finish(). Intended for the one-shot CLI
// path where the whole result set is printed once.
func (d *Driver) RunOnceToCompletion(src Source, matcher *match.Matcher, window *topn.Window) error {
	return d.Run(context.Background(), src, matcher, window)
}
