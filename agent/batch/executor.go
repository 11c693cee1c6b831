// Package batch fans independent work items out over a bounded worker pool
// and returns results in input order.
package batch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxWorkers is the pool size when Options.MaxWorkers is unset.
const DefaultMaxWorkers = 3

// Options controls how Run executes items.
type Options struct {
	// Parallel 为 false 时按顺序逐个执行
	Parallel bool

	// MaxWorkers 并发上限，<= 0 时使用 DefaultMaxWorkers
	MaxWorkers int
}

// Worker processes one item.
type Worker[I, R any] func(ctx context.Context, item I) (R, error)

// ItemError identifies the item that failed a batch.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Run applies worker to every item. Results are returned in input order.
// The call is all-or-nothing: the first failure cancels the context passed to
// in-flight workers, no further items start, and Run returns that failure
// wrapped in *ItemError.
func Run[I, R any](ctx context.Context, items []I, worker Worker[I, R], opts Options) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	if !opts.Parallel {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := worker(ctx, item)
			if err != nil {
				return nil, &ItemError{Index: i, Err: err}
			}
			results[i] = r
		}
		return results, nil
	}

	limit := opts.MaxWorkers
	if limit <= 0 {
		limit = DefaultMaxWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, item := range items {
		// SetLimit 下 Go 会阻塞等待空闲槽位，先检查是否已失败
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := worker(gctx, item)
			if err != nil {
				return &ItemError{Index: i, Err: err}
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
