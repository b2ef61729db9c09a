package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sig-0/dutyrates/storage/types"
)

// BatchResult is the outcome of a single query in a batch
type BatchResult struct {
	Record *types.RateRecord
	Err    error
}

// ResolveBatch resolves independent queries concurrently on a bounded worker pool.
// Results are returned in input order; a failing query does not affect the others
func (e *Engine) ResolveBatch(ctx context.Context, queries []types.RateQuery) []BatchResult {
	results := make([]BatchResult, len(queries))

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, q := range queries {
		g.Go(func() error {
			record, err := e.Resolve(ctx, q)

			results[i] = BatchResult{
				Record: record,
				Err:    err,
			}

			// per-query errors never cancel the batch
			return nil
		})
	}

	_ = g.Wait()

	return results
}
