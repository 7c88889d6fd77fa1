package email

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut calls fn for every item with at most limit calls in flight and
// returns the results in input order. Each call owns its result slot.
func fanOut[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) R) []R {
	out := make([]R, len(items))
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			out[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
