package fn

import (
	"context"
	"sync"
)

// ParMapResult applies f to every item with at most workers in flight and
// returns the results in input order. Once ctx is done no new work starts;
// the remaining slots hold ctx.Err().
func ParMapResult[T, U any](ctx context.Context, items []T, workers int, f func(ctx context.Context, i int, item T) Result[U]) []Result[U] {
	out := make([]Result[U], len(items))
	if len(items) == 0 {
		return out
	}
	if workers <= 0 || workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, v := range items {
		select {
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				out[j] = Err[U](ctx.Err())
			}
			wg.Wait()
			return out
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, v T) {
			defer func() { <-sem; wg.Done() }()
			out[i] = f(ctx, i, v)
		}(i, v)
	}
	wg.Wait()
	return out
}
