// Package schedule runs task lists under a concurrency cap in barrier-synced
// batches.
package schedule

import (
	"context"
	"sync"
)

// Task is one unit of work producing a result of type T.
type Task[T any] func(ctx context.Context) T

// RunBatched partitions tasks into consecutive groups of at most maxConcurrent,
// launches each group concurrently, and waits for the whole group before
// starting the next. Results are returned in input order regardless of
// completion timing.
//
// Cancellation stops new groups from launching but lets the in-flight group
// run to completion; no task is aborted mid-flight. When the context ends
// early the partial results and ctx.Err() are returned.
func RunBatched[T any](ctx context.Context, tasks []Task[T], maxConcurrent int) ([]T, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	results := make([]T, len(tasks))
	for start := 0; start < len(tasks); start += maxConcurrent {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		end := start + maxConcurrent
		if end > len(tasks) {
			end = len(tasks)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = tasks[idx](ctx)
			}(i)
		}
		wg.Wait()
	}
	return results, ctx.Err()
}
