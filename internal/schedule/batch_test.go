package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunBatchedPreservesInputOrder(t *testing.T) {
	t.Parallel()
	tasks := make([]Task[string], 5)
	labels := []string{"A", "B", "C", "D", "E"}
	for i, label := range labels {
		label := label
		delay := time.Duration(5-i) * 10 * time.Millisecond
		tasks[i] = func(context.Context) string {
			// Later tasks finish first; order must still match input.
			time.Sleep(delay)
			return label
		}
	}

	results, err := RunBatched(context.Background(), tasks, 2)
	require.NoError(t, err)
	require.Equal(t, labels, results)
}

func TestRunBatchedRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()
	var inFlight, peak int64
	tasks := make([]Task[int], 9)
	for i := range tasks {
		tasks[i] = func(context.Context) int {
			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return 0
		}
	}

	_, err := RunBatched(context.Background(), tasks, 3)
	require.NoError(t, err)
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestRunBatchedBarrierBetweenGroups(t *testing.T) {
	t.Parallel()
	var order []int
	var mu chan struct{} = make(chan struct{}, 1)
	mu <- struct{}{}
	record := func(n int) {
		<-mu
		order = append(order, n)
		mu <- struct{}{}
	}

	tasks := []Task[int]{
		func(context.Context) int { time.Sleep(50 * time.Millisecond); record(0); return 0 },
		func(context.Context) int { record(1); return 1 },
		// Group two must not start until the slow task in group one is done.
		func(context.Context) int { record(2); return 2 },
	}

	results, err := RunBatched(context.Background(), tasks, 2)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, results)
	require.Equal(t, 2, order[2], "second group ran before the first finished")
}

func TestRunBatchedCancellationStopsNewGroups(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran int64

	tasks := make([]Task[int], 4)
	for i := range tasks {
		idx := i
		tasks[i] = func(context.Context) int {
			atomic.AddInt64(&ran, 1)
			if idx == 0 {
				// Cancel while the first group is in flight; it must still
				// finish, but the next group must not launch.
				cancel()
			}
			return idx
		}
	}

	results, err := RunBatched(ctx, tasks, 2)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 4)
	require.Equal(t, int64(2), atomic.LoadInt64(&ran))
}

func TestRunBatchedEmptyTaskList(t *testing.T) {
	t.Parallel()
	results, err := RunBatched[int](context.Background(), nil, 4)
	require.NoError(t, err)
	require.Empty(t, results)
}
