package services

import (
	"context"
	"sync"
	"sync/atomic"
)

// runParallel distributes task indices [0, total) across a bounded worker
// pool and invokes fn for each. Tasks share no state: each fn call must only
// write its own result slot, so the collector that reads the slots afterwards
// needs no locking. Cancellation is cooperative and honored between tasks —
// in-flight work runs to completion, pending tasks are discarded. Returns the
// number of tasks that actually ran.
func runParallel(ctx context.Context, workers, total int, fn func(i int)) int {
	if total == 0 {
		return 0
	}
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; i < total; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var completed atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
				completed.Add(1)
			}
		}()
	}
	wg.Wait()
	return int(completed.Load())
}
