// File: internal/infra/worker/batch.go
package worker

import (
	"context"
	"runtime"
	"sync"
)

type Task func(ctx context.Context) error

// RunBatch executes tasks with at most workers running concurrently and
// waits for all of them. Per-task errors are collected, not short-circuited,
// so one bad item never stalls the rest of a sweep.
func RunBatch(ctx context.Context, workers int, tasks []Task) []error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		sem  = make(chan struct{}, workers)
	)
	for _, task := range tasks {
		if task == nil {
			continue
		}
		select {
		case <-ctx.Done():
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			wg.Wait()
			return errs
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := t(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(task)
	}
	wg.Wait()
	return errs
}
