package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunBatchBoundsConcurrency(t *testing.T) {
	const workers = 3
	var cur, peak int32

	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			n := atomic.AddInt32(&cur, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&cur, -1)
			return nil
		}
	}

	errs := RunBatch(context.Background(), workers, tasks)
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if p := atomic.LoadInt32(&peak); p > workers {
		t.Errorf("expected at most %d concurrent tasks, observed %d", workers, p)
	}
}

func TestRunBatchCollectsErrorsWithoutStalling(t *testing.T) {
	boom := errors.New("boom")
	var ran int32
	tasks := []Task{
		func(context.Context) error { atomic.AddInt32(&ran, 1); return boom },
		func(context.Context) error { atomic.AddInt32(&ran, 1); return nil },
		nil,
		func(context.Context) error { atomic.AddInt32(&ran, 1); return boom },
	}

	errs := RunBatch(context.Background(), 2, tasks)
	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Errorf("expected all 3 real tasks run, got %d", got)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 collected errors, got %d", len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("unexpected error: %v", err)
		}
	}
}
