// File: internal/infra/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// JobFunc is one tick of a recurring job. Returning true removes the job.
type JobFunc func(ctx context.Context) (done bool)

type job struct {
	id       string
	interval time.Duration
	fn       JobFunc
	cancel   context.CancelFunc
}

// Scheduler runs named recurring jobs, each on its own goroutine with a
// ticker, so ticks of the same job never overlap. The job table is held in
// memory only; callers re-derive it from durable state on startup.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	log     zerolog.Logger
}

func New(logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*job),
		log:  logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches every registered job. Calling Start twice has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parentCtx)
	s.started = true
	for _, j := range s.jobs {
		s.launch(j)
	}
	s.log.Info().Int("jobs", len(s.jobs)).Msg("scheduler started")
}

// Add registers a job under a stable id. A duplicate id is a no-op, which
// makes registration idempotent across restarts and races. Jobs added after
// Start begin ticking immediately.
func (s *Scheduler) Add(id string, interval time.Duration, fn JobFunc) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; exists {
		return
	}
	j := &job{id: id, interval: interval, fn: fn}
	s.jobs[id] = j
	if s.started {
		s.launch(j)
	}
}

// Remove stops and forgets a job. Unknown ids are ignored.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(id)
}

// Has reports whether a job is registered.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Stop cancels all jobs and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// launch is called with s.mu held.
func (s *Scheduler) launch(j *job) {
	ctx, cancel := context.WithCancel(s.ctx)
	j.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if j.fn(ctx) {
					s.mu.Lock()
					s.remove(j.id)
					s.mu.Unlock()
					return
				}
			}
		}
	}()
}

// remove is called with s.mu held.
func (s *Scheduler) remove(id string) {
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	if j.cancel != nil {
		j.cancel()
	}
	delete(s.jobs, id)
}
