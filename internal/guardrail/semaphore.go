// Package guardrail holds the admission controls wrapped around synthesis:
// a bounded semaphore, a sliding-window rate limiter and a timeout.
package guardrail

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ent0n29/soundboard/internal/speech"
)

var ErrBusy = speech.Errorf(speech.CodeBusy, "synthesis is busy; retry later")

type SemaphoreStats struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	MaxConcurrent int `json:"max_concurrent"`
	MaxWaiting    int `json:"max_waiting"`
}

// Semaphore admits up to maxConcurrent callers, queues up to maxWaiting more in
// FIFO order and rejects everyone else with ErrBusy.
type Semaphore struct {
	mu         sync.Mutex
	weighted   *semaphore.Weighted
	gen        int
	active     int
	waiting    int
	maxActive  int
	maxWaiting int
}

func NewSemaphore(maxConcurrent, maxWaiting int) *Semaphore {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxWaiting < 0 {
		maxWaiting = 0
	}
	return &Semaphore{
		weighted:   semaphore.NewWeighted(int64(maxConcurrent)),
		maxActive:  maxConcurrent,
		maxWaiting: maxWaiting,
	}
}

// Run executes fn while holding a slot. The slot is released when fn returns,
// including on error or panic.
func (s *Semaphore) Run(ctx context.Context, fn func(context.Context) error) error {
	w, gen, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(w, gen)
	return fn(ctx)
}

func (s *Semaphore) acquire(ctx context.Context) (*semaphore.Weighted, int, error) {
	s.mu.Lock()
	w, gen := s.weighted, s.gen
	if w.TryAcquire(1) {
		s.active++
		s.mu.Unlock()
		return w, gen, nil
	}
	if s.waiting >= s.maxWaiting {
		s.mu.Unlock()
		return nil, 0, ErrBusy
	}
	s.waiting++
	s.mu.Unlock()

	err := w.Acquire(ctx, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.waiting--
		if err == nil {
			s.active++
		}
	}
	if err != nil {
		return nil, 0, err
	}
	return w, gen, nil
}

func (s *Semaphore) release(w *semaphore.Weighted, gen int) {
	s.mu.Lock()
	if gen == s.gen {
		s.active--
	}
	s.mu.Unlock()
	w.Release(1)
}

func (s *Semaphore) Stats() SemaphoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SemaphoreStats{
		Active:        s.active,
		Waiting:       s.waiting,
		MaxConcurrent: s.maxActive,
		MaxWaiting:    s.maxWaiting,
	}
}

// Reset drops all counters. Callers still holding a slot from before the reset
// release it against the old generation without touching the new counters.
func (s *Semaphore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weighted = semaphore.NewWeighted(int64(s.maxActive))
	s.gen++
	s.active = 0
	s.waiting = 0
}
