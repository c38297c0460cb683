package guardrail

import (
	"sync"
	"time"

	"github.com/ent0n29/soundboard/internal/speech"
)

var ErrRateLimited = speech.Errorf(speech.CodeRateLimited, "rate limit reached; retry later")

// RateLimiter is a per-key sliding window: at most maxCalls admissions within
// any window-long interval.
type RateLimiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	now      func() time.Time
	buckets  map[string][]time.Time
}

func NewRateLimiter(maxCalls int, window time.Duration) *RateLimiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
		buckets:  make(map[string][]time.Time),
	}
}

// WithClock swaps the time source. Used by tests.
func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

// Allow records one call for key, or returns an error matching ErrRateLimited
// without recording anything.
func (r *RateLimiter) Allow(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stamps := r.evict(key, now)
	if len(stamps) >= r.maxCalls {
		retryIn := stamps[0].Add(r.window).Sub(now)
		return speech.Errorf(speech.CodeRateLimited,
			"limit of %d calls per %s reached; retry in %s", r.maxCalls, r.window, retryIn.Round(time.Millisecond))
	}
	r.buckets[key] = append(stamps, now)
	return nil
}

// Remaining reports how many calls key may still make right now.
func (r *RateLimiter) Remaining(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxCalls - len(r.evict(key, r.now()))
}

func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = make(map[string][]time.Time)
}

func (r *RateLimiter) evict(key string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	stamps := r.buckets[key]
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	stamps = stamps[i:]
	if len(stamps) == 0 {
		delete(r.buckets, key)
		return nil
	}
	r.buckets[key] = stamps
	return stamps
}
