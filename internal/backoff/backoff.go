// Package backoff computes reconnection delays for the realtime client:
// exponential growth with uniform jitter, clamped to a configured range,
// with a hard ceiling on consecutive attempts.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Default scheduler parameters.
const (
	DefaultMinDelay    = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultMaxAttempts = 10

	growthFactor = 1.5
	jitterLow    = 0.8
	jitterHigh   = 1.2
)

// Scheduler tracks the attempt counter for the current failure episode and
// computes the delay before the next reconnection attempt.
type Scheduler struct {
	min         time.Duration
	max         time.Duration
	maxAttempts int

	mu       sync.Mutex
	attempts int
}

// New creates a scheduler. Non-positive parameters fall back to defaults.
func New(min, max time.Duration, maxAttempts int) *Scheduler {
	if min <= 0 {
		min = DefaultMinDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if max < min {
		max = min
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Scheduler{min: min, max: max, maxAttempts: maxAttempts}
}

// Delay returns the jittered wait before attempt n (0-based). The result
// always lies within [min, max].
func (s *Scheduler) Delay(attempt int) time.Duration {
	base := s.base(attempt)
	jitter := jitterLow + rand.Float64()*(jitterHigh-jitterLow)
	return s.clamp(time.Duration(float64(base) * jitter))
}

// base is the deterministic pre-jitter delay for attempt n.
func (s *Scheduler) base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(s.min) * math.Pow(growthFactor, float64(attempt))
	if d > float64(s.max) {
		return s.max
	}
	return time.Duration(d)
}

func (s *Scheduler) clamp(d time.Duration) time.Duration {
	if d < s.min {
		return s.min
	}
	if d > s.max {
		return s.max
	}
	return d
}

// Fail records a failed or abnormally ended connection and returns the
// attempt number to use for the next delay computation.
func (s *Scheduler) Fail() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.attempts
	s.attempts++
	return n
}

// Reset clears the attempt counter. Called on the first fully-acknowledged
// connection after an episode of failures.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

// Attempts returns the number of failures recorded in the current episode.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Exhausted reports whether the retry ceiling has been reached.
func (s *Scheduler) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts >= s.maxAttempts
}

// MaxAttempts returns the configured retry ceiling.
func (s *Scheduler) MaxAttempts() int {
	return s.maxAttempts
}
