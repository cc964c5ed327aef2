package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_Bounds(t *testing.T) {
	s := New(500*time.Millisecond, 10*time.Second, 10)

	for n := 0; n < 50; n++ {
		for i := 0; i < 20; i++ {
			d := s.Delay(n)
			assert.GreaterOrEqual(t, d, 500*time.Millisecond, "attempt %d", n)
			assert.LessOrEqual(t, d, 10*time.Second, "attempt %d", n)
		}
	}
}

func TestDelay_NonDecreasingBase(t *testing.T) {
	s := New(500*time.Millisecond, 10*time.Second, 10)

	prev := time.Duration(0)
	for n := 0; n < 30; n++ {
		d := s.base(n)
		assert.GreaterOrEqual(t, d, prev, "base delay must be non-decreasing, attempt %d", n)
		prev = d
	}

	// Growth is 1.5x until the clamp.
	assert.Equal(t, 500*time.Millisecond, s.base(0))
	assert.Equal(t, 750*time.Millisecond, s.base(1))
	assert.Equal(t, 10*time.Second, s.base(100))
}

func TestDelay_NegativeAttempt(t *testing.T) {
	s := New(500*time.Millisecond, 10*time.Second, 10)
	assert.Equal(t, 500*time.Millisecond, s.base(-1))
}

func TestFailResetCycle(t *testing.T) {
	s := New(0, 0, 3)

	assert.Equal(t, 0, s.Fail())
	assert.Equal(t, 1, s.Fail())
	assert.Equal(t, 2, s.Attempts())
	assert.False(t, s.Exhausted())

	assert.Equal(t, 2, s.Fail())
	assert.True(t, s.Exhausted())

	s.Reset()
	assert.Equal(t, 0, s.Attempts())
	assert.False(t, s.Exhausted())
}

func TestNew_Defaults(t *testing.T) {
	s := New(0, 0, 0)

	assert.Equal(t, DefaultMinDelay, s.min)
	assert.Equal(t, DefaultMaxDelay, s.max)
	assert.Equal(t, DefaultMaxAttempts, s.MaxAttempts())

	// max below min is raised to min.
	s = New(time.Second, time.Millisecond, 1)
	assert.Equal(t, time.Second, s.max)
}
