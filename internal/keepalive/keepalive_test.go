package keepalive

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_PingsOnIdle(t *testing.T) {
	var pings atomic.Int32
	m := NewMonitor(10*time.Millisecond, 30*time.Millisecond, func() { pings.Add(1) }, nil)

	m.Start()
	defer m.Stop()

	assert.Eventually(t, func() bool { return pings.Load() >= 1 },
		time.Second, 5*time.Millisecond, "idle connection should be pinged")
}

func TestMonitor_NoPingWhileTrafficFlows(t *testing.T) {
	var pings atomic.Int32
	m := NewMonitor(10*time.Millisecond, 50*time.Millisecond, func() { pings.Add(1) }, nil)

	m.Start()
	defer m.Stop()

	// Keep touching more often than the heartbeat interval.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Touch()
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, int32(0), pings.Load(), "active connection must not be pinged")
}

func TestMonitor_StopHaltsPings(t *testing.T) {
	var pings atomic.Int32
	m := NewMonitor(5*time.Millisecond, 10*time.Millisecond, func() { pings.Add(1) }, nil)

	m.Start()
	assert.Eventually(t, func() bool { return pings.Load() >= 1 }, time.Second, time.Millisecond)

	m.Stop()
	n := pings.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, pings.Load(), n+1, "pings must stop after Stop")

	// Stop again is safe.
	m.Stop()
}

func TestMonitor_IdleFor(t *testing.T) {
	m := NewMonitor(time.Second, time.Second, nil, nil)

	assert.Equal(t, time.Duration(0), m.IdleFor(), "zero before any traffic")

	m.Touch()
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, m.IdleFor(), time.Duration(0))
}

func TestNewMonitor_Defaults(t *testing.T) {
	m := NewMonitor(0, 0, nil, nil)
	assert.Equal(t, DefaultCheckInterval, m.checkInterval)
	assert.Equal(t, DefaultHeartbeatInterval, m.heartbeatInterval)
}
