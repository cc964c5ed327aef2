// Package keepalive probes connection liveness while connected. On a fixed
// check interval it sends an application-level ping if no inbound traffic
// has been seen for the heartbeat window. A missing pong never triggers
// reconnection by itself; dead links surface through the transport's own
// close/error path, which avoids false-positive reconnects on scheduling
// jitter.
package keepalive

import (
	"log/slog"
	"sync"
	"time"
)

// Defaults for the probe cadence.
const (
	DefaultCheckInterval     = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// Monitor watches inbound traffic and fires ping probes on idle.
type Monitor struct {
	checkInterval     time.Duration
	heartbeatInterval time.Duration
	sendPing          func()
	logger            *slog.Logger

	mu          sync.Mutex
	lastTraffic time.Time
	stop        chan struct{}
}

// NewMonitor creates a monitor. sendPing is invoked from the monitor's
// goroutine whenever the connection has been idle past the heartbeat
// interval. Non-positive intervals use defaults.
func NewMonitor(checkInterval, heartbeatInterval time.Duration, sendPing func(), logger *slog.Logger) *Monitor {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		checkInterval:     checkInterval,
		heartbeatInterval: heartbeatInterval,
		sendPing:          sendPing,
		logger:            logger,
	}
}

// Start begins the check loop. Restarting an already-running monitor stops
// the previous loop first.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
	}
	m.stop = make(chan struct{})
	m.lastTraffic = time.Now()
	stop := m.stop
	m.mu.Unlock()

	go m.run(stop)
}

// Stop halts the check loop. Safe to call when not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.mu.Unlock()
}

// Touch records inbound traffic. Called for every received message,
// including pongs.
func (m *Monitor) Touch() {
	m.mu.Lock()
	m.lastTraffic = time.Now()
	m.mu.Unlock()
}

// IdleFor returns how long the connection has been without inbound traffic.
func (m *Monitor) IdleFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastTraffic.IsZero() {
		return 0
	}
	return time.Since(m.lastTraffic)
}

func (m *Monitor) run(stop chan struct{}) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			idle := m.IdleFor()
			if idle < m.heartbeatInterval {
				continue
			}
			m.logger.Debug("connection idle, sending ping", "idle", idle)
			if m.sendPing != nil {
				m.sendPing()
			}
		}
	}
}
