// Package session owns the logical realtime session identity. A session
// outlives individual physical connections: the identifier survives
// reconnects and is regenerated only on an explicit full disconnect.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanch7274/CVEHub-sub002/internal/codec"
)

// DefaultAckTimeout bounds the wait for the server's connect_ack. When it
// expires the session is marked ready anyway, so a server-side ack failure
// degrades to best-effort instead of blocking the client forever.
const DefaultAckTimeout = 5 * time.Second

// Tracker manages the session identifier and the per-connection
// acknowledgment handshake.
type Tracker struct {
	logger     *slog.Logger
	ackTimeout time.Duration
	userAgent  string
	path       string

	mu           sync.Mutex
	id           string
	createdAt    time.Time
	acknowledged bool
	ready        bool
	concurrent   int
	gen          uint64
	ackTimer     *time.Timer
	onReady      func()
}

// NewTracker creates a tracker with a fresh session identifier. The
// userAgent and path describe this client instance in session_info
// announcements. ackTimeout <= 0 uses DefaultAckTimeout.
func NewTracker(ackTimeout time.Duration, userAgent, path string, logger *slog.Logger) *Tracker {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:     logger,
		ackTimeout: ackTimeout,
		userAgent:  userAgent,
		path:       path,
		id:         uuid.NewString(),
		createdAt:  time.Now(),
	}
}

// ID returns the current session identifier.
func (t *Tracker) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// Ready reports whether the session handshake completed (or timed out into
// best-effort readiness) on the current connection.
func (t *Tracker) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Acknowledged reports whether the server acked the current connection.
func (t *Tracker) Acknowledged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acknowledged
}

// ConcurrentConnections returns the count reported in the last connect_ack.
func (t *Tracker) ConcurrentConnections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.concurrent
}

// AnnounceMessage builds the session_info message sent after every
// successful transport open.
func (t *Tracker) AnnounceMessage() codec.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return codec.Message{
		Type: codec.TypeSessionInfo,
		Data: map[string]any{
			"sessionId": t.id,
			"userAgent": t.userAgent,
			"path":      t.path,
		},
	}
}

// BeginConnection resets the per-connection handshake state and arms the
// ack timeout. onReady fires exactly once per connection: on the first
// connect_ack, or on timeout if the server stays silent.
func (t *Tracker) BeginConnection(onReady func()) {
	t.mu.Lock()
	t.stopTimerLocked()
	t.acknowledged = false
	t.ready = false
	t.concurrent = 0
	t.onReady = onReady
	t.gen++
	gen := t.gen
	t.ackTimer = time.AfterFunc(t.ackTimeout, func() { t.ackExpired(gen) })
	t.mu.Unlock()
}

// EndConnection cancels the ack timeout and clears readiness. Called when
// the transport closes for any reason.
func (t *Tracker) EndConnection() {
	t.mu.Lock()
	t.stopTimerLocked()
	t.ready = false
	t.acknowledged = false
	t.onReady = nil
	t.gen++
	t.mu.Unlock()
}

// HandleAck processes a connect_ack. The first ack on a connection wins:
// it adopts the server's session identifier (the server's value is
// authoritative) and triggers readiness. Later or duplicate acks are
// no-ops beyond logging.
func (t *Tracker) HandleAck(ack codec.ConnectAck) (first bool) {
	t.mu.Lock()
	if t.acknowledged {
		t.mu.Unlock()
		t.logger.Debug("duplicate connect_ack ignored", "session_id", ack.SessionID)
		return false
	}
	t.acknowledged = true
	t.concurrent = ack.ConcurrentConnections
	if ack.SessionID != "" && ack.SessionID != t.id {
		t.logger.Info("adopting server session id",
			"client_session_id", t.id,
			"server_session_id", ack.SessionID,
		)
		t.id = ack.SessionID
	}
	t.stopTimerLocked()
	onReady := t.markReadyLocked()
	t.mu.Unlock()

	if onReady != nil {
		onReady()
	}
	return true
}

// ackExpired fires when the server never acked within the window.
func (t *Tracker) ackExpired(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.ready {
		t.mu.Unlock()
		return
	}
	t.logger.Warn("no connect_ack within timeout, marking session ready",
		"session_id", t.id,
		"timeout", t.ackTimeout,
	)
	onReady := t.markReadyLocked()
	t.mu.Unlock()

	if onReady != nil {
		onReady()
	}
}

// markReadyLocked flips the ready flag and returns the callback to invoke
// outside the lock, or nil if readiness was already reached.
func (t *Tracker) markReadyLocked() func() {
	if t.ready {
		return nil
	}
	t.ready = true
	onReady := t.onReady
	t.onReady = nil
	return onReady
}

func (t *Tracker) stopTimerLocked() {
	if t.ackTimer != nil {
		t.ackTimer.Stop()
		t.ackTimer = nil
	}
}

// Regenerate discards the session identifier and creates a fresh one.
// Called on explicit full disconnect (logout), so an identifier is never
// reused across two authenticated identities.
func (t *Tracker) Regenerate() {
	t.mu.Lock()
	old := t.id
	t.id = uuid.NewString()
	t.createdAt = time.Now()
	t.acknowledged = false
	t.ready = false
	t.concurrent = 0
	t.mu.Unlock()

	t.logger.Debug("session regenerated", "old_session_id", old)
}

// CreatedAt returns when the current session identifier was minted.
func (t *Tracker) CreatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createdAt
}
