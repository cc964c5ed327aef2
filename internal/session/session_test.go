package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanch7274/CVEHub-sub002/internal/codec"
)

func TestAnnounceMessage(t *testing.T) {
	tr := NewTracker(time.Second, "cvewatch/1.0", "/dashboard", nil)

	msg := tr.AnnounceMessage()
	assert.Equal(t, codec.TypeSessionInfo, msg.Type)
	assert.Equal(t, tr.ID(), msg.Data["sessionId"])
	assert.Equal(t, "cvewatch/1.0", msg.Data["userAgent"])
	assert.Equal(t, "/dashboard", msg.Data["path"])
}

func TestHandleAck_FirstWins(t *testing.T) {
	tr := NewTracker(time.Minute, "ua", "/", nil)

	readyCount := 0
	tr.BeginConnection(func() { readyCount++ })

	first := tr.HandleAck(codec.ConnectAck{SessionID: "srv-1"})
	assert.True(t, first)
	assert.Equal(t, "srv-1", tr.ID(), "server session id is authoritative")
	assert.True(t, tr.Ready())
	assert.True(t, tr.Acknowledged())

	// A second ack with a different id is a no-op.
	second := tr.HandleAck(codec.ConnectAck{SessionID: "srv-2"})
	assert.False(t, second)
	assert.Equal(t, "srv-1", tr.ID(), "first ack's session id must be retained")
	assert.Equal(t, 1, readyCount, "ready transition occurs exactly once")
}

func TestHandleAck_EmptyServerID(t *testing.T) {
	tr := NewTracker(time.Minute, "ua", "/", nil)
	clientID := tr.ID()

	tr.BeginConnection(nil)
	tr.HandleAck(codec.ConnectAck{})

	assert.Equal(t, clientID, tr.ID(), "empty server id keeps the client-proposed one")
}

func TestHandleAck_ConcurrentConnections(t *testing.T) {
	tr := NewTracker(time.Minute, "ua", "/", nil)

	tr.BeginConnection(nil)
	tr.HandleAck(codec.ConnectAck{SessionID: "srv-1", ConcurrentConnections: 3})

	assert.Equal(t, 3, tr.ConcurrentConnections())
}

func TestAckTimeout_ReadyFallback(t *testing.T) {
	tr := NewTracker(20*time.Millisecond, "ua", "/", nil)

	ready := make(chan struct{})
	tr.BeginConnection(func() { close(ready) })

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for ready fallback")
	}

	assert.True(t, tr.Ready())
	assert.False(t, tr.Acknowledged(), "timeout readiness is best-effort, not an ack")

	// A late ack is accepted idempotently: id adopted, no second ready.
	first := tr.HandleAck(codec.ConnectAck{SessionID: "late"})
	assert.True(t, first)
	assert.Equal(t, "late", tr.ID())
}

func TestEndConnection_CancelsTimeout(t *testing.T) {
	tr := NewTracker(20*time.Millisecond, "ua", "/", nil)

	fired := make(chan struct{}, 1)
	tr.BeginConnection(func() { fired <- struct{}{} })
	tr.EndConnection()

	select {
	case <-fired:
		t.Fatal("ack timeout fired after EndConnection")
	case <-time.After(100 * time.Millisecond):
	}
	assert.False(t, tr.Ready())
}

func TestIDPersistsAcrossConnections(t *testing.T) {
	tr := NewTracker(time.Minute, "ua", "/", nil)
	id := tr.ID()

	tr.BeginConnection(nil)
	tr.HandleAck(codec.ConnectAck{})
	tr.EndConnection()

	// Simulated reconnect: same logical session.
	tr.BeginConnection(nil)
	assert.Equal(t, id, tr.ID())
	assert.False(t, tr.Ready(), "readiness resets per connection")
}

func TestRegenerate(t *testing.T) {
	tr := NewTracker(time.Minute, "ua", "/", nil)
	old := tr.ID()
	require.NotEmpty(t, old)

	tr.Regenerate()

	assert.NotEqual(t, old, tr.ID())
	assert.False(t, tr.Ready())
	assert.False(t, tr.Acknowledged())
}
