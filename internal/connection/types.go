package connection

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrOpenTimeout      = errors.New("connection open timeout")
	ErrAuthRequired     = errors.New("authentication required")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	errTransportClosed  = errors.New("transport closed")
)

// Close codes the CVEHub server uses for credential rejection.
const (
	closeCodeAuthExpired  = 4401
	closeCodeAuthRejected = 4403
)

// State is the connection manager's state machine value. Exactly one state
// holds at any time and only the manager mutates it.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Snapshot is the full state picture carried on every stateChanged event,
// for observers such as UI connection indicators.
type Snapshot struct {
	State     State
	Connected bool // transport open
	Ready     bool // session handshake complete on this connection
	Attempts  int  // failures in the current reconnect episode
	SessionID string
}

// Event types published by the manager alongside decoded wire messages.
const (
	EventStateChanged  = "stateChanged"
	EventError         = "error"
	EventSubscriptions = "subscriptionsChanged"
)

// ClientConfig configures a single WebSocket transport.
type ClientConfig struct {
	URL              string        // wss endpoint
	Token            string        // bearer credential, sent as a query parameter
	HandshakeTimeout time.Duration // dial handshake budget
	WriteTimeout     time.Duration // write deadline for sends
	WatchdogTimeout  time.Duration // max silence before the read loop gives up
	BufferSize       int           // message channel buffer size
}

// ManagerConfig configures the connection manager and its components.
type ManagerConfig struct {
	URL       string // wss endpoint
	Path      string // page/context path reported in session_info
	UserAgent string // client fingerprint reported in session_info

	OpenTimeout     time.Duration // Connecting → Failed if the open takes longer
	WriteTimeout    time.Duration
	WatchdogTimeout time.Duration // transport-level silence window
	BufferSize      int

	CheckInterval     time.Duration // keepalive check cadence
	HeartbeatInterval time.Duration // idle threshold before a ping probe

	AckTimeout time.Duration // session connect_ack wait before best-effort ready

	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	DisableReconnect     bool // never schedule automatic reconnects
}

// Default manager settings.
const (
	DefaultOpenTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultWatchdogTimeout = 90 * time.Second
	DefaultBufferSize      = 1000
	DefaultUserAgent       = "cvehub-realtime-go"
)

// DefaultManagerConfig returns sensible defaults for everything but URL.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Path:                 "/",
		UserAgent:            DefaultUserAgent,
		OpenTimeout:          DefaultOpenTimeout,
		WriteTimeout:         DefaultWriteTimeout,
		WatchdogTimeout:      DefaultWatchdogTimeout,
		BufferSize:           DefaultBufferSize,
		CheckInterval:        10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		AckTimeout:           5 * time.Second,
		ReconnectMinDelay:    500 * time.Millisecond,
		ReconnectMaxDelay:    10 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

func (cfg *ManagerConfig) applyDefaults() {
	def := DefaultManagerConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = def.WatchdogTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.ReconnectMinDelay <= 0 {
		cfg.ReconnectMinDelay = def.ReconnectMinDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
}

// IsAuthError reports whether a transport error means the credential was
// rejected, which pauses reconnection until a fresh token arrives.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthRequired) {
		return true
	}
	return websocket.IsCloseError(err, closeCodeAuthExpired, closeCodeAuthRejected)
}

// isCleanClose reports whether the peer closed with a recognized clean
// close code; clean closes do not trigger reconnection.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
	)
}
