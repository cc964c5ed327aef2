package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hanch7274/CVEHub-sub002/internal/auth"
	"github.com/hanch7274/CVEHub-sub002/internal/backoff"
	"github.com/hanch7274/CVEHub-sub002/internal/bus"
	"github.com/hanch7274/CVEHub-sub002/internal/codec"
	"github.com/hanch7274/CVEHub-sub002/internal/keepalive"
	"github.com/hanch7274/CVEHub-sub002/internal/session"
	"github.com/hanch7274/CVEHub-sub002/internal/subscription"
)

// Dialer builds a transport. Swappable in tests.
type Dialer func(cfg ClientConfig, logger *slog.Logger) Client

// Manager is the realtime session client's state machine. It owns the
// transport handle and drives the session tracker, subscription registry,
// keepalive monitor, and reconnection scheduler. All inbound messages are
// decoded and published on the event bus under their type and the
// catch-all channel.
type Manager struct {
	cfg    ManagerConfig
	tokens auth.TokenSource
	logger *slog.Logger

	events    *bus.Bus
	tracker   *session.Tracker
	registry  *subscription.Registry
	scheduler *backoff.Scheduler
	monitor   *keepalive.Monitor
	dial      Dialer

	tokenUnsub func()

	mu             sync.Mutex
	state          State
	client         Client
	epoch          uint64 // bumps on every connect/disconnect; stale callbacks check it
	dialCancel     context.CancelFunc
	reconnectTimer *time.Timer
	authPaused     bool
}

// pendingEvent defers bus publishes until the state lock is released.
type pendingEvent struct {
	typ  string
	data any
}

// NewManager creates a connection manager. The token source supplies the
// bearer credential; a refresh notification resumes reconnection after an
// authentication failure.
func NewManager(cfg ManagerConfig, tokens auth.TokenSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	if tokens == nil {
		tokens = auth.StaticToken("")
	}

	m := &Manager{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
		events: bus.New(logger),
		tracker: session.NewTracker(
			cfg.AckTimeout, cfg.UserAgent, cfg.Path, logger,
		),
		scheduler: backoff.New(
			cfg.ReconnectMinDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts,
		),
		state: Disconnected,
		dial:  NewClient,
	}
	m.registry = subscription.NewRegistry(m.registrySend, m.tracker.ID, logger)
	m.registry.SetOnChange(func(kind string, entries []subscription.Entry) {
		m.events.Publish(EventSubscriptions, entries)
	})
	m.monitor = keepalive.NewMonitor(
		cfg.CheckInterval, cfg.HeartbeatInterval, m.sendPing, logger,
	)
	m.tokenUnsub = tokens.OnRefresh(m.onTokenRefreshed)

	return m
}

// State returns a read-only snapshot of the connection state.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// On registers a handler for an event type (a wire message type,
// EventStateChanged, EventError, or the bus wildcard) and returns its
// unsubscribe function.
func (m *Manager) On(eventType string, h bus.Handler) func() {
	return m.events.Subscribe(eventType, h)
}

// Subscribe requests updates for a topic, e.g. ("cve", "CVE-2024-1234").
// Safe to call while disconnected; the request is replayed once connected.
func (m *Manager) Subscribe(kind, id string) error {
	return m.registry.Subscribe(kind, id)
}

// Unsubscribe stops updates for a topic.
func (m *Manager) Unsubscribe(kind, id string) error {
	return m.registry.Unsubscribe(kind, id)
}

// Subscriptions returns a snapshot of the subscription registry.
func (m *Manager) Subscriptions() []subscription.Entry {
	return m.registry.Entries()
}

// Send writes a message to the server. Fails with ErrNotConnected unless
// the manager is in the Connected state.
func (m *Manager) Send(msgType string, data map[string]any) error {
	return m.sendMessage(codec.Message{Type: msgType, Data: data})
}

// Connect opens the realtime connection. Idempotent: calling while already
// Connecting or Connected is a no-op. An explicit Connect also restarts a
// terminally Failed client.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.state == Connecting || m.state == Connected {
		m.mu.Unlock()
		return nil
	}
	m.scheduler.Reset()
	m.authPaused = false
	pend := m.startConnectLocked()
	m.mu.Unlock()

	m.publish(pend)
	return nil
}

// Disconnect closes the connection on the application's request and never
// triggers reconnection. graceful additionally notifies the server of the
// intentional departure before closing. The logical session is invalidated
// and regenerated.
func (m *Manager) Disconnect(graceful bool) {
	m.mu.Lock()
	m.cancelTimersLocked()
	m.epoch++ // invalidate in-flight callbacks before the transport closes
	client := m.client
	m.client = nil
	wasConnected := m.state == Connected
	m.state = Disconnected
	m.scheduler.Reset()
	m.authPaused = false
	sessionID := m.tracker.ID()
	pend := []pendingEvent{{EventStateChanged, m.snapshotLocked()}}
	m.mu.Unlock()

	m.monitor.Stop()
	m.tracker.EndConnection()

	if client != nil {
		if graceful && wasConnected {
			m.notifyDeparture(client, sessionID)
		}
		client.Close()
	}

	m.tracker.Regenerate()
	m.publish(pend)
	m.logger.Info("disconnected", "graceful", graceful)
}

// Shutdown is the page-unload analogue: a best-effort synchronous
// departure notification followed by teardown. An already-cancelled
// context skips the notification; the write itself is bounded by the
// transport's write deadline, not the context. Teardown always completes.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		m.Disconnect(false)
		return err
	}
	m.Disconnect(true)
	m.tokenUnsub()
	return nil
}

// notifyDeparture writes client_disconnect directly to the transport; the
// manager state is already Disconnected at this point.
func (m *Manager) notifyDeparture(client Client, sessionID string) {
	raw, err := codec.Encode(codec.Message{
		Type: codec.TypeClientDisconnect,
		Data: map[string]any{"sessionId": sessionID},
	})
	if err == nil {
		if err := client.Send(raw); err != nil {
			m.logger.Debug("departure notification failed", "error", err)
		}
	}
}

// startConnectLocked transitions to Connecting and begins the dial. Caller
// holds mu and publishes the returned events after unlocking.
func (m *Manager) startConnectLocked() []pendingEvent {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	token := m.tokens.Token()
	if token == "" {
		m.authPaused = true
		m.state = Failed
		m.logger.Warn("no credential available, connection paused")
		return []pendingEvent{
			{EventError, ErrAuthRequired},
			{EventStateChanged, m.snapshotLocked()},
		}
	}

	m.epoch++
	epoch := m.epoch
	m.state = Connecting

	client := m.dial(ClientConfig{
		URL:              m.cfg.URL,
		Token:            token,
		HandshakeTimeout: m.cfg.OpenTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		WatchdogTimeout:  m.cfg.WatchdogTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, m.logger.With("epoch", epoch))
	m.client = client

	dialCtx, cancel := context.WithTimeout(context.Background(), m.cfg.OpenTimeout)
	m.dialCancel = cancel

	go m.runDial(epoch, client, dialCtx, cancel)

	m.logger.Info("connecting", "url", m.cfg.URL, "attempt", m.scheduler.Attempts())
	return []pendingEvent{{EventStateChanged, m.snapshotLocked()}}
}

// runDial performs the transport open off the caller's goroutine.
func (m *Manager) runDial(epoch uint64, client Client, ctx context.Context, cancel context.CancelFunc) {
	err := client.Connect(ctx)
	cancel()

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		client.Close()
		return
	}
	m.dialCancel = nil

	if err != nil {
		pend := m.openFailedLocked(err)
		m.mu.Unlock()
		m.publish(pend)
		return
	}

	m.state = Connected
	m.monitor.Start()
	m.tracker.BeginConnection(func() { m.onSessionReady(epoch) })
	pend := []pendingEvent{{EventStateChanged, m.snapshotLocked()}}
	m.mu.Unlock()

	m.publish(pend)

	// Announce the session before anything else flows on this connection.
	if err := m.sendMessage(m.tracker.AnnounceMessage()); err != nil {
		m.logger.Warn("session announce failed", "error", err)
	}

	go m.readLoop(epoch, client)
}

// openFailedLocked handles a dial error: Connecting → Failed, then either
// pause (auth), retry, or stay terminally Failed.
func (m *Manager) openFailedLocked(err error) []pendingEvent {
	m.client = nil
	m.state = Failed
	m.logger.Warn("connection open failed", "error", err)

	pend := []pendingEvent{{EventError, err}}

	if IsAuthError(err) {
		m.authPaused = true
		return append(pend, pendingEvent{EventStateChanged, m.snapshotLocked()})
	}

	pend = append(pend, pendingEvent{EventStateChanged, m.snapshotLocked()})
	return append(pend, m.scheduleRetryLocked()...)
}

// scheduleRetryLocked records the failure and either arms the reconnect
// timer (→ Reconnecting) or declares the episode over (→ Failed).
func (m *Manager) scheduleRetryLocked() []pendingEvent {
	if m.cfg.DisableReconnect {
		m.state = Failed
		return []pendingEvent{{EventStateChanged, m.snapshotLocked()}}
	}

	attempt := m.scheduler.Fail()
	if m.scheduler.Exhausted() {
		m.state = Failed
		err := fmt.Errorf("%w: %d attempts", ErrRetriesExhausted, m.scheduler.Attempts())
		m.logger.Error("reconnect ceiling reached", "attempts", m.scheduler.Attempts())
		return []pendingEvent{
			{EventError, err},
			{EventStateChanged, m.snapshotLocked()},
		}
	}

	m.state = Reconnecting
	delay := m.scheduler.Delay(attempt)
	m.reconnectTimer = time.AfterFunc(delay, m.onReconnectTimer)
	m.logger.Info("reconnect scheduled", "attempt", attempt+1, "delay", delay)
	return []pendingEvent{{EventStateChanged, m.snapshotLocked()}}
}

// onReconnectTimer fires when the scheduler delay elapses.
func (m *Manager) onReconnectTimer() {
	m.mu.Lock()
	if m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	pend := m.startConnectLocked()
	m.mu.Unlock()
	m.publish(pend)
}

// onSessionReady runs once per connection, on connect_ack or ack timeout.
// Order is a strict invariant: session announced, then ready, then
// subscription replay.
func (m *Manager) onSessionReady(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.scheduler.Reset()
	pend := []pendingEvent{{EventStateChanged, m.snapshotLocked()}}
	m.mu.Unlock()

	m.registry.Replay()
	m.publish(pend)
}

// readLoop consumes frames and errors from one transport until it dies or
// is superseded.
func (m *Manager) readLoop(epoch uint64, client Client) {
	for {
		select {
		case <-client.Done():
			// Closed locally; Disconnect already handled the state change.
			return

		case err := <-client.Errors():
			m.handleTransportError(epoch, err)
			return

		case raw, ok := <-client.Messages():
			if !ok {
				m.handleTransportError(epoch, errTransportClosed)
				return
			}
			m.handleRaw(epoch, raw)
		}
	}
}

// handleRaw decodes and dispatches one inbound frame. Unparseable payloads
// are logged and dropped; they never affect the connection.
func (m *Manager) handleRaw(epoch uint64, raw []byte) {
	m.monitor.Touch()

	msg, err := codec.Decode(raw)
	if err != nil {
		m.logger.Warn("dropping malformed message", "error", err, "bytes", len(raw))
		return
	}

	switch msg.Type {
	case codec.TypeConnectAck:
		m.handleConnectAck(epoch, msg)

	case codec.TypePing:
		// Server-initiated probe; echo its timestamp back.
		m.Send(codec.TypePong, map[string]any{"echo": msg.Timestamp})

	case codec.TypePong:
		echo := codec.IntField(msg.Data, "echo")
		if echo > 0 {
			m.logger.Debug("pong received",
				"rtt_ms", time.Now().UnixMilli()-int64(echo))
		}

	case codec.TypeSubscribeAck, codec.TypeUnsubscribeAck:
		if ack, ok := codec.ParseTopicAck(msg); ok {
			m.registry.HandleAck(ack, msg.Type == codec.TypeSubscribeAck)
		} else {
			m.logger.Warn("subscription ack without topic", "type", msg.Type)
		}
	}

	// Everything, control traffic included, reaches the bus: typed channel
	// plus the catch-all.
	m.events.Publish(msg.Type, msg)
}

// handleConnectAck applies the server's session acknowledgment.
func (m *Manager) handleConnectAck(epoch uint64, msg codec.Message) {
	m.mu.Lock()
	stale := epoch != m.epoch
	m.mu.Unlock()
	if stale {
		return
	}

	ack := codec.ParseConnectAck(msg)
	first := m.tracker.HandleAck(ack)

	if first && ack.ConcurrentConnections > 1 {
		// A stale tab or orphaned prior connection still holds a slot;
		// ask the server to drop it so updates stop fanning out to it.
		m.logger.Warn("concurrent connections detected, requesting cleanup",
			"count", ack.ConcurrentConnections)
		if err := m.Send(codec.TypeCleanupConnections, map[string]any{
			"sessionId": m.tracker.ID(),
		}); err != nil {
			m.logger.Warn("cleanup request failed", "error", err)
		}
	}
}

// handleTransportError reacts to a dead transport: reconnect on abnormal
// closes, pause on credential rejection, stop cleanly otherwise.
func (m *Manager) handleTransportError(epoch uint64, err error) {
	m.mu.Lock()
	if epoch != m.epoch {
		// A newer connection (or a user disconnect) superseded this one.
		m.mu.Unlock()
		return
	}
	m.epoch++
	client := m.client
	m.client = nil
	m.cancelTimersLocked()

	var pend []pendingEvent
	switch {
	case IsAuthError(err):
		m.authPaused = true
		m.state = Failed
		m.logger.Warn("credential rejected, awaiting token refresh", "error", err)
		pend = []pendingEvent{
			{EventError, fmt.Errorf("%w: %v", ErrAuthRequired, err)},
			{EventStateChanged, m.snapshotLocked()},
		}

	case isCleanClose(err):
		m.state = Disconnected
		m.logger.Info("server closed connection cleanly", "error", err)
		pend = []pendingEvent{{EventStateChanged, m.snapshotLocked()}}

	default:
		m.state = Reconnecting
		m.logger.Warn("connection lost", "error", err)
		pend = []pendingEvent{{EventStateChanged, m.snapshotLocked()}}
		pend = append(pend, m.scheduleRetryLocked()...)
	}
	m.mu.Unlock()

	m.monitor.Stop()
	m.tracker.EndConnection()
	if client != nil {
		client.Close()
	}
	m.publish(pend)
}

// onTokenRefreshed resumes a connection paused on an authentication error.
func (m *Manager) onTokenRefreshed(string) {
	m.mu.Lock()
	if !m.authPaused {
		m.mu.Unlock()
		return
	}
	m.authPaused = false
	m.scheduler.Reset()
	m.logger.Info("credential refreshed, resuming connection")
	pend := m.startConnectLocked()
	m.mu.Unlock()
	m.publish(pend)
}

// sendMessage serializes and writes a message if Connected.
func (m *Manager) sendMessage(msg codec.Message) error {
	m.mu.Lock()
	if m.state != Connected || m.client == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	client := m.client
	m.mu.Unlock()

	raw, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	return client.Send(raw)
}

// registrySend adapts sendMessage to the registry's sender contract: a
// not-connected failure is marked offline so the registry queues instead
// of treating it as a live-connection write error.
func (m *Manager) registrySend(msg codec.Message) error {
	err := m.sendMessage(msg)
	if errors.Is(err, ErrNotConnected) {
		return fmt.Errorf("%w: %v", subscription.ErrOffline, err)
	}
	return err
}

// sendPing is the keepalive probe. A failed ping is only logged; dead
// links surface through the transport watchdog.
func (m *Manager) sendPing() {
	err := m.sendMessage(codec.Message{
		Type: codec.TypePing,
		Data: map[string]any{
			"timestamp": time.Now().UnixMilli(),
			"sessionId": m.tracker.ID(),
		},
	})
	if err != nil {
		m.logger.Debug("ping send failed", "error", err)
	}
}

// cancelTimersLocked stops the open-dial and reconnect timers.
func (m *Manager) cancelTimersLocked() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:     m.state,
		Connected: m.state == Connected,
		Ready:     m.state == Connected && m.tracker.Ready(),
		Attempts:  m.scheduler.Attempts(),
		SessionID: m.tracker.ID(),
	}
}

// publish flushes events collected under the state lock.
func (m *Manager) publish(pend []pendingEvent) {
	for _, e := range pend {
		m.events.Publish(e.typ, e.data)
	}
}
