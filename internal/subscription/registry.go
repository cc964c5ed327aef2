// Package subscription tracks desired versus server-acknowledged topic
// subscriptions and replays them after reconnects.
package subscription

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/hanch7274/CVEHub-sub002/internal/codec"
)

// Contract errors, rejected synchronously.
var (
	ErrNoTopicKind = errors.New("subscription: topic kind is required")
	ErrNoTopicID   = errors.New("subscription: topic id is required")
)

// ErrOffline is the sentinel a Sender wraps when no connection is up.
// The registry treats an offline send differently from a transient write
// failure on a live connection.
var ErrOffline = errors.New("subscription: transport offline")

// DesiredState is what the application wants for a topic.
type DesiredState int

const (
	Subscribed DesiredState = iota
	Unsubscribed
)

func (s DesiredState) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// AckState is what the server has confirmed.
type AckState int

const (
	Pending AckState = iota
	Confirmed
)

func (s AckState) String() string {
	if s == Confirmed {
		return "confirmed"
	}
	return "pending"
}

// Topic identifies a subscription subject, e.g. ("cve", "CVE-2024-1234").
type Topic struct {
	Kind string
	ID   string
}

// Entry is the registry's record for one topic.
type Entry struct {
	Topic   Topic
	Desired DesiredState
	Ack     AckState
}

// Sender delivers an outbound wire message. When no connection is up the
// error must wrap ErrOffline; the registry then queues the entry and
// replays it once the connection manager re-enters the connected state.
type Sender func(msg codec.Message) error

// Registry holds one entry per (kind, id) pair. Duplicate requests for the
// same pair coalesce into the existing in-flight one, so at most one wire
// message is outstanding per topic.
type Registry struct {
	logger    *slog.Logger
	send      Sender
	sessionID func() string
	onChange  func(kind string, entries []Entry)

	mu      sync.Mutex
	entries map[Topic]*Entry
}

// NewRegistry creates a registry. sessionID supplies the current logical
// session identifier stamped into every subscribe/unsubscribe message.
func NewRegistry(send Sender, sessionID func() string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionID == nil {
		sessionID = func() string { return "" }
	}
	return &Registry{
		logger:    logger,
		send:      send,
		sessionID: sessionID,
		entries:   make(map[Topic]*Entry),
	}
}

// SetOnChange registers a callback invoked after a server acknowledgment
// changes a topic's state. It receives the current entries for that kind.
func (r *Registry) SetOnChange(fn func(kind string, entries []Entry)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Subscribe requests updates for a topic. Idempotent: if the topic is
// already desired-subscribed (pending or confirmed) this is a no-op and no
// second wire message is produced.
func (r *Registry) Subscribe(kind, id string) error {
	if kind == "" {
		return ErrNoTopicKind
	}
	if id == "" {
		return ErrNoTopicID
	}

	topic := Topic{Kind: kind, ID: id}

	r.mu.Lock()
	if e, ok := r.entries[topic]; ok && e.Desired == Subscribed {
		r.mu.Unlock()
		return nil
	}
	r.entries[topic] = &Entry{Topic: topic, Desired: Subscribed, Ack: Pending}
	r.mu.Unlock()

	if err := r.send(r.subscribeMessage(topic)); err != nil {
		// Stays pending; replayed when the connection comes back.
		r.logger.Debug("subscribe queued", "kind", kind, "id", id, "reason", err)
	}
	return nil
}

// Unsubscribe mirrors Subscribe. If the connection is down the entry is
// dropped locally: a reconnect re-announces only desired subscriptions, so
// the server forgets the topic either way. A send failure on a live
// connection keeps the entry (the server still holds the subscription) and
// returns the error; the next replay reconciles it.
func (r *Registry) Unsubscribe(kind, id string) error {
	if kind == "" {
		return ErrNoTopicKind
	}
	if id == "" {
		return ErrNoTopicID
	}

	topic := Topic{Kind: kind, ID: id}

	r.mu.Lock()
	e, ok := r.entries[topic]
	if !ok || e.Desired == Unsubscribed {
		r.mu.Unlock()
		return nil
	}
	e.Desired = Unsubscribed
	e.Ack = Pending
	r.mu.Unlock()

	if err := r.send(r.unsubscribeMessage(topic)); err != nil {
		if !errors.Is(err, ErrOffline) {
			r.logger.Warn("unsubscribe send failed, entry retained",
				"kind", kind, "id", id, "error", err)
			return err
		}
		r.logger.Debug("unsubscribe while disconnected, dropping entry",
			"kind", kind, "id", id, "reason", err)
		r.mu.Lock()
		delete(r.entries, topic)
		r.mu.Unlock()
	}
	return nil
}

// HandleAck processes a server acknowledgment for a topic. subscribed
// distinguishes subscribe_ack from unsubscribe_ack.
func (r *Registry) HandleAck(ack codec.TopicAck, subscribed bool) {
	topic := Topic{Kind: ack.Kind, ID: ack.ID}

	r.mu.Lock()
	e, ok := r.entries[topic]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("ack for unknown topic", "kind", ack.Kind, "id", ack.ID)
		return
	}

	if subscribed {
		if e.Desired == Subscribed {
			e.Ack = Confirmed
		}
	} else {
		if e.Desired == Unsubscribed {
			delete(r.entries, topic)
		}
	}

	onChange := r.onChange
	var entries []Entry
	if onChange != nil {
		entries = r.entriesForKindLocked(ack.Kind)
	}
	r.mu.Unlock()

	if onChange != nil {
		onChange(ack.Kind, entries)
	}
}

// Replay re-sends subscribe requests for every desired subscription,
// regardless of prior ack state: after any connection loss the server is
// the source of truth and must be told again. Entries left mid-unsubscribe
// are dropped. Called after the post-reconnect session handshake completes.
func (r *Registry) Replay() {
	r.mu.Lock()
	var msgs []codec.Message
	for topic, e := range r.entries {
		if e.Desired != Subscribed {
			delete(r.entries, topic)
			continue
		}
		e.Ack = Pending
		msgs = append(msgs, r.subscribeMessage(topic))
	}
	r.mu.Unlock()

	for _, msg := range msgs {
		if err := r.send(msg); err != nil {
			r.logger.Warn("subscription replay failed", "type", msg.Type, "error", err)
		}
	}
	if len(msgs) > 0 {
		r.logger.Info("replayed subscriptions", "count", len(msgs))
	}
}

// Confirmed reports whether the server has acknowledged a subscription.
func (r *Registry) Confirmed(kind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[Topic{Kind: kind, ID: id}]
	return ok && e.Desired == Subscribed && e.Ack == Confirmed
}

// Entries returns a snapshot of all registry entries.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}

func (r *Registry) entriesForKindLocked(kind string) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Topic.Kind == kind {
			out = append(out, *e)
		}
	}
	return out
}

func (r *Registry) subscribeMessage(topic Topic) codec.Message {
	return codec.Message{
		Type: codec.SubscribeType(topic.Kind),
		Data: map[string]any{
			topic.Kind + "Id": topic.ID,
			"sessionId":       r.sessionID(),
		},
	}
}

func (r *Registry) unsubscribeMessage(topic Topic) codec.Message {
	return codec.Message{
		Type: codec.UnsubscribeType(topic.Kind),
		Data: map[string]any{
			topic.Kind + "Id": topic.ID,
			"sessionId":       r.sessionID(),
		},
	}
}
