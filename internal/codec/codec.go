// Package codec parses and serializes CVEHub realtime wire messages.
//
// The server has shipped three envelope shapes over time:
//
//	{"type": "...", "data": {...}}
//	{"event": "...", "data": {...}}
//	{"messageType": "...", ...rest}
//
// Decode accepts all three and normalizes to the first. Payload field
// names drifted between snake_case and camelCase at the same time, so
// Field looks a value up under both spellings.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well-known message types.
const (
	TypeSessionInfo        = "session_info"
	TypeConnectAck         = "connect_ack"
	TypePing               = "ping"
	TypePong               = "pong"
	TypeSubscribeAck       = "subscribe_ack"
	TypeUnsubscribeAck     = "unsubscribe_ack"
	TypeCleanupConnections = "cleanup_connections"
	TypeClientDisconnect   = "client_disconnect"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrNoType       = errors.New("message has no type")
)

// Message is the normalized wire envelope. The core routes by Type only;
// Data interpretation belongs to application handlers.
type Message struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"` // ms since epoch
}

// SubscribeType returns the outbound subscribe message type for a topic kind.
func SubscribeType(kind string) string {
	return "subscribe_" + kind
}

// UnsubscribeType returns the outbound unsubscribe message type for a topic kind.
func UnsubscribeType(kind string) string {
	return "unsubscribe_" + kind
}

// envelope keys that carry the message type, checked in order.
var typeKeys = []string{"type", "event", "messageType", "message_type"}

// Decode parses raw inbound text into a normalized Message.
func Decode(raw []byte) (Message, error) {
	if len(raw) == 0 {
		return Message{}, ErrEmptyMessage
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}

	var msgType string
	var typeKey string
	for _, k := range typeKeys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, &msgType); err == nil && msgType != "" {
			typeKey = k
			break
		}
	}
	if msgType == "" {
		return Message{}, ErrNoType
	}

	msg := Message{Type: msgType}

	if ts, ok := fields["timestamp"]; ok {
		json.Unmarshal(ts, &msg.Timestamp)
	}

	// {type|event, data} shape: payload lives under "data".
	if dataRaw, ok := fields["data"]; ok {
		var data map[string]any
		if err := json.Unmarshal(dataRaw, &data); err != nil {
			return Message{}, fmt.Errorf("parse message data: %w", err)
		}
		msg.Data = data
		return msg, nil
	}

	// {messageType, ...rest} shape: the remaining top-level fields are the payload.
	data := make(map[string]any)
	for k, v := range fields {
		if k == typeKey || k == "timestamp" {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		data[k] = val
	}
	if len(data) > 0 {
		msg.Data = data
	}
	return msg, nil
}

// Encode serializes an outbound message in the canonical {type, data} shape,
// stamping the current time if the message carries none.
func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, ErrNoType
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	return json.Marshal(msg)
}

// Field returns a payload value by its camelCase name, falling back to the
// snake_case spelling. The bool reports whether either key was present.
func Field(data map[string]any, camel string) (any, bool) {
	if data == nil {
		return nil, false
	}
	if v, ok := data[camel]; ok {
		return v, true
	}
	if v, ok := data[toSnake(camel)]; ok {
		return v, true
	}
	return nil, false
}

// StringField returns a payload string value by its camelCase name,
// tolerating the snake_case spelling. Missing or non-string values
// return "".
func StringField(data map[string]any, camel string) string {
	v, ok := Field(data, camel)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IntField returns a payload integer value by its camelCase name. JSON
// numbers decode as float64; both float64 and string digits are accepted.
func IntField(data map[string]any, camel string) int {
	v, ok := Field(data, camel)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

func toSnake(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConnectAck is the parsed payload of a connect_ack message.
type ConnectAck struct {
	SessionID             string
	ConcurrentConnections int
}

// ParseConnectAck extracts the session acknowledgment fields, tolerating
// both flat and nested connectionInfo payloads.
func ParseConnectAck(msg Message) ConnectAck {
	ack := ConnectAck{
		SessionID: StringField(msg.Data, "sessionId"),
	}
	if info, ok := Field(msg.Data, "connectionInfo"); ok {
		if m, ok := info.(map[string]any); ok {
			ack.ConcurrentConnections = IntField(m, "concurrentConnections")
		}
	} else {
		ack.ConcurrentConnections = IntField(msg.Data, "concurrentConnections")
	}
	return ack
}

// TopicAck is the parsed payload of a subscribe_ack/unsubscribe_ack message.
type TopicAck struct {
	Kind string
	ID   string
}

// ParseTopicAck extracts the topic a subscription acknowledgment refers to.
// Older servers sent {<kind>Id} instead of {topicKind, topicId}; both work
// as long as the kind is present.
func ParseTopicAck(msg Message) (TopicAck, bool) {
	ack := TopicAck{
		Kind: StringField(msg.Data, "topicKind"),
		ID:   StringField(msg.Data, "topicId"),
	}
	if ack.Kind != "" && ack.ID != "" {
		return ack, true
	}
	if ack.Kind != "" {
		if id := StringField(msg.Data, ack.Kind+"Id"); id != "" {
			ack.ID = id
			return ack, true
		}
	}
	return TopicAck{}, false
}
