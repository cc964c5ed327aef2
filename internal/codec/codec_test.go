package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Shapes(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		wantData map[string]any
	}{
		{
			name:     "canonical type/data",
			raw:      `{"type":"cve_updated","data":{"cveId":"CVE-2024-1234"}}`,
			wantType: "cve_updated",
			wantData: map[string]any{"cveId": "CVE-2024-1234"},
		},
		{
			name:     "legacy event/data",
			raw:      `{"event":"cve_updated","data":{"cveId":"CVE-2024-1234"}}`,
			wantType: "cve_updated",
			wantData: map[string]any{"cveId": "CVE-2024-1234"},
		},
		{
			name:     "legacy flat messageType",
			raw:      `{"messageType":"cve_updated","cveId":"CVE-2024-1234"}`,
			wantType: "cve_updated",
			wantData: map[string]any{"cveId": "CVE-2024-1234"},
		},
		{
			name:     "snake_case message_type",
			raw:      `{"message_type":"pong","echo":1700000000000}`,
			wantType: "pong",
			wantData: map[string]any{"echo": float64(1700000000000)},
		},
		{
			name:     "no payload",
			raw:      `{"type":"pong"}`,
			wantType: "pong",
			wantData: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
			assert.Equal(t, tt.wantData, msg.Data)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "hello there"},
		{"json array", `[1,2,3]`},
		{"missing type", `{"data":{"cveId":"CVE-2024-1234"}}`},
		{"non-string type", `{"type":42}`},
		{"truncated", `{"type":"cve_upd`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestDecode_Timestamp(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"ping","timestamp":1700000000000,"data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), msg.Timestamp)
}

func TestEncode(t *testing.T) {
	raw, err := Encode(Message{
		Type: TypeSessionInfo,
		Data: map[string]any{"sessionId": "abc"},
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "session_info", out["type"])
	assert.NotZero(t, out["timestamp"], "Encode should stamp the current time")

	_, err = Encode(Message{})
	assert.ErrorIs(t, err, ErrNoType)
}

func TestEncode_RoundTrip(t *testing.T) {
	raw, err := Encode(Message{
		Type:      TypePing,
		Data:      map[string]any{"sessionId": "s-1"},
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)

	msg, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypePing, msg.Type)
	assert.Equal(t, "s-1", StringField(msg.Data, "sessionId"))
	assert.Equal(t, int64(1700000000000), msg.Timestamp)
}

func TestField_CasingFallback(t *testing.T) {
	data := map[string]any{"session_id": "snake", "topicKind": "cve"}

	assert.Equal(t, "snake", StringField(data, "sessionId"))
	assert.Equal(t, "cve", StringField(data, "topicKind"))
	assert.Equal(t, "", StringField(data, "missing"))
	assert.Equal(t, "", StringField(nil, "sessionId"))
}

func TestIntField_Representations(t *testing.T) {
	data := map[string]any{
		"asFloat":  float64(7),
		"asInt":    3,
		"asString": "42",
		"asJunk":   "not a number",
		"as_snake": float64(9),
	}

	assert.Equal(t, 7, IntField(data, "asFloat"))
	assert.Equal(t, 3, IntField(data, "asInt"))
	assert.Equal(t, 42, IntField(data, "asString"))
	assert.Equal(t, 0, IntField(data, "asJunk"))
	assert.Equal(t, 9, IntField(data, "asSnake"))
	assert.Equal(t, 0, IntField(data, "missing"))
}

func TestParseConnectAck(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"connect_ack","data":{"sessionId":"srv-1","connectionInfo":{"concurrentConnections":2}}}`))
	require.NoError(t, err)

	ack := ParseConnectAck(msg)
	assert.Equal(t, "srv-1", ack.SessionID)
	assert.Equal(t, 2, ack.ConcurrentConnections)

	// Flat legacy payload.
	msg, err = Decode([]byte(`{"type":"connect_ack","data":{"session_id":"srv-2","concurrent_connections":1}}`))
	require.NoError(t, err)

	ack = ParseConnectAck(msg)
	assert.Equal(t, "srv-2", ack.SessionID)
	assert.Equal(t, 1, ack.ConcurrentConnections)
}

func TestParseTopicAck(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"subscribe_ack","data":{"topicKind":"cve","topicId":"CVE-2024-1234"}}`))
	require.NoError(t, err)

	ack, ok := ParseTopicAck(msg)
	require.True(t, ok)
	assert.Equal(t, "cve", ack.Kind)
	assert.Equal(t, "CVE-2024-1234", ack.ID)

	// Older servers: {topicKind, <kind>Id}.
	msg, err = Decode([]byte(`{"type":"subscribe_ack","data":{"topicKind":"cve","cveId":"CVE-2024-5678"}}`))
	require.NoError(t, err)

	ack, ok = ParseTopicAck(msg)
	require.True(t, ok)
	assert.Equal(t, "CVE-2024-5678", ack.ID)

	// Unidentifiable topic.
	msg, err = Decode([]byte(`{"type":"subscribe_ack","data":{"other":"x"}}`))
	require.NoError(t, err)

	_, ok = ParseTopicAck(msg)
	assert.False(t, ok)
}

func TestSubscribeType(t *testing.T) {
	assert.Equal(t, "subscribe_cve", SubscribeType("cve"))
	assert.Equal(t, "unsubscribe_cve", UnsubscribeType("cve"))
}
