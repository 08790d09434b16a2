package simid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionID(t *testing.T) {
	a := CreateSessionID()
	b := CreateSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want *Message
	}{
		{
			name: "minimal resolve",
			raw:  map[string]any{"sessionId": "s", "messageId": 1, "timestamp": 123, "type": "resolve"},
			want: &Message{SessionID: "s", MessageID: 1, Timestamp: 123, Type: "resolve"},
		},
		{
			name: "json numbers",
			raw: map[string]any{
				"sessionId": "s", "messageId": float64(7), "timestamp": float64(1700000000000),
				"type": "SIMID:Creative:log", "args": map[string]any{"message": "hi"},
			},
			want: &Message{
				SessionID: "s", MessageID: 7, Timestamp: 1700000000000,
				Type: "SIMID:Creative:log", Args: map[string]any{"message": "hi"},
			},
		},
		{
			name: "json text",
			raw:  `{"sessionId":"s","messageId":2,"timestamp":5,"type":"reject","args":{"messageId":1}}`,
			want: &Message{SessionID: "s", MessageID: 2, Timestamp: 5, Type: "reject", Args: map[string]any{"messageId": float64(1)}},
		},
		{
			name: "wrong session type",
			raw:  map[string]any{"sessionId": 123},
		},
		{
			name: "session id is a number",
			raw:  map[string]any{"sessionId": 123, "messageId": 1, "timestamp": 1, "type": "resolve"},
		},
		{
			name: "messageId is a string",
			raw:  map[string]any{"sessionId": "s", "messageId": "1", "timestamp": 1, "type": "resolve"},
		},
		{
			name: "missing timestamp",
			raw:  map[string]any{"sessionId": "s", "messageId": 1, "type": "resolve"},
		},
		{
			name: "empty type",
			raw:  map[string]any{"sessionId": "s", "messageId": 1, "timestamp": 1, "type": ""},
		},
		{
			name: "args is not an object",
			raw:  map[string]any{"sessionId": "s", "messageId": 1, "timestamp": 1, "type": "resolve", "args": "x"},
		},
		{name: "nil", raw: nil},
		{name: "number", raw: 42},
		{name: "invalid json", raw: []byte("{")},
		{name: "json array", raw: "[1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Message
			require.NotPanics(t, func() { got = ParseMessage(tt.raw) })
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMessage_Struct(t *testing.T) {
	m := NewMessage("s", 3, PlayerInit, nil)
	got := ParseMessage(m)
	require.NotNil(t, got)
	assert.Equal(t, *m, *got)
	assert.NotSame(t, m, got)
	assert.Positive(t, m.Timestamp)

	assert.Nil(t, ParseMessage((*Message)(nil)))
}
