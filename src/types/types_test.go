package types_test

import (
	"encoding/json"
	"testing"

	"github.com/pelican-im/messenger/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundEventWireShapes(t *testing.T) {
	tests := []struct {
		name  string
		event any
		want  string
	}{
		{
			"pong passes the timestamp through opaquely",
			types.Pong(json.RawMessage(`{"t":1}`)),
			`{"type":"pong","timestamp":{"t":1}}`,
		},
		{
			"typing",
			types.Typing(7, true),
			`{"type":"typing","sender_id":7,"is_typing":true}`,
		},
		{
			"message_read",
			types.MessageRead(42, 7),
			`{"type":"message_read","message_id":42,"reader_id":7}`,
		},
		{
			"online_status keys are stringified ids",
			types.OnlineStatus(map[int64]bool{3: true}),
			`{"type":"online_status","users":{"3":true}}`,
		},
		{
			"connection_status",
			types.Connected(),
			`{"type":"connection_status","status":"connected","message":"Successfully connected to WebSocket"}`,
		},
		{
			"error",
			types.Error("Invalid JSON format"),
			`{"type":"error","message":"Invalid JSON format"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestClientEventDefaults(t *testing.T) {
	var ev types.ClientEvent
	require.NoError(t, json.Unmarshal([]byte(`{"type":"typing","recipient_id":5}`), &ev))

	assert.Equal(t, types.EventTyping, ev.Type)
	assert.Equal(t, int64(5), ev.RecipientID)
	// is_typing defaults to false when absent.
	assert.False(t, ev.IsTyping)
}
