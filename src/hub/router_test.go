package hub_test

import (
	"testing"
	"time"

	"github.com/pelican-im/messenger/src/hub"
	"github.com/pelican-im/messenger/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypingFansOutToRecipientDevices(t *testing.T) {
	h := newTestHub()
	sender, senderConn := connectClient(t, h, 1)
	_, recipConn1 := connectClient(t, h, 2)
	_, recipConn2 := connectClient(t, h, 2)

	h.Route(sender.Identity(), []byte(`{"type":"typing","recipient_id":2,"is_typing":true}`), sender)

	for _, conn := range []*mockConn{recipConn1, recipConn2} {
		got := awaitEvents[types.TypingEvent](t, conn, 1)
		assert.Equal(t, int64(1), got[0].SenderID)
		assert.True(t, got[0].IsTyping)
	}

	// The sender's own connection receives nothing.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ofType[types.TypingEvent](senderConn.writtenEvents()))
}

func TestPingEchoesToAllSenderDevices(t *testing.T) {
	h := newTestHub()
	sender, conn1 := connectClient(t, h, 1)
	_, conn2 := connectClient(t, h, 1)

	h.Route(sender.Identity(), []byte(`{"type":"ping","timestamp":123}`), sender)

	for _, conn := range []*mockConn{conn1, conn2} {
		got := awaitEvents[types.PongEvent](t, conn, 1)
		assert.Equal(t, "123", string(got[0].Timestamp))
	}
}

func TestMessageReadRoutedToRecipient(t *testing.T) {
	h := newTestHub()
	sender, _ := connectClient(t, h, 4)
	_, recipConn := connectClient(t, h, 8)

	h.Route(sender.Identity(), []byte(`{"type":"message_read","recipient_id":8,"message_id":77}`), sender)

	got := awaitEvents[types.MessageReadEvent](t, recipConn, 1)
	assert.Equal(t, int64(77), got[0].MessageID)
	assert.Equal(t, int64(4), got[0].ReaderID)
}

func TestMessageReadMissingFieldsDroppedSilently(t *testing.T) {
	h := newTestHub()
	sender, senderConn := connectClient(t, h, 1)
	_, recipConn := connectClient(t, h, 2)

	h.Route(sender.Identity(), []byte(`{"type":"message_read"}`), sender)
	h.Route(sender.Identity(), []byte(`{"type":"message_read","recipient_id":2}`), sender)
	h.Route(sender.Identity(), []byte(`{"type":"message_read","message_id":5}`), sender)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ofType[types.MessageReadEvent](recipConn.writtenEvents()))
	// No error reply either: tolerated, not surfaced.
	assert.Empty(t, ofType[types.ErrorEvent](senderConn.writtenEvents()))
}

func TestTypingMissingRecipientDroppedSilently(t *testing.T) {
	h := newTestHub()
	sender, senderConn := connectClient(t, h, 1)

	h.Route(sender.Identity(), []byte(`{"type":"typing","is_typing":true}`), sender)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, ofType[types.ErrorEvent](senderConn.writtenEvents()))
}

func TestMalformedFrameYieldsErrorAndKeepsConnection(t *testing.T) {
	h := newTestHub()
	sender, conn := connectClient(t, h, 1)

	h.Route(sender.Identity(), []byte(`not json at all`), sender)

	got := awaitEvents[types.ErrorEvent](t, conn, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Invalid JSON format", got[0].Message)
	assert.Equal(t, hub.StateActive, sender.State())

	// Still active: the next well-formed frame is processed.
	h.Route(sender.Identity(), []byte(`{"type":"ping","timestamp":1}`), sender)
	awaitEvents[types.PongEvent](t, conn, 1)
}

func TestUnknownTypeYieldsError(t *testing.T) {
	h := newTestHub()
	sender, conn := connectClient(t, h, 1)

	h.Route(sender.Identity(), []byte(`{"type":"dance"}`), sender)

	got := awaitEvents[types.ErrorEvent](t, conn, 1)
	assert.Equal(t, "Unknown message type: dance", got[0].Message)
	assert.Equal(t, hub.StateActive, sender.State())
}

func TestGetOnlineStatus(t *testing.T) {
	h := newTestHub()
	sender, conn := connectClient(t, h, 1)
	_, _ = connectClient(t, h, 2) // user 2 online; user 3 is not

	h.Route(sender.Identity(), []byte(`{"type":"get_online_status","user_ids":[2,3]}`), sender)

	got := awaitEvents[types.OnlineStatusEvent](t, conn, 1)
	assert.Equal(t, map[int64]bool{2: true, 3: false}, got[0].Users)
}

func TestFramesRoutedThroughReadPump(t *testing.T) {
	h := newTestHub()
	_, conn := connectClient(t, h, 1)

	conn.frames <- []byte(`{"type":"ping","timestamp":"t1"}`)
	conn.frames <- []byte(`garbage`)
	conn.frames <- []byte(`{"type":"ping","timestamp":"t2"}`)

	// Per-connection frames are processed in arrival order, and the
	// malformed one in the middle does not kill the connection.
	pongs := awaitEvents[types.PongEvent](t, conn, 2)
	assert.Equal(t, `"t1"`, string(pongs[0].Timestamp))
	assert.Equal(t, `"t2"`, string(pongs[1].Timestamp))

	errs := ofType[types.ErrorEvent](conn.writtenEvents())
	require.Len(t, errs, 1)
	assert.Equal(t, "Invalid JSON format", errs[0].Message)
}
