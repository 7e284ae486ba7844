package hub_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelican-im/messenger/src/hub"
	"github.com/pelican-im/messenger/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn implements types.Conn without a real WebSocket.
type mockConn struct {
	mu        sync.Mutex
	written   []any
	failWrite bool

	frames   chan []byte
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		frames:   make(chan []byte, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() ([]byte, error) {
	select {
	case f := <-m.frames:
		return f, nil
	case <-m.closedCh:
		return nil, errors.New("connection closed")
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errors.New("write failed")
	}
	m.written = append(m.written, v)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) setFailWrite(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = fail
}

func (m *mockConn) writtenEvents() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]any, len(m.written))
	copy(cp, m.written)
	return cp
}

// ofType filters recorded events down to one outbound event type.
func ofType[T any](events []any) []T {
	var out []T
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func newTestHub() *hub.Hub {
	return hub.New(zerolog.Nop())
}

// connectClient activates a client for the user and starts both pumps.
func connectClient(t *testing.T, h *hub.Hub, userID int64) (*hub.Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	c := hub.NewClient(conn, h)
	c.Activate(types.Identity{ID: userID, Username: fmt.Sprintf("user%d", userID)})
	go c.WritePump()
	go c.ReadPump()
	t.Cleanup(c.Close)

	// The initial connection_status event confirms the write pump is live.
	awaitEvents[types.ConnectionStatusEvent](t, conn, 1)
	return c, conn
}

// awaitEvents waits until the connection has recorded n events of type T.
func awaitEvents[T any](t *testing.T, conn *mockConn, n int) []T {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(ofType[T](conn.writtenEvents())) >= n
	}, time.Second, 5*time.Millisecond)
	return ofType[T](conn.writtenEvents())
}

func TestConnectRegistersBothViews(t *testing.T) {
	h := newTestHub()
	_, _ = connectClient(t, h, 1)

	assert.True(t, h.IsOnline(1))
	assert.Equal(t, 1, h.ConnectionCount())
	assert.Equal(t, []int64{1}, h.OnlineUsers())
}

func TestDisconnectCleansBothViews(t *testing.T) {
	h := newTestHub()
	c1, _ := connectClient(t, h, 1)
	c2, _ := connectClient(t, h, 1)

	assert.Equal(t, 2, h.UserConnectionCount(1))

	c1.Close()
	require.Eventually(t, func() bool { return h.UserConnectionCount(1) == 1 },
		time.Second, 5*time.Millisecond)
	assert.True(t, h.IsOnline(1))

	c2.Close()
	require.Eventually(t, func() bool { return !h.IsOnline(1) },
		time.Second, 5*time.Millisecond)

	// The user key is removed with its last connection, not retained empty.
	assert.Empty(t, h.OnlineUsers())
	assert.Equal(t, 0, h.ConnectionCount())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub()
	c, _ := connectClient(t, h, 7)

	c.Close()
	c.Close()
	h.Disconnect(c)

	assert.False(t, h.IsOnline(7))
	assert.Equal(t, 0, h.ConnectionCount())
	assert.Equal(t, hub.StateClosed, c.State())
}

func TestSendToUserFansOutToAllDevices(t *testing.T) {
	h := newTestHub()
	_, conn1 := connectClient(t, h, 3)
	_, conn2 := connectClient(t, h, 3)

	h.SendToUser(3, types.Typing(9, true))

	got1 := awaitEvents[types.TypingEvent](t, conn1, 1)
	got2 := awaitEvents[types.TypingEvent](t, conn2, 1)
	assert.Equal(t, int64(9), got1[0].SenderID)
	assert.Equal(t, int64(9), got2[0].SenderID)
}

func TestSendToOfflineUserIsNoOp(t *testing.T) {
	h := newTestHub()
	// Nothing registered for user 42; must not panic or block.
	h.SendToUser(42, types.Typing(1, true))
	assert.False(t, h.IsOnline(42))
}

func TestFailedWriteRemovesOnlyFailedConnection(t *testing.T) {
	h := newTestHub()
	_, good := connectClient(t, h, 5)
	_, bad := connectClient(t, h, 5)

	bad.setFailWrite(true)
	h.SendToUser(5, types.MessageRead(10, 6))

	// The healthy device still gets the event.
	got := awaitEvents[types.MessageReadEvent](t, good, 1)
	assert.Equal(t, int64(10), got[0].MessageID)

	// Exactly the failed connection is torn down.
	require.Eventually(t, func() bool { return h.UserConnectionCount(5) == 1 },
		time.Second, 5*time.Millisecond)
	assert.True(t, h.IsOnline(5))
	assert.Empty(t, ofType[types.MessageReadEvent](bad.writtenEvents()))
}

func TestShutdownClosesAllConnections(t *testing.T) {
	h := newTestHub()
	_, _ = connectClient(t, h, 1)
	_, _ = connectClient(t, h, 2)

	h.Shutdown()

	require.Eventually(t, func() bool { return h.ConnectionCount() == 0 },
		time.Second, 5*time.Millisecond)
	assert.Empty(t, h.OnlineUsers())
}

func TestConnectDisconnectCallbacks(t *testing.T) {
	h := newTestHub()

	var mu sync.Mutex
	var connected, dropped []int64
	h.OnConnect(func(id types.Identity) {
		mu.Lock()
		connected = append(connected, id.ID)
		mu.Unlock()
	})
	h.OnDisconnect(func(id types.Identity) {
		mu.Lock()
		dropped = append(dropped, id.ID)
		mu.Unlock()
	})

	c, _ := connectClient(t, h, 11)
	c.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(connected) == 1 && len(dropped) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{11}, connected)
	assert.Equal(t, []int64{11}, dropped)
}

func TestCallbackRegistrationDuringTraffic(t *testing.T) {
	h := newTestHub()

	var hits atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.OnConnect(func(types.Identity) { hits.Add(1) })
		}()
		go func(userID int64) {
			defer wg.Done()
			conn := newMockConn()
			c := hub.NewClient(conn, h)
			c.Activate(types.Identity{ID: userID})
			c.Close()
		}(int64(i))
	}
	wg.Wait()

	// A late callback sees no more registrations; an early one saw up to ten.
	before := hits.Load()
	assert.LessOrEqual(t, before, int64(100))

	connectClient(t, h, 99)
	assert.Equal(t, before+10, hits.Load())
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	h := newTestHub()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			conn := newMockConn()
			c := hub.NewClient(conn, h)
			c.Activate(types.Identity{ID: userID})
			h.SendToUser(userID, types.Typing(0, false))
			c.Close()
			c.Close()
		}(int64(i % 4))
	}
	wg.Wait()

	assert.Equal(t, 0, h.ConnectionCount())
	assert.Empty(t, h.OnlineUsers())
}
