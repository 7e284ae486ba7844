package hub

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pelican-im/messenger/src/types"
)

// State is the lifecycle phase of a single connection.
type State int32

const (
	// StateAuthenticating: transport accepted, credential not yet verified.
	StateAuthenticating State = iota
	// StateActive: identity resolved, registered with the hub, exchanging frames.
	StateActive
	// StateClosed: terminal. No transition leaves it.
	StateClosed
)

const sendBufferSize = 256

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

// Client wraps one WebSocket connection and drives it through its lifecycle.
// A user may own any number of concurrent clients (multi-device); each client
// belongs to exactly one user once activated.
type Client struct {
	conn     types.Conn
	hub      *Hub
	identity types.Identity

	send      chan any
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
}

// NewClient creates a client in the Authenticating state. The caller must
// either Activate it after resolving the credential or Close it.
func NewClient(conn types.Conn, h *Hub) *Client {
	return &Client{
		conn: conn,
		hub:  h,
		send: make(chan any, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Identity returns the user bound to this connection. Valid only after
// Activate.
func (c *Client) Identity() types.Identity {
	return c.identity
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Activate transitions Authenticating -> Active: binds the resolved identity,
// registers with the hub, and queues the initial connection_status event for
// this connection only. Call before starting the pumps.
func (c *Client) Activate(id types.Identity) {
	c.identity = id
	c.state.Store(int32(StateActive))
	c.hub.Connect(c)
	c.hub.SendToConnection(c, types.Connected())
}

// Close transitions to Closed and runs cleanup exactly once, no matter how
// many failure paths race to call it. Disconnect on an unregistered client
// is a no-op, so closing from the Authenticating state is safe.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
		_ = c.conn.Close()
		c.hub.Disconnect(c)
	})
}

// ReadPump reads inbound frames and hands them to the router in arrival
// order. It blocks until the transport fails or the client closes, then
// invokes cleanup. Runs on the connection's own goroutine.
func (c *Client) ReadPump() {
	defer c.Close()

	for {
		frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.State() != StateActive {
			return
		}
		c.hub.Route(c.identity, frame, c)
	}
}

// WritePump drains the send queue onto the transport. A write failure is
// fatal for this connection only.
func (c *Client) WritePump() {
	for {
		select {
		case event := <-c.send:
			if err := c.conn.WriteJSON(event); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue hands an event to the write pump without blocking. A full buffer
// counts as a write that cannot complete: the caller tears the connection
// down rather than retrying.
func (c *Client) enqueue(event any) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	select {
	case c.send <- event:
		return nil
	default:
		return errSendBufferFull
	}
}
