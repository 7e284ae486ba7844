package hub

import (
	"slices"
	"sync"

	"github.com/pelican-im/messenger/src/types"
	"github.com/rs/zerolog"
)

// Hub is the session registry: it tracks which users are reachable over a
// live connection and fans events out to all of a user's devices.
//
// Two views are kept over the same set of clients. sessions answers "which
// connections belong to this user" for fan-out; owners answers "which user
// owns this dying connection" for cleanup. A client is present in one view
// exactly when it is present in the other, and a user id keys sessions only
// while its set is non-empty.
type Hub struct {
	sessions map[int64]map[*Client]struct{}
	owners   map[*Client]int64

	onConnect []func(types.Identity)
	onDisconn []func(types.Identity)

	mu     sync.RWMutex
	logger zerolog.Logger
}

// New creates an empty session registry.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[int64]map[*Client]struct{}),
		owners:   make(map[*Client]int64),
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// Connect registers the client under its authenticated user in both views.
// Registering the same client twice is a caller bug but leaves the registry
// consistent: both inserts are plain set insertions.
func (h *Hub) Connect(c *Client) {
	id := c.Identity()

	h.mu.Lock()
	set, ok := h.sessions[id.ID]
	if !ok {
		set = make(map[*Client]struct{})
		h.sessions[id.ID] = set
	}
	set[c] = struct{}{}
	h.owners[c] = id.ID
	cbs := slices.Clone(h.onConnect)
	h.mu.Unlock()

	h.logger.Info().
		Int64("user_id", id.ID).
		Str("username", id.Username).
		Msg("connection registered")

	for _, cb := range cbs {
		cb(id)
	}
}

// Disconnect removes the client from both views. It is a no-op for clients
// that were never registered or were already removed, so it is safe to call
// from every failure path concurrently.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	userID, ok := h.owners[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.owners, c)

	if set, ok := h.sessions[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.sessions, userID)
		}
	}
	cbs := slices.Clone(h.onDisconn)
	h.mu.Unlock()

	h.logger.Info().Int64("user_id", userID).Msg("connection unregistered")

	for _, cb := range cbs {
		cb(c.Identity())
	}
}

// SendToUser delivers an event to every connection the user currently has.
// A failing connection is torn down without affecting delivery to the rest.
func (h *Hub) SendToUser(userID int64, event any) {
	h.mu.RLock()
	set := h.sessions[userID]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	// Writes happen outside the lock; enqueue is non-blocking.
	for _, c := range targets {
		h.deliver(c, event)
	}
}

// SendToConnection delivers an event to a single connection.
func (h *Hub) SendToConnection(c *Client, event any) {
	h.deliver(c, event)
}

func (h *Hub) deliver(c *Client, event any) {
	if err := c.enqueue(event); err != nil {
		h.logger.Warn().
			Err(err).
			Int64("user_id", c.Identity().ID).
			Msg("send failed, closing connection")
		c.Close()
	}
}

// OnConnect registers a callback invoked after each successful registration.
func (h *Hub) OnConnect(cb func(types.Identity)) {
	h.mu.Lock()
	h.onConnect = append(h.onConnect, cb)
	h.mu.Unlock()
}

// OnDisconnect registers a callback invoked after each removal.
func (h *Hub) OnDisconnect(cb func(types.Identity)) {
	h.mu.Lock()
	h.onDisconn = append(h.onDisconn, cb)
	h.mu.Unlock()
}

// Shutdown closes every registered connection. Used during server teardown.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.owners))
	for c := range h.owners {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
