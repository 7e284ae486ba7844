package types

import "encoding/json"

// Inbound event tags accepted over the live channel.
const (
	EventPing            = "ping"
	EventTyping          = "typing"
	EventMessageRead     = "message_read"
	EventGetOnlineStatus = "get_online_status"
)

// Outbound event tags sent over the live channel.
const (
	EventPong             = "pong"
	EventOnlineStatus     = "online_status"
	EventConnectionStatus = "connection_status"
	EventError            = "error"
)

// Identity is the authenticated user bound to a connection.
// Resolved once during the handshake and immutable afterwards.
type Identity struct {
	ID       int64
	Username string
}

// ClientEvent is the decoded form of an inbound frame. All fields except
// Type are tag-specific; absent fields stay at their zero value.
type ClientEvent struct {
	Type        string          `json:"type"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	RecipientID int64           `json:"recipient_id,omitempty"`
	IsTyping    bool            `json:"is_typing,omitempty"`
	MessageID   int64           `json:"message_id,omitempty"`
	UserIDs     []int64         `json:"user_ids,omitempty"`
}

// PongEvent answers a ping. The timestamp is passed through opaquely.
type PongEvent struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// TypingEvent notifies a recipient that the sender is (or stopped) typing.
type TypingEvent struct {
	Type     string `json:"type"`
	SenderID int64  `json:"sender_id"`
	IsTyping bool   `json:"is_typing"`
}

// MessageReadEvent notifies the original sender that a message was read.
type MessageReadEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	ReaderID  int64  `json:"reader_id"`
}

// OnlineStatusEvent answers a get_online_status query.
type OnlineStatusEvent struct {
	Type  string         `json:"type"`
	Users map[int64]bool `json:"users"`
}

// ConnectionStatusEvent reports handshake progress to a single connection.
type ConnectionStatusEvent struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorEvent reports a recoverable input error back to the sender.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func Pong(timestamp json.RawMessage) PongEvent {
	return PongEvent{Type: EventPong, Timestamp: timestamp}
}

func Typing(senderID int64, isTyping bool) TypingEvent {
	return TypingEvent{Type: EventTyping, SenderID: senderID, IsTyping: isTyping}
}

func MessageRead(messageID, readerID int64) MessageReadEvent {
	return MessageReadEvent{Type: EventMessageRead, MessageID: messageID, ReaderID: readerID}
}

func OnlineStatus(users map[int64]bool) OnlineStatusEvent {
	return OnlineStatusEvent{Type: EventOnlineStatus, Users: users}
}

func Connected() ConnectionStatusEvent {
	return ConnectionStatusEvent{
		Type:    EventConnectionStatus,
		Status:  "connected",
		Message: "Successfully connected to WebSocket",
	}
}

func Error(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	// ReadMessage blocks until the next inbound frame arrives.
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}
