package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Message is one direct message between two users. Sender and Recipient are
// populated on reads; Attachments on conversation and single-message reads.
type Message struct {
	ID          int64         `json:"id"`
	Content     string        `json:"content"`
	SenderID    int64         `json:"sender_id"`
	RecipientID int64         `json:"recipient_id"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   *time.Time    `json:"updated_at"`
	IsEdited    bool          `json:"is_edited"`
	IsDeleted   bool          `json:"is_deleted"`
	Sender      *User         `json:"sender,omitempty"`
	Recipient   *User         `json:"recipient,omitempty"`
	Attachments []*Attachment `json:"attachments"`
}

// ChatSummary is one entry in a user's chat list: the partner, the latest
// surviving message, and how many messages the partner has sent.
type ChatSummary struct {
	User        *User    `json:"user"`
	LastMessage *Message `json:"last_message"`
	UnreadCount int      `json:"unread_count"`
}

const messageSelect = `
SELECT m.id, m.content, m.sender_id, m.recipient_id,
       m.created_at, m.updated_at, m.is_edited, m.is_deleted,
       s.id, s.username, s.email, s.is_active, s.created_at,
       r.id, r.username, r.email, r.is_active, r.created_at
FROM messages m
JOIN users s ON s.id = m.sender_id
JOIN users r ON r.id = m.recipient_id`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var sender, recipient User
	err := row.Scan(
		&m.ID, &m.Content, &m.SenderID, &m.RecipientID,
		&m.CreatedAt, &m.UpdatedAt, &m.IsEdited, &m.IsDeleted,
		&sender.ID, &sender.Username, &sender.Email, &sender.IsActive, &sender.CreatedAt,
		&recipient.ID, &recipient.Username, &recipient.Email, &recipient.IsActive, &recipient.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Sender = &sender
	m.Recipient = &recipient
	m.Attachments = []*Attachment{}
	return &m, nil
}

// CreateMessage inserts a message and returns it with sender and recipient
// populated.
func (s *Store) CreateMessage(ctx context.Context, senderID, recipientID int64, content string) (*Message, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (content, sender_id, recipient_id)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		content, senderID, recipientID).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return s.GetMessage(ctx, id)
}

// GetMessage returns a message by id, deleted or not. Callers deciding on
// edit and delete permissions need the row even when it is soft-deleted.
func (s *Store) GetMessage(ctx context.Context, id int64) (*Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := s.fillAttachments(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// Conversation returns messages between two users, newest first, excluding
// soft-deleted ones.
func (s *Store) Conversation(ctx context.Context, userID, otherID int64, skip, limit int) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		messageSelect+`
		 WHERE ((m.sender_id = $1 AND m.recipient_id = $2)
		     OR (m.sender_id = $2 AND m.recipient_id = $1))
		   AND NOT m.is_deleted
		 ORDER BY m.created_at DESC
		 OFFSET $3 LIMIT $4`,
		userID, otherID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.fillAttachments(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// UpdateMessage replaces a message's content and marks it edited.
func (s *Store) UpdateMessage(ctx context.Context, id int64, content string) (*Message, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages
		 SET content = $2, is_edited = TRUE, updated_at = now()
		 WHERE id = $1`,
		id, content)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

// SoftDeleteMessage marks a message deleted without removing the row.
func (s *Store) SoftDeleteMessage(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET is_deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Chats lists everyone the user has exchanged messages with, each with the
// latest surviving message and a count of messages received from them.
func (s *Store) Chats(ctx context.Context, userID int64) ([]*ChatSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id <> $1 AND id IN (
			SELECT sender_id FROM messages WHERE recipient_id = $1
			UNION
			SELECT recipient_id FROM messages WHERE sender_id = $1
		 )
		 ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("chat partners: %w", err)
	}
	defer rows.Close()

	partners, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}

	chats := make([]*ChatSummary, 0, len(partners))
	for _, partner := range partners {
		last, err := s.lastMessage(ctx, userID, partner.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		var unread int
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM messages
			 WHERE sender_id = $1 AND recipient_id = $2`,
			partner.ID, userID).Scan(&unread)
		if err != nil {
			return nil, fmt.Errorf("unread count: %w", err)
		}

		chats = append(chats, &ChatSummary{
			User:        partner,
			LastMessage: last,
			UnreadCount: unread,
		})
	}
	return chats, nil
}

func (s *Store) lastMessage(ctx context.Context, userID, otherID int64) (*Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx,
		messageSelect+`
		 WHERE ((m.sender_id = $1 AND m.recipient_id = $2)
		     OR (m.sender_id = $2 AND m.recipient_id = $1))
		   AND NOT m.is_deleted
		 ORDER BY m.created_at DESC
		 LIMIT 1`,
		userID, otherID))
	if err != nil {
		return nil, err
	}
	if err := s.fillAttachments(ctx, []*Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}
