// Package service is the application layer behind the REST handlers:
// account registration and login, message CRUD, and attachment handling.
package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/pelican-im/messenger/src/auth"
	"github.com/pelican-im/messenger/src/blob"
	"github.com/pelican-im/messenger/src/store"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidCredentials covers unknown username, wrong password, and
	// deactivated accounts; clients get the same answer for all three.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotOwner means the caller tried to edit or delete someone else's
	// message.
	ErrNotOwner = errors.New("not the message owner")
	// ErrRecipientNotFound means the target user does not exist.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// Store is the persistence surface the service consumes. *store.Store is
// the production implementation.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error)
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	SearchUsers(ctx context.Context, callerID int64, query string, limit int) ([]*store.User, error)
	ListUsers(ctx context.Context, callerID int64, skip, limit int) ([]*store.User, error)
	CreateMessage(ctx context.Context, senderID, recipientID int64, content string) (*store.Message, error)
	GetMessage(ctx context.Context, id int64) (*store.Message, error)
	Conversation(ctx context.Context, userID, otherID int64, skip, limit int) ([]*store.Message, error)
	UpdateMessage(ctx context.Context, id int64, content string) (*store.Message, error)
	SoftDeleteMessage(ctx context.Context, id int64) error
	Chats(ctx context.Context, userID int64) ([]*store.ChatSummary, error)
	CreateAttachment(ctx context.Context, a *store.Attachment) (*store.Attachment, error)
	GetAttachmentByFilename(ctx context.Context, filename string) (*store.Attachment, error)
}

// Service wires the store, blob store, and auth components together.
type Service struct {
	store    Store
	blobs    *blob.Store
	tokens   *auth.TokenIssuer
	sessions *auth.SessionStore
	logger   zerolog.Logger
}

// New creates the application service.
func New(st Store, blobs *blob.Store, tokens *auth.TokenIssuer, sessions *auth.SessionStore, logger zerolog.Logger) *Service {
	return &Service{
		store:    st,
		blobs:    blobs,
		tokens:   tokens,
		sessions: sessions,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, username, email, password string) (*store.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, username, email, hash)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", user.ID).Str("username", username).Msg("user registered")
	return user, nil
}

// Login verifies credentials and issues a bearer token, recording it in the
// session store so logout can revoke it.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, *store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, password) {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("generate token: %w", err)
	}
	if err := s.sessions.Put(ctx, token, user.ID, expiresAt); err != nil {
		s.logger.Warn().Err(err).Msg("session record failed")
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("user logged in")
	return token, expiresAt, user, nil
}

// Logout revokes the bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// SendMessage persists a message and stores its attachments.
func (s *Service) SendMessage(ctx context.Context, senderID, recipientID int64, content string, files []*multipart.FileHeader) (*store.Message, error) {
	if _, err := s.store.GetUserByID(ctx, recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, senderID, recipientID, content)
	if err != nil {
		return nil, err
	}

	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		att, err := s.saveAttachment(ctx, msg.ID, fh)
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return msg, nil
}

func (s *Service) saveAttachment(ctx context.Context, messageID int64, fh *multipart.FileHeader) (*store.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	filename, path, size, err := s.blobs.Save(f, fh.Filename)
	if err != nil {
		return nil, err
	}

	var contentType *string
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		contentType = &ct
	}
	return s.store.CreateAttachment(ctx, &store.Attachment{
		MessageID:        messageID,
		Filename:         filename,
		OriginalFilename: fh.Filename,
		FilePath:         path,
		FileSize:         size,
		ContentType:      contentType,
	})
}

// Chats lists the caller's conversations.
func (s *Service) Chats(ctx context.Context, userID int64) ([]*store.ChatSummary, error) {
	return s.store.Chats(ctx, userID)
}

// Conversation pages through messages between the caller and another user.
func (s *Service) Conversation(ctx context.Context, userID, otherID int64, skip, limit int) ([]*store.Message, error) {
	return s.store.Conversation(ctx, userID, otherID, skip, limit)
}

// EditMessage updates a message's content. Only the sender may edit.
func (s *Service) EditMessage(ctx context.Context, userID, messageID int64, content string) (*store.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotOwner
	}
	return s.store.UpdateMessage(ctx, messageID, content)
}

// DeleteMessage soft-deletes a message. Only the sender may delete.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID int64) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotOwner
	}
	return s.store.SoftDeleteMessage(ctx, messageID)
}

// Attachment resolves a stored filename to its record and an open file.
func (s *Service) Attachment(ctx context.Context, filename string) (*store.Attachment, string, error) {
	att, err := s.store.GetAttachmentByFilename(ctx, filename)
	if err != nil {
		return nil, "", err
	}
	return att, s.blobs.Path(att.Filename), nil
}

// SearchUsers finds users by partial username, excluding the caller.
func (s *Service) SearchUsers(ctx context.Context, callerID int64, query string, limit int) ([]*store.User, error) {
	return s.store.SearchUsers(ctx, callerID, query, limit)
}

// ListUsers pages through all other users.
func (s *Service) ListUsers(ctx context.Context, callerID int64, skip, limit int) ([]*store.User, error) {
	return s.store.ListUsers(ctx, callerID, skip, limit)
}

// GetUser returns an active user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*store.User, error) {
	return s.store.GetUserByID(ctx, id)
}
