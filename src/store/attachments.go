package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Attachment is a file stored alongside a message. Filename is the
// generated name in the blob store; OriginalFilename is what the uploader
// called it.
type Attachment struct {
	ID               int64     `json:"id"`
	MessageID        int64     `json:"message_id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"-"`
	FileSize         int64     `json:"file_size"`
	ContentType      *string   `json:"content_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

const attachmentColumns = `id, message_id, filename, original_filename, file_path, file_size, content_type, uploaded_at`

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.MessageID, &a.Filename, &a.OriginalFilename,
		&a.FilePath, &a.FileSize, &a.ContentType, &a.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAttachment records a stored file for a message.
func (s *Store) CreateAttachment(ctx context.Context, a *Attachment) (*Attachment, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO attachments
		 (message_id, filename, original_filename, file_path, file_size, content_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+attachmentColumns,
		a.MessageID, a.Filename, a.OriginalFilename, a.FilePath, a.FileSize, a.ContentType)

	created, err := scanAttachment(row)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	return created, nil
}

// GetAttachmentByFilename looks up an attachment by its stored name.
func (s *Store) GetAttachmentByFilename(ctx context.Context, filename string) (*Attachment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE filename = $1`, filename)
	return scanAttachment(row)
}

// fillAttachments loads attachments for a batch of messages in one query.
func (s *Store) fillAttachments(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(messages))
	byID := make(map[int64]*Message, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
		byID[m.ID] = m
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+attachmentColumns+` FROM attachments
		 WHERE message_id = ANY($1)
		 ORDER BY id`,
		ids)
	if err != nil {
		return fmt.Errorf("load attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return err
		}
		if m, ok := byID[a.MessageID]; ok {
			m.Attachments = append(m.Attachments, a)
		}
	}
	return rows.Err()
}
