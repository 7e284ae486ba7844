package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id           BIGSERIAL PRIMARY KEY,
	content      TEXT NOT NULL,
	sender_id    BIGINT NOT NULL REFERENCES users(id),
	recipient_id BIGINT NOT NULL REFERENCES users(id),
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ,
	is_edited    BOOLEAN NOT NULL DEFAULT FALSE,
	is_deleted   BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages (sender_id, recipient_id, created_at DESC);

CREATE TABLE IF NOT EXISTS attachments (
	id                BIGSERIAL PRIMARY KEY,
	message_id        BIGINT NOT NULL REFERENCES messages(id),
	filename          TEXT NOT NULL UNIQUE,
	original_filename TEXT NOT NULL,
	file_path         TEXT NOT NULL,
	file_size         BIGINT NOT NULL,
	content_type      TEXT,
	uploaded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attachments_message
	ON attachments (message_id);
`

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.logger.Debug().Msg("schema ensured")
	return nil
}
