package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pelican-im/messenger/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SessionStore keeps an allow-list of issued tokens in redis so that logout
// revokes a token before its JWT expiry. Keys are token hashes; values are
// user ids; entries expire with the token.
type SessionStore struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger

	mu     sync.RWMutex
	active bool
}

// NewSessionStore creates a redis-backed session store.
func NewSessionStore(cfg config.RedisConfig, logger zerolog.Logger) *SessionStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &SessionStore{
		client: client,
		prefix: cfg.Prefix,
		logger: logger.With().Str("component", "sessions").Logger(),
	}
}

// Start verifies the redis connection. If redis is unreachable the store
// stays inactive and token resolution degrades to JWT-only validation.
func (s *SessionStore) Start(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	s.logger.Info().Msg("session store connected")
	return nil
}

// Stop closes the redis connection.
func (s *SessionStore) Stop() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	return s.client.Close()
}

// Available reports whether the store is connected and enforcing sessions.
func (s *SessionStore) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Put records a newly issued token until its expiry.
func (s *SessionStore) Put(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	if !s.Available() {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	key := s.prefix + HashToken(token)
	return s.client.Set(ctx, key, strconv.FormatInt(userID, 10), ttl).Err()
}

// Delete revokes a token.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if !s.Available() {
		return nil
	}
	return s.client.Del(ctx, s.prefix+HashToken(token)).Err()
}

// Exists reports whether the token is still on the allow-list. When the
// store is unavailable every token passes; revocation is best-effort then.
func (s *SessionStore) Exists(ctx context.Context, token string) (bool, error) {
	if !s.Available() {
		return true, nil
	}
	n, err := s.client.Exists(ctx, s.prefix+HashToken(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
