// Package auth issues bearer tokens and resolves them back to user
// identities. It is the only collaborator contract the live-routing core
// consumes.
package auth

import (
	"context"
	"errors"

	"github.com/pelican-im/messenger/src/store"
	"github.com/pelican-im/messenger/src/types"
	"github.com/rs/zerolog"
)

var (
	// ErrSessionRevoked means the token verified but was logged out.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrUserInactive means the token's user exists but is deactivated.
	ErrUserInactive = errors.New("user inactive")
)

// UserSource looks up accounts for token resolution.
type UserSource interface {
	GetUserByID(ctx context.Context, id int64) (*store.User, error)
}

// SessionChecker reports whether an issued token is still live.
type SessionChecker interface {
	Exists(ctx context.Context, token string) (bool, error)
}

// Resolver turns a bearer token into an authenticated identity.
type Resolver struct {
	tokens   *TokenIssuer
	sessions SessionChecker
	users    UserSource
	logger   zerolog.Logger
}

// NewResolver wires the token issuer, session store, and user lookup.
func NewResolver(tokens *TokenIssuer, sessions SessionChecker, users UserSource, logger zerolog.Logger) *Resolver {
	return &Resolver{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Resolve validates the token, checks it has not been revoked, and loads
// the owning user. Any failure means the caller is not authenticated; the
// distinct errors exist for logging, not for leaking detail to clients.
func (r *Resolver) Resolve(ctx context.Context, token string) (types.Identity, error) {
	userID, err := r.tokens.Verify(token)
	if err != nil {
		return types.Identity{}, err
	}

	live, err := r.sessions.Exists(ctx, token)
	if err != nil {
		// Redis errors degrade to JWT-only validation rather than locking
		// everyone out.
		r.logger.Warn().Err(err).Msg("session lookup failed, accepting token")
	} else if !live {
		return types.Identity{}, ErrSessionRevoked
	}

	user, err := r.users.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return types.Identity{}, ErrUserInactive
	}
	if err != nil {
		return types.Identity{}, err
	}
	if !user.IsActive {
		return types.Identity{}, ErrUserInactive
	}

	return types.Identity{ID: user.ID, Username: user.Username}, nil
}
