package server

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/pelican-im/messenger/src/types"
)

const (
	localIdentity = "identity"
	localToken    = "token"
)

// requireAuth resolves the Authorization bearer token and stores the caller
// identity (and the raw token, for logout) in request locals.
func (s *Server) requireAuth(c fiber.Ctx) error {
	ok, err := s.authenticate(c)
	if !ok {
		return err
	}
	return c.Next()
}

// protected wraps a single handler with the auth check, for groups that mix
// public and protected routes.
func (s *Server) protected(h fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		ok, err := s.authenticate(c)
		if !ok {
			return err
		}
		return h(c)
	}
}

// authenticate reports whether the request carries a valid bearer token.
// On failure the 401 response has already been written.
func (s *Server) authenticate(c fiber.Ctx) (bool, error) {
	header := c.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false, s.jsonError(c, fiber.StatusUnauthorized, "Not authenticated")
	}

	identity, err := s.resolver.Resolve(c.RequestCtx(), token)
	if err != nil {
		return false, s.jsonError(c, fiber.StatusUnauthorized, "Could not validate credentials")
	}

	c.Locals(localIdentity, identity)
	c.Locals(localToken, token)
	return true, nil
}

func caller(c fiber.Ctx) types.Identity {
	id, _ := c.Locals(localIdentity).(types.Identity)
	return id
}
