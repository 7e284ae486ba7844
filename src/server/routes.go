package server

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/pelican-im/messenger/src/service"
	"github.com/pelican-im/messenger/src/store"
)

func (s *Server) registerRoutes() {
	s.app.Get("/", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Messenger API is running"})
	})
	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	s.app.Get("/ws/info", s.handleInfo)

	// /auth mixes public and protected routes, so the protected ones wrap
	// the auth check per handler instead of using group middleware.
	authGroup := s.app.Group("/auth")
	authGroup.Post("/register", s.handleRegister)
	authGroup.Post("/login", s.handleLogin)
	authGroup.Post("/logout", s.protected(s.handleLogout))
	authGroup.Get("/me", s.protected(s.handleMe))

	users := s.app.Group("/users", s.requireAuth)
	users.Get("/search", s.handleSearchUsers)
	users.Get("/", s.handleListUsers)
	users.Get("/:id", s.handleGetUser)

	messages := s.app.Group("/messages", s.requireAuth)
	messages.Post("/", s.handleSendMessage)
	messages.Get("/chats", s.handleChats)
	messages.Get("/attachments/:filename", s.handleAttachment)
	messages.Get("/:user_id", s.handleConversation)
	messages.Put("/:message_id", s.handleEditMessage)
	messages.Delete("/:message_id", s.handleDeleteMessage)
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket":    true,
		"endpoint":     "/ws",
		"connections":  s.hub.ConnectionCount(),
		"online_users": len(s.hub.OnlineUsers()),
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c fiber.Ctx) error {
	var req registerRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return s.jsonError(c, fiber.StatusBadRequest, "username, email, and password are required")
	}

	user, err := s.svc.Register(c.RequestCtx(), req.Username, req.Email, req.Password)
	if errors.Is(err, store.ErrDuplicate) {
		return s.jsonError(c, fiber.StatusBadRequest, "Username or email already registered")
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(c fiber.Ctx) error {
	var req loginRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	token, expiresAt, user, err := s.svc.Login(c.RequestCtx(), req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return s.jsonError(c, fiber.StatusUnauthorized, "Incorrect username or password")
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expiresAt,
		"user":         user,
	})
}

func (s *Server) handleLogout(c fiber.Ctx) error {
	token, _ := c.Locals(localToken).(string)
	if err := s.svc.Logout(c.RequestCtx(), token); err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(fiber.Map{"detail": "Logged out"})
}

func (s *Server) handleMe(c fiber.Ctx) error {
	user, err := s.svc.GetUser(c.RequestCtx(), caller(c).ID)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(user)
}

func (s *Server) handleSearchUsers(c fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return s.jsonError(c, fiber.StatusBadRequest, "query is required")
	}
	limit := queryInt(c, "limit", 10, 50)

	users, err := s.svc.SearchUsers(c.RequestCtx(), caller(c).ID, query, limit)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(users)
}

func (s *Server) handleListUsers(c fiber.Ctx) error {
	skip := queryInt(c, "skip", 0, 0)
	limit := queryInt(c, "limit", 50, 100)

	users, err := s.svc.ListUsers(c.RequestCtx(), caller(c).ID, skip, limit)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(users)
}

func (s *Server) handleGetUser(c fiber.Ctx) error {
	id, err := paramInt64(c, "id")
	if err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "Invalid user id")
	}
	user, err := s.svc.GetUser(c.RequestCtx(), id)
	if errors.Is(err, store.ErrNotFound) {
		return s.jsonError(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(user)
}

func (s *Server) handleSendMessage(c fiber.Ctx) error {
	content := c.FormValue("content")
	recipientID, err := strconv.ParseInt(c.FormValue("recipient_id"), 10, 64)
	if content == "" || err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "content and recipient_id are required")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "Invalid multipart form")
	}
	files := form.File["files"]

	msg, err := s.svc.SendMessage(c.RequestCtx(), caller(c).ID, recipientID, content, files)
	if errors.Is(err, service.ErrRecipientNotFound) {
		return s.jsonError(c, fiber.StatusNotFound, "Recipient not found")
	}
	if err != nil {
		return s.internalError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) handleChats(c fiber.Ctx) error {
	chats, err := s.svc.Chats(c.RequestCtx(), caller(c).ID)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(chats)
}

func (s *Server) handleConversation(c fiber.Ctx) error {
	otherID, err := paramInt64(c, "user_id")
	if err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "Invalid user id")
	}
	skip := queryInt(c, "skip", 0, 0)
	limit := queryInt(c, "limit", 50, 100)

	messages, err := s.svc.Conversation(c.RequestCtx(), caller(c).ID, otherID, skip, limit)
	if err != nil {
		return s.internalError(c, err)
	}
	return c.JSON(messages)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleEditMessage(c fiber.Ctx) error {
	messageID, err := paramInt64(c, "message_id")
	if err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "Invalid message id")
	}
	var req editMessageRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || req.Content == "" {
		return s.jsonError(c, fiber.StatusBadRequest, "content is required")
	}

	msg, err := s.svc.EditMessage(c.RequestCtx(), caller(c).ID, messageID, req.Content)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.jsonError(c, fiber.StatusNotFound, "Message not found")
	case errors.Is(err, service.ErrNotOwner):
		return s.jsonError(c, fiber.StatusForbidden, "Not authorized to edit this message")
	case err != nil:
		return s.internalError(c, err)
	}
	return c.JSON(msg)
}

func (s *Server) handleDeleteMessage(c fiber.Ctx) error {
	messageID, err := paramInt64(c, "message_id")
	if err != nil {
		return s.jsonError(c, fiber.StatusBadRequest, "Invalid message id")
	}

	err = s.svc.DeleteMessage(c.RequestCtx(), caller(c).ID, messageID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.jsonError(c, fiber.StatusNotFound, "Message not found")
	case errors.Is(err, service.ErrNotOwner):
		return s.jsonError(c, fiber.StatusForbidden, "Not authorized to delete this message")
	case err != nil:
		return s.internalError(c, err)
	}
	return c.JSON(fiber.Map{"detail": "Message deleted successfully"})
}

func (s *Server) handleAttachment(c fiber.Ctx) error {
	att, path, err := s.svc.Attachment(c.RequestCtx(), c.Params("filename"))
	if errors.Is(err, store.ErrNotFound) {
		return s.jsonError(c, fiber.StatusNotFound, "File not found")
	}
	if err != nil {
		return s.internalError(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+att.OriginalFilename+`"`)
	if att.ContentType != nil {
		c.Set(fiber.HeaderContentType, *att.ContentType)
	}
	return c.SendFile(path)
}

func (s *Server) internalError(c fiber.Ctx, err error) error {
	s.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return s.jsonError(c, fiber.StatusInternalServerError, "Internal server error")
}

func paramInt64(c fiber.Ctx, name string) (int64, error) {
	return strconv.ParseInt(c.Params(name), 10, 64)
}

// queryInt parses an integer query parameter with a default and an optional
// upper bound (0 = unbounded).
func queryInt(c fiber.Ctx, name string, def, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
