// Package server exposes the REST API and the WebSocket endpoint.
package server

import (
	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/pelican-im/messenger/config"
	"github.com/pelican-im/messenger/src/auth"
	"github.com/pelican-im/messenger/src/hub"
	"github.com/pelican-im/messenger/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server holds the fiber app for REST routes and the raw fasthttp handler
// for WebSocket upgrades.
type Server struct {
	app      *fiber.App
	hub      *hub.Hub
	svc      *service.Service
	resolver *auth.Resolver
	upgrader websocket.FastHTTPUpgrader
	logger   zerolog.Logger
}

// New builds the server and registers all routes.
func New(cfg *config.Config, h *hub.Hub, svc *service.Service, resolver *auth.Resolver, logger zerolog.Logger) *Server {
	s := &Server{
		app:      fiber.New(),
		hub:      h,
		svc:      svc,
		resolver: resolver,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.Socket.ReadBufferSize,
			WriteBufferSize: cfg.Socket.WriteBufferSize,
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowCredentials: true,
	}))
	s.registerRoutes()
	return s
}

// Handler returns the composed fasthttp handler. The WebSocket upgrade is
// registered at the fasthttp level since Fiber v3 does not expose the raw
// *fasthttp.RequestCtx to its handlers.
func (s *Server) Handler() fasthttp.RequestHandler {
	api := s.app.Handler()
	ws := s.websocketHandler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			ws(ctx)
			return
		}
		api(ctx)
	}
}

func (s *Server) jsonError(c fiber.Ctx, status int, detail string) error {
	return c.Status(status).JSON(fiber.Map{"detail": detail})
}
