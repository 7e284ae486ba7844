package server

import (
	"context"
	"strings"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pelican-im/messenger/src/hub"
	"github.com/valyala/fasthttp"
)

// websocketHandler upgrades /ws requests and runs the connection lifecycle:
// authenticate via the token query parameter, register with the hub, then
// pump frames until the transport dies.
func (s *Server) websocketHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"detail":"WebSocket upgrade required"}`)
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))

		err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			s.runConnection(conn, token)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

func (s *Server) runConnection(conn *websocket.Conn, token string) {
	client := hub.NewClient(&wsConn{conn}, s.hub)

	identity, err := s.resolver.Resolve(context.Background(), token)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket authentication failed")
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Authentication failed"),
			deadline)
		client.Close()
		return
	}

	client.Activate(identity)
	go client.WritePump()
	client.ReadPump()
}

// wsConn adapts fasthttp/websocket.Conn to types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, frame, err := w.conn.ReadMessage()
	return frame, err
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }
func (w *wsConn) Close() error          { return w.conn.Close() }
