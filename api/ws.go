package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/KiloProjects/arena/internal/ws"
)

// serveWS upgrades the connection. The session token travels as the websocket subprotocol,
// since browsers cannot set headers on the handshake.
func (s *API) serveWS(w http.ResponseWriter, r *http.Request) {
	token, _, _ := strings.Cut(r.Header.Get("Sec-WebSocket-Protocol"), ",")
	token = strings.TrimSpace(token)

	kind, user := s.base.AuthenticateSocket(r.Context(), token, r.RemoteAddr)

	var header http.Header
	if token != "" {
		header = http.Header{"Sec-WebSocket-Protocol": {token}}
	}
	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade already replied with an error
		s.logger.DebugContext(r.Context(), "Websocket upgrade failed", slog.Any("err", err))
		return
	}

	grader := s.base.Grader()
	client := ws.NewClient(s.base.Conns(), conn, kind, func(ctx context.Context, kind ws.Kind, out *ws.Outbox, msg ws.Incoming) {
		grader.HandleMessage(ctx, kind, user, out, msg)
	})
	s.logger.DebugContext(r.Context(), "Socket connected", slog.Any("conn", kind))
	client.Serve(r.Context())
	s.logger.DebugContext(r.Context(), "Socket disconnected", slog.Any("conn", kind))
}
