package httpapi

import (
	"context"
	"errors"
	"net/http"

	"vahtook/internal/auth"
	"vahtook/internal/hub"
	"vahtook/internal/logger"
)

// streamOrders opens the order event stream. The token comes from the Authorization
// header or the token query parameter. Headers are only committed once the hub has
// admitted the connection, so a rejected credential still gets a JSON error.
func (s *Server) streamOrders(w http.ResponseWriter, r *http.Request) {
	stream := hub.NewHTTPStream()
	conn, err := s.hub.Register(r.Context(), auth.TokenFromRequest(r), stream)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer s.hub.Unregister(conn.Key)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	err = stream.Serve(r.Context(), w)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		s.log.Info(logger.RequestIDFrom(r.Context()), "sse_client_disconnected", "event stream ended",
			map[string]any{"client_id": conn.Key})
	default:
		s.log.Warn(logger.RequestIDFrom(r.Context()), "sse_client_disconnected", "event stream write failed",
			map[string]any{"client_id": conn.Key, "cause": err.Error()})
	}
}

func (s *Server) sseClients(w http.ResponseWriter, _ *http.Request) {
	clients := s.hub.Clients()
	writeData(w, http.StatusOK, "", map[string]any{
		"connected_clients": len(clients),
		"clients":           clients,
	})
}
