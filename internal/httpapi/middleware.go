package httpapi

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"vahtook/internal/auth"
	"vahtook/internal/logger"
	"vahtook/models"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the flusher of the event stream.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// instrument records request metrics and an access log line under handlerName.
func (s *Server) instrument(handlerName string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		h(wrapped, r)

		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(handlerName, r.Method, strconv.Itoa(wrapped.statusCode), elapsed.Seconds())
		s.log.Info(logger.RequestIDFrom(r.Context()), "http_request", r.Method+" "+r.URL.Path, map[string]any{
			"handler":     handlerName,
			"status":      wrapped.statusCode,
			"duration_ms": elapsed.Milliseconds(),
		})
	}
}

// withRequestID propagates X-Request-ID or assigns a fresh one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// withCORS allows the configured origins with credentials.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(s.corsOrigins, origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin verifies the Authorization bearer token and, when roles are given,
// the principal's role. The principal is stored in the request context.
func (s *Server) requireAdmin(h http.HandlerFunc, roles ...models.AdminRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, err := auth.BearerFromRequest(r)
		if err != nil {
			writeFail(w, http.StatusUnauthorized, "Access token required")
			return
		}
		p, err := s.auth.Verify(r.Context(), tok)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		if len(roles) > 0 {
			if _, err := auth.RequireRole(ctx, roles...); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		h(w, r.WithContext(ctx))
	}
}
