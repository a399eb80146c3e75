package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vahtook/internal/auth"
	"vahtook/internal/hub"
	"vahtook/internal/logger"
	"vahtook/internal/metrics"
	"vahtook/internal/orders"
	"vahtook/models"
	"vahtook/repository"
)

// Authenticator issues and verifies admin tokens. *auth.Authenticator implements it.
type Authenticator interface {
	Login(ctx context.Context, login, password string) (string, *models.Admin, error)
	Verify(ctx context.Context, token string) (*auth.Principal, error)
}

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Orders      *orders.Service
	Hub         *hub.Hub
	Auth        Authenticator
	Admins      repository.AdminRepositoryI
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer // nil serves the default registry
	CORSOrigins []string
	Now         func() time.Time
}

// Server is the REST and event-stream surface.
type Server struct {
	orders      *orders.Service
	hub         *hub.Hub
	auth        Authenticator
	admins      repository.AdminRepositoryI
	log         *logger.Logger
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	corsOrigins []string
	now         func() time.Time
	started     time.Time
}

func New(d Deps) *Server {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Server{
		orders:      d.Orders,
		hub:         d.Hub,
		auth:        d.Auth,
		admins:      d.Admins,
		log:         d.Logger,
		metrics:     d.Metrics,
		gatherer:    g,
		corsOrigins: d.CORSOrigins,
		now:         now,
		started:     now(),
	}
}

// Handler returns the routed handler with request id and CORS middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", s.instrument("create_order", s.createOrder))
	mux.HandleFunc("POST /api/bookings", s.instrument("create_booking", s.createBooking))

	mux.HandleFunc("POST /api/admin/login", s.instrument("admin_login", s.login))
	mux.HandleFunc("GET /api/admin/profile", s.instrument("admin_profile", s.requireAdmin(s.profile)))
	mux.HandleFunc("GET /api/admin/verify-token", s.instrument("admin_verify", s.requireAdmin(s.verifyToken)))
	mux.HandleFunc("POST /api/admin/create", s.instrument("admin_create", s.requireAdmin(s.createAdmin, models.RoleSuperAdmin)))
	mux.HandleFunc("GET /api/admin/all", s.instrument("admin_list", s.requireAdmin(s.listAdmins, models.RoleSuperAdmin)))
	mux.HandleFunc("PUT /api/admin/{id}", s.instrument("admin_update", s.requireAdmin(s.updateAdmin, models.RoleSuperAdmin)))
	mux.HandleFunc("DELETE /api/admin/{id}", s.instrument("admin_deactivate", s.requireAdmin(s.deactivateAdmin, models.RoleSuperAdmin)))

	mux.HandleFunc("GET /api/admin/orders", s.instrument("list_orders", s.requireAdmin(s.listOrders)))
	mux.HandleFunc("GET /api/admin/orders/recent", s.instrument("recent_orders", s.requireAdmin(s.recentOrders)))
	mux.HandleFunc("GET /api/admin/orders/statistics", s.instrument("order_statistics", s.requireAdmin(s.statistics)))
	// status/{status}, number/{number} and {id}/history share one two-segment pattern;
	// separate patterns would overlap ambiguously on paths like status/history.
	mux.HandleFunc("GET /api/admin/orders/{key}/{sub}", s.instrument("order_lookup", s.requireAdmin(s.orderLookup)))
	mux.HandleFunc("GET /api/admin/orders/{id}", s.instrument("get_order", s.requireAdmin(s.getOrder)))
	mux.HandleFunc("PUT /api/admin/orders/{id}", s.instrument("update_order", s.requireAdmin(s.updateOrder)))
	mux.HandleFunc("PUT /api/admin/orders/{id}/status", s.instrument("update_order_status", s.requireAdmin(s.updateOrderStatus)))
	mux.HandleFunc("DELETE /api/admin/orders/{id}", s.instrument("cancel_order", s.requireAdmin(s.cancelOrder)))

	mux.HandleFunc("GET /api/sse/orders", s.instrument("sse_orders", s.streamOrders))
	mux.HandleFunc("GET /api/sse/clients", s.instrument("sse_clients", s.requireAdmin(s.sseClients)))

	mux.HandleFunc("GET /health", s.instrument("health", s.health))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return withRequestID(s.withCORS(mux))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	writeJSON(w, map[string]any{
		"status":      "OK",
		"timestamp":   now.UTC().Format(time.RFC3339),
		"uptime":      now.Sub(s.started).Seconds(),
		"sse_clients": s.hub.Len(),
	}, http.StatusOK)
}
