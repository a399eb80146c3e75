package grpcserver

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	channelzsvc "google.golang.org/grpc/channelz/service"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"vahtook/internal/auth"
	"vahtook/internal/logger"
	"vahtook/models"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	channelzPrefix    = "/grpc.channelz.v1.Channelz/"

	// ServiceName is the health-checked service of this process.
	ServiceName = "vahtook.orders"
)

// Server is the ops listener: gRPC health, channelz and reflection. Everything except
// the health check needs an admin bearer token.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	log    *logger.Logger
}

// New builds the server. Tokens are checked by v.
func New(v auth.TokenVerifier, log *logger.Logger) *Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		auth.NewUnaryAuthInterceptor(v, healthCheckMethod),
		requireAdminForChannelz,
	))
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	channelzsvc.RegisterChannelzServiceToServer(srv)
	reflection.Register(srv)
	return &Server{srv: srv, health: hs, log: log}
}

// requireAdminForChannelz keeps connection internals away from operators.
func requireAdminForChannelz(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, channelzPrefix) {
		if _, err := auth.RequireRole(ctx, models.RoleAdmin); err != nil {
			return nil, err
		}
	}
	return handler(ctx, req)
}

// Serve blocks serving lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("", "grpc_start", "gRPC ops listener started", map[string]any{"address": lis.Addr().String()})
	return s.srv.Serve(lis)
}

// Start listens on addr and serves in the background.
func Start(addr string, v auth.TokenVerifier, log *logger.Logger) (*Server, error) {
	if addr == "" {
		addr = ":50051"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := New(v, log)
	go func() {
		if err := s.Serve(lis); err != nil {
			log.Error("", "grpc_serve", "gRPC server stopped", err, nil)
		}
	}()
	return s, nil
}

// MarkNotServing flips every health status to NOT_SERVING.
func (s *Server) MarkNotServing() {
	s.health.Shutdown()
}

// Shutdown reports NOT_SERVING, then stops gracefully or hard when ctx ends first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.MarkNotServing()
	done := make(chan struct{})
	go func() { s.srv.GracefulStop(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}
