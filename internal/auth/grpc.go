package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/models"
)

// TokenVerifier resolves a bearer token to a principal. *Authenticator implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// NewUnaryAuthInterceptor returns a gRPC unary interceptor that extracts a Bearer JWT
// from incoming metadata, verifies it and injects the Principal into the context.
// Methods listed in allowUnauthenticated bypass authentication (e.g., health checks).
func NewUnaryAuthInterceptor(v TokenVerifier, allowUnauthenticated ...string) grpc.UnaryServerInterceptor {
	allow := make(map[string]struct{}, len(allowUnauthenticated))
	for _, m := range allowUnauthenticated {
		allow[strings.TrimSpace(m)] = struct{}{}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := allow[info.FullMethod]; ok {
			return handler(ctx, req)
		}
		tok, err := BearerFromMD(ctx)
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "auth error: %v", err)
		}
		p, err := v.Verify(ctx, tok)
		if err != nil {
			if _, ok := status.FromError(err); ok {
				return nil, err
			}
			return nil, status.Errorf(codes.Unauthenticated, "auth error: %v", err)
		}
		return handler(WithPrincipal(ctx, p), req)
	}
}

// RequirePrincipal ensures a principal is present in context.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing principal")
	}
	return p, nil
}

// RequireRole ensures the principal holds one of roles. super_admin passes every check.
func RequireRole(ctx context.Context, roles ...models.AdminRole) (*Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	if p.Role == models.RoleSuperAdmin {
		return p, nil
	}
	for _, r := range roles {
		if p.Role == r {
			return p, nil
		}
	}
	return nil, status.Errorf(codes.PermissionDenied, "role %s cannot perform this action", p.Role)
}
