package auth

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/internal/testutil"
	"vahtook/models"
	"vahtook/repository"
)

func TestRequireRole(t *testing.T) {
	ctx := WithPrincipal(context.Background(), &Principal{AdminID: 1, Username: "op", Role: models.RoleOperator})
	if _, err := RequireRole(ctx, models.RoleOperator, models.RoleAdmin); err != nil {
		t.Fatalf("RequireRole operator: %v", err)
	}
	if _, err := RequireRole(ctx, models.RoleAdmin); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	super := WithPrincipal(context.Background(), &Principal{AdminID: 2, Role: models.RoleSuperAdmin})
	if _, err := RequireRole(super, models.RoleAdmin); err != nil {
		t.Fatalf("super_admin should pass: %v", err)
	}
	if _, err := RequirePrincipal(context.Background()); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestAuthenticator_LoginAndVerify(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	admins := repository.NewAdminRepository(d)
	seeded := testutil.SeedAdmin(t, d, "alice", "pa55word")
	a := NewAuthenticator(testSecret, time.Hour, admins)
	ctx := context.Background()

	if _, _, err := a.Login(ctx, "alice@vahtook.test", "wrong"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("wrong password: %v", err)
	}
	if _, _, err := a.Login(ctx, "nobody@vahtook.test", "pa55word"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("unknown admin: %v", err)
	}
	if _, _, err := a.Login(ctx, "", ""); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("empty credentials: %v", err)
	}

	tok, admin, err := a.Login(ctx, "alice@vahtook.test", "pa55word")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if admin.ID != seeded.ID {
		t.Fatalf("logged in as %d, want %d", admin.ID, seeded.ID)
	}
	p, err := a.Verify(ctx, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.AdminID != seeded.ID || p.FullName != "Alice" || p.Role != models.RoleAdmin {
		t.Fatalf("principal mismatch: %+v", p)
	}

	if err := admins.SetActive(ctx, seeded.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := a.Verify(ctx, tok); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("inactive admin must fail verification: %v", err)
	}
	if _, err := a.Verify(ctx, "garbage"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("garbage token: %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(h, "secret") || CheckPassword(h, "other") {
		t.Fatalf("password check mismatch")
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	seeded := testutil.SeedAdmin(t, d, "bob", "pw")
	v := NewAuthenticator(testSecret, time.Hour, repository.NewAdminRepository(d))
	interceptor := NewUnaryAuthInterceptor(v, "/grpc.health.v1.Health/Check")

	// allowlisted method: no header, handler runs, no principal
	hCalled := false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, func(ctx context.Context, req any) (any, error) {
		hCalled = true
		if _, ok := FromContext(ctx); ok {
			t.Fatalf("expected no principal on allowlisted path")
		}
		return 123, nil
	})
	if err != nil || !hCalled {
		t.Fatalf("allowlisted handler err=%v called=%v", err, hCalled)
	}

	// protected method without a token
	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Op"}, func(ctx context.Context, req any) (any, error) {
		t.Fatalf("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	// protected method with a valid token
	tok := testutil.GenerateJWT(t, testSecret, seeded.ID, "bob", "admin")
	ctx := testutil.CtxWithBearer(context.Background(), tok)
	_, err = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Op"}, func(ctx context.Context, req any) (any, error) {
		p, ok := FromContext(ctx)
		if !ok || p.AdminID != seeded.ID || p.Username != "bob" {
			t.Fatalf("principal not injected: %+v ok=%v", p, ok)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor auth path: %v", err)
	}
}
