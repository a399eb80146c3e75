package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"vahtook/models"
)

// Principal represents the authenticated admin behind a request.
type Principal struct {
	AdminID  int64
	Username string
	FullName string // display name, reloaded from the store on every verification
	Role     models.AdminRole
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context (if any).
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Claims is the token body issued at login.
type Claims struct {
	AdminID  int64  `json:"adminId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for admin that expires after ttl.
func IssueToken(secret string, admin *models.Admin, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	c := Claims{
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     string(admin.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// BearerFromMD extracts a Bearer token from gRPC metadata.
func BearerFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return "", errors.New("missing authorization")
	}
	return parseBearer(vals[0])
}

// ParseFromMD extracts and validates a Bearer JWT from gRPC metadata.
func ParseFromMD(ctx context.Context, secret string) (*Claims, error) {
	tok, err := BearerFromMD(ctx)
	if err != nil {
		return nil, err
	}
	return parseJWT(tok, secret)
}

// BearerFromRequest extracts a Bearer token from the Authorization header.
func BearerFromRequest(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errors.New("missing authorization")
	}
	return parseBearer(h)
}

// TokenFromRequest returns the bearer token of an HTTP request. The Authorization
// header wins; the token query parameter serves clients that cannot set headers,
// such as browser EventSource.
func TokenFromRequest(r *http.Request) string {
	if tok, err := BearerFromRequest(r); err == nil {
		return tok
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func parseBearer(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	tok := strings.TrimSpace(parts[1])
	if tok == "" {
		return "", errors.New("empty bearer token")
	}
	return tok, nil
}

// parseJWT validates and extracts claims from a JWT token.
func parseJWT(tokenStr string, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	tok, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}
	c, _ := tok.Claims.(*Claims)
	if c == nil || c.AdminID <= 0 || c.Username == "" {
		return nil, errors.New("invalid claims")
	}
	return c, nil
}
