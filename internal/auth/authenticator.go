package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/models"
)

// AdminStore is the subset of the admin repository the authenticator needs.
type AdminStore interface {
	GetByID(ctx context.Context, id int64) (*models.Admin, error)
	GetByLogin(ctx context.Context, login string) (*models.Admin, error)
}

// Authenticator issues tokens at login and verifies them on every request.
type Authenticator struct {
	secret string
	ttl    time.Duration
	admins AdminStore
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration, admins AdminStore) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: secret, ttl: ttl, admins: admins, now: time.Now}
}

// Login checks the credentials of an active admin and returns a signed token.
// Unknown logins, wrong passwords and inactive accounts all yield the same
// Unauthenticated error.
func (a *Authenticator) Login(ctx context.Context, login, password string) (string, *models.Admin, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return "", nil, status.Error(codes.InvalidArgument, "email and password are required")
	}
	admin, err := a.admins.GetByLogin(ctx, login)
	if err != nil {
		return "", nil, status.Errorf(codes.Internal, "get admin: %v", err)
	}
	if admin == nil || !admin.IsActive || !CheckPassword(admin.PasswordHash, password) {
		return "", nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	tok, err := IssueToken(a.secret, admin, a.ttl, a.now())
	if err != nil {
		return "", nil, status.Errorf(codes.Internal, "issue token: %v", err)
	}
	return tok, admin, nil
}

// Verify validates token and reloads its admin, so a deactivated or deleted admin is
// rejected even while the token is unexpired.
func (a *Authenticator) Verify(ctx context.Context, token string) (*Principal, error) {
	c, err := parseJWT(token, a.secret)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	admin, err := a.admins.GetByID(ctx, c.AdminID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get admin: %v", err)
	}
	if admin == nil || !admin.IsActive {
		return nil, status.Error(codes.Unauthenticated, "admin not found or inactive")
	}
	return &Principal{AdminID: admin.ID, Username: admin.Username, FullName: admin.FullName, Role: admin.Role}, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
