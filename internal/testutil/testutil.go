package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/metadata"

	"vahtook/internal/db"
	"vahtook/models"
	"vahtook/repository"
)

var dbSeq atomic.Int64

// OpenInMemoryDB opens a fresh in-memory SQLite database and applies migrations.
// The DB is closed via t.Cleanup.
func OpenInMemoryDB(t testing.TB) *db.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	// Shared cache keeps the schema alive across pool connections; one connection
	// avoids table-level lock errors between them.
	d, err := db.Open(db.SQLite, fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1)))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	d.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// GenerateJWT returns a signed HS256 token carrying the admin claims used by the app.
func GenerateJWT(t testing.TB, secret string, adminID int64, username, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"adminId":  adminID,
		"username": username,
		"role":     role,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}

// SeedAdmin inserts an active admin with the given password.
func SeedAdmin(t testing.TB, d *db.DB, username, password string) *models.Admin {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	a := models.NewAdmin(username, username+"@vahtook.test", strings.ToUpper(username[:1])+username[1:])
	a.PasswordHash = string(hash)
	out, err := repository.NewAdminRepository(d).Create(context.Background(), a)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return out
}

// NewOrder returns a valid order value; mutators run before it is returned.
func NewOrder(mutators ...func(*models.Order)) *models.Order {
	o := &models.Order{
		OrderNumber:        fmt.Sprintf("VHT%06d%010X", dbSeq.Add(1)%1000000, time.Now().UnixNano()&0xFFFFFFFFFF),
		CustomerName:       "John",
		CustomerPhone:      "9000000001",
		PickupAddress:      "A",
		DestinationAddress: "B",
		VehicleType:        models.VehicleBike,
	}
	for _, m := range mutators {
		m(o)
	}
	return o
}

// SeedOrder inserts an order built by NewOrder.
func SeedOrder(t testing.TB, d *db.DB, mutators ...func(*models.Order)) *models.Order {
	t.Helper()
	out, err := repository.NewOrderRepository(d).Create(context.Background(), NewOrder(mutators...))
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return out
}
