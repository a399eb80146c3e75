package models

import "time"

// AdminRole is the permission level of an admin account.
type AdminRole string

const (
	RoleSuperAdmin AdminRole = "super_admin"
	RoleAdmin      AdminRole = "admin"
	RoleOperator   AdminRole = "operator"
)

// Admin is an operator of the admin panel. PasswordHash never leaves the server.
type Admin struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         AdminRole `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// NewAdmin creates an active admin model with Role preset to "admin".
func NewAdmin(username, email, fullName string) *Admin {
	return &Admin{Username: username, Email: email, FullName: fullName, Role: RoleAdmin, IsActive: true}
}
