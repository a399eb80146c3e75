package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vahtook/internal/db"
	"vahtook/models"
)

const adminColumns = `id, username, email, password_hash, full_name, role, is_active, created_at`

type AdminRepository struct {
	db *db.DB
}

func NewAdminRepository(d *db.DB) *AdminRepository {
	return &AdminRepository{db: d}
}

// Create inserts a new admin. Role defaults to 'admin'.
// A taken username or email surfaces as an error matching db.IsDuplicate.
func (r *AdminRepository) Create(ctx context.Context, a *models.Admin) (*models.Admin, error) {
	if a == nil {
		return nil, errors.New("admin is nil")
	}
	if a.Role == "" {
		a.Role = models.RoleAdmin
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT INTO admins (username, email, password_hash, full_name, role, is_active, created_at)
VALUES (?,?,?,?,?,?,?)`, a.Username, a.Email, a.PasswordHash, a.FullName, string(a.Role), a.IsActive, now)
	if err != nil {
		if db.IsDuplicate(err) {
			return nil, fmt.Errorf("admin %s: %w", a.Username, db.ErrDuplicate)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *a
	out.ID = id
	out.CreatedAt = now
	return &out, nil
}

func (r *AdminRepository) GetByID(ctx context.Context, id int64) (*models.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = ?`, id)
}

// GetByLogin looks an admin up by email or username.
func (r *AdminRepository) GetByLogin(ctx context.Context, login string) (*models.Admin, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = ? OR username = ? ORDER BY id LIMIT 1`, login, login)
}

func (r *AdminRepository) getOne(ctx context.Context, query string, args ...any) (*models.Admin, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	a, err := scanAdmin(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *AdminRepository) List(ctx context.Context, limit, offset int) ([]models.Admin, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetActive enables or disables an admin account. Returns sql.ErrNoRows for an unknown id.
func (r *AdminRepository) SetActive(ctx context.Context, id int64, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE admins SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanAdmin(s rowScanner) (*models.Admin, error) {
	var a models.Admin
	var role string
	if err := s.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.FullName, &role, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Role = models.AdminRole(role)
	return &a, nil
}
