package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"vahtook/models"
)

// Recent returns the latest orders by creation time, newest first.
func (r *OrderRepository) Recent(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanOrderRows(rows)
}

// ListByStatus returns orders in the given status, newest first. limit <= 0 means no limit.
func (r *OrderRepository) ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ? ORDER BY created_at DESC, id DESC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanOrderRows(rows)
}

// ListOrdersAdminParams represents filters and pagination for ListAdmin.
type ListOrdersAdminParams struct {
	Status      *models.OrderStatus
	Priority    *models.Priority
	VehicleType *models.VehicleType
	Search      string     // matches order number, customer name or phone
	CreatedFrom *time.Time // inclusive
	CreatedTo   *time.Time // exclusive
	SortBy      string     // one of sortableColumns; defaults to created_at
	SortAsc     bool
	Page        int
	PerPage     int
}

// Pagination describes one page of an admin listing.
type Pagination struct {
	CurrentPage  int   `json:"current_page"`
	TotalPages   int   `json:"total_pages"`
	TotalRecords int64 `json:"total_records"`
	PerPage      int   `json:"per_page"`
	HasNext      bool  `json:"has_next"`
	HasPrev      bool  `json:"has_prev"`
}

var sortableColumns = map[string]bool{
	"created_at":    true,
	"updated_at":    true,
	"order_number":  true,
	"customer_name": true,
	"status":        true,
	"priority":      true,
	"fare_amount":   true,
}

// ListAdmin returns one page of orders matching the filters, plus pagination totals.
func (r *OrderRepository) ListAdmin(ctx context.Context, p ListOrdersAdminParams) ([]models.Order, Pagination, error) {
	if p.PerPage <= 0 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	if !sortableColumns[p.SortBy] {
		p.SortBy = "created_at"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any
	if p.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, string(*p.Priority))
	}
	if p.VehicleType != nil {
		where = append(where, "vehicle_type = ?")
		args = append(args, string(*p.VehicleType))
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		pattern := "%" + s + "%"
		where = append(where, "(order_number LIKE ? OR customer_name LIKE ? OR customer_phone LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	if p.CreatedFrom != nil {
		where = append(where, "created_at >= ?")
		args = append(args, p.CreatedFrom.UTC())
	}
	if p.CreatedTo != nil {
		where = append(where, "created_at < ?")
		args = append(args, p.CreatedTo.UTC())
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+whereClause, args...).Scan(&total); err != nil {
		return nil, Pagination{}, err
	}

	dir := "DESC"
	if p.SortAsc {
		dir = "ASC"
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + whereClause +
		` ORDER BY ` + p.SortBy + ` ` + dir + `, id ` + dir + ` LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, p.PerPage, (p.Page-1)*p.PerPage)...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()
	list, err := r.scanOrderRows(rows)
	if err != nil {
		return nil, Pagination{}, err
	}

	totalPages := int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	return list, Pagination{
		CurrentPage:  p.Page,
		TotalPages:   totalPages,
		TotalRecords: total,
		PerPage:      p.PerPage,
		HasNext:      p.Page < totalPages,
		HasPrev:      p.Page > 1,
	}, nil
}

// Statistics counts orders in total, per status, and created since midnight UTC.
func (r *OrderRepository) Statistics(ctx context.Context) (*models.Statistics, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stats := &models.Statistics{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.Add(models.OrderStatus(status), n)
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	now := r.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE created_at >= ?`, midnight).Scan(&stats.Today); err != nil {
		return nil, err
	}
	return stats, nil
}

// scanOrderRows is a helper to scan rows into Order objects.
func (r *OrderRepository) scanOrderRows(rows *sql.Rows) ([]models.Order, error) {
	out := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
