package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vahtook/internal/db"
	"vahtook/models"
)

const orderColumns = `id, order_number, customer_name, customer_phone, customer_email,
pickup_address, pickup_latitude, pickup_longitude,
destination_address, destination_latitude, destination_longitude,
receiver_name, receiver_phone, vehicle_type, goods_type,
package_description, package_weight, package_dimensions,
estimated_distance, estimated_duration, fare_amount, payment_method, priority, status,
notes, admin_notes, driver_id, driver_name, driver_phone, pickup_time, delivery_time,
created_at, updated_at`

// OrderRepository is the Order Store: the orders table plus its status history.
type OrderRepository struct {
	db  *db.DB
	now func() time.Time
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(d *db.DB) *OrderRepository {
	return &OrderRepository{db: d, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new order with status 'new'. Priority and payment method fall back to
// normal and cash. The stored row is read back and returned.
// A taken order number surfaces as an error matching db.IsDuplicate.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	if o.Priority == "" {
		o.Priority = models.PriorityNormal
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = models.PaymentCash
	}
	o.Status = models.OrderStatusNew
	now := r.now()
	o.CreatedAt, o.UpdatedAt = now, now

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO orders (
order_number, customer_name, customer_phone, customer_email,
pickup_address, pickup_latitude, pickup_longitude,
destination_address, destination_latitude, destination_longitude,
receiver_name, receiver_phone, vehicle_type, goods_type,
package_description, package_weight, package_dimensions,
estimated_distance, estimated_duration, fare_amount, payment_method, priority, status,
notes, created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.OrderNumber, o.CustomerName, o.CustomerPhone, o.CustomerEmail,
		o.PickupAddress, o.PickupLatitude, o.PickupLongitude,
		o.DestinationAddress, o.DestinationLatitude, o.DestinationLongitude,
		o.ReceiverName, o.ReceiverPhone, string(o.VehicleType), o.GoodsType,
		o.PackageDescription, o.PackageWeight, o.PackageDimensions,
		o.EstimatedDistance, o.EstimatedDuration, o.FareAmount, string(o.PaymentMethod), string(o.Priority), string(o.Status),
		o.Notes, now, now)
	if err != nil {
		if db.IsDuplicate(err) {
			return nil, fmt.Errorf("order number %s: %w", o.OrderNumber, db.ErrDuplicate)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	o2, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o2 == nil {
		return nil, fmt.Errorf("created order not found: id=%d", id)
	}
	return o2, nil
}

// GetByID fetches an order by its ID. A missing order yields (nil, nil).
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// GetByOrderNumber fetches an order by its business key.
func (r *OrderRepository) GetByOrderNumber(ctx context.Context, number string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// StatusChange is one status transition to apply atomically with its audit row.
type StatusChange struct {
	OrderID   int64
	NewStatus models.OrderStatus
	AdminID   int64
	AdminName string
	Reason    *string
}

// ApplyStatusChange reads the current status, writes the new one and appends a history
// row in a single transaction. It returns the previous status. A missing order yields
// sql.ErrNoRows and nothing is written. When the status is unchanged nothing is written
// and the current status is returned.
func (r *OrderRepository) ApplyStatusChange(ctx context.Context, c StatusChange) (models.OrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var previous models.OrderStatus
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var cur string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`+r.db.ForUpdate(), c.OrderID).Scan(&cur)
		if err != nil {
			return err
		}
		previous = models.OrderStatus(cur)
		if previous == c.NewStatus {
			return nil
		}
		now := r.now()
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, string(c.NewStatus), now, c.OrderID); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO order_status_history
(order_id, previous_status, new_status, changed_by_admin_id, changed_by_admin_name, change_reason, created_at)
VALUES (?,?,?,?,?,?,?)`, c.OrderID, cur, string(c.NewStatus), c.AdminID, c.AdminName, c.Reason, now); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// OrderUpdate carries the detail fields an admin may edit. Nil fields are left untouched.
// Status is deliberately absent.
type OrderUpdate struct {
	CustomerName       *string              `json:"customer_name"`
	CustomerPhone      *string              `json:"customer_phone"`
	CustomerEmail      *string              `json:"customer_email"`
	PickupAddress      *string              `json:"pickup_address"`
	DestinationAddress *string              `json:"destination_address"`
	VehicleType        *models.VehicleType  `json:"vehicle_type"`
	PackageDescription *string              `json:"package_description"`
	PackageWeight      *float64             `json:"package_weight"`
	PackageDimensions  *string              `json:"package_dimensions"`
	EstimatedDistance  *float64             `json:"estimated_distance"`
	EstimatedDuration  *int64               `json:"estimated_duration"`
	FareAmount         *float64             `json:"fare_amount"`
	Priority           *models.Priority     `json:"priority"`
	PaymentMethod      *models.PaymentMethod `json:"payment_method"`
	DriverID           *int64               `json:"driver_id"`
	DriverName         *string              `json:"driver_name"`
	DriverPhone        *string              `json:"driver_phone"`
	PickupTime         *time.Time           `json:"pickup_time"`
	DeliveryTime       *time.Time           `json:"delivery_time"`
	Notes              *string              `json:"notes"`
	AdminNotes         *string              `json:"admin_notes"`
}

// assignments returns the SET fragments and arguments for the non-nil fields.
func (u OrderUpdate) assignments() ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.CustomerName != nil {
		add("customer_name", *u.CustomerName)
	}
	if u.CustomerPhone != nil {
		add("customer_phone", *u.CustomerPhone)
	}
	if u.CustomerEmail != nil {
		add("customer_email", *u.CustomerEmail)
	}
	if u.PickupAddress != nil {
		add("pickup_address", *u.PickupAddress)
	}
	if u.DestinationAddress != nil {
		add("destination_address", *u.DestinationAddress)
	}
	if u.VehicleType != nil {
		add("vehicle_type", string(*u.VehicleType))
	}
	if u.PackageDescription != nil {
		add("package_description", *u.PackageDescription)
	}
	if u.PackageWeight != nil {
		add("package_weight", *u.PackageWeight)
	}
	if u.PackageDimensions != nil {
		add("package_dimensions", *u.PackageDimensions)
	}
	if u.EstimatedDistance != nil {
		add("estimated_distance", *u.EstimatedDistance)
	}
	if u.EstimatedDuration != nil {
		add("estimated_duration", *u.EstimatedDuration)
	}
	if u.FareAmount != nil {
		add("fare_amount", *u.FareAmount)
	}
	if u.Priority != nil {
		add("priority", string(*u.Priority))
	}
	if u.PaymentMethod != nil {
		add("payment_method", string(*u.PaymentMethod))
	}
	if u.DriverID != nil {
		add("driver_id", *u.DriverID)
	}
	if u.DriverName != nil {
		add("driver_name", *u.DriverName)
	}
	if u.DriverPhone != nil {
		add("driver_phone", *u.DriverPhone)
	}
	if u.PickupTime != nil {
		add("pickup_time", u.PickupTime.UTC())
	}
	if u.DeliveryTime != nil {
		add("delivery_time", u.DeliveryTime.UTC())
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.AdminNotes != nil {
		add("admin_notes", *u.AdminNotes)
	}
	return sets, args
}

// Empty reports whether the update carries no fields.
func (u OrderUpdate) Empty() bool {
	sets, _ := u.assignments()
	return len(sets) == 0
}

// Update applies the non-nil fields of u and bumps updated_at.
// It returns sql.ErrNoRows when the order does not exist.
func (r *OrderRepository) Update(ctx context.Context, id int64, u OrderUpdate) error {
	sets, args := u.assignments()
	if len(sets) == 0 {
		return errors.New("no valid fields to update")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StatusHistory returns the audit trail of an order, newest first.
func (r *OrderRepository) StatusHistory(ctx context.Context, orderID int64) ([]models.StatusHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, previous_status, new_status, changed_by_admin_id, changed_by_admin_name, change_reason, created_at
FROM order_status_history WHERE order_id = ? ORDER BY created_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.StatusHistory{}
	for rows.Next() {
		var h models.StatusHistory
		var prev sql.NullString
		var next string
		if err := rows.Scan(&h.ID, &h.OrderID, &prev, &next, &h.AdminID, &h.AdminName, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		if prev.Valid {
			v := models.OrderStatus(prev.String)
			h.PreviousStatus = &v
		}
		h.NewStatus = models.OrderStatus(next)
		out = append(out, h)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*models.Order, error) {
	var o models.Order
	var vehicle, payment, priority, status string
	err := s.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&o.PickupAddress, &o.PickupLatitude, &o.PickupLongitude,
		&o.DestinationAddress, &o.DestinationLatitude, &o.DestinationLongitude,
		&o.ReceiverName, &o.ReceiverPhone, &vehicle, &o.GoodsType,
		&o.PackageDescription, &o.PackageWeight, &o.PackageDimensions,
		&o.EstimatedDistance, &o.EstimatedDuration, &o.FareAmount, &payment, &priority, &status,
		&o.Notes, &o.AdminNotes, &o.DriverID, &o.DriverName, &o.DriverPhone, &o.PickupTime, &o.DeliveryTime,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.VehicleType = models.VehicleType(vehicle)
	o.PaymentMethod = models.PaymentMethod(payment)
	o.Priority = models.Priority(priority)
	o.Status = models.OrderStatus(status)
	return &o, nil
}
