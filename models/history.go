package models

import "time"

// StatusHistory is one immutable row of an order's status audit trail.
// PreviousStatus is nil only for a record that has no predecessor.
type StatusHistory struct {
	ID             int64        `db:"id" json:"id"`
	OrderID        int64        `db:"order_id" json:"order_id"`
	PreviousStatus *OrderStatus `db:"previous_status" json:"previous_status"`
	NewStatus      OrderStatus  `db:"new_status" json:"new_status"`
	AdminID        int64        `db:"changed_by_admin_id" json:"changed_by_admin_id"`
	AdminName      string       `db:"changed_by_admin_name" json:"changed_by_admin_name"`
	Reason         *string      `db:"change_reason" json:"change_reason"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// Statistics are aggregate order counts used by dashboards.
type Statistics struct {
	Total     int64 `json:"total"`
	New       int64 `json:"new"`
	Confirmed int64 `json:"confirmed"`
	Assigned  int64 `json:"assigned"`
	PickedUp  int64 `json:"picked_up"`
	InTransit int64 `json:"in_transit"`
	Delivered int64 `json:"delivered"`
	Cancelled int64 `json:"cancelled"`
	Today     int64 `json:"today"`
}

// Add increments the per-status counter for s by n.
func (s *Statistics) Add(status OrderStatus, n int64) {
	switch status {
	case OrderStatusNew:
		s.New += n
	case OrderStatusConfirmed:
		s.Confirmed += n
	case OrderStatusAssigned:
		s.Assigned += n
	case OrderStatusPickedUp:
		s.PickedUp += n
	case OrderStatusInTransit:
		s.InTransit += n
	case OrderStatusDelivered:
		s.Delivered += n
	case OrderStatusCancelled:
		s.Cancelled += n
	}
}
