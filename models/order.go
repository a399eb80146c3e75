package models

import "time"

// OrderStatus represents the current progress of an order.
// The set is ordered for display but transitions between any two values are allowed.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusAssigned  OrderStatus = "assigned"
	OrderStatusPickedUp  OrderStatus = "picked_up"
	OrderStatusInTransit OrderStatus = "in_transit"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusConfirmed,
	OrderStatusAssigned,
	OrderStatusPickedUp,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether s is one of the enumerated statuses.
func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// VehicleType is the vehicle category requested for a booking.
type VehicleType string

const (
	VehicleBike         VehicleType = "bike"
	VehicleThreeWheeler VehicleType = "three_wheeler"
	VehicleFourWheeler  VehicleType = "four_wheeler"
	VehicleTruck        VehicleType = "truck"
)

// Valid reports whether v is a known vehicle category.
func (v VehicleType) Valid() bool {
	switch v {
	case VehicleBike, VehicleThreeWheeler, VehicleFourWheeler, VehicleTruck:
		return true
	}
	return false
}

// Priority of an order. Defaults to normal.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// PaymentMethod of an order. Defaults to cash.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentUPI    PaymentMethod = "upi"
	PaymentWallet PaymentMethod = "wallet"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentUPI, PaymentWallet:
		return true
	}
	return false
}

// Order is a single logistics booking.
// Nullable columns are pointers so that null and zero stay distinguishable.
type Order struct {
	ID          int64  `db:"id" json:"id"`
	OrderNumber string `db:"order_number" json:"order_number"`

	CustomerName  string  `db:"customer_name" json:"customer_name"`
	CustomerPhone string  `db:"customer_phone" json:"customer_phone"`
	CustomerEmail *string `db:"customer_email" json:"customer_email"`

	PickupAddress        string   `db:"pickup_address" json:"pickup_address"`
	PickupLatitude       *float64 `db:"pickup_latitude" json:"pickup_latitude"`
	PickupLongitude      *float64 `db:"pickup_longitude" json:"pickup_longitude"`
	DestinationAddress   string   `db:"destination_address" json:"destination_address"`
	DestinationLatitude  *float64 `db:"destination_latitude" json:"destination_latitude"`
	DestinationLongitude *float64 `db:"destination_longitude" json:"destination_longitude"`

	ReceiverName  *string `db:"receiver_name" json:"receiver_name"`
	ReceiverPhone *string `db:"receiver_phone" json:"receiver_phone"`

	VehicleType        VehicleType `db:"vehicle_type" json:"vehicle_type"`
	GoodsType          *string     `db:"goods_type" json:"goods_type"`
	PackageDescription *string     `db:"package_description" json:"package_description"`
	PackageWeight      *float64    `db:"package_weight" json:"package_weight"`
	PackageDimensions  *string     `db:"package_dimensions" json:"package_dimensions"`

	// EstimatedDistance is in kilometres, EstimatedDuration in minutes.
	EstimatedDistance *float64      `db:"estimated_distance" json:"estimated_distance"`
	EstimatedDuration *int64        `db:"estimated_duration" json:"estimated_duration"`
	FareAmount        float64       `db:"fare_amount" json:"fare_amount"`
	PaymentMethod     PaymentMethod `db:"payment_method" json:"payment_method"`
	Priority          Priority      `db:"priority" json:"priority"`
	Status            OrderStatus   `db:"status" json:"status"`

	Notes      *string `db:"notes" json:"notes"`
	AdminNotes *string `db:"admin_notes" json:"admin_notes"`

	DriverID     *int64     `db:"driver_id" json:"driver_id"`
	DriverName   *string    `db:"driver_name" json:"driver_name"`
	DriverPhone  *string    `db:"driver_phone" json:"driver_phone"`
	PickupTime   *time.Time `db:"pickup_time" json:"pickup_time"`
	DeliveryTime *time.Time `db:"delivery_time" json:"delivery_time"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
