package orders

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/internal/db"
	"vahtook/internal/events"
	"vahtook/internal/geo"
	"vahtook/internal/logger"
	"vahtook/internal/metrics"
	"vahtook/models"
	"vahtook/repository"
)

// numberAttempts bounds order number generation when a collision is reported by the store.
const numberAttempts = 3

// Notifier is told about committed order changes. *hub.Hub satisfies it.
type Notifier interface {
	NotifyOrderChange(ctx context.Context, orderID int64, typ events.Type)
}

// Actor is the admin a status change is attributed to.
type Actor struct {
	ID   int64
	Name string
}

// Transition is the result of a status update.
type Transition struct {
	Previous models.OrderStatus `json:"previousStatus"`
	New      models.OrderStatus `json:"newStatus"`
	Changed  bool               `json:"-"`
}

// Service owns order creation and the status state machine.
type Service struct {
	repo      repository.OrderRepositoryI
	notifier  Notifier
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newNumber func(time.Time) string
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		s.log = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithNumberGenerator replaces NewOrderNumber.
func WithNumberGenerator(fn func(time.Time) string) Option {
	return func(s *Service) {
		s.newNumber = fn
	}
}

// NewService creates a Service. A nil notifier disables broadcasts.
func NewService(repo repository.OrderRepositoryI, n Notifier, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		notifier:  n,
		now:       time.Now,
		newNumber: NewOrderNumber,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewOrderRequest carries the fields accepted when an order is created.
type NewOrderRequest struct {
	CustomerName         string               `json:"customer_name"`
	CustomerPhone        string               `json:"customer_phone"`
	CustomerEmail        *string              `json:"customer_email"`
	PickupAddress        string               `json:"pickup_address"`
	PickupLatitude       *float64             `json:"pickup_latitude"`
	PickupLongitude      *float64             `json:"pickup_longitude"`
	DestinationAddress   string               `json:"destination_address"`
	DestinationLatitude  *float64             `json:"destination_latitude"`
	DestinationLongitude *float64             `json:"destination_longitude"`
	ReceiverName         *string              `json:"receiver_name"`
	ReceiverPhone        *string              `json:"receiver_phone"`
	VehicleType          models.VehicleType   `json:"vehicle_type"`
	GoodsType            *string              `json:"goods_type"`
	PackageDescription   *string              `json:"package_description"`
	PackageWeight        *float64             `json:"package_weight"`
	PackageDimensions    *string              `json:"package_dimensions"`
	EstimatedDistance    *float64             `json:"estimated_distance"`
	EstimatedDuration    *int64               `json:"estimated_duration"`
	FareAmount           float64              `json:"fare_amount"`
	PaymentMethod        models.PaymentMethod `json:"payment_method"`
	Priority             models.Priority      `json:"priority"`
	Notes                *string              `json:"notes"`
}

func (r *NewOrderRequest) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"customer_name", r.CustomerName},
		{"customer_phone", r.CustomerPhone},
		{"pickup_address", r.PickupAddress},
		{"destination_address", r.DestinationAddress},
		{"vehicle_type", string(r.VehicleType)},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return status.Errorf(codes.InvalidArgument, "%s is required", f.name)
		}
	}
	if !r.VehicleType.Valid() {
		return status.Errorf(codes.InvalidArgument, "invalid vehicle_type %q", r.VehicleType)
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return status.Errorf(codes.InvalidArgument, "invalid priority %q", r.Priority)
	}
	if r.PaymentMethod != "" && !r.PaymentMethod.Valid() {
		return status.Errorf(codes.InvalidArgument, "invalid payment_method %q", r.PaymentMethod)
	}
	if r.FareAmount < 0 {
		return status.Error(codes.InvalidArgument, "fare_amount must not be negative")
	}
	if r.PackageWeight != nil && *r.PackageWeight < 0 {
		return status.Error(codes.InvalidArgument, "package_weight must not be negative")
	}
	if err := checkPair("pickup", r.PickupLatitude, r.PickupLongitude); err != nil {
		return err
	}
	return checkPair("destination", r.DestinationLatitude, r.DestinationLongitude)
}

func checkPair(name string, lat, lng *float64) error {
	if lat == nil && lng == nil {
		return nil
	}
	if lat == nil || lng == nil {
		return status.Errorf(codes.InvalidArgument, "%s coordinates need both latitude and longitude", name)
	}
	if !geo.ValidCoordinate(*lat, *lng) {
		return status.Errorf(codes.InvalidArgument, "%s coordinates out of range", name)
	}
	return nil
}

func (r *NewOrderRequest) toModel() *models.Order {
	o := &models.Order{
		CustomerName:         strings.TrimSpace(r.CustomerName),
		CustomerPhone:        strings.TrimSpace(r.CustomerPhone),
		CustomerEmail:        r.CustomerEmail,
		PickupAddress:        strings.TrimSpace(r.PickupAddress),
		PickupLatitude:       r.PickupLatitude,
		PickupLongitude:      r.PickupLongitude,
		DestinationAddress:   strings.TrimSpace(r.DestinationAddress),
		DestinationLatitude:  r.DestinationLatitude,
		DestinationLongitude: r.DestinationLongitude,
		ReceiverName:         r.ReceiverName,
		ReceiverPhone:        r.ReceiverPhone,
		VehicleType:          r.VehicleType,
		GoodsType:            r.GoodsType,
		PackageDescription:   r.PackageDescription,
		PackageWeight:        r.PackageWeight,
		PackageDimensions:    r.PackageDimensions,
		EstimatedDistance:    r.EstimatedDistance,
		EstimatedDuration:    r.EstimatedDuration,
		FareAmount:           r.FareAmount,
		PaymentMethod:        r.PaymentMethod,
		Priority:             r.Priority,
		Notes:                r.Notes,
	}
	if o.EstimatedDistance == nil && o.PickupLatitude != nil && o.DestinationLatitude != nil {
		km := geo.Round2(geo.HaversineKm(*o.PickupLatitude, *o.PickupLongitude, *o.DestinationLatitude, *o.DestinationLongitude))
		o.EstimatedDistance = &km
	}
	return o
}

// CreateOrder validates req, stores it as a new order and broadcasts new_order.
func (s *Service) CreateOrder(ctx context.Context, req NewOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	o := req.toModel()
	var created *models.Order
	for attempt := 0; attempt < numberAttempts && created == nil; attempt++ {
		o.OrderNumber = s.newNumber(s.now())
		c, err := s.repo.Create(ctx, o)
		switch {
		case err == nil:
			created = c
		case errors.Is(err, db.ErrDuplicate):
			s.log.Warn(logger.RequestIDFrom(ctx), "order.create", "order number collision, retrying",
				map[string]any{"order_number": o.OrderNumber, "attempt": attempt + 1})
		default:
			s.log.Error(logger.RequestIDFrom(ctx), "order.create", "failed to create order", err, nil)
			return nil, status.Errorf(codes.Internal, "failed to create order: %v", err)
		}
	}
	if created == nil {
		return nil, status.Error(codes.AlreadyExists, "could not allocate a unique order number")
	}
	s.metrics.OrderCreated(string(created.VehicleType))
	s.log.Info(logger.RequestIDFrom(ctx), "order.create", "order created",
		map[string]any{"order_id": created.ID, "order_number": created.OrderNumber})
	s.notify(ctx, created.ID, events.TypeNewOrder)
	return created, nil
}

// UpdateStatus moves an order to next and records the change in its history.
// Any transition between known statuses is allowed. Setting the current status again is a
// no-op that writes no history and broadcasts nothing.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next models.OrderStatus, actor Actor, reason *string) (*Transition, error) {
	if next == "" {
		return nil, status.Error(codes.InvalidArgument, "Status is required")
	}
	if !next.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "Invalid status %q", next)
	}
	if actor.ID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "actor is required")
	}
	if reason != nil {
		if r := strings.TrimSpace(*reason); r == "" {
			reason = nil
		} else {
			reason = &r
		}
	}
	prev, err := s.repo.ApplyStatusChange(ctx, repository.StatusChange{
		OrderID:   orderID,
		NewStatus: next,
		AdminID:   actor.ID,
		AdminName: actor.Name,
		Reason:    reason,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.Errorf(codes.NotFound, "order %d not found", orderID)
	}
	if err != nil {
		s.log.Error(logger.RequestIDFrom(ctx), "order.status", "status update failed", err,
			map[string]any{"order_id": orderID, "status": next})
		return nil, status.Errorf(codes.Internal, "failed to update order status: %v", err)
	}
	t := &Transition{Previous: prev, New: next, Changed: prev != next}
	if !t.Changed {
		return t, nil
	}
	s.metrics.StatusTransition(string(prev), string(next))
	s.log.Info(logger.RequestIDFrom(ctx), "order.status", "order status updated", map[string]any{
		"order_id": orderID, "from": prev, "to": next, "admin_id": actor.ID,
	})
	s.notify(ctx, orderID, events.TypeStatusChange)
	return t, nil
}

// Cancel transitions an order to cancelled. Orders are never deleted.
func (s *Service) Cancel(ctx context.Context, orderID int64, actor Actor, reason *string) (*Transition, error) {
	if reason == nil || strings.TrimSpace(*reason) == "" {
		r := "Order cancelled by admin"
		reason = &r
	}
	return s.UpdateStatus(ctx, orderID, models.OrderStatusCancelled, actor, reason)
}

// UpdateDetails applies an edit of the non-status fields and returns the stored order.
func (s *Service) UpdateDetails(ctx context.Context, orderID int64, u repository.OrderUpdate) (*models.Order, error) {
	if u.Empty() {
		return nil, status.Error(codes.InvalidArgument, "No valid fields to update")
	}
	if u.VehicleType != nil && !u.VehicleType.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid vehicle_type %q", *u.VehicleType)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid priority %q", *u.Priority)
	}
	if u.PaymentMethod != nil && !u.PaymentMethod.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "invalid payment_method %q", *u.PaymentMethod)
	}
	if u.FareAmount != nil && *u.FareAmount < 0 {
		return nil, status.Error(codes.InvalidArgument, "fare_amount must not be negative")
	}
	err := s.repo.Update(ctx, orderID, u)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.Errorf(codes.NotFound, "order %d not found", orderID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to update order: %v", err)
	}
	return s.Get(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, orderID int64) (*models.Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to get order: %v", err)
	}
	if o == nil {
		return nil, status.Errorf(codes.NotFound, "order %d not found", orderID)
	}
	return o, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	o, err := s.repo.GetByOrderNumber(ctx, number)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to get order: %v", err)
	}
	if o == nil {
		return nil, status.Errorf(codes.NotFound, "order %s not found", number)
	}
	return o, nil
}

// List returns one filtered page of orders.
func (s *Service) List(ctx context.Context, p repository.ListOrdersAdminParams) ([]models.Order, repository.Pagination, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, repository.Pagination{}, status.Errorf(codes.InvalidArgument, "invalid status %q", *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return nil, repository.Pagination{}, status.Errorf(codes.InvalidArgument, "invalid priority %q", *p.Priority)
	}
	if p.VehicleType != nil && !p.VehicleType.Valid() {
		return nil, repository.Pagination{}, status.Errorf(codes.InvalidArgument, "invalid vehicle_type %q", *p.VehicleType)
	}
	list, page, err := s.repo.ListAdmin(ctx, p)
	if err != nil {
		return nil, repository.Pagination{}, status.Errorf(codes.Internal, "failed to list orders: %v", err)
	}
	return list, page, nil
}

// Recent returns the newest orders. limit is clamped to 1..100, zero meaning 10.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	list, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to get recent orders: %v", err)
	}
	return list, nil
}

// ByStatus returns orders in st, newest first. limit <= 0 returns all of them.
func (s *Service) ByStatus(ctx context.Context, st models.OrderStatus, limit int) ([]models.Order, error) {
	if !st.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "Invalid status %q", st)
	}
	list, err := s.repo.ListByStatus(ctx, st, limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to get orders by status: %v", err)
	}
	return list, nil
}

func (s *Service) Statistics(ctx context.Context) (*models.Statistics, error) {
	st, err := s.repo.Statistics(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to get statistics: %v", err)
	}
	return st, nil
}

// History returns the status trail of an existing order, newest first.
func (s *Service) History(ctx context.Context, orderID int64) ([]models.StatusHistory, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	h, err := s.repo.StatusHistory(ctx, orderID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to get status history: %v", err)
	}
	return h, nil
}

// notify runs after commit. Broadcast failures stay inside the notifier.
func (s *Service) notify(ctx context.Context, orderID int64, typ events.Type) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyOrderChange(context.WithoutCancel(ctx), orderID, typ)
}
