package orders

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/models"
)

// BookingParty is one side of the public booking form.
type BookingParty struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

// BookingRequest is the payload posted by the public booking page.
type BookingRequest struct {
	Address struct {
		Pickup      BookingParty `json:"pickup"`
		Destination BookingParty `json:"destination"`
	} `json:"address"`
	SelectedOption string `json:"selectedOption"`
	VehicleType    string `json:"vehicleType"`
	Value          string `json:"value"`
}

// vehicleAliases maps the booking page's vehicle keys onto stored categories.
var vehicleAliases = map[string]models.VehicleType{
	"bike":        models.VehicleBike,
	"auto":        models.VehicleThreeWheeler,
	"truck":       models.VehicleTruck,
	"fourWheeler": models.VehicleFourWheeler,
}

// VehicleFromAlias resolves a booking page vehicle key. Unknown keys pass through unchanged.
func VehicleFromAlias(key string) models.VehicleType {
	if v, ok := vehicleAliases[key]; ok {
		return v
	}
	return models.VehicleType(key)
}

// ToNewOrder converts a booking form into an order request.
// The sender becomes the customer and the destination contact the receiver.
func (b BookingRequest) ToNewOrder() (NewOrderRequest, error) {
	p, d := b.Address.Pickup, b.Address.Destination
	if strings.TrimSpace(p.Location) == "" || strings.TrimSpace(d.Location) == "" || strings.TrimSpace(b.VehicleType) == "" {
		return NewOrderRequest{}, status.Error(codes.InvalidArgument, "Missing required booking information")
	}
	req := NewOrderRequest{
		CustomerName:       p.Name,
		CustomerPhone:      p.Phone,
		PickupAddress:      p.Location,
		DestinationAddress: d.Location,
		VehicleType:        VehicleFromAlias(strings.TrimSpace(b.VehicleType)),
		Priority:           models.PriorityNormal,
		PaymentMethod:      models.PaymentCash,
	}
	if name := strings.TrimSpace(d.Name); name != "" {
		req.ReceiverName = &name
	}
	if phone := strings.TrimSpace(d.Phone); phone != "" {
		req.ReceiverPhone = &phone
	}
	if opt := strings.TrimSpace(b.SelectedOption); opt != "" {
		goods := opt
		desc := opt
		if v := strings.TrimSpace(b.Value); v != "" {
			desc += ": " + v
		}
		req.GoodsType = &goods
		req.PackageDescription = &desc
	}
	return req, nil
}

// CreateBooking stores a booking form as a new order with fare 0.
func (s *Service) CreateBooking(ctx context.Context, b BookingRequest) (*models.Order, error) {
	req, err := b.ToNewOrder()
	if err != nil {
		return nil, err
	}
	return s.CreateOrder(ctx, req)
}
