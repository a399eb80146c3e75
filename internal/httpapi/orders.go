package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/internal/auth"
	"vahtook/internal/orders"
	"vahtook/models"
	"vahtook/repository"
)

type createdOrder struct {
	OrderID     int64  `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.NewOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orders.CreateOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Order created successfully", createdOrder{o.ID, o.OrderNumber})
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	var req orders.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orders.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Booking confirmed successfully", createdOrder{o.ID, o.OrderNumber})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, status.Errorf(codes.InvalidArgument, "invalid order id %q", r.PathValue(name))
	}
	return id, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "invalid %s %q", key, v)
	}
	return n, nil
}

// actorOf returns the admin behind the request for history attribution.
func actorOf(r *http.Request) orders.Actor {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		return orders.Actor{}
	}
	name := p.FullName
	if name == "" {
		name = p.Username
	}
	return orders.Actor{ID: p.AdminID, Name: name}
}

// listParams reads page, limit, status, priority, vehicle_type, search, date_from,
// date_to (YYYY-MM-DD, both inclusive), sort_by and sort_order.
func listParams(r *http.Request) (repository.ListOrdersAdminParams, error) {
	q := r.URL.Query()
	var p repository.ListOrdersAdminParams
	var err error
	if p.Page, err = queryInt(r, "page"); err != nil {
		return p, err
	}
	if p.PerPage, err = queryInt(r, "limit"); err != nil {
		return p, err
	}
	if v := q.Get("status"); v != "" {
		st := models.OrderStatus(v)
		p.Status = &st
	}
	if v := q.Get("priority"); v != "" {
		pr := models.Priority(v)
		p.Priority = &pr
	}
	if v := q.Get("vehicle_type"); v != "" {
		vt := models.VehicleType(v)
		p.VehicleType = &vt
	}
	p.Search = strings.TrimSpace(q.Get("search"))
	if v := q.Get("date_from"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return p, status.Errorf(codes.InvalidArgument, "invalid date_from %q", v)
		}
		p.CreatedFrom = &d
	}
	if v := q.Get("date_to"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return p, status.Errorf(codes.InvalidArgument, "invalid date_to %q", v)
		}
		d = d.AddDate(0, 0, 1)
		p.CreatedTo = &d
	}
	p.SortBy = q.Get("sort_by")
	p.SortAsc = strings.EqualFold(q.Get("sort_order"), "asc")
	return p, nil
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	p, err := listParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, page, err := s.orders.List(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"orders": list, "pagination": page})
}

func (s *Server) recentOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.orders.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"orders": list})
}

func (s *Server) statistics(w http.ResponseWriter, r *http.Request) {
	st, err := s.orders.Statistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"statistics": st})
}

func (s *Server) orderLookup(w http.ResponseWriter, r *http.Request) {
	key, sub := r.PathValue("key"), r.PathValue("sub")
	switch {
	case key == "status":
		s.ordersByStatus(w, r, models.OrderStatus(sub))
	case key == "number":
		s.orderByNumber(w, r, sub)
	case sub == "history":
		s.orderHistory(w, r)
	default:
		writeFail(w, http.StatusNotFound, "Route not found")
	}
}

func (s *Server) ordersByStatus(w http.ResponseWriter, r *http.Request, st models.OrderStatus) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.orders.ByStatus(r.Context(), st, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"orders": list, "status": st})
}

func (s *Server) orderByNumber(w http.ResponseWriter, r *http.Request, number string) {
	o, err := s.orders.GetByNumber(r.Context(), number)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"order": o})
}

func (s *Server) orderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "key")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.orders.History(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"history": h})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orders.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]any{"order": o})
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var u repository.OrderUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orders.UpdateDetails(r.Context(), id, u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order updated successfully", map[string]any{"order": o})
}

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status"`
	Reason *string            `json:"reason"`
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.orders.UpdateStatus(r.Context(), id, req.Status, actorOf(r), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order status updated successfully", t)
}

type cancelRequest struct {
	Reason *string `json:"reason"`
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	t, err := s.orders.Cancel(r.Context(), id, actorOf(r), req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Order cancelled successfully", t)
}
