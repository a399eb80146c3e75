// Package events defines the typed messages pushed over the order event stream
// and their wire encoding.
//
// Every message travels in the same envelope:
//
//	{"type": "<type>", "data": <payload>, "timestamp": "<ISO8601>"}
//
// and is framed for SSE as "data: <envelope>\n\n".
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vahtook/models"
)

// Type is the envelope's type tag.
type Type string

const (
	TypeConnected      Type = "connected"
	TypeInitialOrders  Type = "initial_orders"
	TypeStatistics     Type = "statistics"
	TypePeriodicUpdate Type = "periodic_update"
	TypeNewOrder       Type = "new_order"
	TypeStatusChange   Type = "status_change"
	TypeServerShutdown Type = "server_shutdown"
)

// Types lists every event type.
var Types = []Type{
	TypeConnected,
	TypeInitialOrders,
	TypeStatistics,
	TypePeriodicUpdate,
	TypeNewOrder,
	TypeStatusChange,
	TypeServerShutdown,
}

// TimestampLayout is ISO8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Event is one of the concrete event types in this package. The set is closed.
type Event interface {
	Type() Type
	payload() any
	accept(h Handler)
}

// Handler receives decoded events, one method per event type. Implementations
// must handle every type, so adding a type breaks every consumer at compile time.
type Handler interface {
	OnConnected(Connected)
	OnInitialOrders(InitialOrders)
	OnStatistics(Statistics)
	OnPeriodicUpdate(PeriodicUpdate)
	OnNewOrder(NewOrder)
	OnStatusChange(StatusChange)
	OnServerShutdown(ServerShutdown)
}

// Dispatch calls the Handler method matching ev's type.
func Dispatch(ev Event, h Handler) {
	ev.accept(h)
}

// Connected acknowledges a freshly registered stream.
type Connected struct {
	Message string `json:"message"`
}

// InitialOrders is the recent-orders snapshot sent on registration. Its data is the bare list.
type InitialOrders struct {
	Orders []models.Order
}

// Statistics is the aggregate snapshot sent on registration. Its data is the bare object.
type Statistics struct {
	Stats models.Statistics
}

// PeriodicUpdate bundles the periodic snapshot. A nil field was not read this cycle
// and is left out of the payload.
type PeriodicUpdate struct {
	RecentOrders []models.Order
	Statistics   *models.Statistics
}

// NewOrder carries the full record of a created order.
type NewOrder struct {
	Order models.Order `json:"order"`
}

// StatusChange carries the full record of an order after a status transition.
type StatusChange struct {
	Order models.Order `json:"order"`
}

// ServerShutdown tells clients the server is going away on purpose.
type ServerShutdown struct {
	Message string `json:"message"`
}

func (Connected) Type() Type      { return TypeConnected }
func (InitialOrders) Type() Type  { return TypeInitialOrders }
func (Statistics) Type() Type     { return TypeStatistics }
func (PeriodicUpdate) Type() Type { return TypePeriodicUpdate }
func (NewOrder) Type() Type       { return TypeNewOrder }
func (StatusChange) Type() Type   { return TypeStatusChange }
func (ServerShutdown) Type() Type { return TypeServerShutdown }

func (e Connected) payload() any { return e }
func (e InitialOrders) payload() any {
	if e.Orders == nil {
		return []models.Order{}
	}
	return e.Orders
}
func (e Statistics) payload() any { return e.Stats }
func (e PeriodicUpdate) payload() any {
	data := map[string]any{}
	if e.RecentOrders != nil {
		data["recent_orders"] = e.RecentOrders
	}
	if e.Statistics != nil {
		data["statistics"] = e.Statistics
	}
	return data
}
func (e NewOrder) payload() any       { return e }
func (e StatusChange) payload() any   { return e }
func (e ServerShutdown) payload() any { return e }

func (e Connected) accept(h Handler)      { h.OnConnected(e) }
func (e InitialOrders) accept(h Handler)  { h.OnInitialOrders(e) }
func (e Statistics) accept(h Handler)     { h.OnStatistics(e) }
func (e PeriodicUpdate) accept(h Handler) { h.OnPeriodicUpdate(e) }
func (e NewOrder) accept(h Handler)       { h.OnNewOrder(e) }
func (e StatusChange) accept(h Handler)   { h.OnStatusChange(e) }
func (e ServerShutdown) accept(h Handler) { h.OnServerShutdown(e) }

// Envelope is the wire form shared by all events.
type Envelope struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Encode marshals ev into its envelope stamped with at.
func Encode(ev Event, at time.Time) ([]byte, error) {
	data, err := json.Marshal(ev.payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:      ev.Type(),
		Data:      data,
		Timestamp: at.UTC().Format(TimestampLayout),
	})
}

// Frame encodes ev and wraps it as one SSE message.
func Frame(ev Event, at time.Time) ([]byte, error) {
	b, err := Encode(ev, at)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(b) + 8)
	buf.WriteString("data: ")
	buf.Write(b)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// ErrUnknownType is returned by Decode for a well-formed envelope with an unrecognised tag.
var ErrUnknownType = errors.New("unknown event type")

// Decode parses one envelope. The returned time is the envelope timestamp,
// or the zero time when it is missing or malformed.
func Decode(b []byte) (Event, time.Time, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, time.Time{}, err
	}
	at, _ := time.Parse(time.RFC3339Nano, env.Timestamp)

	var ev Event
	var err error
	switch env.Type {
	case TypeConnected:
		var e Connected
		err = unmarshalData(env.Data, &e)
		ev = e
	case TypeInitialOrders:
		var e InitialOrders
		err = unmarshalData(env.Data, &e.Orders)
		ev = e
	case TypeStatistics:
		var e Statistics
		err = unmarshalData(env.Data, &e.Stats)
		ev = e
	case TypePeriodicUpdate:
		var raw struct {
			RecentOrders []models.Order     `json:"recent_orders"`
			Statistics   *models.Statistics `json:"statistics"`
		}
		err = unmarshalData(env.Data, &raw)
		ev = PeriodicUpdate{RecentOrders: raw.RecentOrders, Statistics: raw.Statistics}
	case TypeNewOrder:
		var e NewOrder
		err = unmarshalData(env.Data, &e)
		ev = e
	case TypeStatusChange:
		var e StatusChange
		err = unmarshalData(env.Data, &e)
		ev = e
	case TypeServerShutdown:
		var e ServerShutdown
		err = unmarshalData(env.Data, &e)
		ev = e
	default:
		return nil, at, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, at, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return ev, at, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
