package events

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"vahtook/models"
)

type recorder struct{ got []Type }

func (r *recorder) OnConnected(Connected)           { r.got = append(r.got, TypeConnected) }
func (r *recorder) OnInitialOrders(InitialOrders)   { r.got = append(r.got, TypeInitialOrders) }
func (r *recorder) OnStatistics(Statistics)         { r.got = append(r.got, TypeStatistics) }
func (r *recorder) OnPeriodicUpdate(PeriodicUpdate) { r.got = append(r.got, TypePeriodicUpdate) }
func (r *recorder) OnNewOrder(NewOrder)             { r.got = append(r.got, TypeNewOrder) }
func (r *recorder) OnStatusChange(StatusChange)     { r.got = append(r.got, TypeStatusChange) }
func (r *recorder) OnServerShutdown(ServerShutdown) { r.got = append(r.got, TypeServerShutdown) }

func sampleEvents() []Event {
	o := models.Order{ID: 5, OrderNumber: "VHT123456ABCDEF0123", Status: models.OrderStatusDelivered, VehicleType: models.VehicleBike}
	stats := models.Statistics{Total: 1, Delivered: 1}
	return []Event{
		Connected{Message: "Connected to order updates"},
		InitialOrders{Orders: []models.Order{o}},
		Statistics{Stats: stats},
		PeriodicUpdate{RecentOrders: []models.Order{o}, Statistics: &stats},
		NewOrder{Order: o},
		StatusChange{Order: o},
		ServerShutdown{Message: "Server is shutting down"},
	}
}

func TestEncodeDecode_AllTypes(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 123e6, time.UTC)
	evs := sampleEvents()
	if len(evs) != len(Types) {
		t.Fatalf("sample set misses a type")
	}
	r := &recorder{}
	for i, ev := range evs {
		b, err := Encode(ev, at)
		if err != nil {
			t.Fatalf("encode %s: %v", ev.Type(), err)
		}
		got, gotAt, err := Decode(b)
		if err != nil {
			t.Fatalf("decode %s: %v", ev.Type(), err)
		}
		if got.Type() != Types[i] {
			t.Fatalf("type = %s, want %s", got.Type(), Types[i])
		}
		if !gotAt.Equal(at) {
			t.Fatalf("timestamp = %v, want %v", gotAt, at)
		}
		Dispatch(got, r)
	}
	if len(r.got) != len(Types) {
		t.Fatalf("dispatched %v", r.got)
	}
}

func TestEncode_EnvelopeShape(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	b, err := Encode(NewOrder{Order: models.Order{ID: 7, OrderNumber: "VHT000001AAAAAAAAAA"}}, at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "new_order" || raw["timestamp"] != "2024-05-01T10:00:00.000Z" {
		t.Fatalf("unexpected envelope: %s", b)
	}
	data := raw["data"].(map[string]any)
	order := data["order"].(map[string]any)
	if order["order_number"] != "VHT000001AAAAAAAAAA" {
		t.Fatalf("order not under data.order: %s", b)
	}
}

func TestPeriodicUpdate_OmitsMissingParts(t *testing.T) {
	b, err := Encode(PeriodicUpdate{RecentOrders: []models.Order{}}, time.Now())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(b), `"recent_orders":[]`) || strings.Contains(string(b), "statistics") {
		t.Fatalf("unexpected payload: %s", b)
	}
	ev, _, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pu := ev.(PeriodicUpdate)
	if pu.RecentOrders == nil || pu.Statistics != nil {
		t.Fatalf("decoded %+v", pu)
	}
}

func TestFrame(t *testing.T) {
	b, err := Frame(Connected{Message: "hi"}, time.Now())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	s := string(b)
	if !strings.HasPrefix(s, "data: {") || !strings.HasSuffix(s, "}\n\n") || strings.Count(s, "\n") != 2 {
		t.Fatalf("bad frame: %q", s)
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for garbage")
	}
	_, _, err := Decode([]byte(`{"type":"mystery","data":{},"timestamp":"2024-05-01T10:00:00.000Z"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}
