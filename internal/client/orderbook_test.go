package client

import (
	"reflect"
	"testing"

	"vahtook/internal/events"
	"vahtook/models"
)

func order(id int64, st models.OrderStatus) models.Order {
	return models.Order{ID: id, OrderNumber: "VHT" + string(rune('A'+id)), Status: st}
}

func ids(list []models.Order) []int64 {
	out := make([]int64, len(list))
	for i, o := range list {
		out[i] = o.ID
	}
	return out
}

func TestOrderBook_InitialOrdersCapped(t *testing.T) {
	b := NewOrderBook(3)
	b.OnInitialOrders(events.InitialOrders{Orders: []models.Order{
		order(5, models.OrderStatusNew), order(4, models.OrderStatusNew),
		order(3, models.OrderStatusNew), order(2, models.OrderStatusNew),
	}})
	if got := ids(b.Orders()); !reflect.DeepEqual(got, []int64{5, 4, 3}) {
		t.Fatalf("ids = %v", got)
	}
	if b.LastUpdate().IsZero() {
		t.Fatalf("last update not stamped")
	}
}

func TestOrderBook_NewOrderPrependsAndCaps(t *testing.T) {
	b := NewOrderBook(0)
	for id := int64(1); id <= DefaultBookSize; id++ {
		b.OnNewOrder(events.NewOrder{Order: order(id, models.OrderStatusNew)})
	}
	b.OnNewOrder(events.NewOrder{Order: order(11, models.OrderStatusNew)})
	got := ids(b.Orders())
	if len(got) != DefaultBookSize || got[0] != 11 || got[len(got)-1] != 2 {
		t.Fatalf("ids = %v", got)
	}

	// A repeated new_order updates in place.
	again := order(11, models.OrderStatusConfirmed)
	b.OnNewOrder(events.NewOrder{Order: again})
	list := b.Orders()
	if len(list) != DefaultBookSize || list[0].Status != models.OrderStatusConfirmed {
		t.Fatalf("upsert failed: %+v", list[0])
	}
}

func TestOrderBook_StatusChangeIsIdempotent(t *testing.T) {
	b := NewOrderBook(0)
	b.OnInitialOrders(events.InitialOrders{Orders: []models.Order{
		order(2, models.OrderStatusNew), order(1, models.OrderStatusInTransit),
	}})
	ev := events.StatusChange{Order: order(1, models.OrderStatusDelivered)}

	b.OnStatusChange(ev)
	once := b.Orders()
	b.OnStatusChange(ev)
	twice := b.Orders()
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("replay changed the book: %+v vs %+v", once, twice)
	}
	if twice[1].Status != models.OrderStatusDelivered {
		t.Fatalf("status = %s", twice[1].Status)
	}

	// Orders outside the book are ignored.
	b.OnStatusChange(events.StatusChange{Order: order(99, models.OrderStatusCancelled)})
	if got := ids(b.Orders()); !reflect.DeepEqual(got, []int64{2, 1}) {
		t.Fatalf("ids = %v", got)
	}
}

func TestOrderBook_PeriodicUpdatePartial(t *testing.T) {
	b := NewOrderBook(0)
	b.OnInitialOrders(events.InitialOrders{Orders: []models.Order{order(1, models.OrderStatusNew)}})
	b.OnStatistics(events.Statistics{Stats: models.Statistics{Total: 1, New: 1}})

	// Only statistics this cycle: the list stays.
	b.OnPeriodicUpdate(events.PeriodicUpdate{Statistics: &models.Statistics{Total: 2, New: 2}})
	if got := ids(b.Orders()); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("ids = %v", got)
	}
	if s := b.Statistics(); s == nil || s.Total != 2 {
		t.Fatalf("stats = %+v", s)
	}

	// Only orders this cycle: the statistics stay.
	b.OnPeriodicUpdate(events.PeriodicUpdate{RecentOrders: []models.Order{
		order(3, models.OrderStatusNew), order(2, models.OrderStatusNew), order(1, models.OrderStatusNew),
	}})
	if got := ids(b.Orders()); !reflect.DeepEqual(got, []int64{3, 2, 1}) {
		t.Fatalf("ids = %v", got)
	}
	if s := b.Statistics(); s.Total != 2 {
		t.Fatalf("stats overwritten: %+v", s)
	}
}

func TestOrderBook_OptimisticReconciled(t *testing.T) {
	b := NewOrderBook(0)
	b.OnInitialOrders(events.InitialOrders{Orders: []models.Order{order(1, models.OrderStatusNew)}})

	if !b.ApplyOptimistic(1, models.OrderStatusConfirmed) {
		t.Fatalf("order 1 not found")
	}
	if b.ApplyOptimistic(42, models.OrderStatusConfirmed) {
		t.Fatalf("unknown order reported present")
	}
	if b.Orders()[0].Status != models.OrderStatusConfirmed {
		t.Fatalf("optimistic status not applied")
	}

	// The server disagreed; its event wins.
	b.OnStatusChange(events.StatusChange{Order: order(1, models.OrderStatusCancelled)})
	if b.Orders()[0].Status != models.OrderStatusCancelled {
		t.Fatalf("status = %s", b.Orders()[0].Status)
	}
}

func TestOrderBook_StatisticsCopy(t *testing.T) {
	b := NewOrderBook(0)
	if b.Statistics() != nil {
		t.Fatalf("stats before any event")
	}
	b.OnStatistics(events.Statistics{Stats: models.Statistics{Total: 4}})
	s := b.Statistics()
	s.Total = 100
	if b.Statistics().Total != 4 {
		t.Fatalf("statistics aliased")
	}
}
