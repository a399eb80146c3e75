package client

import (
	"sync"
	"time"

	"vahtook/internal/events"
	"vahtook/models"
)

// DefaultBookSize is how many recent orders a book keeps.
const DefaultBookSize = 10

// OrderBook is the local view of recent orders and statistics built from the event
// stream. Every merge is by order id, so replaying an event leaves the book unchanged.
// Optimistic edits are overwritten by the next event carrying the same order.
type OrderBook struct {
	mu         sync.RWMutex
	limit      int
	orders     []models.Order
	stats      *models.Statistics
	lastUpdate time.Time
	now        func() time.Time
}

var _ events.Handler = (*OrderBook)(nil)

func NewOrderBook(limit int) *OrderBook {
	if limit <= 0 {
		limit = DefaultBookSize
	}
	return &OrderBook{limit: limit, now: time.Now}
}

// Orders returns a copy of the recent orders, newest first.
func (b *OrderBook) Orders() []models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.Order(nil), b.orders...)
}

// Statistics returns a copy of the latest statistics, or nil before any arrived.
func (b *OrderBook) Statistics() *models.Statistics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stats == nil {
		return nil
	}
	s := *b.stats
	return &s
}

func (b *OrderBook) LastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

func (b *OrderBook) replace(list []models.Order) {
	if len(list) > b.limit {
		list = list[:b.limit]
	}
	b.orders = append([]models.Order(nil), list...)
	b.lastUpdate = b.now()
}

// ApplyOptimistic sets the local status of an order before the server confirms it.
// It reports whether the order is in the book.
func (b *OrderBook) ApplyOptimistic(orderID int64, st models.OrderStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.orders {
		if b.orders[i].ID == orderID {
			b.orders[i].Status = st
			return true
		}
	}
	return false
}

func (b *OrderBook) OnConnected(events.Connected) {}

func (b *OrderBook) OnInitialOrders(e events.InitialOrders) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replace(e.Orders)
}

func (b *OrderBook) OnStatistics(e events.Statistics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := e.Stats
	b.stats = &s
	b.lastUpdate = b.now()
}

func (b *OrderBook) OnPeriodicUpdate(e events.PeriodicUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e.RecentOrders != nil {
		b.replace(e.RecentOrders)
	}
	if e.Statistics != nil {
		s := *e.Statistics
		b.stats = &s
		b.lastUpdate = b.now()
	}
}

// OnNewOrder puts the order at the front, dropping the oldest past the limit.
// An order already in the book is updated in place.
func (b *OrderBook) OnNewOrder(e events.NewOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdate = b.now()
	for i := range b.orders {
		if b.orders[i].ID == e.Order.ID {
			b.orders[i] = e.Order
			return
		}
	}
	b.orders = append([]models.Order{e.Order}, b.orders...)
	if len(b.orders) > b.limit {
		b.orders = b.orders[:b.limit]
	}
}

// OnStatusChange replaces the matching order. Orders outside the book are ignored.
func (b *OrderBook) OnStatusChange(e events.StatusChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.orders {
		if b.orders[i].ID == e.Order.ID {
			b.orders[i] = e.Order
			b.lastUpdate = b.now()
			return
		}
	}
}

func (b *OrderBook) OnServerShutdown(events.ServerShutdown) {}
