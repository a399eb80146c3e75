package main

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"vahtook/internal/client"
	"vahtook/internal/events"
	"vahtook/models"
)

const timeLayout = "2006-01-02 15:04:05"

func renderStats(w io.Writer, s *models.Statistics) error {
	t := tablewriter.NewWriter(w)
	t.Header("Status", "Orders")
	rows := [][]string{
		{"total", fmtInt(s.Total)},
		{"today", fmtInt(s.Today)},
		{string(models.OrderStatusNew), fmtInt(s.New)},
		{string(models.OrderStatusConfirmed), fmtInt(s.Confirmed)},
		{string(models.OrderStatusAssigned), fmtInt(s.Assigned)},
		{string(models.OrderStatusPickedUp), fmtInt(s.PickedUp)},
		{string(models.OrderStatusInTransit), fmtInt(s.InTransit)},
		{string(models.OrderStatusDelivered), fmtInt(s.Delivered)},
		{string(models.OrderStatusCancelled), fmtInt(s.Cancelled)},
	}
	if err := t.Bulk(rows); err != nil {
		return err
	}
	return t.Render()
}

func renderOrders(w io.Writer, list []models.Order) error {
	t := tablewriter.NewWriter(w)
	t.Header("ID", "Number", "Customer", "Vehicle", "Priority", "Status", "Fare", "Created")
	rows := make([][]string, 0, len(list))
	for _, o := range list {
		rows = append(rows, []string{
			fmtInt(o.ID),
			o.OrderNumber,
			o.CustomerName,
			string(o.VehicleType),
			string(o.Priority),
			string(o.Status),
			strconv.FormatFloat(o.FareAmount, 'f', 2, 64),
			o.CreatedAt.Local().Format(timeLayout),
		})
	}
	if err := t.Bulk(rows); err != nil {
		return err
	}
	return t.Render()
}

func renderHistory(w io.Writer, list []models.StatusHistory) error {
	t := tablewriter.NewWriter(w)
	t.Header("When", "From", "To", "By", "Reason")
	rows := make([][]string, 0, len(list))
	for _, h := range list {
		from, reason := "-", ""
		if h.PreviousStatus != nil {
			from = string(*h.PreviousStatus)
		}
		if h.Reason != nil {
			reason = *h.Reason
		}
		rows = append(rows, []string{
			h.CreatedAt.Local().Format(timeLayout),
			from,
			string(h.NewStatus),
			h.AdminName,
			reason,
		})
	}
	if err := t.Bulk(rows); err != nil {
		return err
	}
	return t.Render()
}

func fmtInt(n int64) string { return strconv.FormatInt(n, 10) }

// watcher keeps an order book current and prints a line per event.
type watcher struct {
	*client.OrderBook
	mu  sync.Mutex
	out io.Writer
}

var _ events.Handler = (*watcher)(nil)

func newWatcher(out io.Writer, book *client.OrderBook) *watcher {
	return &watcher{OrderBook: book, out: out}
}

func (w *watcher) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "%s "+format+"\n", append([]any{time.Now().Format(timeLayout)}, args...)...)
}

func (w *watcher) OnConnected(e events.Connected) {
	w.printf("connected: %s", e.Message)
}

func (w *watcher) OnInitialOrders(e events.InitialOrders) {
	w.OrderBook.OnInitialOrders(e)
	w.printf("snapshot: %d recent orders", len(e.Orders))
}

func (w *watcher) OnStatistics(e events.Statistics) {
	w.OrderBook.OnStatistics(e)
	w.printf("statistics: total=%d new=%d in_transit=%d delivered=%d today=%d",
		e.Stats.Total, e.Stats.New, e.Stats.InTransit, e.Stats.Delivered, e.Stats.Today)
}

func (w *watcher) OnPeriodicUpdate(e events.PeriodicUpdate) {
	w.OrderBook.OnPeriodicUpdate(e)
	if e.Statistics != nil {
		w.printf("update: %d orders, total=%d", len(w.Orders()), e.Statistics.Total)
	}
}

func (w *watcher) OnNewOrder(e events.NewOrder) {
	w.OrderBook.OnNewOrder(e)
	w.printf("new order %s from %s (%s)", e.Order.OrderNumber, e.Order.CustomerName, e.Order.VehicleType)
}

func (w *watcher) OnStatusChange(e events.StatusChange) {
	w.OrderBook.OnStatusChange(e)
	w.printf("order %s is now %s", e.Order.OrderNumber, e.Order.Status)
}

func (w *watcher) OnServerShutdown(e events.ServerShutdown) {
	w.printf("server shutdown: %s", e.Message)
}
