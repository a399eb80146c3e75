package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"vahtook/internal/auth"
	"vahtook/internal/client"
	"vahtook/internal/events"
	"vahtook/models"
)

func TestNewAdmin(t *testing.T) {
	if _, err := newAdmin("", "a@x", "pw", "", models.RoleAdmin); err == nil {
		t.Fatalf("missing username accepted")
	}
	if _, err := newAdmin("a", "a@x", "pw", "", "root"); err == nil {
		t.Fatalf("unknown role accepted")
	}
	a, err := newAdmin("ops", "ops@example.com", "s3cret", "", models.RoleOperator)
	if err != nil {
		t.Fatalf("newAdmin: %v", err)
	}
	if a.FullName != "ops" || a.Role != models.RoleOperator || !a.IsActive {
		t.Fatalf("admin = %+v", a)
	}
	if !auth.CheckPassword(a.PasswordHash, "s3cret") {
		t.Fatalf("password not hashed with bcrypt")
	}
}

func TestRenderTables(t *testing.T) {
	var buf bytes.Buffer
	if err := renderStats(&buf, &models.Statistics{Total: 12, Delivered: 5}); err != nil {
		t.Fatalf("renderStats: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"total", "12", "delivered", "5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	prev := models.OrderStatusInTransit
	reason := "left at door"
	err := renderHistory(&buf, []models.StatusHistory{{
		PreviousStatus: &prev, NewStatus: models.OrderStatusDelivered,
		AdminName: "Dispatch Desk", Reason: &reason, CreatedAt: time.Now(),
	}})
	if err != nil {
		t.Fatalf("renderHistory: %v", err)
	}
	for _, want := range []string{"in_transit", "delivered", "Dispatch Desk", "left at door"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("history table missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := renderOrders(&buf, []models.Order{{ID: 3, OrderNumber: "VHT123456ABCDEF0123", CustomerName: "John", FareAmount: 250}}); err != nil {
		t.Fatalf("renderOrders: %v", err)
	}
	if !strings.Contains(buf.String(), "VHT123456ABCDEF0123") || !strings.Contains(buf.String(), "250.00") {
		t.Fatalf("orders table:\n%s", buf.String())
	}
}

func TestWatcherPrintsAndTracks(t *testing.T) {
	var buf bytes.Buffer
	w := newWatcher(&buf, client.NewOrderBook(0))
	o := models.Order{ID: 1, OrderNumber: "VHT000001AAAAAAAAAA", CustomerName: "John", Status: models.OrderStatusNew}
	events.Dispatch(events.NewOrder{Order: o}, w)
	o.Status = models.OrderStatusConfirmed
	events.Dispatch(events.StatusChange{Order: o}, w)

	if got := w.Orders(); len(got) != 1 || got[0].Status != models.OrderStatusConfirmed {
		t.Fatalf("book = %+v", got)
	}
	out := buf.String()
	if !strings.Contains(out, "new order VHT000001AAAAAAAAAA from John") || !strings.Contains(out, "is now confirmed") {
		t.Fatalf("output:\n%s", out)
	}
}
