package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/internal/auth"
	"vahtook/internal/db"
	"vahtook/internal/events"
	"vahtook/internal/hub"
	"vahtook/internal/testutil"
	"vahtook/models"
	"vahtook/repository"
)

type notification struct {
	id  int64
	typ events.Type
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (f *fakeNotifier) NotifyOrderChange(_ context.Context, id int64, typ events.Type) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notification{id, typ})
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type allowAll struct{}

func (allowAll) Verify(_ context.Context, token string) (*auth.Principal, error) {
	if token == "" {
		return nil, errors.New("no token")
	}
	return &auth.Principal{AdminID: 1, Username: "admin", FullName: "Admin", Role: models.RoleAdmin}, nil
}

type recordingStream struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *recordingStream) Send(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), b...))
	return nil
}

func (r *recordingStream) Close() {}

// eventsOf decodes the recorded frames of type typ.
func (r *recordingStream) eventsOf(t *testing.T, typ events.Type) []events.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, f := range r.frames {
		body := strings.TrimSuffix(strings.TrimPrefix(string(f), "data: "), "\n\n")
		ev, _, err := events.Decode([]byte(body))
		if err != nil {
			t.Fatalf("decode frame %q: %v", f, err)
		}
		if ev.Type() == typ {
			out = append(out, ev)
		}
	}
	return out
}

func codeOf(err error) codes.Code {
	return status.Code(err)
}

func newServiceWithHub(t *testing.T) (*Service, *repository.OrderRepository, *recordingStream, *db.DB) {
	t.Helper()
	d := testutil.OpenInMemoryDB(t)
	repo := repository.NewOrderRepository(d)
	h := hub.New(allowAll{}, repo)
	stream := &recordingStream{}
	if _, err := h.Register(context.Background(), "token", stream); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewService(repo, h), repo, stream, d
}

func johnRequest() NewOrderRequest {
	return NewOrderRequest{
		CustomerName:       "John",
		CustomerPhone:      "+91-1",
		PickupAddress:      "A",
		DestinationAddress: "B",
		VehicleType:        models.VehicleBike,
	}
}

func TestCreateOrder_BroadcastsNewOrder(t *testing.T) {
	svc, _, stream, _ := newServiceWithHub(t)

	o, err := svc.CreateOrder(context.Background(), johnRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != models.OrderStatusNew || o.Priority != models.PriorityNormal || o.PaymentMethod != models.PaymentCash {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	if !ValidOrderNumber(o.OrderNumber) {
		t.Fatalf("order number %q has wrong format", o.OrderNumber)
	}
	got := stream.eventsOf(t, events.TypeNewOrder)
	if len(got) != 1 {
		t.Fatalf("new_order events = %d, want 1", len(got))
	}
	no := got[0].(events.NewOrder)
	if no.Order.ID != o.ID || no.Order.OrderNumber != o.OrderNumber || no.Order.CustomerName != "John" {
		t.Fatalf("broadcast order = %+v", no.Order)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	n := &fakeNotifier{}
	svc := NewService(repository.NewOrderRepository(testutil.OpenInMemoryDB(t)), n)
	cases := []struct {
		name   string
		mutate func(*NewOrderRequest)
		want   string
	}{
		{"missing name", func(r *NewOrderRequest) { r.CustomerName = " " }, "customer_name is required"},
		{"missing phone", func(r *NewOrderRequest) { r.CustomerPhone = "" }, "customer_phone is required"},
		{"missing pickup", func(r *NewOrderRequest) { r.PickupAddress = "" }, "pickup_address is required"},
		{"missing destination", func(r *NewOrderRequest) { r.DestinationAddress = "" }, "destination_address is required"},
		{"missing vehicle", func(r *NewOrderRequest) { r.VehicleType = "" }, "vehicle_type is required"},
		{"bad vehicle", func(r *NewOrderRequest) { r.VehicleType = "rocket" }, "invalid vehicle_type"},
		{"bad priority", func(r *NewOrderRequest) { r.Priority = "whenever" }, "invalid priority"},
		{"bad payment", func(r *NewOrderRequest) { r.PaymentMethod = "barter" }, "invalid payment_method"},
		{"negative fare", func(r *NewOrderRequest) { r.FareAmount = -1 }, "fare_amount"},
		{"half coordinate", func(r *NewOrderRequest) { lat := 19.0; r.PickupLatitude = &lat }, "pickup coordinates"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := johnRequest()
			tc.mutate(&req)
			_, err := svc.CreateOrder(context.Background(), req)
			if codeOf(err) != codes.InvalidArgument {
				t.Fatalf("code = %v, want InvalidArgument (%v)", codeOf(err), err)
			}
			if !strings.Contains(status.Convert(err).Message(), tc.want) {
				t.Fatalf("message %q does not contain %q", status.Convert(err).Message(), tc.want)
			}
		})
	}
	if n.count() != 0 {
		t.Fatalf("invalid creates must not notify")
	}
}

func TestCreateOrder_EstimatesDistance(t *testing.T) {
	svc := NewService(repository.NewOrderRepository(testutil.OpenInMemoryDB(t)), nil)
	req := johnRequest()
	plat, plng, dlat, dlng := 0.0, 0.0, 1.0, 0.0
	req.PickupLatitude, req.PickupLongitude = &plat, &plng
	req.DestinationLatitude, req.DestinationLongitude = &dlat, &dlng

	o, err := svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.EstimatedDistance == nil || *o.EstimatedDistance < 111 || *o.EstimatedDistance > 111.4 {
		t.Fatalf("estimated distance = %v", o.EstimatedDistance)
	}

	given := 5.0
	req.EstimatedDistance = &given
	o, err = svc.CreateOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if *o.EstimatedDistance != 5 {
		t.Fatalf("explicit estimate overwritten: %v", *o.EstimatedDistance)
	}
}

func TestCreateOrder_RetriesOrderNumberCollision(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	taken := testutil.SeedOrder(t, d)
	seq := []string{taken.OrderNumber, taken.OrderNumber, "VHT000001ABCDEF0123"}
	i := 0
	gen := func(time.Time) string {
		s := seq[i]
		if i < len(seq)-1 {
			i++
		}
		return s
	}
	svc := NewService(repository.NewOrderRepository(d), nil, WithNumberGenerator(gen))
	o, err := svc.CreateOrder(context.Background(), johnRequest())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.OrderNumber != "VHT000001ABCDEF0123" {
		t.Fatalf("order number = %s", o.OrderNumber)
	}

	always := NewService(repository.NewOrderRepository(d), nil, WithNumberGenerator(func(time.Time) string { return taken.OrderNumber }))
	if _, err := always.CreateOrder(context.Background(), johnRequest()); codeOf(err) != codes.AlreadyExists {
		t.Fatalf("code = %v, want AlreadyExists", codeOf(err))
	}
}

func TestCreateOrder_StoreFailure(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	if _, err := d.Exec(`DROP TABLE order_status_history`); err != nil {
		t.Fatalf("drop history: %v", err)
	}
	if _, err := d.Exec(`DROP TABLE orders`); err != nil {
		t.Fatalf("drop orders: %v", err)
	}
	n := &fakeNotifier{}
	svc := NewService(repository.NewOrderRepository(d), n)
	if _, err := svc.CreateOrder(context.Background(), johnRequest()); codeOf(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", codeOf(err))
	}
	if n.count() != 0 {
		t.Fatalf("failed create notified")
	}
}

func TestUpdateStatus_InTransitToDelivered(t *testing.T) {
	svc, repo, stream, d := newServiceWithHub(t)
	ctx := context.Background()
	var last *models.Order
	for i := 0; i < 5; i++ {
		last = testutil.SeedOrder(t, d)
	}
	if last.ID != 5 {
		t.Fatalf("seeded id = %d, want 5", last.ID)
	}
	if _, err := repo.ApplyStatusChange(ctx, repository.StatusChange{OrderID: 5, NewStatus: models.OrderStatusInTransit, AdminID: 1, AdminName: "Admin"}); err != nil {
		t.Fatalf("seed transition: %v", err)
	}
	before, _ := repo.StatusHistory(ctx, 5)

	tr, err := svc.UpdateStatus(ctx, 5, models.OrderStatusDelivered, Actor{ID: 1, Name: "Admin"}, nil)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if tr.Previous != models.OrderStatusInTransit || tr.New != models.OrderStatusDelivered || !tr.Changed {
		t.Fatalf("transition = %+v", tr)
	}
	after, _ := repo.StatusHistory(ctx, 5)
	if len(after) != len(before)+1 {
		t.Fatalf("history rows %d -> %d, want one more", len(before), len(after))
	}
	top := after[0]
	if top.PreviousStatus == nil || *top.PreviousStatus != models.OrderStatusInTransit || top.NewStatus != models.OrderStatusDelivered || top.AdminName != "Admin" {
		t.Fatalf("history row = %+v", top)
	}
	got := stream.eventsOf(t, events.TypeStatusChange)
	if len(got) != 1 {
		t.Fatalf("status_change events = %d, want 1", len(got))
	}
	if sc := got[0].(events.StatusChange); sc.Order.ID != 5 || sc.Order.Status != models.OrderStatusDelivered {
		t.Fatalf("broadcast order = %+v", sc.Order)
	}
}

func TestUpdateStatus_MissingOrder(t *testing.T) {
	svc, repo, stream, d := newServiceWithHub(t)
	_, err := svc.UpdateStatus(context.Background(), 999, models.OrderStatusDelivered, Actor{ID: 1, Name: "Admin"}, nil)
	if codeOf(err) != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", codeOf(err))
	}
	var rows int
	if err := d.QueryRow(`SELECT COUNT(*) FROM order_status_history`).Scan(&rows); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if rows != 0 {
		t.Fatalf("history rows = %d, want 0", rows)
	}
	if got := stream.eventsOf(t, events.TypeStatusChange); len(got) != 0 {
		t.Fatalf("unexpected broadcast: %v", got)
	}
	if h, _ := repo.StatusHistory(context.Background(), 999); len(h) != 0 {
		t.Fatalf("history for missing order: %v", h)
	}
}

func TestUpdateStatus_Validation(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	o := testutil.SeedOrder(t, d)
	n := &fakeNotifier{}
	svc := NewService(repository.NewOrderRepository(d), n)
	ctx := context.Background()
	admin := Actor{ID: 1, Name: "Admin"}

	if _, err := svc.UpdateStatus(ctx, o.ID, "", admin, nil); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("empty status: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, o.ID, "teleported", admin, nil); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("unknown status: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusConfirmed, Actor{}, nil); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("missing actor: %v", err)
	}
	if n.count() != 0 {
		t.Fatalf("rejected updates notified")
	}
}

func TestUpdateStatus_PermissiveAndNoop(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	o := testutil.SeedOrder(t, d)
	n := &fakeNotifier{}
	repo := repository.NewOrderRepository(d)
	svc := NewService(repo, n)
	ctx := context.Background()
	admin := Actor{ID: 1, Name: "Admin"}

	if _, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusDelivered, admin, nil); err != nil {
		t.Fatalf("new -> delivered: %v", err)
	}
	blank := "  "
	tr, err := svc.UpdateStatus(ctx, o.ID, models.OrderStatusNew, admin, &blank)
	if err != nil {
		t.Fatalf("delivered -> new must be allowed: %v", err)
	}
	if tr.Previous != models.OrderStatusDelivered {
		t.Fatalf("previous = %s", tr.Previous)
	}
	h, _ := repo.StatusHistory(ctx, o.ID)
	if len(h) != 2 || h[0].Reason != nil {
		t.Fatalf("history = %+v", h)
	}

	tr, err = svc.UpdateStatus(ctx, o.ID, models.OrderStatusNew, admin, nil)
	if err != nil {
		t.Fatalf("same status: %v", err)
	}
	if tr.Changed {
		t.Fatalf("same status reported as changed")
	}
	if h, _ := repo.StatusHistory(ctx, o.ID); len(h) != 2 {
		t.Fatalf("no-op wrote history: %d rows", len(h))
	}
	if n.count() != 2 {
		t.Fatalf("notifications = %d, want 2", n.count())
	}
}

func TestCancel(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	o := testutil.SeedOrder(t, d)
	n := &fakeNotifier{}
	repo := repository.NewOrderRepository(d)
	svc := NewService(repo, n)

	tr, err := svc.Cancel(context.Background(), o.ID, Actor{ID: 2, Name: "Ops"}, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if tr.New != models.OrderStatusCancelled {
		t.Fatalf("new status = %s", tr.New)
	}
	h, _ := repo.StatusHistory(context.Background(), o.ID)
	if len(h) != 1 || h[0].Reason == nil || *h[0].Reason != "Order cancelled by admin" {
		t.Fatalf("history = %+v", h)
	}
	if n.calls[0].typ != events.TypeStatusChange {
		t.Fatalf("notification = %+v", n.calls[0])
	}
}

func TestUpdateDetails(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	o := testutil.SeedOrder(t, d)
	svc := NewService(repository.NewOrderRepository(d), nil)
	ctx := context.Background()

	if _, err := svc.UpdateDetails(ctx, o.ID, repository.OrderUpdate{}); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("empty update: %v", err)
	}
	bad := models.Priority("asap")
	if _, err := svc.UpdateDetails(ctx, o.ID, repository.OrderUpdate{Priority: &bad}); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("bad priority: %v", err)
	}
	fare := 250.0
	driver := "Ravi"
	got, err := svc.UpdateDetails(ctx, o.ID, repository.OrderUpdate{FareAmount: &fare, DriverName: &driver})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.FareAmount != 250 || got.DriverName == nil || *got.DriverName != "Ravi" || got.Status != models.OrderStatusNew {
		t.Fatalf("updated order = %+v", got)
	}
	if _, err := svc.UpdateDetails(ctx, 999, repository.OrderUpdate{FareAmount: &fare}); codeOf(err) != codes.NotFound {
		t.Fatalf("missing order: %v", err)
	}
}

func TestQueries(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	svc := NewService(repository.NewOrderRepository(d), nil)
	ctx := context.Background()
	a := testutil.SeedOrder(t, d)
	testutil.SeedOrder(t, d, func(o *models.Order) { o.Priority = models.PriorityUrgent })

	if _, err := svc.Get(ctx, 42); codeOf(err) != codes.NotFound {
		t.Fatalf("get missing: %v", err)
	}
	if got, err := svc.GetByNumber(ctx, a.OrderNumber); err != nil || got.ID != a.ID {
		t.Fatalf("get by number: %v %v", got, err)
	}
	if _, err := svc.GetByNumber(ctx, "VHT000000000000000"); codeOf(err) != codes.NotFound {
		t.Fatalf("get by missing number: %v", err)
	}
	if list, err := svc.Recent(ctx, 0); err != nil || len(list) != 2 {
		t.Fatalf("recent: %d %v", len(list), err)
	}
	if _, err := svc.ByStatus(ctx, "lost", 0); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("by bad status: %v", err)
	}
	if list, err := svc.ByStatus(ctx, models.OrderStatusNew, 0); err != nil || len(list) != 2 {
		t.Fatalf("by status: %d %v", len(list), err)
	}
	urgent := models.PriorityUrgent
	list, page, err := svc.List(ctx, repository.ListOrdersAdminParams{Priority: &urgent})
	if err != nil || len(list) != 1 || page.TotalRecords != 1 {
		t.Fatalf("list urgent: %d %+v %v", len(list), page, err)
	}
	odd := models.VehicleType("hovercraft")
	if _, _, err := svc.List(ctx, repository.ListOrdersAdminParams{VehicleType: &odd}); codeOf(err) != codes.InvalidArgument {
		t.Fatalf("list bad vehicle: %v", err)
	}
	stats, err := svc.Statistics(ctx)
	if err != nil || stats.Total != 2 || stats.New != 2 {
		t.Fatalf("stats: %+v %v", stats, err)
	}
	if _, err := svc.History(ctx, 42); codeOf(err) != codes.NotFound {
		t.Fatalf("history of missing order: %v", err)
	}
	if h, err := svc.History(ctx, a.ID); err != nil || len(h) != 0 {
		t.Fatalf("history: %v %v", h, err)
	}
}
