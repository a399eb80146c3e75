// Package hub is the notification hub: it tracks live admin event streams and
// fans order events out to all of them.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vahtook/internal/auth"
	"vahtook/internal/events"
	"vahtook/internal/logger"
	"vahtook/internal/metrics"
	"vahtook/models"
)

// Verifier resolves a bearer token to an admin.
type Verifier interface {
	Verify(ctx context.Context, token string) (*auth.Principal, error)
}

// Store is the read side of the order store the hub snapshots from.
type Store interface {
	Recent(ctx context.Context, limit int) ([]models.Order, error)
	Statistics(ctx context.Context) (*models.Statistics, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
}

// Stream is the transport behind one connection. Send must not block on a slow peer;
// an error means the stream is dead and the connection gets pruned.
type Stream interface {
	Send(frame []byte) error
	Close()
}

// State of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Connection is one registered event stream.
type Connection struct {
	Key         string
	AdminID     int64
	AdminName   string
	ConnectedAt time.Time

	stream Stream
	state  atomic.Int32
}

func (c *Connection) State() State { return State(c.state.Load()) }

// ClientInfo describes a live connection for operators.
type ClientInfo struct {
	ClientID       string    `json:"client_id"`
	AdminID        int64     `json:"admin_id"`
	AdminName      string    `json:"admin_name"`
	ConnectedAt    time.Time `json:"connected_at"`
	ConnectedForMs int64     `json:"connected_for_ms"`
}

const (
	DefaultInterval    = 10 * time.Second
	DefaultRecentLimit = 10
)

// Hub owns the connection registry. Create one per process with New.
type Hub struct {
	verifier    Verifier
	store       Store
	log         *logger.Logger
	metrics     *metrics.Metrics
	interval    time.Duration
	recentLimit int
	now         func() time.Time

	seq atomic.Uint64

	mu     sync.Mutex
	conns  map[string]*Connection
	closed bool
}

type Option func(*Hub)

func WithLogger(l *logger.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func WithInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.interval = d
		}
	}
}

func WithRecentLimit(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.recentLimit = n
		}
	}
}

func New(v Verifier, s Store, opts ...Option) *Hub {
	h := &Hub{
		verifier:    v,
		store:       s,
		log:         logger.Nop(),
		interval:    DefaultInterval,
		recentLimit: DefaultRecentLimit,
		now:         func() time.Time { return time.Now().UTC() },
		conns:       make(map[string]*Connection),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register verifies token, admits the stream and sends the connected acknowledgement
// followed by the initial recent-orders and statistics snapshots, read fresh from the store.
// Errors are grpc status errors: Unauthenticated for a bad credential, Unavailable after
// Shutdown.
func (h *Hub) Register(ctx context.Context, token string, s Stream) (*Connection, error) {
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "access token required")
	}
	p, err := h.verifier.Verify(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	now := h.now()
	c := &Connection{
		Key:         fmt.Sprintf("%d-%d-%d", p.AdminID, now.UnixMilli(), h.seq.Add(1)),
		AdminID:     p.AdminID,
		AdminName:   p.FullName,
		ConnectedAt: now,
		stream:      s,
	}
	c.state.Store(int32(StateConnecting))

	// The acknowledgement is queued before the connection becomes visible to Broadcast,
	// so it is always the first frame on the stream.
	frame, err := events.Frame(events.Connected{Message: "Connected to order updates"}, now)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode %s: %v", events.TypeConnected, err)
	}
	if err := s.Send(frame); err != nil {
		s.Close()
		return nil, status.Errorf(codes.Unavailable, "send %s: %v", events.TypeConnected, err)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.Close()
		return nil, status.Error(codes.Unavailable, "server is shutting down")
	}
	h.conns[c.Key] = c
	n := len(h.conns)
	h.mu.Unlock()
	h.metrics.SetConnectedClients(n)
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	h.log.Info(logger.RequestIDFrom(ctx), "sse_client_connected", "event stream registered",
		map[string]any{"client_id": c.Key, "admin_id": c.AdminID, "clients": n})

	if recent, err := h.store.Recent(ctx, h.recentLimit); err != nil {
		h.log.Error(logger.RequestIDFrom(ctx), "sse_initial_orders", "failed to read recent orders", err, map[string]any{"client_id": c.Key})
	} else if err := h.sendTo(c, events.InitialOrders{Orders: recent}); err != nil {
		return nil, err
	}
	if stats, err := h.store.Statistics(ctx); err != nil {
		h.log.Error(logger.RequestIDFrom(ctx), "sse_initial_statistics", "failed to read statistics", err, map[string]any{"client_id": c.Key})
	} else if err := h.sendTo(c, events.Statistics{Stats: *stats}); err != nil {
		return nil, err
	}
	return c, nil
}

// sendTo writes ev to one connection, pruning it on failure.
func (h *Hub) sendTo(c *Connection, ev events.Event) error {
	frame, err := events.Frame(ev, h.now())
	if err != nil {
		return status.Errorf(codes.Internal, "encode %s: %v", ev.Type(), err)
	}
	if err := c.stream.Send(frame); err != nil {
		h.prune(c, err)
		return status.Errorf(codes.Unavailable, "send %s: %v", ev.Type(), err)
	}
	return nil
}

// Unregister removes the connection with key and closes its stream. It reports whether
// anything was removed, so repeated calls are harmless.
func (h *Hub) Unregister(key string) bool {
	h.mu.Lock()
	c, ok := h.conns[key]
	if ok {
		delete(h.conns, key)
	}
	n := len(h.conns)
	h.mu.Unlock()
	if !ok {
		return false
	}
	c.state.Store(int32(StateClosed))
	c.stream.Close()
	h.metrics.SetConnectedClients(n)
	h.log.Info("", "sse_client_disconnected", "event stream unregistered", map[string]any{"client_id": key, "clients": n})
	return true
}

func (h *Hub) prune(c *Connection, cause error) {
	if h.Unregister(c.Key) {
		h.metrics.ConnectionPruned()
		h.log.Warn("", "sse_client_pruned", "write failed, connection removed", map[string]any{"client_id": c.Key, "cause": cause.Error()})
	}
}

func (h *Hub) snapshot() []*Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast writes ev to every registered connection and returns how many accepted it.
// A failed write prunes that connection and delivery to the rest continues.
func (h *Hub) Broadcast(ev events.Event) int {
	frame, err := events.Frame(ev, h.now())
	if err != nil {
		h.log.Error("", "sse_broadcast", "failed to encode event", err, map[string]any{"type": string(ev.Type())})
		return 0
	}
	delivered := 0
	for _, c := range h.snapshot() {
		if err := c.stream.Send(frame); err != nil {
			h.prune(c, err)
			continue
		}
		delivered++
	}
	h.metrics.EventBroadcast(string(ev.Type()))
	return delivered
}

// NotifyOrderChange reads the order and broadcasts it as a new_order or status_change
// event. With no connections registered it does nothing, not even the read. Failures are
// logged and never returned.
func (h *Hub) NotifyOrderChange(ctx context.Context, orderID int64, typ events.Type) {
	if h.Len() == 0 {
		return
	}
	rid := logger.RequestIDFrom(ctx)
	o, err := h.store.GetByID(ctx, orderID)
	if err != nil {
		h.log.Error(rid, "sse_notify", "failed to read order", err, map[string]any{"order_id": orderID, "type": string(typ)})
		return
	}
	if o == nil {
		h.log.Warn(rid, "sse_notify", "order vanished before notification", map[string]any{"order_id": orderID, "type": string(typ)})
		return
	}
	var ev events.Event
	switch typ {
	case events.TypeNewOrder:
		ev = events.NewOrder{Order: *o}
	case events.TypeStatusChange:
		ev = events.StatusChange{Order: *o}
	default:
		h.log.Error(rid, "sse_notify", "unsupported order event type", errors.New(string(typ)), map[string]any{"order_id": orderID})
		return
	}
	n := h.Broadcast(ev)
	h.log.Debug(rid, "sse_notify", "order notification sent", map[string]any{"order_id": orderID, "type": string(typ), "delivered": n})
}

// Tick reads the recent orders and statistics and broadcasts them as one periodic_update.
// With no connections it does nothing. A failed read leaves that part out; when both fail
// nothing is sent this cycle.
func (h *Hub) Tick(ctx context.Context) {
	if h.Len() == 0 {
		return
	}
	var upd events.PeriodicUpdate
	recent, errRecent := h.store.Recent(ctx, h.recentLimit)
	if errRecent != nil {
		h.metrics.TickFailed()
		h.log.Error("", "sse_periodic_update", "failed to read recent orders", errRecent, nil)
	} else {
		upd.RecentOrders = recent
	}
	stats, errStats := h.store.Statistics(ctx)
	if errStats != nil {
		h.metrics.TickFailed()
		h.log.Error("", "sse_periodic_update", "failed to read statistics", errStats, nil)
	} else {
		upd.Statistics = stats
	}
	if errRecent != nil && errStats != nil {
		return
	}
	n := h.Broadcast(upd)
	h.log.Debug("", "sse_periodic_update", "periodic update sent", map[string]any{"delivered": n})
}

// Run ticks on the configured interval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	h.log.Info("", "sse_periodic_start", "periodic updates started", map[string]any{"interval": h.interval.String()})
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Tick(ctx)
		}
	}
}

// Shutdown sends server_shutdown to every connection, closes all streams and clears the
// registry. Later Register calls fail.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[string]*Connection)
	h.mu.Unlock()

	frame, err := events.Frame(events.ServerShutdown{Message: "Server is shutting down"}, h.now())
	for key, c := range conns {
		if err == nil {
			if serr := c.stream.Send(frame); serr != nil {
				h.log.Warn("", "sse_shutdown", "failed to notify client", map[string]any{"client_id": key, "cause": serr.Error()})
			}
		}
		c.state.Store(int32(StateClosed))
		c.stream.Close()
	}
	h.metrics.SetConnectedClients(0)
	h.log.Info("", "sse_shutdown", "all event streams closed", map[string]any{"clients": len(conns)})
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Clients describes every registered connection, oldest first.
func (h *Hub) Clients() []ClientInfo {
	now := h.now()
	conns := h.snapshot()
	out := make([]ClientInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, ClientInfo{
			ClientID:       c.Key,
			AdminID:        c.AdminID,
			AdminName:      c.AdminName,
			ConnectedAt:    c.ConnectedAt,
			ConnectedForMs: now.Sub(c.ConnectedAt).Milliseconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
