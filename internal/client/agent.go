package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"vahtook/internal/events"
	"vahtook/internal/logger"
)

// State of the agent's subscription.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

const (
	baseDelay = time.Second
	maxDelay  = 30 * time.Second
)

// Backoff returns the reconnect delay after retry failed attempts: 1s doubling per
// attempt, capped at 30s.
func Backoff(retry int) time.Duration {
	if retry <= 0 {
		return baseDelay
	}
	if retry >= 5 {
		return maxDelay
	}
	return min(baseDelay<<retry, maxDelay)
}

// ErrNoCredential is returned by Connect when the token source has nothing to offer.
var ErrNoCredential = errors.New("no credential available")

// TokenSource yields the bearer token for the next connection attempt.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

// Agent keeps one subscription to the order event stream alive. Stream failures are
// retried with Backoff until Disconnect is called or the token source runs dry.
// A server_shutdown event disconnects instead of retrying.
type Agent struct {
	url     string
	tokens  TokenSource
	handler events.Handler
	httpc   *http.Client
	log     *logger.Logger
	backoff func(int) time.Duration
	onState func(State)

	mu      sync.Mutex
	state   State
	retries int
	// gen identifies the current attempt; work started for an older generation is dropped.
	gen    uint64
	cancel context.CancelFunc
	timer  *time.Timer
}

type Option func(*Agent)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) {
		a.httpc = c
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(a *Agent) {
		a.log = l
	}
}

// WithBackoff replaces Backoff, mostly to keep tests fast.
func WithBackoff(fn func(int) time.Duration) Option {
	return func(a *Agent) {
		a.backoff = fn
	}
}

// WithStateHook is called on every state change while the agent's lock is held;
// fn must not call back into the agent.
func WithStateHook(fn func(State)) Option {
	return func(a *Agent) {
		a.onState = fn
	}
}

// NewAgent subscribes to url, the full event stream endpoint, and feeds decoded
// events to h.
func NewAgent(url string, tokens TokenSource, h events.Handler, opts ...Option) *Agent {
	a := &Agent{
		url:     url,
		tokens:  tokens,
		handler: h,
		httpc:   &http.Client{},
		backoff: Backoff,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// State returns the current subscription state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// RetryCount is the number of failed attempts since the last successful open.
func (a *Agent) RetryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retries
}

// Connect closes any current stream or pending retry and opens a new stream in the
// background. It fails only when no credential is available.
func (a *Agent) Connect() error {
	return a.connect(0, false)
}

// connect starts an attempt. A retry passes its generation so that it is dropped
// when Connect or Disconnect ran in between.
func (a *Agent) connect(gen uint64, retry bool) error {
	tok, err := a.tokens(context.Background())
	if err == nil && tok == "" {
		err = ErrNoCredential
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if retry && gen != a.gen {
		return nil
	}
	a.stopLocked()
	if err != nil {
		a.setStateLocked(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.setStateLocked(StateConnecting)
	go a.run(ctx, a.gen, tok)
	return nil
}

// Disconnect closes the stream and cancels any pending reconnect. It is idempotent.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.setStateLocked(StateDisconnected)
}

// stopLocked cancels the live stream and the retry timer and starts a new generation.
func (a *Agent) stopLocked() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.gen++
}

func (a *Agent) setStateLocked(s State) {
	if a.state == s {
		return
	}
	a.state = s
	if a.onState != nil {
		a.onState(s)
	}
}

func (a *Agent) current(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return gen == a.gen
}

var errShutdown = errors.New("server shutting down")

func (a *Agent) run(ctx context.Context, gen uint64, tok string) {
	err := a.stream(ctx, gen, tok)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.gen {
		return
	}
	if errors.Is(err, errShutdown) {
		a.log.Info("", "sse_agent", "server is shutting down, disconnecting", nil)
		a.stopLocked()
		a.setStateLocked(StateDisconnected)
		return
	}
	delay := a.backoff(a.retries)
	a.retries++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.setStateLocked(StateDisconnected)
	a.log.Warn("", "sse_agent", "event stream lost, retrying", map[string]any{
		"cause": fmt.Sprint(err), "retry": a.retries, "delay_ms": delay.Milliseconds(),
	})
	a.timer = time.AfterFunc(delay, func() {
		if err := a.connect(gen, true); err != nil {
			a.log.Error("", "sse_agent", "reconnect abandoned", err, nil)
		}
	})
}

// stream runs one connection until it ends. It returns errShutdown after a
// server_shutdown event and another error for every other way the stream ends.
func (a *Agent) stream(ctx context.Context, gen uint64, tok string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := a.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return context.Canceled
	}
	a.retries = 0
	a.setStateLocked(StateConnected)
	a.mu.Unlock()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data:")
		if !ok {
			continue
		}
		ev, _, err := events.Decode([]byte(strings.TrimSpace(data)))
		if err != nil {
			a.log.Debug("", "sse_agent", "ignoring undecodable message", map[string]any{"cause": err.Error()})
			continue
		}
		if !a.current(gen) {
			return context.Canceled
		}
		events.Dispatch(ev, a.handler)
		if ev.Type() == events.TypeServerShutdown {
			return errShutdown
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
