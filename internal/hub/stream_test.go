package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPStream_WritesQueuedFramesInOrder(t *testing.T) {
	s := NewHTTPStream()
	for _, f := range []string{"data: 1\n\n", "data: 2\n\n", "data: 3\n\n"} {
		if err := s.Send([]byte(f)); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	s.Close()
	rec := httptest.NewRecorder()
	if err := s.Serve(context.Background(), rec); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if got := rec.Body.String(); got != "data: 1\n\ndata: 2\n\ndata: 3\n\n" {
		t.Fatalf("body = %q", got)
	}
	if !rec.Flushed {
		t.Fatalf("expected flush")
	}
	if err := s.Send([]byte("late")); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("send after close: %v", err)
	}
	s.Close() // idempotent
}

type brokenWriter struct {
	header http.Header
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(int)           {}
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }
func (b *brokenWriter) Flush()                    {}

func TestHTTPStream_WriteFailureFailsLaterSends(t *testing.T) {
	s := NewHTTPStream()
	_ = s.Send([]byte("data: x\n\n"))
	err := s.Serve(context.Background(), &brokenWriter{header: http.Header{}})
	if err == nil {
		t.Fatalf("expected write error")
	}
	if err := s.Send([]byte("data: y\n\n")); err == nil {
		t.Fatalf("send after failure should error")
	}
}

func TestHTTPStream_StopsOnContextCancel(t *testing.T) {
	s := NewHTTPStream()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, httptest.NewRecorder()) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return")
	}
	if err := s.Send([]byte("data: z\n\n")); err == nil {
		t.Fatalf("send after cancel should error")
	}
}
