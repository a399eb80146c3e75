package hub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrStreamClosed is returned by Send once the stream has been closed or has failed.
var ErrStreamClosed = errors.New("stream closed")

// HTTPStream is a Stream backed by a streaming HTTP response. Send only queues the
// frame; Serve, running on the handler goroutine, writes and flushes queued frames in
// order. The queue is unbounded.
type HTTPStream struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool
	err    error

	wake chan struct{}
	done chan struct{}
}

func NewHTTPStream() *HTTPStream {
	return &HTTPStream{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (s *HTTPStream) Send(frame []byte) error {
	s.mu.Lock()
	if s.closed {
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrStreamClosed
	}
	s.queue = append(s.queue, frame)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the stream. Frames queued before Close are still written by Serve.
func (s *HTTPStream) Close() {
	s.close(nil)
}

func (s *HTTPStream) close(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = cause
	close(s.done)
}

func (s *HTTPStream) take() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// Serve writes queued frames to w until the stream is closed, a write fails, or ctx
// is done. It returns nil after a Close.
func (s *HTTPStream) Serve(ctx context.Context, w http.ResponseWriter) error {
	rc := http.NewResponseController(w)
	// long-lived response; the server's WriteTimeout must not cut it
	_ = rc.SetWriteDeadline(time.Time{})

	flush := func() error {
		for _, frame := range s.take() {
			if _, err := w.Write(frame); err != nil {
				return err
			}
		}
		return rc.Flush()
	}
	for {
		if err := flush(); err != nil {
			s.close(err)
			return err
		}
		select {
		case <-s.wake:
		case <-s.done:
			if err := flush(); err != nil {
				return err
			}
			return nil
		case <-ctx.Done():
			s.close(ctx.Err())
			return ctx.Err()
		}
	}
}
