package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// LogEntry defines the structure of a log line.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Service   string         `json:"service"`
	Hostname  string         `json:"hostname"`
	RequestID string         `json:"request_id,omitempty"`
	Action    string         `json:"action"`
	Message   string         `json:"message"`
	Error     *ErrorObject   `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// ErrorObject for structured error logging.
type ErrorObject struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// Logger writes one JSON object per line.
type Logger struct {
	service  string
	hostname string

	mu  sync.Mutex
	out io.Writer
}

// New returns a Logger writing to stdout.
func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter returns a Logger writing to w.
func NewWithWriter(service string, w io.Writer) *Logger {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = fallbackHostname()
	}
	return &Logger{service: service, hostname: hostname, out: w}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return NewWithWriter("nop", io.Discard)
}

func (l *Logger) Debug(requestID, action, message string, extra map[string]any) {
	l.log("DEBUG", action, message, requestID, nil, extra)
}

func (l *Logger) Info(requestID, action, message string, extra map[string]any) {
	l.log("INFO", action, message, requestID, nil, extra)
}

func (l *Logger) Warn(requestID, action, message string, extra map[string]any) {
	l.log("WARN", action, message, requestID, nil, extra)
}

// Error logs an ERROR entry carrying err and the current stack.
func (l *Logger) Error(requestID, action, message string, err error, extra map[string]any) {
	var obj *ErrorObject
	if err != nil {
		obj = &ErrorObject{Msg: err.Error(), Stack: string(debug.Stack())}
	}
	l.log("ERROR", action, message, requestID, obj, extra)
}

func (l *Logger) log(level, action, message, requestID string, errObj *ErrorObject, extra map[string]any) {
	if l == nil {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Service:   l.service,
		Hostname:  l.hostname,
		RequestID: requestID,
		Action:    action,
		Message:   message,
		Error:     errObj,
		Extra:     extra,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

type requestIDKey struct{}

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored in ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Fallback if os.Hostname() fails
func fallbackHostname() string {
	addrs, _ := net.InterfaceAddrs()
	if len(addrs) > 0 {
		return addrs[0].String()
	}
	return "unknown-host"
}
