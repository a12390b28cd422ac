package logging

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// NewRequestID generates a unique, time-ordered request ID.
func NewRequestID() string {
	return ulid.Make().String()
}

// WithRequestID adds a request ID to context.
// If id is empty, generates a new one.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewRequestID()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID extracts request ID from context.
// Returns empty string if not present.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger whose events carry the context's request ID
// in their extra fields.
func (l *Logger) FromContext(ctx context.Context) *ContextLogger {
	return &ContextLogger{Logger: l, requestID: GetRequestID(ctx)}
}

// ContextLogger decorates events with a request ID.
type ContextLogger struct {
	*Logger
	requestID string
}

func (c *ContextLogger) with(extra map[string]interface{}) map[string]interface{} {
	if c.requestID == "" {
		return extra
	}
	out := make(map[string]interface{}, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	out["request_id"] = c.requestID
	return out
}

// Info logs an info event tagged with the request ID.
func (c *ContextLogger) Info(event string, extra map[string]interface{}) {
	c.Logger.Info(event, c.with(extra))
}

// Warn logs a warning event tagged with the request ID.
func (c *ContextLogger) Warn(event string, extra map[string]interface{}, err error) {
	c.Logger.Warn(event, c.with(extra), err)
}

// Error logs an error event tagged with the request ID.
func (c *ContextLogger) Error(event string, extra map[string]interface{}, err error) {
	c.Logger.Error(event, c.with(extra), err)
}
