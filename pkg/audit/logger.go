package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the audit sink interface. Implementations must be safe for
// concurrent use.
//
// A failed audit write never changes the outcome of the operation that
// produced the event: callers log the failure and move on. The one exception
// is a mutation that shares a transaction with its event, where the
// transaction's own semantics decide.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the sink.
	Close() error
}

// NewEvent builds an event with ID and timestamp filled in.
func NewEvent(action Action, category Category, status Status) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Action:    action,
		Category:  category,
		Status:    status,
	}
}

// NopLogger discards every event. Tests and minimal deployments use it.
type NopLogger struct{}

// NewNopLogger creates a logger that discards everything.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (l *NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (l *NopLogger) Close() error                                { return nil }
