package audit

import (
	"context"
	"fmt"
)

// MultiLogger fans an event out to several sinks. A failure in one sink does
// not stop delivery to the others; the first error is returned so the caller
// can log it.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to every given sink.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log delivers the event to all sinks.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all sinks.
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close audit sink: %w", err)
		}
	}
	return firstErr
}
