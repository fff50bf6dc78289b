package shelfwire

import (
	"context"
)

// DeliverySink is the external collaborator that actually delivers a
// notification (an email gateway, a chat webhook, ...). The core treats it
// as an opaque capability: it either succeeds or returns an error.
//
// Implementations must respect the context deadline; a timed-out delivery
// is handled exactly like a failed one.
type DeliverySink interface {
	// Deliver sends one notification to the recipient.
	Deliver(ctx context.Context, recipient, subject, body string) error
}

// SinkFunc adapts a plain function to the DeliverySink interface.
type SinkFunc func(ctx context.Context, recipient, subject, body string) error

// Deliver implements DeliverySink.
func (f SinkFunc) Deliver(ctx context.Context, recipient, subject, body string) error {
	return f(ctx, recipient, subject, body)
}

// LoggingSink is a DeliverySink that only logs. Useful for local runs and
// environments without a real gateway.
type LoggingSink struct {
	logger Logger
}

// NewLoggingSink creates a LoggingSink.
func NewLoggingSink(logger Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

// Deliver logs the notification and reports success.
func (s *LoggingSink) Deliver(_ context.Context, recipient, subject, _ string) error {
	s.logger.Infof("Delivered notification to %s: %s", recipient, subject)
	return nil
}
