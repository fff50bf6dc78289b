package shelfwire

import (
	"context"

	"github.com/shelfwire/shelfwire/model"
)

// AlertService defines an optional interface for surfacing operational
// events (delivery failures, dead letters, sweep results) to humans.
//
// Implementations might send emails, Slack messages, or page an on-call.
type AlertService interface {
	// AlertDeadLetter is called when a message is rerouted to the DLQ.
	AlertDeadLetter(ctx context.Context, dl model.DeadLetter) error

	// AlertDeliveryFailure is called on every failed delivery attempt,
	// before the record exhausts its retry budget.
	AlertDeliveryFailure(ctx context.Context, n *model.Notification, err error) error

	// AlertRetryExhausted is called when a record's retry budget runs out
	// and operator intervention is required.
	AlertRetryExhausted(ctx context.Context, n *model.Notification) error
}

// NoOpAlertService is a no-op implementation of AlertService.
// Use this when operational alerts are not needed.
type NoOpAlertService struct{}

// AlertDeadLetter does nothing.
func (a *NoOpAlertService) AlertDeadLetter(_ context.Context, _ model.DeadLetter) error {
	return nil
}

// AlertDeliveryFailure does nothing.
func (a *NoOpAlertService) AlertDeliveryFailure(_ context.Context, _ *model.Notification, _ error) error {
	return nil
}

// AlertRetryExhausted does nothing.
func (a *NoOpAlertService) AlertRetryExhausted(_ context.Context, _ *model.Notification) error {
	return nil
}

// LoggingAlertService is a simple implementation that logs alerts.
type LoggingAlertService struct {
	logger Logger
}

// NewLoggingAlertService creates a new LoggingAlertService.
func NewLoggingAlertService(logger Logger) *LoggingAlertService {
	return &LoggingAlertService{logger: logger}
}

// AlertDeadLetter logs the dead letter.
func (a *LoggingAlertService) AlertDeadLetter(_ context.Context, dl model.DeadLetter) error {
	a.logger.Warnf("Message dead-lettered: queue=%s, reason=%s, correlation=%s, deliveries=%d",
		dl.Queue, dl.Reason, dl.CorrelationID, dl.DeliveryCount)
	return nil
}

// AlertDeliveryFailure logs the failed attempt.
func (a *LoggingAlertService) AlertDeliveryFailure(_ context.Context, n *model.Notification, err error) error {
	a.logger.Warnf("Delivery failed: notification=%d, recipient=%s, retries=%d, error=%v",
		n.ID, n.Recipient, n.RetryCount, err)
	return nil
}

// AlertRetryExhausted logs the exhausted record.
func (a *LoggingAlertService) AlertRetryExhausted(_ context.Context, n *model.Notification) error {
	a.logger.Errorf("Retry budget exhausted: notification=%d, recipient=%s, last_error=%s",
		n.ID, n.Recipient, n.LastError.String)
	return nil
}
