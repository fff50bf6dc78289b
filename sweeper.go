package shelfwire

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwire/shelfwire/model"
	"github.com/shelfwire/shelfwire/retry"
)

// Sweeper re-drives notification records stuck in FAILED (or never
// attempted PENDING) state by replaying delivery for every record still
// inside its retry budget.
//
// The sweep works over a snapshot: records that become eligible while a
// sweep is running wait for the next pass. Failures are isolated per
// record; one record's failure never aborts the sweep.
type Sweeper struct {
	nr     NotificationRepository
	sink   DeliverySink
	policy retry.Policy
	logger Logger
	alerts AlertService

	batchSize       int
	deliveryTimeout time.Duration
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	// Scanned is the number of eligible records in the snapshot.
	Scanned int `json:"scanned"`

	// Sent is the number of records that transitioned to SENT.
	Sent int `json:"sent"`

	// Failed is the number of records whose attempt failed again.
	Failed int `json:"failed"`

	// Skipped is the number of records skipped (stale snapshot rows or
	// persistence errors on the reset step).
	Skipped int `json:"skipped"`
}

// SweeperOption is a function that configures a Sweeper.
type SweeperOption func(*Sweeper) error

// WithSweeperRepository sets the notification repository. Required.
func WithSweeperRepository(nr NotificationRepository) SweeperOption {
	return func(s *Sweeper) error {
		if nr == nil {
			return fmt.Errorf("notification repository cannot be nil")
		}
		s.nr = nr
		return nil
	}
}

// WithSweeperSink sets the delivery sink. Required.
func WithSweeperSink(sink DeliverySink) SweeperOption {
	return func(s *Sweeper) error {
		if sink == nil {
			return fmt.Errorf("sink cannot be nil")
		}
		s.sink = sink
		return nil
	}
}

// WithSweeperLogger sets the logger instance. Required.
func WithSweeperLogger(logger Logger) SweeperOption {
	return func(s *Sweeper) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithSweeperPolicy sets a custom retry policy.
// Optional - defaults to retry.DefaultPolicy().
func WithSweeperPolicy(policy retry.Policy) SweeperOption {
	return func(s *Sweeper) error {
		s.policy = policy
		return nil
	}
}

// WithSweeperAlerts sets an optional alert service.
// Optional - defaults to NoOpAlertService.
func WithSweeperAlerts(service AlertService) SweeperOption {
	return func(s *Sweeper) error {
		if service == nil {
			return fmt.Errorf("alert service cannot be nil")
		}
		s.alerts = service
		return nil
	}
}

// WithSweeperBatchSize caps the snapshot size per sweep.
// Optional - default is 500.
func WithSweeperBatchSize(size int) SweeperOption {
	return func(s *Sweeper) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be > 0, got %d", size)
		}
		s.batchSize = size
		return nil
	}
}

// WithSweeperDeliveryTimeout bounds a single delivery attempt.
// Optional - default is 10s.
func WithSweeperDeliveryTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) error {
		if d <= 0 {
			return fmt.Errorf("delivery timeout must be > 0, got %v", d)
		}
		s.deliveryTimeout = d
		return nil
	}
}

// NewSweeper creates a new Sweeper with the provided options.
//
// Required options: WithSweeperRepository, WithSweeperSink, WithSweeperLogger.
func NewSweeper(opts ...SweeperOption) (*Sweeper, error) {
	s := &Sweeper{
		policy:          retry.DefaultPolicy(),
		alerts:          &NoOpAlertService{},
		batchSize:       500,
		deliveryTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if s.nr == nil {
		return nil, NewError(ErrCodeConfiguration, "NotificationRepository is required (use WithSweeperRepository)")
	}
	if s.sink == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliverySink is required (use WithSweeperSink)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithSweeperLogger)")
	}

	return s, nil
}

// RetryFailedNotifications runs one sweep pass: snapshot the eligible
// records, retry each one, and report how many ended up SENT.
//
// A record past its retry budget is never picked up; it stays FAILED until
// an operator intervenes. Already-SENT records never re-enter the sweep.
func (s *Sweeper) RetryFailedNotifications(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	snapshot, err := s.nr.FindRetryable(ctx, s.policy.MaxRetries, s.batchSize)
	if err != nil {
		if IsNoData(err) {
			return result, nil
		}
		return result, fmt.Errorf("failed to snapshot retryable notifications: %w", err)
	}
	result.Scanned = len(snapshot)

	for i := range snapshot {
		n := &snapshot[i]

		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := n.ResetForRetry(s.policy.MaxRetries); err != nil {
			// The snapshot row went stale between snapshot and reset.
			s.logger.Debugf("Skipping notification %d: %v", n.ID, err)
			result.Skipped++
			continue
		}
		if _, err := s.nr.Save(ctx, n); err != nil {
			s.logger.Errorf("Failed to reset notification %d for retry: %v", n.ID, err)
			result.Skipped++
			continue
		}

		deliveryErr := s.attemptDelivery(ctx, n)
		if deliveryErr == nil {
			if err := n.MarkSent(); err != nil {
				s.logger.Errorf("Notification %d delivered but transition failed: %v", n.ID, err)
				result.Skipped++
				continue
			}
			result.Sent++
		} else {
			if err := n.MarkFailed(deliveryErr); err != nil {
				s.logger.Errorf("Failed to record failure for notification %d: %v", n.ID, err)
				result.Skipped++
				continue
			}
			result.Failed++
		}

		if _, err := s.nr.Save(ctx, n); err != nil {
			s.logger.Errorf("Failed to persist outcome for notification %d: %v", n.ID, err)
			continue
		}

		if deliveryErr != nil {
			s.logger.Warnf("Retry failed for notification %d (attempt %d/%d): %v",
				n.ID, n.RetryCount, s.policy.MaxRetries, deliveryErr)
			if err := s.alerts.AlertDeliveryFailure(ctx, n, deliveryErr); err != nil {
				s.logger.Warnf("Failed to send delivery failure alert: %v", err)
			}
			if !n.CanRetry(s.policy.MaxRetries) {
				if err := s.alerts.AlertRetryExhausted(ctx, n); err != nil {
					s.logger.Warnf("Failed to send retry exhausted alert: %v", err)
				}
			}
		}
	}

	if result.Scanned > 0 {
		s.logger.Infof("Retry sweep done: scanned=%d sent=%d failed=%d skipped=%d",
			result.Scanned, result.Sent, result.Failed, result.Skipped)
	}
	return result, nil
}

// PreviewRetryable reports the records a sweep would pick up without
// touching any of them. Backs the operator API's dry-run mode.
func (s *Sweeper) PreviewRetryable(ctx context.Context) ([]model.Notification, error) {
	snapshot, err := s.nr.FindRetryable(ctx, s.policy.MaxRetries, s.batchSize)
	if err != nil {
		if IsNoData(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to snapshot retryable notifications: %w", err)
	}
	return snapshot, nil
}

// attemptDelivery runs one delivery attempt under the configured timeout.
func (s *Sweeper) attemptDelivery(ctx context.Context, n *model.Notification) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	return s.sink.Deliver(attemptCtx, n.Recipient, n.Subject, n.Body)
}
