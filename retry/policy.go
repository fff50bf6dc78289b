// Package retry defines the retry policy for event publishing and
// notification delivery: a bounded publish retry with fixed backoff, and a
// fixed retry budget for notification records.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwire/shelfwire/model"
)

// Policy holds the retry configuration shared by the publisher, the
// consumer, and the sweeper.
type Policy struct {
	MaxRetries      int           // Notification retry budget before permanent FAILED
	PublishAttempts int           // Total publish attempts on transient broker failure
	PublishBackoff  time.Duration // Fixed interval between publish attempts
	LeaseDuration   time.Duration // How long a consumer may hold a message in flight
}

// DefaultPolicy returns the production defaults: a retry budget of 3, up
// to 3 publish attempts spaced 1 second apart, and a 30 second consume
// lease.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      model.DefaultMaxRetries,
		PublishAttempts: 3,
		PublishBackoff:  1 * time.Second,
		LeaseDuration:   30 * time.Second,
	}
}

// CanRetry reports whether a notification with the given retry count is
// still inside the budget.
func (p Policy) CanRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// PublishDelay returns the wait before the next publish attempt. The
// backoff is deliberately fixed, not exponential: publish failures are
// short broker blips and the caller is on the catalog request path.
func (p Policy) PublishDelay(_ int) time.Duration {
	return p.PublishBackoff
}

// Sleep waits for d or until the context is canceled, whichever comes
// first. Returns the context error on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Schedule returns a human-readable description of the publish retry
// schedule, for logs and operator display.
func (p Policy) Schedule() string {
	schedule := "Publish retry schedule:\n"
	for i := 1; i <= p.PublishAttempts; i++ {
		if i == 1 {
			schedule += "  Attempt 1: immediate\n"
			continue
		}
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i, p.PublishDelay(i-1))
	}
	schedule += fmt.Sprintf("Notification retry budget: %d\n", p.MaxRetries)
	return schedule
}
