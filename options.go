package shelfwire

import (
	"fmt"
	"time"

	"github.com/shelfwire/shelfwire/model"
	"github.com/shelfwire/shelfwire/retry"
)

// Option is a function that configures a Consumer.
// Used with the Options Pattern for flexible service construction.
//
// Example:
//
//	consumer, err := shelfwire.NewConsumer(
//	    shelfwire.WithRepositories(msgRepo, notifRepo, dlqRepo, recipientRepo, topoRepo),
//	    shelfwire.WithSink(sink),
//	    shelfwire.WithLogger(logger),
//	    shelfwire.WithBatchSize(200), // optional
//	)
type Option func(*Consumer) error

// WithRepositories sets the required repository dependencies for the
// consumer. All five repositories are required and must not be nil.
//
// This is a required option for NewConsumer.
//
// Parameters:
//   - messageRepo: buffered message persistence
//   - notificationRepo: notification record persistence
//   - dlqRepo: dead letter persistence
//   - recipientRepo: recipient registry
//   - topologyRepo: declared exchanges, queues, and bindings
func WithRepositories(
	messageRepo MessageRepository,
	notificationRepo NotificationRepository,
	dlqRepo DLQRepository,
	recipientRepo RecipientRepository,
	topologyRepo TopologyRepository,
) Option {
	return func(c *Consumer) error {
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		if notificationRepo == nil {
			return fmt.Errorf("notificationRepo cannot be nil")
		}
		if dlqRepo == nil {
			return fmt.Errorf("dlqRepo cannot be nil")
		}
		if recipientRepo == nil {
			return fmt.Errorf("recipientRepo cannot be nil")
		}
		if topologyRepo == nil {
			return fmt.Errorf("topologyRepo cannot be nil")
		}

		c.mr = messageRepo
		c.nr = notificationRepo
		c.dlqr = dlqRepo
		c.rr = recipientRepo
		c.topo = topologyRepo
		return nil
	}
}

// WithSink sets the delivery sink for the consumer. The sink performs the
// actual delivery (SMTP, webhook, chat gateway); the consumer treats its
// return value as the attempt's outcome.
//
// This is a required option for NewConsumer.
func WithSink(sink DeliverySink) Option {
	return func(c *Consumer) error {
		if sink == nil {
			return fmt.Errorf("sink cannot be nil")
		}
		c.sink = sink
		return nil
	}
}

// WithLogger sets the logger instance for the consumer.
// Logger is required and must not be nil.
//
// This is a required option for NewConsumer.
//
// Use NoopLogger for silent operation or implement Logger interface
// to integrate with your logging system (zap, logrus, etc.).
func WithLogger(logger Logger) Option {
	return func(c *Consumer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithPolicy sets a custom retry policy for the consumer.
// This is an optional configuration - if not provided, retry.DefaultPolicy()
// will be used: retry budget 3, 30s message lease.
func WithPolicy(policy retry.Policy) Option {
	return func(c *Consumer) error {
		c.policy = policy
		return nil
	}
}

// WithAlerts sets an optional alert service for the consumer.
// This is an optional configuration - if not provided, NoOpAlertService
// will be used (no alerts).
//
// The alert service receives callbacks for:
//   - Delivery failures (every failed attempt)
//   - Retry budget exhaustion
//   - Dead-lettered messages
//
// Use this to integrate with alerting systems (email, Slack, PagerDuty, etc.).
func WithAlerts(service AlertService) Option {
	return func(c *Consumer) error {
		if service == nil {
			return fmt.Errorf("alert service cannot be nil")
		}
		c.alerts = service
		return nil
	}
}

// WithBatchSize sets the number of messages fetched per queue per pass.
// This is an optional configuration - default is 100.
//
// Must be > 0. Larger batches improve throughput but hold more leases at
// once; smaller batches reduce latency and memory usage.
func WithBatchSize(size int) Option {
	return func(c *Consumer) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be > 0, got %d", size)
		}
		c.batchSize = size
		return nil
	}
}

// WithWorkers sets the worker pool size used to drain each queue.
// This is an optional configuration - default is 4.
//
// Must be > 0. Workers within a pool process messages concurrently, so no
// delivery ordering is guaranteed, even for messages of one aggregate.
func WithWorkers(n int) Option {
	return func(c *Consumer) error {
		if n <= 0 {
			return fmt.Errorf("worker count must be > 0, got %d", n)
		}
		c.workers = n
		return nil
	}
}

// WithDeliveryTimeout bounds a single delivery attempt.
// This is an optional configuration - default is 10s.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(c *Consumer) error {
		if d <= 0 {
			return fmt.Errorf("delivery timeout must be > 0, got %v", d)
		}
		c.deliveryTimeout = d
		return nil
	}
}

// WithFallbackRecipient sets the recipient used for catalog events when
// the recipient registry has no active entries. Without a fallback, such
// events produce zero notification records and are acked.
func WithFallbackRecipient(r model.Recipient) Option {
	return func(c *Consumer) error {
		if r.Email == "" {
			return fmt.Errorf("fallback recipient email cannot be empty")
		}
		c.fallbackRecipient = &r
		return nil
	}
}
