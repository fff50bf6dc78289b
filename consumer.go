package shelfwire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shelfwire/shelfwire/model"
	"github.com/shelfwire/shelfwire/retry"
)

// Consumer drains the primary queues, materializes notification records,
// attempts delivery through the sink, and records the outcome.
//
// Acknowledgment discipline: a message is acked only after the outcome of
// this attempt (SENT or FAILED) is durably persisted. If the outcome
// cannot be persisted, the message is requeued; once a message uses up its
// queue's requeue budget it is dead-lettered instead. Undeserializable
// messages are rejected without requeue and land in the DLQ immediately.
//
// Each queue is drained by a fixed-size pool of workers; queues proceed
// independently. The lease taken by FetchReady guarantees a message is
// held by at most one worker at a time.
//
// Duplicate events (possible under at-least-once publishing) produce
// duplicate notification records; no dedup key is enforced at consume
// time.
type Consumer struct {
	mr     MessageRepository
	nr     NotificationRepository
	dlqr   DLQRepository
	rr     RecipientRepository
	topo   TopologyRepository
	sink   DeliverySink
	policy retry.Policy
	logger Logger
	alerts AlertService

	batchSize         int
	workers           int
	deliveryTimeout   time.Duration
	fallbackRecipient *model.Recipient
}

// NewConsumer creates a new Consumer with the provided options.
//
// Required options:
//   - WithRepositories: message, notification, DLQ, recipient, and topology repositories
//   - WithSink: delivery sink
//   - WithLogger: logger instance
//
// Optional options:
//   - WithPolicy: custom retry policy (default: retry.DefaultPolicy())
//   - WithAlerts: alert service (default: no alerts)
//   - WithBatchSize: batch size per queue per pass (default: 100)
//   - WithWorkers: worker pool size per queue (default: 4)
//   - WithDeliveryTimeout: per-delivery timeout (default: 10s)
//   - WithFallbackRecipient: recipient used when no active recipient is registered
func NewConsumer(opts ...Option) (*Consumer, error) {
	c := &Consumer{
		policy:          retry.DefaultPolicy(),
		alerts:          &NoOpAlertService{},
		batchSize:       100,
		workers:         4,
		deliveryTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	// Validate required dependencies
	if c.mr == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithRepositories)")
	}
	if c.nr == nil {
		return nil, NewError(ErrCodeConfiguration, "NotificationRepository is required (use WithRepositories)")
	}
	if c.dlqr == nil {
		return nil, NewError(ErrCodeConfiguration, "DLQRepository is required (use WithRepositories)")
	}
	if c.rr == nil {
		return nil, NewError(ErrCodeConfiguration, "RecipientRepository is required (use WithRepositories)")
	}
	if c.topo == nil {
		return nil, NewError(ErrCodeConfiguration, "TopologyRepository is required (use WithRepositories)")
	}
	if c.sink == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliverySink is required (use WithSink)")
	}
	if c.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return c, nil
}

// ProcessQueue drains one batch from a primary queue through the worker
// pool. Returns the number of messages fully processed (acked or
// dead-lettered). Individual message failures are logged and do not stop
// the batch.
func (c *Consumer) ProcessQueue(ctx context.Context, queueName string) (int, error) {
	queue, err := c.topo.GetQueue(ctx, queueName)
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeTopology, fmt.Sprintf("queue not declared: %s", queueName), err)
	}

	messages, err := c.mr.FetchReady(ctx, queueName, c.batchSize, c.policy.LeaseDuration)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch from %s: %w", queueName, err)
	}

	jobs := make(chan *model.Message)
	var processed int64
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if err := c.processMessage(ctx, queue, m); err != nil {
					c.logger.Errorf("Failed to process message %d from %s: %v", m.ID, queueName, err)
					continue
				}
				atomic.AddInt64(&processed, 1)
			}
		}()
	}

	for i := range messages {
		jobs <- &messages[i]
	}
	close(jobs)
	wg.Wait()

	return int(atomic.LoadInt64(&processed)), nil
}

// processMessage handles one in-flight message end to end.
func (c *Consumer) processMessage(ctx context.Context, queue model.Queue, m *model.Message) error {
	env, err := model.DecodeEnvelope([]byte(m.Body))
	if err != nil {
		// Poison message: reject without requeue so it cannot block the
		// queue, and never turn it into a notification record.
		c.logger.Warnf("Rejecting undeserializable message %d from %s: %v", m.ID, queue.Name, err)
		return c.deadLetter(ctx, queue, m, model.ReasonRejected, err.Error())
	}

	notifications, err := c.materializeNotifications(ctx, env)
	if err != nil {
		return c.requeueOrDeadLetter(ctx, queue, m, err)
	}

	for i := range notifications {
		n := &notifications[i]
		deliveryErr := c.attemptDelivery(ctx, n)
		if err := c.applyOutcome(ctx, n, deliveryErr); err != nil {
			// Outcome not durable: do not ack, let the message come back.
			return c.requeueOrDeadLetter(ctx, queue, m, err)
		}
	}

	// Outcomes are durable for this attempt: safe to ack.
	if err := c.mr.Ack(ctx, m); err != nil {
		return fmt.Errorf("failed to ack message %d: %w", m.ID, err)
	}

	c.logger.Debugf("Processed message %d from %s (%d notification(s), correlation=%s)",
		m.ID, queue.Name, len(notifications), m.CorrelationID)
	return nil
}

// materializeNotifications builds and persists the PENDING records for an
// envelope: one per active recipient for catalog events, or a single
// record for a direct send request.
func (c *Consumer) materializeNotifications(ctx context.Context, env model.Envelope) ([]model.Notification, error) {
	var out []model.Notification

	if env.Kind == model.EventNotificationSend {
		n := model.NewNotification(env.Send.Recipient, env.Send.RecipientName,
			env.Send.Subject, env.Send.Body, model.NotificationGeneric)
		n.CorrelationID = env.CorrelationID
		n.SetReference(env.AggregateID, strings.ToUpper(env.AggregateType))
		out = append(out, n)
	} else {
		recipients, err := c.recipients(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load recipients: %w", err)
		}
		subject, body := composeCatalogNotification(env)
		for _, r := range recipients {
			n := model.NewNotification(r.Email, r.Name, subject, body, model.NotificationTypeForEvent(env.Kind))
			n.CorrelationID = env.CorrelationID
			n.SetReference(env.AggregateID, strings.ToUpper(env.AggregateType))
			out = append(out, n)
		}
	}

	for i := range out {
		if _, err := c.nr.Save(ctx, &out[i]); err != nil {
			return nil, fmt.Errorf("failed to persist pending notification: %w", err)
		}
	}

	return out, nil
}

// recipients returns the active recipient set, falling back to the
// configured default when the registry is empty. A store failure
// propagates so the caller requeues the message rather than acking an
// event for which no record could be materialized.
func (c *Consumer) recipients(ctx context.Context) ([]model.Recipient, error) {
	active, err := c.rr.FindActive(ctx)
	if err != nil && !IsNoData(err) {
		return nil, err
	}
	if len(active) == 0 && c.fallbackRecipient != nil {
		return []model.Recipient{*c.fallbackRecipient}, nil
	}
	return active, nil
}

// attemptDelivery runs one delivery attempt under the configured timeout.
// The returned error is the attempt's outcome, not an exceptional
// condition: nil means delivered.
func (c *Consumer) attemptDelivery(ctx context.Context, n *model.Notification) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.deliveryTimeout)
	defer cancel()

	err := c.sink.Deliver(attemptCtx, n.Recipient, n.Subject, n.Body)
	if errors.Is(err, context.DeadlineExceeded) {
		// A timed-out attempt is a failed attempt, nothing more special.
		return fmt.Errorf("delivery timed out after %v", c.deliveryTimeout)
	}
	return err
}

// applyOutcome applies the state-machine transition for one attempt and
// persists the record.
func (c *Consumer) applyOutcome(ctx context.Context, n *model.Notification, deliveryErr error) error {
	if deliveryErr == nil {
		if err := n.MarkSent(); err != nil {
			return err
		}
	} else {
		if err := n.MarkFailed(deliveryErr); err != nil {
			return err
		}
	}

	if _, err := c.nr.Save(ctx, n); err != nil {
		return fmt.Errorf("failed to persist notification outcome: %w", err)
	}

	if deliveryErr != nil {
		if err := c.alerts.AlertDeliveryFailure(ctx, n, deliveryErr); err != nil {
			c.logger.Warnf("Failed to send delivery failure alert: %v", err)
		}
		if !n.CanRetry(c.policy.MaxRetries) {
			if err := c.alerts.AlertRetryExhausted(ctx, n); err != nil {
				c.logger.Warnf("Failed to send retry exhausted alert: %v", err)
			}
		}
	}

	return nil
}

// requeueOrDeadLetter returns a message to its queue after a processing
// failure, or dead-letters it once the requeue budget is used up.
func (c *Consumer) requeueOrDeadLetter(ctx context.Context, queue model.Queue, m *model.Message, cause error) error {
	if m.ExceededRequeueLimit(queue.RequeueLimit) {
		c.logger.Warnf("Message %d exceeded requeue limit on %s (deliveries=%d)", m.ID, queue.Name, m.DeliveryCount)
		if err := c.deadLetter(ctx, queue, m, model.ReasonDeliveryLimit, cause.Error()); err != nil {
			return err
		}
		return cause
	}

	m.Requeue()
	if _, err := c.mr.Save(ctx, m); err != nil {
		return fmt.Errorf("failed to requeue message %d: %w", m.ID, err)
	}
	return cause
}

// deadLetter reroutes a message to its paired DLQ and removes it from the
// primary queue.
func (c *Consumer) deadLetter(ctx context.Context, queue model.Queue, m *model.Message, reason model.DeadLetterReason, detail string) error {
	dl := model.NewDeadLetter(*m, DLQNameFor(queue.Name), reason, detail)

	dl, err := c.dlqr.Save(ctx, dl)
	if err != nil {
		return fmt.Errorf("failed to save DLQ entry: %w", err)
	}

	if err := c.mr.Ack(ctx, m); err != nil {
		c.logger.Errorf("Failed to remove message %d after dead-lettering: %v", m.ID, err)
		// The DLQ entry exists; do not fail the operation.
	}

	c.logger.Warnf("Dead-lettered message %d from %s (dlq_id=%d, reason=%s)", m.ID, queue.Name, dl.ID, reason)

	if err := c.alerts.AlertDeadLetter(ctx, dl); err != nil {
		c.logger.Warnf("Failed to send dead-letter alert: %v", err)
	}

	return nil
}

// SweepExpired dead-letters messages that outlived their queue TTL, so an
// unconsumed backlog stays bounded. Returns the number of messages moved.
func (c *Consumer) SweepExpired(ctx context.Context) (int, error) {
	messages, err := c.mr.FindExpired(ctx, c.batchSize)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find expired messages: %w", err)
	}

	moved := 0
	for i := range messages {
		m := &messages[i]
		queue, err := c.topo.GetQueue(ctx, m.QueueName)
		if err != nil {
			c.logger.Errorf("Failed to load queue %s for expired message %d: %v", m.QueueName, m.ID, err)
			continue
		}
		if err := c.deadLetter(ctx, queue, m, model.ReasonExpired, "message TTL elapsed"); err != nil {
			c.logger.Errorf("Failed to dead-letter expired message %d: %v", m.ID, err)
			continue
		}
		moved++
	}

	if moved > 0 {
		c.logger.Infof("Dead-lettered %d expired message(s)", moved)
	}
	return moved, nil
}

// Run starts the consumer loop, draining every primary queue of the
// topology at the given interval until the context is canceled. Queues are
// drained independently; one queue's failure does not stop the others.
//
// This method blocks and should typically be run in a goroutine.
func (c *Consumer) Run(ctx context.Context, t Topology, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("Consumer started")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped")
			return
		case <-ticker.C:
			c.processBatch(ctx, t)
		}
	}
}

// processBatch drains one batch from every primary queue, then sweeps
// expired messages.
func (c *Consumer) processBatch(ctx context.Context, t Topology) {
	total := 0
	for _, q := range t.PrimaryQueues() {
		n, err := c.ProcessQueue(ctx, q.Name)
		if err != nil {
			c.logger.Errorf("Error draining %s: %v", q.Name, err)
			continue
		}
		total += n
	}

	expired, err := c.SweepExpired(ctx)
	if err != nil {
		c.logger.Errorf("Error sweeping expired messages: %v", err)
	}

	if total > 0 || expired > 0 {
		c.logger.Infof("Batch processed: messages=%d, expired=%d", total, expired)
	}
}

// GetDLQStats retrieves Dead Letter Queue statistics for monitoring.
func (c *Consumer) GetDLQStats(ctx context.Context) (model.DLQStats, error) {
	return c.dlqr.GetStats(ctx)
}

// composeCatalogNotification renders the subject and body for a catalog
// event notification.
func composeCatalogNotification(env model.Envelope) (subject, body string) {
	switch env.Kind {
	case model.EventBookCreated:
		subject = fmt.Sprintf("New book in catalog: %s", env.Book.Title)
		body = fmt.Sprintf("%q by %s (ISBN %s) was added to the catalog at %.2f.",
			env.Book.Title, env.Book.Author, env.Book.ISBN, env.Book.Price)
	case model.EventBookUpdated:
		subject = fmt.Sprintf("Book updated: %s", env.Book.Title)
		body = fmt.Sprintf("%q by %s (ISBN %s) was updated. Current price: %.2f.",
			env.Book.Title, env.Book.Author, env.Book.ISBN, env.Book.Price)
	case model.EventBookDeleted:
		kind := "removed"
		if env.Deletion.SoftDelete {
			kind = "archived"
		}
		subject = fmt.Sprintf("Book %s (id %s)", kind, env.AggregateID)
		body = fmt.Sprintf("Book %s was %s by %s.", env.AggregateID, kind, env.Deletion.DeletedBy)
	default:
		subject = fmt.Sprintf("Catalog event: %s", env.Kind)
		body = fmt.Sprintf("Event %s for aggregate %s.", env.Kind, env.AggregateID)
	}
	return subject, body
}
