package shelfwire

import (
	"context"
	"errors"
	"fmt"

	"github.com/shelfwire/shelfwire/model"
	"github.com/shelfwire/shelfwire/retry"
)

// Publisher hands domain events to the broker. The event itself declares
// where it goes: the exchange and routing key are pure functions of the
// event kind, and the publisher fans the encoded body out to every queue
// whose binding matches.
//
// Publishing is at-least-once: a retried publish can duplicate a message,
// so consumers must tolerate duplicates.
type Publisher struct {
	messageRepo  MessageRepository
	topologyRepo TopologyRepository
	policy       retry.Policy
	logger       Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher) error

// NewPublisher creates a new Publisher with the provided options.
//
// Required options:
//   - WithPublisherRepositories: message and topology repositories
//   - WithPublisherLogger: logger instance
//
// Optional:
//   - WithPublisherPolicy: custom retry policy (default retry.DefaultPolicy())
//
// Example:
//
//	publisher, err := shelfwire.NewPublisher(
//	    shelfwire.WithPublisherRepositories(msgRepo, topoRepo),
//	    shelfwire.WithPublisherLogger(logger),
//	)
func NewPublisher(opts ...PublisherOption) (*Publisher, error) {
	p := &Publisher{
		policy: retry.DefaultPolicy(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	// Validate required dependencies
	if p.messageRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithPublisherRepositories)")
	}
	if p.topologyRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "TopologyRepository is required (use WithPublisherRepositories)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherRepositories sets the required repository dependencies.
func WithPublisherRepositories(messageRepo MessageRepository, topologyRepo TopologyRepository) PublisherOption {
	return func(p *Publisher) error {
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		if topologyRepo == nil {
			return fmt.Errorf("topologyRepo cannot be nil")
		}
		p.messageRepo = messageRepo
		p.topologyRepo = topologyRepo
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *Publisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithPublisherPolicy sets a custom retry policy.
func WithPublisherPolicy(policy retry.Policy) PublisherOption {
	return func(p *Publisher) error {
		p.policy = policy
		return nil
	}
}

// PublishResult reports where a publish landed.
type PublishResult struct {
	EventID        string   // Envelope ID
	QueuesMatched  []string // Queues that buffered a copy
	MessagesStored int      // Number of message rows created
}

// Publish serializes the event and routes it to every queue bound to the
// event's exchange under a matching pattern.
//
// Zero matched queues is not an error: the event is logged and dropped,
// mirroring a broker publish with no bindings.
func (p *Publisher) Publish(ctx context.Context, env model.Envelope) (*PublishResult, error) {
	body, err := env.Encode()
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "failed to encode event", err)
	}

	exchange, err := p.topologyRepo.GetExchange(ctx, env.Exchange())
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeTopology,
				fmt.Sprintf("exchange not declared: %s", env.Exchange()), err)
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load exchange", err)
	}

	bindings, err := p.topologyRepo.FindBindings(ctx, exchange.Name)
	if err != nil && !IsNoData(err) {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load bindings", err)
	}

	result := &PublishResult{EventID: env.ID}

	for _, b := range bindings {
		if !b.Matches(exchange.Kind, env.RoutingKey()) {
			continue
		}

		queue, err := p.topologyRepo.GetQueue(ctx, b.Queue)
		if err != nil {
			return nil, NewErrorWithCause(ErrCodeDatabase,
				fmt.Sprintf("failed to load queue %s", b.Queue), err)
		}

		message := model.NewMessage(queue.Name, env, body, queue.MessageTTL)
		if _, err := p.messageRepo.Save(ctx, &message); err != nil {
			return nil, NewErrorWithCause(ErrCodeDatabase,
				fmt.Sprintf("failed to buffer message into %s", queue.Name), err)
		}

		result.QueuesMatched = append(result.QueuesMatched, queue.Name)
		result.MessagesStored++
	}

	if result.MessagesStored == 0 {
		p.logger.Warnf("No queue bound for %s on %s (event=%s, correlation=%s)",
			env.RoutingKey(), env.Exchange(), env.ID, env.CorrelationID)
		return result, nil
	}

	p.logger.Infof("Published %s to %d queue(s) (event=%s, aggregate=%s, correlation=%s)",
		env.Kind, result.MessagesStored, env.ID, env.AggregateID, env.CorrelationID)

	return result, nil
}

// PublishWithRetry publishes with bounded retry on transient failure,
// waiting a fixed backoff between attempts. Exhausting the budget
// surfaces the last error to the caller; publish failure is never
// swallowed silently, even though the catalog write it follows is not
// rolled back.
//
// maxRetries <= 0 falls back to the policy's publish attempt count.
func (p *Publisher) PublishWithRetry(ctx context.Context, env model.Envelope, maxRetries int) (*PublishResult, error) {
	attempts := maxRetries
	if attempts <= 0 {
		attempts = p.policy.PublishAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := p.Publish(ctx, env)
		if err == nil {
			if attempt > 1 {
				p.logger.Infof("Publish of %s succeeded on attempt %d", env.Kind, attempt)
			}
			return result, nil
		}

		if !isTransientPublishError(err) {
			return nil, err
		}

		lastErr = err
		p.logger.Warnf("Publish attempt %d/%d for %s failed: %v", attempt, attempts, env.Kind, err)

		if attempt == attempts {
			break
		}
		if sleepErr := retry.Sleep(ctx, p.policy.PublishDelay(attempt)); sleepErr != nil {
			return nil, NewErrorWithCause(ErrCodePublish, "publish canceled while backing off", sleepErr)
		}
	}

	return nil, NewErrorWithCause(ErrCodePublish,
		fmt.Sprintf("failed to publish %s after %d attempts", env.Kind, attempts), lastErr)
}

// isTransientPublishError reports whether a publish failure is worth
// retrying. Validation and topology failures will not heal on their own.
func isTransientPublishError(err error) bool {
	var swErr *Error
	if errors.As(err, &swErr) {
		return swErr.Code == ErrCodeDatabase
	}
	return true
}
