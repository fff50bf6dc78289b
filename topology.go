package shelfwire

import (
	"context"
	"fmt"

	"github.com/shelfwire/shelfwire/model"
)

// Topology is the full set of broker declarations a service assumes exists
// before any publish or consume happens. Order matters: exchanges are
// declared before queues, queues before bindings, bindings before
// dead-letter bindings.
type Topology struct {
	Exchanges          []model.Exchange
	Queues             []model.Queue
	Bindings           []model.Binding
	DeadLetterBindings []model.Binding
}

// DLQNameFor returns the conventional dead-letter queue name paired with a
// primary queue.
func DLQNameFor(queue string) string {
	return queue + ".dlq"
}

// DeadRoutingKeyFor returns the dead-letter routing key paired with a
// primary queue.
func DeadRoutingKeyFor(queue string) string {
	return queue + ".dead"
}

// primaryQueue builds a durable queue with its dead-letter pairing and the
// default 24h TTL.
func primaryQueue(name string) model.Queue {
	return model.NewQueue(name, model.ExchangeDeadLetter, DeadRoutingKeyFor(name))
}

// deadLetterQueue builds the DLQ paired with a primary queue.
func deadLetterQueue(primary string) model.Queue {
	return model.NewQueue(DLQNameFor(primary), "", "")
}

// CatalogTopology returns the topology of the catalog event backbone: one
// topic exchange per aggregate type, one queue per (aggregate, change)
// pair, a direct dead-letter exchange, and one DLQ per primary queue.
func CatalogTopology() Topology {
	primaries := []struct {
		queue      string
		exchange   string
		routingKey string
	}{
		{"book.created.queue", model.ExchangeBookEvents, "book.created"},
		{"book.updated.queue", model.ExchangeBookEvents, "book.updated"},
		{"book.deleted.queue", model.ExchangeBookEvents, "book.deleted"},
		{"notification.send.queue", model.ExchangeNotificationEvents, "notification.send"},
	}

	t := Topology{
		Exchanges: []model.Exchange{
			model.NewExchange(model.ExchangeBookEvents, model.ExchangeKindTopic),
			model.NewExchange(model.ExchangeUserEvents, model.ExchangeKindTopic),
			model.NewExchange(model.ExchangeNotificationEvents, model.ExchangeKindTopic),
			model.NewExchange(model.ExchangeDeadLetter, model.ExchangeKindDirect),
		},
	}

	for _, p := range primaries {
		t.Queues = append(t.Queues, primaryQueue(p.queue), deadLetterQueue(p.queue))
		t.Bindings = append(t.Bindings, model.NewBinding(p.exchange, p.queue, p.routingKey))
		t.DeadLetterBindings = append(t.DeadLetterBindings,
			model.NewBinding(model.ExchangeDeadLetter, DLQNameFor(p.queue), DeadRoutingKeyFor(p.queue)))
	}

	return t
}

// PrimaryQueues returns the topology's delivery queues, excluding DLQs.
func (t Topology) PrimaryQueues() []model.Queue {
	var out []model.Queue
	for _, q := range t.Queues {
		if !q.IsDeadLetterQueue() {
			out = append(out, q)
		}
	}
	return out
}

// DeclareTopology declares the topology in dependency order. Any failure
// aborts immediately and must be treated by the caller as fatal for
// service startup: running with a partially declared topology is worse
// than not starting.
func DeclareTopology(ctx context.Context, repo TopologyRepository, t Topology, logger Logger) error {
	for _, ex := range t.Exchanges {
		if _, err := repo.DeclareExchange(ctx, ex); err != nil {
			return NewErrorWithCause(ErrCodeTopology, fmt.Sprintf("failed to declare exchange %s", ex.Name), err)
		}
		logger.Debugf("Declared exchange %s (%s)", ex.Name, ex.Kind)
	}

	for _, q := range t.Queues {
		if _, err := repo.DeclareQueue(ctx, q); err != nil {
			return NewErrorWithCause(ErrCodeTopology, fmt.Sprintf("failed to declare queue %s", q.Name), err)
		}
		logger.Debugf("Declared queue %s (ttl=%v, requeue_limit=%d)", q.Name, q.MessageTTL, q.RequeueLimit)
	}

	for _, b := range t.Bindings {
		if _, err := repo.DeclareBinding(ctx, b); err != nil {
			return NewErrorWithCause(ErrCodeTopology,
				fmt.Sprintf("failed to bind %s to %s under %s", b.Queue, b.Exchange, b.RoutingKey), err)
		}
	}

	for _, b := range t.DeadLetterBindings {
		if _, err := repo.DeclareBinding(ctx, b); err != nil {
			return NewErrorWithCause(ErrCodeTopology,
				fmt.Sprintf("failed to bind dead-letter queue %s under %s", b.Queue, b.RoutingKey), err)
		}
	}

	logger.Infof("Topology declared: %d exchanges, %d queues, %d bindings",
		len(t.Exchanges), len(t.Queues), len(t.Bindings)+len(t.DeadLetterBindings))
	return nil
}
