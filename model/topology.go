// Package model contains the domain models for the shelfwire event
// delivery system: event envelopes, broker topology entities, broker
// messages, notification records, and dead letters.
package model

import (
	"strings"
	"time"
)

const tablePrefix = "shelfwire_"

// Well-known exchange names declared by the catalog topology.
const (
	ExchangeBookEvents         = "book.events"
	ExchangeUserEvents         = "user.events"
	ExchangeNotificationEvents = "notification.events"
	ExchangeDeadLetter         = "dead.letter"
)

// ExchangeKind determines how an exchange matches routing keys to bindings.
type ExchangeKind string

const (
	// ExchangeKindTopic matches dot-separated routing keys against binding
	// patterns, with * matching one word and # matching zero or more.
	ExchangeKindTopic ExchangeKind = "topic"

	// ExchangeKindDirect matches routing keys exactly.
	ExchangeKindDirect ExchangeKind = "direct"
)

// Exchange is a named routing namespace. Published messages enter an
// exchange and are forwarded to every queue whose binding matches the
// message's routing key.
type Exchange struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Kind      ExchangeKind `json:"kind"`
	Durable   bool         `json:"durable"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Exchange.
func (e Exchange) TableName() string {
	return tablePrefix + "exchange"
}

// NewExchange creates a durable exchange declaration.
func NewExchange(name string, kind ExchangeKind) Exchange {
	return Exchange{
		ID:        0,
		Name:      name,
		Kind:      kind,
		Durable:   true,
		CreatedAt: time.Now(),
	}
}

// DefaultMessageTTL bounds queue backlog: messages older than this are
// dead-lettered even if never rejected.
const DefaultMessageTTL = 24 * time.Hour

// DefaultRequeueLimit is the number of requeue attempts the broker grants
// a message before rerouting it to the dead-letter exchange.
const DefaultRequeueLimit = 3

// Queue is a named durable buffer bound to one routing-key pattern on one
// exchange. Each primary queue carries its dead-letter configuration:
// rejected or expired messages are rerouted through the dead-letter
// exchange instead of being requeued forever or silently dropped.
type Queue struct {
	ID                   int64         `json:"id"`
	Name                 string        `json:"name"`
	Durable              bool          `json:"durable"`
	DeadLetterExchange   string        `json:"deadLetterExchange" db:"dead_letter_exchange"`
	DeadLetterRoutingKey string        `json:"deadLetterRoutingKey" db:"dead_letter_routing_key"`
	MessageTTL           time.Duration `json:"messageTTL" db:"message_ttl"`
	RequeueLimit         int           `json:"requeueLimit" db:"requeue_limit"`
	CreatedAt            time.Time     `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Queue.
func (q Queue) TableName() string {
	return tablePrefix + "queue"
}

// NewQueue creates a durable queue declaration with dead-letter routing
// and the default 24h message TTL.
func NewQueue(name, deadLetterExchange, deadLetterRoutingKey string) Queue {
	return Queue{
		ID:                   0,
		Name:                 name,
		Durable:              true,
		DeadLetterExchange:   deadLetterExchange,
		DeadLetterRoutingKey: deadLetterRoutingKey,
		MessageTTL:           DefaultMessageTTL,
		RequeueLimit:         DefaultRequeueLimit,
		CreatedAt:            time.Now(),
	}
}

// IsDeadLetterQueue reports whether this queue is a dead-letter buffer
// rather than a primary delivery queue. Dead-letter queues carry no
// dead-letter routing of their own.
func (q Queue) IsDeadLetterQueue() bool {
	return q.DeadLetterExchange == ""
}

// Binding connects a queue to an exchange under a routing-key pattern.
type Binding struct {
	ID         int64     `json:"id"`
	Exchange   string    `json:"exchange"`
	Queue      string    `json:"queue"`
	RoutingKey string    `json:"routingKey" db:"routing_key"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Binding.
func (b Binding) TableName() string {
	return tablePrefix + "binding"
}

// NewBinding creates a binding declaration.
func NewBinding(exchange, queue, routingKey string) Binding {
	return Binding{
		ID:         0,
		Exchange:   exchange,
		Queue:      queue,
		RoutingKey: routingKey,
		CreatedAt:  time.Now(),
	}
}

// Matches reports whether a published routing key matches this binding
// under the given exchange kind.
func (b Binding) Matches(kind ExchangeKind, routingKey string) bool {
	if kind == ExchangeKindDirect {
		return b.RoutingKey == routingKey
	}
	return MatchTopicKey(b.RoutingKey, routingKey)
}

// MatchTopicKey matches a dot-separated routing key against a topic
// binding pattern. "*" matches exactly one word, "#" matches zero or
// more words.
func MatchTopicKey(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchWords(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || pattern[0] != key[0] {
				return false
			}
		}
		pattern = pattern[1:]
		key = key[1:]
	}
	return len(key) == 0
}
