package model

import (
	"database/sql"
	"time"
)

// MessageStatus is the broker-level state of a buffered message.
type MessageStatus string

const (
	// MessageStatusReady means the message is available for a consumer.
	MessageStatusReady MessageStatus = "ready"

	// MessageStatusUnacked means a consumer holds the message in flight.
	// At most one worker holds a given message at a time.
	MessageStatusUnacked MessageStatus = "unacked"
)

// Message is one buffered copy of a published event in a queue. Publishing
// an event creates one Message per queue whose binding matched the routing
// key. The body is the serialized envelope; the standard tracing headers
// are denormalized for inspection without decoding the body.
//
// Lifecycle: created READY -> leased UNACKED by a worker -> acked (removed)
// or requeued (back to READY, delivery count incremented). Messages that
// exceed the queue's requeue limit or its TTL are dead-lettered, never
// requeued forever.
type Message struct {
	ID            int64         `json:"id"`
	QueueName     string        `json:"queueName" db:"queue_name"`
	Exchange      string        `json:"exchange"`
	RoutingKey    string        `json:"routingKey" db:"routing_key"`
	Body          string        `json:"body"`
	CorrelationID string        `json:"correlationID" db:"correlation_id"`
	EventKind     string        `json:"eventKind" db:"event_kind"`
	Source        string        `json:"source"`
	Status        MessageStatus `json:"status"`
	DeliveryCount int           `json:"deliveryCount" db:"delivery_count"`
	LeasedUntil   sql.NullTime  `json:"leasedUntil" db:"leased_until"`
	ExpiresAt     time.Time     `json:"expiresAt" db:"expires_at"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "message"
}

// NewMessage buffers an envelope's wire form into a queue. The TTL comes
// from the queue declaration.
func NewMessage(queueName string, env Envelope, body []byte, ttl time.Duration) Message {
	now := time.Now()
	return Message{
		ID:            0,
		QueueName:     queueName,
		Exchange:      env.Exchange(),
		RoutingKey:    env.RoutingKey(),
		Body:          string(body),
		CorrelationID: env.CorrelationID,
		EventKind:     string(env.Kind),
		Source:        env.Source,
		Status:        MessageStatusReady,
		DeliveryCount: 0,
		LeasedUntil:   sql.NullTime{},
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}
}

// Lease marks the message in flight for the given duration. A worker must
// ack, requeue, or reject before the lease expires; an expired lease makes
// the message visible again (crash recovery).
func (m *Message) Lease(d time.Duration) {
	m.Status = MessageStatusUnacked
	m.LeasedUntil = sql.NullTime{Time: time.Now().Add(d), Valid: true}
}

// Requeue returns the message to the ready state after a recoverable
// processing failure and counts the attempt against the requeue limit.
func (m *Message) Requeue() {
	m.Status = MessageStatusReady
	m.DeliveryCount++
	m.LeasedUntil = sql.NullTime{}
}

// IsExpired reports whether the message outlived its queue TTL.
func (m *Message) IsExpired() bool {
	return time.Now().After(m.ExpiresAt)
}

// ExceededRequeueLimit reports whether another requeue would pass the
// queue's requeue budget. Such messages are dead-lettered instead.
func (m *Message) ExceededRequeueLimit(limit int) bool {
	return m.DeliveryCount >= limit
}
