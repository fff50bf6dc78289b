package model

import (
	"time"
)

// DeadLetterReason explains why a message was rerouted to the DLQ.
type DeadLetterReason string

const (
	// ReasonRejected marks a message rejected without requeue, typically
	// because its body could not be deserialized (poison message).
	ReasonRejected DeadLetterReason = "rejected"

	// ReasonExpired marks a message that outlived its queue TTL.
	ReasonExpired DeadLetterReason = "expired"

	// ReasonDeliveryLimit marks a message that used up its requeue budget.
	ReasonDeliveryLimit DeadLetterReason = "delivery-limit"
)

// DeadLetter is a message rerouted off its primary queue for manual
// inspection instead of silent loss. The original body and tracing headers
// are denormalized so operators can inspect entries without joins.
//
// Entries remain until manually resolved or republished.
type DeadLetter struct {
	ID            int64            `json:"id"`
	Queue         string           `json:"queue" db:"queue_name"`
	DLQueue       string           `json:"dlQueue" db:"dl_queue_name"`
	Exchange      string           `json:"exchange"`
	RoutingKey    string           `json:"routingKey" db:"routing_key"`
	Body          string           `json:"body"`
	CorrelationID string           `json:"correlationID" db:"correlation_id"`
	EventKind     string           `json:"eventKind" db:"event_kind"`
	Reason        DeadLetterReason `json:"reason"`
	Detail        string           `json:"detail"`
	DeliveryCount int              `json:"deliveryCount" db:"delivery_count"`
	FirstSeenAt   time.Time        `json:"firstSeenAt" db:"first_seen_at"`
	DeadAt        time.Time        `json:"deadAt" db:"dead_at"`

	// Resolution workflow
	IsResolved     bool       `json:"isResolved" db:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolvedAt" db:"resolved_at"`
	ResolvedBy     string     `json:"resolvedBy" db:"resolved_by"`
	ResolutionNote string     `json:"resolutionNote" db:"resolution_note"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for DeadLetter.
func (d DeadLetter) TableName() string {
	return tablePrefix + "dlq"
}

// NewDeadLetter creates a DLQ entry from a message leaving its primary
// queue. dlQueue is the paired dead-letter queue the entry lands in.
func NewDeadLetter(m Message, dlQueue string, reason DeadLetterReason, detail string) DeadLetter {
	now := time.Now()
	return DeadLetter{
		ID:            0,
		Queue:         m.QueueName,
		DLQueue:       dlQueue,
		Exchange:      m.Exchange,
		RoutingKey:    m.RoutingKey,
		Body:          m.Body,
		CorrelationID: m.CorrelationID,
		EventKind:     m.EventKind,
		Reason:        reason,
		Detail:        detail,
		DeliveryCount: m.DeliveryCount,
		FirstSeenAt:   m.CreatedAt,
		DeadAt:        now,
		IsResolved:    false,
		ResolvedAt:    nil,
		ResolvedBy:    "",
		ResolutionNote: "",
		CreatedAt:     now,
	}
}

// Resolve marks the entry as handled by an operator, typically after a
// manual replay or after deciding the loss is acceptable.
func (d *DeadLetter) Resolve(resolvedBy, note string) {
	now := time.Now()
	d.IsResolved = true
	d.ResolvedAt = &now
	d.ResolvedBy = resolvedBy
	d.ResolutionNote = note
}

// ToMessage rebuilds a ready broker message on the original primary queue
// for operator-driven republish. The delivery count starts over; ttl comes
// from the queue declaration.
func (d *DeadLetter) ToMessage(ttl time.Duration) Message {
	now := time.Now()
	return Message{
		ID:            0,
		QueueName:     d.Queue,
		Exchange:      d.Exchange,
		RoutingKey:    d.RoutingKey,
		Body:          d.Body,
		CorrelationID: d.CorrelationID,
		EventKind:     d.EventKind,
		Status:        MessageStatusReady,
		DeliveryCount: 0,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}
}

// GetAge returns how long the entry has sat in the DLQ.
func (d *DeadLetter) GetAge() time.Duration {
	return time.Since(d.DeadAt)
}

// IsOld checks if the entry has been dead longer than the threshold.
func (d *DeadLetter) IsOld(threshold time.Duration) bool {
	return d.GetAge() > threshold
}

// DLQStats represents aggregate statistics over the Dead Letter Queue,
// used by the operator API and monitoring.
type DLQStats struct {
	TotalItems      int       `json:"totalItems"`
	UnresolvedItems int       `json:"unresolvedItems"`
	ResolvedItems   int       `json:"resolvedItems"`
	OldestItemAge   int64     `json:"oldestItemAge"` // Seconds
	NewestItemAge   int64     `json:"newestItemAge"` // Seconds
	TopReason       string    `json:"topReason"`
	LastUpdated     time.Time `json:"lastUpdated"`
}
