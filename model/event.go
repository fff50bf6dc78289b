package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventKind identifies the type of domain occurrence an envelope carries.
// Kinds double as routing keys: dot-separated, hierarchical.
type EventKind string

const (
	// EventBookCreated is emitted after a book is added to the catalog.
	EventBookCreated EventKind = "book.created"

	// EventBookUpdated is emitted after a book's fields change.
	EventBookUpdated EventKind = "book.updated"

	// EventBookDeleted is emitted after a book is removed (soft or hard).
	EventBookDeleted EventKind = "book.deleted"

	// EventNotificationSend is emitted when a notification is requested
	// directly, outside the catalog mutation path.
	EventNotificationSend EventKind = "notification.send"
)

// route pairs the exchange and routing key for one event kind.
type route struct {
	Exchange   string
	RoutingKey string
}

// eventRoutes resolves exchange/routing key as a pure function of kind.
// A tagged-union lookup instead of per-type virtual dispatch.
var eventRoutes = map[EventKind]route{
	EventBookCreated:      {Exchange: ExchangeBookEvents, RoutingKey: "book.created"},
	EventBookUpdated:      {Exchange: ExchangeBookEvents, RoutingKey: "book.updated"},
	EventBookDeleted:      {Exchange: ExchangeBookEvents, RoutingKey: "book.deleted"},
	EventNotificationSend: {Exchange: ExchangeNotificationEvents, RoutingKey: "notification.send"},
}

// BookPayload is the book snapshot carried by created/updated events.
type BookPayload struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	ISBN      string  `json:"isbn"`
	Price     float64 `json:"price"`
	Genre     string  `json:"genre"`
	Publisher string  `json:"publisher"`
}

// DeletionPayload is the metadata carried by a deleted event.
type DeletionPayload struct {
	DeletedBy  string `json:"deletedBy"`
	SoftDelete bool   `json:"softDelete"`
}

// SendPayload is the content of a direct notification request.
type SendPayload struct {
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipientName"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
}

// Envelope is the wire representation of one domain occurrence.
// It is constructed once at the moment of the catalog mutation, serialized
// immediately, and never mutated afterwards. Exactly one payload variant is
// set, matching Kind.
//
// Aggregate ID, kind, and correlation ID are immutable after construction;
// the correlation ID is propagated unchanged across the whole causal chain.
type Envelope struct {
	ID            string    `json:"id"`
	Kind          EventKind `json:"kind"`
	AggregateID   string    `json:"aggregateID"`
	AggregateType string    `json:"aggregateType"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlationID"`
	OccurredAt    time.Time `json:"occurredAt"`

	Book     *BookPayload     `json:"book,omitempty"`
	Deletion *DeletionPayload `json:"deletion,omitempty"`
	Send     *SendPayload     `json:"send,omitempty"`
}

// AggregateTypeBook is the aggregate type tag for catalog books.
const AggregateTypeBook = "Book"

func newEnvelope(kind EventKind, aggregateType, aggregateID, source, correlationID string) Envelope {
	if aggregateID == "" {
		panic(fmt.Sprintf("model: %s event requires an aggregate id", kind))
	}
	if correlationID == "" {
		panic(fmt.Sprintf("model: %s event requires a correlation id", kind))
	}

	return Envelope{
		ID:            uuid.NewString(),
		Kind:          kind,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Source:        source,
		CorrelationID: correlationID,
		OccurredAt:    time.Now(),
	}
}

// NewBookCreated builds a book.created envelope from a fully formed book
// snapshot. Panics on missing book id or correlation id - that is a
// programmer error, not a recoverable condition.
func NewBookCreated(bookID, source, correlationID string, book BookPayload) Envelope {
	env := newEnvelope(EventBookCreated, AggregateTypeBook, bookID, source, correlationID)
	env.Book = &book
	return env
}

// NewBookUpdated builds a book.updated envelope.
func NewBookUpdated(bookID, source, correlationID string, book BookPayload) Envelope {
	env := newEnvelope(EventBookUpdated, AggregateTypeBook, bookID, source, correlationID)
	env.Book = &book
	return env
}

// NewBookDeleted builds a book.deleted envelope.
func NewBookDeleted(bookID, source, correlationID string, deletion DeletionPayload) Envelope {
	env := newEnvelope(EventBookDeleted, AggregateTypeBook, bookID, source, correlationID)
	env.Deletion = &deletion
	return env
}

// NewNotificationSend builds a notification.send envelope for a direct
// notification request. The aggregate is the notification itself.
func NewNotificationSend(requestID, source, correlationID string, send SendPayload) Envelope {
	env := newEnvelope(EventNotificationSend, "Notification", requestID, source, correlationID)
	env.Send = &send
	return env
}

// Exchange returns the exchange this envelope is published to.
// Pure function of Kind.
func (e Envelope) Exchange() string {
	return eventRoutes[e.Kind].Exchange
}

// RoutingKey returns the routing key this envelope is published under.
// Pure function of Kind.
func (e Envelope) RoutingKey() string {
	return eventRoutes[e.Kind].RoutingKey
}

// Headers returns the standard message headers carried alongside the body
// for cross-service tracing.
func (e Envelope) Headers() map[string]string {
	return map[string]string{
		HeaderCorrelationID: e.CorrelationID,
		HeaderEventKind:     string(e.Kind),
		HeaderSource:        e.Source,
		HeaderOccurredAt:    e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// Standard header names used on broker messages.
const (
	HeaderCorrelationID = "correlation-id"
	HeaderEventKind     = "event-kind"
	HeaderSource        = "source"
	HeaderOccurredAt    = "occurred-at"
)

// Encode serializes the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", e.Kind, err)
	}
	return body, nil
}

// DecodeEnvelope parses an envelope from its JSON wire form and validates
// its structure. A non-nil error marks the message as poison: it must be
// rejected without requeue so the topology dead-letters it.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}

	if _, ok := eventRoutes[env.Kind]; !ok {
		return Envelope{}, fmt.Errorf("unknown event kind: %q", env.Kind)
	}
	if env.AggregateID == "" {
		return Envelope{}, fmt.Errorf("%s envelope is missing aggregate id", env.Kind)
	}

	switch env.Kind {
	case EventBookCreated, EventBookUpdated:
		if env.Book == nil {
			return Envelope{}, fmt.Errorf("%s envelope is missing book payload", env.Kind)
		}
	case EventBookDeleted:
		if env.Deletion == nil {
			return Envelope{}, fmt.Errorf("%s envelope is missing deletion payload", env.Kind)
		}
	case EventNotificationSend:
		if env.Send == nil {
			return Envelope{}, fmt.Errorf("%s envelope is missing send payload", env.Kind)
		}
	}

	return env, nil
}
