package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExchange_TableName(t *testing.T) {
	assert.Equal(t, "shelfwire_exchange", Exchange{}.TableName())
}

func TestNewExchange(t *testing.T) {
	ex := NewExchange(ExchangeBookEvents, ExchangeKindTopic)

	assert.Equal(t, ExchangeBookEvents, ex.Name)
	assert.Equal(t, ExchangeKindTopic, ex.Kind)
	assert.True(t, ex.Durable)
}

func TestNewQueue(t *testing.T) {
	q := NewQueue("book.created.queue", ExchangeDeadLetter, "book.created.queue.dead")

	assert.True(t, q.Durable)
	assert.Equal(t, ExchangeDeadLetter, q.DeadLetterExchange)
	assert.Equal(t, "book.created.queue.dead", q.DeadLetterRoutingKey)
	assert.Equal(t, DefaultMessageTTL, q.MessageTTL)
	assert.Equal(t, DefaultRequeueLimit, q.RequeueLimit)
	assert.False(t, q.IsDeadLetterQueue())
}

func TestQueue_IsDeadLetterQueue(t *testing.T) {
	dlq := NewQueue("book.created.queue.dlq", "", "")
	assert.True(t, dlq.IsDeadLetterQueue())
}

func TestMatchTopicKey(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"book.created", "book.created", true},
		{"book.created", "book.updated", false},
		{"book.*", "book.created", true},
		{"book.*", "book.created.extra", false},
		{"book.#", "book.created", true},
		{"book.#", "book.created.extra", true},
		{"book.#", "book", true},
		{"#", "anything.at.all", true},
		{"*.created", "book.created", true},
		{"*.created", "created", false},
		{"book.*.queue", "book.created.queue", true},
		{"book.#.queue", "book.a.b.queue", true},
		{"book.created", "book", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTopicKey(tt.pattern, tt.key))
		})
	}
}

func TestBinding_Matches(t *testing.T) {
	b := NewBinding(ExchangeBookEvents, "book.created.queue", "book.created")

	assert.True(t, b.Matches(ExchangeKindDirect, "book.created"))
	assert.False(t, b.Matches(ExchangeKindDirect, "book.updated"))

	wildcard := NewBinding(ExchangeBookEvents, "audit.queue", "book.*")
	assert.True(t, wildcard.Matches(ExchangeKindTopic, "book.deleted"))
	assert.False(t, wildcard.Matches(ExchangeKindDirect, "book.deleted"))
}

func TestMessage_Lifecycle(t *testing.T) {
	env := NewBookCreated("42", "catalog-service", "abc", BookPayload{Title: "x"})
	body, _ := env.Encode()

	m := NewMessage("book.created.queue", env, body, time.Hour)

	assert.Equal(t, MessageStatusReady, m.Status)
	assert.Equal(t, 0, m.DeliveryCount)
	assert.Equal(t, "abc", m.CorrelationID)
	assert.Equal(t, "book.created", m.EventKind)
	assert.False(t, m.IsExpired())

	m.Lease(30 * time.Second)
	assert.Equal(t, MessageStatusUnacked, m.Status)
	assert.True(t, m.LeasedUntil.Valid)

	m.Requeue()
	assert.Equal(t, MessageStatusReady, m.Status)
	assert.Equal(t, 1, m.DeliveryCount)
	assert.False(t, m.LeasedUntil.Valid)

	assert.False(t, m.ExceededRequeueLimit(DefaultRequeueLimit))
	m.DeliveryCount = DefaultRequeueLimit
	assert.True(t, m.ExceededRequeueLimit(DefaultRequeueLimit))
}

func TestMessage_IsExpired(t *testing.T) {
	env := NewBookCreated("42", "catalog-service", "abc", BookPayload{})
	body, _ := env.Encode()

	m := NewMessage("book.created.queue", env, body, -time.Minute)
	assert.True(t, m.IsExpired())
}
