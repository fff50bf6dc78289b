package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func deadMessage(t *testing.T) Message {
	t.Helper()
	env := NewBookCreated("42", "catalog-service", "abc", BookPayload{Title: "x"})
	body, err := env.Encode()
	assert.NoError(t, err)

	m := NewMessage("book.created.queue", env, body, time.Hour)
	m.DeliveryCount = 3
	return m
}

func TestDeadLetter_TableName(t *testing.T) {
	assert.Equal(t, "shelfwire_dlq", DeadLetter{}.TableName())
}

func TestNewDeadLetter(t *testing.T) {
	m := deadMessage(t)

	d := NewDeadLetter(m, "book.created.queue.dlq", ReasonDeliveryLimit, "requeue budget used up")

	assert.Equal(t, "book.created.queue", d.Queue)
	assert.Equal(t, "book.created.queue.dlq", d.DLQueue)
	assert.Equal(t, m.Body, d.Body)
	assert.Equal(t, "abc", d.CorrelationID)
	assert.Equal(t, ReasonDeliveryLimit, d.Reason)
	assert.Equal(t, 3, d.DeliveryCount)
	assert.False(t, d.IsResolved)
	assert.Nil(t, d.ResolvedAt)
}

func TestDeadLetter_Resolve(t *testing.T) {
	d := NewDeadLetter(deadMessage(t), "book.created.queue.dlq", ReasonRejected, "malformed body")

	d.Resolve("ops@example.com", "replayed manually")

	assert.True(t, d.IsResolved)
	assert.NotNil(t, d.ResolvedAt)
	assert.Equal(t, "ops@example.com", d.ResolvedBy)
	assert.Equal(t, "replayed manually", d.ResolutionNote)
}

func TestDeadLetter_ToMessage(t *testing.T) {
	d := NewDeadLetter(deadMessage(t), "book.created.queue.dlq", ReasonExpired, "ttl passed")

	m := d.ToMessage(time.Hour)

	assert.Equal(t, int64(0), m.ID)
	assert.Equal(t, d.Queue, m.QueueName)
	assert.Equal(t, d.Body, m.Body)
	assert.Equal(t, MessageStatusReady, m.Status)
	assert.Equal(t, 0, m.DeliveryCount, "republished message starts a fresh delivery budget")
	assert.WithinDuration(t, time.Now().Add(time.Hour), m.ExpiresAt, time.Second)
}

func TestDeadLetter_Age(t *testing.T) {
	d := NewDeadLetter(deadMessage(t), "dlq", ReasonRejected, "")
	d.DeadAt = time.Now().Add(-2 * time.Hour)

	assert.True(t, d.IsOld(time.Hour))
	assert.False(t, d.IsOld(3*time.Hour))
	assert.InDelta(t, (2 * time.Hour).Seconds(), d.GetAge().Seconds(), 5)
}

func TestNewRecipient(t *testing.T) {
	r := NewRecipient("reader@example.com", "Reader")

	assert.Equal(t, "shelfwire_recipient", r.TableName())
	assert.True(t, r.IsActive)

	r.Deactivate()
	assert.False(t, r.IsActive)
}
