package shelfwire

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwire/shelfwire/model"
)

func newTestConsumer(t *testing.T, store *memStore, sink DeliverySink, opts ...Option) *Consumer {
	t.Helper()
	topoRepo, msgRepo, notifRepo, dlqRepo, recipientRepo := store.repos()
	all := append([]Option{
		WithRepositories(msgRepo, notifRepo, dlqRepo, recipientRepo, topoRepo),
		WithSink(sink),
		WithLogger(&NoopLogger{}),
	}, opts...)
	c, err := NewConsumer(all...)
	require.NoError(t, err)
	return c
}

func addRecipient(t *testing.T, store *memStore, email, name string) {
	t.Helper()
	_, _, _, _, recipientRepo := store.repos()
	_, err := recipientRepo.Save(context.Background(), model.NewRecipient(email, name))
	require.NoError(t, err)
}

func publishBookCreated(t *testing.T, store *memStore, correlationID string) model.Envelope {
	t.Helper()
	p := newTestPublisher(t, store)
	env := bookCreated(correlationID)
	_, err := p.Publish(context.Background(), env)
	require.NoError(t, err)
	return env
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	_, err := NewConsumer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRepository")

	store := newMemStore()
	topoRepo, msgRepo, notifRepo, dlqRepo, recipientRepo := store.repos()
	_, err = NewConsumer(
		WithRepositories(msgRepo, notifRepo, dlqRepo, recipientRepo, topoRepo),
		WithLogger(&NoopLogger{}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DeliverySink")
}

func TestConsumerDeliversAndAcks(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "reader@example.com", "Reader")
	env := publishBookCreated(t, store, "corr-c1")

	sink := newRecordingSink()
	c := newTestConsumer(t, store, sink)

	processed, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// Delivered once, outcome SENT, message acked.
	assert.Equal(t, []string{"reader@example.com"}, sink.deliveries())

	notifications := store.allNotifications()
	require.Len(t, notifications, 1)
	n := notifications[0]
	assert.Equal(t, model.NotificationStatusSent, n.Status)
	assert.True(t, n.SentAt.Valid)
	assert.False(t, n.LastError.Valid)
	assert.Equal(t, model.NotificationBookCreated, n.Type)
	assert.Equal(t, env.AggregateID, n.ReferenceID)
	assert.Equal(t, "BOOK", n.ReferenceType)
	assert.Equal(t, "corr-c1", n.CorrelationID)

	assert.Empty(t, store.messagesIn("book.created.queue"))
}

func TestConsumerFansOutPerRecipient(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "a@example.com", "A")
	addRecipient(t, store, "b@example.com", "B")
	publishBookCreated(t, store, "corr-c2")

	sink := newRecordingSink()
	c := newTestConsumer(t, store, sink)

	_, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)

	assert.Len(t, store.allNotifications(), 2)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, sink.deliveries())
}

func TestConsumerUsesFallbackRecipientWhenRegistryEmpty(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	publishBookCreated(t, store, "corr-c3")

	sink := newRecordingSink()
	c := newTestConsumer(t, store, sink,
		WithFallbackRecipient(model.NewRecipient("ops@example.com", "Ops")))

	_, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)

	notifications := store.allNotifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "ops@example.com", notifications[0].Recipient)
}

func TestConsumerDirectSendTargetsRequestedRecipient(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	// Registered recipients must NOT receive direct sends.
	addRecipient(t, store, "reader@example.com", "Reader")

	p := newTestPublisher(t, store)
	env := model.NewNotificationSend("req-1", "catalog-service", "corr-c4", model.SendPayload{
		Recipient:     "vip@example.com",
		RecipientName: "VIP",
		Subject:       "Welcome",
		Body:          "Hello there",
	})
	_, err := p.Publish(context.Background(), env)
	require.NoError(t, err)

	sink := newRecordingSink()
	c := newTestConsumer(t, store, sink)

	_, err = c.ProcessQueue(context.Background(), "notification.send.queue")
	require.NoError(t, err)

	notifications := store.allNotifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "vip@example.com", notifications[0].Recipient)
	assert.Equal(t, model.NotificationGeneric, notifications[0].Type)
	assert.Equal(t, []string{"vip@example.com"}, sink.deliveries())
}

func TestConsumerPoisonMessageGoesToDLQ(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "reader@example.com", "Reader")

	// Buffer a message whose body is not a valid envelope.
	_, msgRepo, _, _, _ := store.repos()
	poison := model.Message{
		QueueName:  "book.created.queue",
		Exchange:   model.ExchangeBookEvents,
		RoutingKey: "book.created",
		Body:       "{not json at all",
		Status:     model.MessageStatusReady,
		ExpiresAt:  time.Now().Add(time.Hour),
		CreatedAt:  time.Now(),
	}
	_, err := msgRepo.Save(context.Background(), &poison)
	require.NoError(t, err)

	sink := newRecordingSink()
	c := newTestConsumer(t, store, sink)

	processed, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// Rejected without requeue: no notification, no delivery, one DLQ entry.
	assert.Empty(t, store.allNotifications())
	assert.Empty(t, sink.deliveries())
	assert.Empty(t, store.messagesIn("book.created.queue"))

	deadLetters := store.allDeadLetters()
	require.Len(t, deadLetters, 1)
	assert.Equal(t, model.ReasonRejected, deadLetters[0].Reason)
	assert.Equal(t, "book.created.queue", deadLetters[0].Queue)
	assert.Equal(t, DLQNameFor("book.created.queue"), deadLetters[0].DLQueue)
}

func TestConsumerUnknownEventKindIsPoison(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)

	_, msgRepo, _, _, _ := store.repos()
	unknown := model.Message{
		QueueName:  "book.created.queue",
		Exchange:   model.ExchangeBookEvents,
		RoutingKey: "book.created",
		Body:       `{"id":"x","kind":"book.vanished","aggregateID":"1"}`,
		Status:     model.MessageStatusReady,
		ExpiresAt:  time.Now().Add(time.Hour),
		CreatedAt:  time.Now(),
	}
	_, err := msgRepo.Save(context.Background(), &unknown)
	require.NoError(t, err)

	c := newTestConsumer(t, store, newRecordingSink())

	_, err = c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)

	deadLetters := store.allDeadLetters()
	require.Len(t, deadLetters, 1)
	assert.Equal(t, model.ReasonRejected, deadLetters[0].Reason)
}

func TestConsumerDeliveryFailureMarksFailedAndAcks(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "reader@example.com", "Reader")
	publishBookCreated(t, store, "corr-c5")

	sink := newRecordingSink()
	sink.failFor["reader@example.com"] = fmt.Errorf("smtp: mailbox full")
	c := newTestConsumer(t, store, sink)

	processed, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	notifications := store.allNotifications()
	require.Len(t, notifications, 1)
	n := notifications[0]
	assert.Equal(t, model.NotificationStatusFailed, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	assert.Contains(t, n.LastError.String, "mailbox full")

	// A failed attempt is a recorded outcome: the message is still acked,
	// and the retry sweeper owns the replay.
	assert.Empty(t, store.messagesIn("book.created.queue"))
}

func TestConsumerRequeuesWhenRecipientStoreFails(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "reader@example.com", "Reader")
	publishBookCreated(t, store, "corr-c10")

	store.recipientFindErr = NewError(ErrCodeDatabase, "injected registry failure")

	sink := newRecordingSink()
	c := newTestConsumer(t, store, sink)

	processed, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Zero(t, processed)

	// The event must not be acked away: no record could be materialized,
	// so the message goes back for a later attempt.
	assert.Empty(t, sink.deliveries())
	assert.Empty(t, store.allNotifications())
	assert.Empty(t, store.allDeadLetters())
	stored := store.messagesIn("book.created.queue")
	require.Len(t, stored, 1)
	assert.Equal(t, model.MessageStatusReady, stored[0].Status)
	assert.Equal(t, 1, stored[0].DeliveryCount)

	// Once the registry recovers the same message delivers normally.
	store.recipientFindErr = nil
	processed, err = c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []string{"reader@example.com"}, sink.deliveries())
	assert.Empty(t, store.messagesIn("book.created.queue"))
}

func TestConsumerRequeuesWhenOutcomeNotPersisted(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "reader@example.com", "Reader")
	publishBookCreated(t, store, "corr-c6")

	// First save (pending record) succeeds, second (outcome) fails.
	store.notifSaveFailAfter = 1

	c := newTestConsumer(t, store, newRecordingSink())

	processed, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Zero(t, processed)

	// Not acked: requeued with the delivery counted.
	stored := store.messagesIn("book.created.queue")
	require.Len(t, stored, 1)
	assert.Equal(t, model.MessageStatusReady, stored[0].Status)
	assert.Equal(t, 1, stored[0].DeliveryCount)
	assert.Empty(t, store.allDeadLetters())
}

func TestConsumerDeadLettersAfterRequeueBudget(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "reader@example.com", "Reader")
	env := bookCreated("corr-c7")
	body, err := env.Encode()
	require.NoError(t, err)

	_, msgRepo, _, _, _ := store.repos()
	m := model.NewMessage("book.created.queue", env, body, time.Hour)
	m.DeliveryCount = model.DefaultRequeueLimit // budget already used up
	_, err = msgRepo.Save(context.Background(), &m)
	require.NoError(t, err)

	// Outcome persistence keeps failing.
	store.notifSaveFailAfter = 1

	c := newTestConsumer(t, store, newRecordingSink())

	_, err = c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)

	assert.Empty(t, store.messagesIn("book.created.queue"))
	deadLetters := store.allDeadLetters()
	require.Len(t, deadLetters, 1)
	assert.Equal(t, model.ReasonDeliveryLimit, deadLetters[0].Reason)
	assert.Equal(t, model.DefaultRequeueLimit, deadLetters[0].DeliveryCount)
}

func TestConsumerSweepExpiredDeadLetters(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	env := bookCreated("corr-c8")
	body, err := env.Encode()
	require.NoError(t, err)

	_, msgRepo, _, _, _ := store.repos()
	m := model.NewMessage("book.created.queue", env, body, -time.Minute) // already past TTL
	_, err = msgRepo.Save(context.Background(), &m)
	require.NoError(t, err)

	c := newTestConsumer(t, store, newRecordingSink())

	moved, err := c.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	assert.Empty(t, store.messagesIn("book.created.queue"))
	deadLetters := store.allDeadLetters()
	require.Len(t, deadLetters, 1)
	assert.Equal(t, model.ReasonExpired, deadLetters[0].Reason)
}

func TestConsumerSweepSkipsLeasedMessages(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)
	env := bookCreated("corr-c11")
	body, err := env.Encode()
	require.NoError(t, err)

	// Past its TTL, but a worker still holds it under a live lease.
	_, msgRepo, _, _, _ := store.repos()
	m := model.NewMessage("book.created.queue", env, body, -time.Minute)
	m.Lease(30 * time.Second)
	_, err = msgRepo.Save(context.Background(), &m)
	require.NoError(t, err)

	c := newTestConsumer(t, store, newRecordingSink())

	moved, err := c.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.Empty(t, store.allDeadLetters())
	require.Len(t, store.messagesIn("book.created.queue"), 1)
}

func TestConsumerProcessesDuplicatesWithoutDedup(t *testing.T) {
	// Publishing is at-least-once and consuming performs no dedup: the
	// same event buffered twice produces two notification records.
	store := newMemStore()
	declareCatalog(t, store)
	addRecipient(t, store, "reader@example.com", "Reader")

	p := newTestPublisher(t, store)
	env := bookCreated("corr-c9")
	_, err := p.Publish(context.Background(), env)
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), env)
	require.NoError(t, err)

	sink := newRecordingSink()
	c := newTestConsumer(t, store, sink)

	processed, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	notifications := store.allNotifications()
	require.Len(t, notifications, 2)
	assert.Equal(t, notifications[0].ReferenceID, notifications[1].ReferenceID)
	assert.Len(t, sink.deliveries(), 2)
}

func TestConsumerEmptyQueueIsNoOp(t *testing.T) {
	store := newMemStore()
	declareCatalog(t, store)

	c := newTestConsumer(t, store, newRecordingSink())

	processed, err := c.ProcessQueue(context.Background(), "book.created.queue")
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestConsumerUndeclaredQueueFails(t *testing.T) {
	store := newMemStore()

	c := newTestConsumer(t, store, newRecordingSink())

	_, err := c.ProcessQueue(context.Background(), "nope.queue")
	require.Error(t, err)

	var swErr *Error
	require.ErrorAs(t, err, &swErr)
	assert.Equal(t, ErrCodeTopology, swErr.Code)
}
