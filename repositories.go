package shelfwire

import (
	"context"
	"time"

	"github.com/shelfwire/shelfwire/model"
)

// TopologyRepository defines the persistence interface for broker topology
// entities: exchanges, queues, and bindings.
//
// Declarations are idempotent: declaring an entity that already exists by
// name is a no-op returning the stored entity.
type TopologyRepository interface {
	// DeclareExchange stores an exchange declaration.
	DeclareExchange(ctx context.Context, ex model.Exchange) (model.Exchange, error)

	// DeclareQueue stores a queue declaration.
	DeclareQueue(ctx context.Context, q model.Queue) (model.Queue, error)

	// DeclareBinding stores a binding declaration.
	DeclareBinding(ctx context.Context, b model.Binding) (model.Binding, error)

	// GetExchange retrieves an exchange by name.
	// Returns ErrNoData if not found.
	GetExchange(ctx context.Context, name string) (model.Exchange, error)

	// GetQueue retrieves a queue by name.
	// Returns ErrNoData if not found.
	GetQueue(ctx context.Context, name string) (model.Queue, error)

	// FindBindings retrieves all bindings on an exchange.
	// Returns empty slice if none found.
	FindBindings(ctx context.Context, exchange string) ([]model.Binding, error)

	// ListQueues retrieves all declared queues.
	ListQueues(ctx context.Context) ([]model.Queue, error)
}

// MessageRepository defines the persistence interface for buffered broker
// messages. Implementations must be safe for concurrent use.
type MessageRepository interface {
	// Save creates a new message (if ID=0) or updates an existing one.
	Save(ctx context.Context, m *model.Message) (*model.Message, error)

	// Load retrieves a message by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Message, error)

	// FetchReady leases up to limit ready messages from a queue, marking
	// them unacked so no other worker picks them up. Messages whose lease
	// expired count as ready again (crash recovery). FIFO by created_at.
	FetchReady(ctx context.Context, queueName string, limit int, lease time.Duration) ([]model.Message, error)

	// Ack removes a message after its outcome was durably recorded.
	Ack(ctx context.Context, m *model.Message) error

	// FindExpired finds messages past their TTL, excluding unacked
	// messages still under a live lease. Ordered by expires_at ASC.
	FindExpired(ctx context.Context, limit int) ([]model.Message, error)

	// CountReady returns the number of ready messages in a queue.
	CountReady(ctx context.Context, queueName string) (int, error)
}

// NotificationRepository defines the persistence interface for
// notification delivery records.
type NotificationRepository interface {
	// Load retrieves a notification by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Notification, error)

	// Save creates a new notification (if ID=0) or updates an existing one.
	Save(ctx context.Context, n *model.Notification) (*model.Notification, error)

	// FindRetryable finds active records eligible for retry:
	// status in (failed, pending) and retry_count below the budget.
	// Ordered by created_at ASC; this is the sweeper's snapshot.
	FindRetryable(ctx context.Context, maxRetries, limit int) ([]model.Notification, error)

	// FindByReference retrieves records linked to an aggregate.
	FindByReference(ctx context.Context, referenceID, referenceType string) ([]model.Notification, error)

	// FindByStatus retrieves active records in the given status,
	// newest first.
	FindByStatus(ctx context.Context, status model.NotificationStatus, limit int) ([]model.Notification, error)
}

// DLQRepository defines the persistence interface for dead letters.
type DLQRepository interface {
	// Load retrieves a DLQ entry by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.DeadLetter, error)

	// Save creates a new DLQ entry (if ID=0) or updates an existing one.
	Save(ctx context.Context, d model.DeadLetter) (model.DeadLetter, error)

	// FindUnresolved retrieves unresolved entries, oldest first.
	FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error)

	// FindByQueue retrieves entries originating from a primary queue,
	// newest first.
	FindByQueue(ctx context.Context, queue string, limit int) ([]model.DeadLetter, error)

	// GetStats retrieves aggregate DLQ statistics.
	GetStats(ctx context.Context) (model.DLQStats, error)

	// CountUnresolved returns the number of unresolved entries.
	CountUnresolved(ctx context.Context) (int, error)
}

// RecipientRepository defines the persistence interface for notification
// recipients.
type RecipientRepository interface {
	// Load retrieves a recipient by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Recipient, error)

	// Save creates a new recipient (if ID=0) or updates an existing one.
	Save(ctx context.Context, r model.Recipient) (model.Recipient, error)

	// FindActive retrieves all active recipients.
	// Returns empty slice if none found.
	FindActive(ctx context.Context) ([]model.Recipient, error)
}
