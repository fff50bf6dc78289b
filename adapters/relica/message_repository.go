package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"
	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/model"
)

// MessageRepository implements shelfwire.MessageRepository using Relica.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "shelfwire_"}
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Load retrieves a message by ID.
func (r *MessageRepository) Load(ctx context.Context, id int64) (model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, shelfwire.ErrNoData
	}
	if err != nil {
		return msg, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to load message", err)
	}
	return msg, nil
}

// Save creates or updates a message.
func (r *MessageRepository) Save(ctx context.Context, m *model.Message) (*model.Message, error) {
	if m.ID == 0 {
		// Insert using Model() API - auto-populates m.ID
		err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert()
		if err != nil {
			return m, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to insert message", err)
		}
		return m, nil
	}

	// Update using Model() API - auto WHERE id = ?
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update()
	if err != nil {
		return m, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to update message", err)
	}
	return m, nil
}

// FetchReady leases up to limit ready messages from a queue. A message
// counts as ready when its status is ready, or its lease expired without
// an ack (worker crash recovery).
//
// The lease is claimed with a compare-and-set UPDATE per candidate, so two
// concurrent fetchers never hold the same message; a candidate lost to a
// concurrent fetcher is simply skipped.
func (r *MessageRepository) FetchReady(ctx context.Context, queueName string, limit int, lease time.Duration) ([]model.Message, error) {
	var candidates []model.Message

	now := time.Now()

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("queue_name = ? AND (status = ? OR (status = ? AND leased_until < ?))",
			queueName, model.MessageStatusReady, model.MessageStatusUnacked, now).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&candidates)

	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find ready messages", err)
	}
	if len(candidates) == 0 {
		return nil, shelfwire.ErrNoData
	}

	leasedUntil := now.Add(lease)
	leased := make([]model.Message, 0, len(candidates))

	for i := range candidates {
		m := candidates[i]

		result, err := r.db.WithContext(ctx).Update(r.tableName()).
			Set(map[string]interface{}{
				"status":       model.MessageStatusUnacked,
				"leased_until": leasedUntil,
			}).
			Where("id = ? AND (status = ? OR leased_until < ?)",
				m.ID, model.MessageStatusReady, now).
			WithContext(ctx).
			Execute()
		if err != nil {
			return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to lease message", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to read lease result", err)
		}
		if affected == 0 {
			// Lost to a concurrent fetcher.
			continue
		}

		m.Status = model.MessageStatusUnacked
		m.LeasedUntil = sql.NullTime{Time: leasedUntil, Valid: true}
		leased = append(leased, m)
	}

	if len(leased) == 0 {
		return nil, shelfwire.ErrNoData
	}
	return leased, nil
}

// Ack removes a message after its outcome was durably recorded.
func (r *MessageRepository) Ack(ctx context.Context, m *model.Message) error {
	// Delete using Model() API - auto WHERE id = ?
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Delete()
	if err != nil {
		return shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to ack message", err)
	}
	return nil
}

// FindExpired finds messages past their TTL. Unacked messages under a
// live lease are excluded: a worker still holds them, and its ack or
// requeue settles their fate.
func (r *MessageRepository) FindExpired(ctx context.Context, limit int) ([]model.Message, error) {
	var messages []model.Message

	now := time.Now()

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("expires_at <= ? AND (status = ? OR leased_until < ?)",
			now, model.MessageStatusReady, now).
		OrderBy("expires_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&messages)

	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find expired messages", err)
	}
	if len(messages) == 0 {
		return nil, shelfwire.ErrNoData
	}
	return messages, nil
}

// CountReady returns the number of ready messages in a queue.
func (r *MessageRepository) CountReady(ctx context.Context, queueName string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").
		From(r.tableName()).
		Where("queue_name = ? AND status = ?", queueName, model.MessageStatusReady).
		One(&count)
	if err != nil {
		return 0, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to count ready messages", err)
	}
	return int(count), nil
}
