package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/model"
)

// NotificationRepository implements shelfwire.NotificationRepository using Relica.
type NotificationRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewNotificationRepository creates a new NotificationRepository with default table prefix.
func NewNotificationRepository(sqlDB *sql.DB, driverName string) *NotificationRepository {
	return &NotificationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "shelfwire_"}
}

// NewNotificationRepositoryWithPrefix creates a new NotificationRepository with custom table prefix.
func NewNotificationRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *NotificationRepository {
	return &NotificationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *NotificationRepository) tableName() string {
	return r.tablePrefix + "notification"
}

// Load retrieves a notification by ID.
func (r *NotificationRepository) Load(ctx context.Context, id int64) (model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return n, shelfwire.ErrNoData
	}
	if err != nil {
		return n, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to load notification", err)
	}
	return n, nil
}

// Save creates or updates a notification.
func (r *NotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	if n.ID == 0 {
		// Insert using Model() API - auto-populates n.ID
		err := r.db.WithContext(ctx).Model(n).Table(r.tableName()).Insert()
		if err != nil {
			return n, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to insert notification", err)
		}
		return n, nil
	}

	// Update using Model() API - auto WHERE id = ?
	err := r.db.WithContext(ctx).Model(n).Table(r.tableName()).Update()
	if err != nil {
		return n, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to update notification", err)
	}
	return n, nil
}

// FindRetryable finds active records eligible for retry: status failed or
// pending, retry count inside the budget. Oldest first.
func (r *NotificationRepository) FindRetryable(ctx context.Context, maxRetries, limit int) ([]model.Notification, error) {
	var notifications []model.Notification

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_active = ? AND status IN (?, ?) AND retry_count < ?",
			true, model.NotificationStatusFailed, model.NotificationStatusPending, maxRetries).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&notifications)

	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find retryable notifications", err)
	}
	if len(notifications) == 0 {
		return nil, shelfwire.ErrNoData
	}
	return notifications, nil
}

// FindByReference retrieves records linked to an aggregate.
func (r *NotificationRepository) FindByReference(ctx context.Context, referenceID, referenceType string) ([]model.Notification, error) {
	var notifications []model.Notification

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("reference_id = ? AND reference_type = ?", referenceID, referenceType).
		OrderBy("created_at DESC").
		WithContext(ctx).
		All(&notifications)

	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find notifications by reference", err)
	}
	if len(notifications) == 0 {
		return nil, shelfwire.ErrNoData
	}
	return notifications, nil
}

// FindByStatus retrieves active records in the given status, newest first.
func (r *NotificationRepository) FindByStatus(ctx context.Context, status model.NotificationStatus, limit int) ([]model.Notification, error) {
	var notifications []model.Notification

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_active = ? AND status = ?", true, status).
		OrderBy("created_at DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&notifications)

	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find notifications by status", err)
	}
	if len(notifications) == 0 {
		return nil, shelfwire.ErrNoData
	}
	return notifications, nil
}
