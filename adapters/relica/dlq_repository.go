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

// DLQRepository implements shelfwire.DLQRepository using Relica.
type DLQRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewDLQRepository creates a new DLQRepository with default table prefix.
func NewDLQRepository(sqlDB *sql.DB, driverName string) *DLQRepository {
	return &DLQRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "shelfwire_"}
}

// NewDLQRepositoryWithPrefix creates a new DLQRepository with custom table prefix.
func NewDLQRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DLQRepository {
	return &DLQRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *DLQRepository) tableName() string {
	return r.tablePrefix + "dlq"
}

// Load retrieves a DLQ entry by ID.
func (r *DLQRepository) Load(ctx context.Context, id int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, shelfwire.ErrNoData
	}
	if err != nil {
		return dl, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to load DLQ entry", err)
	}
	return dl, nil
}

// Save creates or updates a DLQ entry.
func (r *DLQRepository) Save(ctx context.Context, d model.DeadLetter) (model.DeadLetter, error) {
	if d.ID == 0 {
		// Insert using Model() API
		err := r.db.WithContext(ctx).Model(&d).Table(r.tableName()).Insert()
		if err != nil {
			return d, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to insert DLQ entry", err)
		}
		return d, nil
	}

	// Update using Model() API
	err := r.db.WithContext(ctx).Model(&d).Table(r.tableName()).Update()
	if err != nil {
		return d, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to update DLQ entry", err)
	}
	return d, nil
}

// FindUnresolved retrieves unresolved entries, oldest first.
func (r *DLQRepository) FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	var entries []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ?", false).
		OrderBy("dead_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&entries)
	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find unresolved DLQ entries", err)
	}
	if len(entries) == 0 {
		return nil, shelfwire.ErrNoData
	}
	return entries, nil
}

// FindByQueue retrieves entries originating from a primary queue, newest first.
func (r *DLQRepository) FindByQueue(ctx context.Context, queue string, limit int) ([]model.DeadLetter, error) {
	var entries []model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("queue_name = ?", queue).
		OrderBy("dead_at DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&entries)
	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find DLQ entries by queue", err)
	}
	if len(entries) == 0 {
		return nil, shelfwire.ErrNoData
	}
	return entries, nil
}

// GetStats retrieves DLQ statistics.
func (r *DLQRepository) GetStats(ctx context.Context) (model.DLQStats, error) {
	var stats model.DLQStats
	var totalCount, unresolvedCount int64

	err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).One(&totalCount)
	if err != nil {
		return stats, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to count DLQ entries", err)
	}
	stats.TotalItems = int(totalCount)

	err = r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).Where("is_resolved = ?", false).One(&unresolvedCount)
	if err != nil {
		return stats, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to count unresolved DLQ entries", err)
	}
	stats.UnresolvedItems = int(unresolvedCount)
	stats.ResolvedItems = stats.TotalItems - stats.UnresolvedItems

	if stats.TotalItems > 0 {
		var oldest, newest time.Time
		if err := r.db.WithContext(ctx).Select("MIN(dead_at)").From(r.tableName()).One(&oldest); err == nil {
			stats.OldestItemAge = int64(time.Since(oldest).Seconds())
		}
		if err := r.db.WithContext(ctx).Select("MAX(dead_at)").From(r.tableName()).One(&newest); err == nil {
			stats.NewestItemAge = int64(time.Since(newest).Seconds())
		}
	}

	stats.LastUpdated = time.Now()
	return stats, nil
}

// CountUnresolved returns the count of unresolved DLQ entries.
func (r *DLQRepository) CountUnresolved(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).Where("is_resolved = ?", false).One(&count)
	if err != nil {
		return 0, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to count unresolved DLQ entries", err)
	}
	return int(count), nil
}
