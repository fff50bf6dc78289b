package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/model"
)

// RecipientRepository implements shelfwire.RecipientRepository using Relica.
type RecipientRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewRecipientRepository creates a new RecipientRepository with default table prefix.
func NewRecipientRepository(sqlDB *sql.DB, driverName string) *RecipientRepository {
	return &RecipientRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "shelfwire_"}
}

// NewRecipientRepositoryWithPrefix creates a new RecipientRepository with custom table prefix.
func NewRecipientRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *RecipientRepository {
	return &RecipientRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *RecipientRepository) tableName() string {
	return r.tablePrefix + "recipient"
}

// Load retrieves a recipient by ID.
func (r *RecipientRepository) Load(ctx context.Context, id int64) (model.Recipient, error) {
	var recipient model.Recipient
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&recipient)
	if errors.Is(err, sql.ErrNoRows) {
		return recipient, shelfwire.ErrNoData
	}
	if err != nil {
		return recipient, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to load recipient", err)
	}
	return recipient, nil
}

// Save creates or updates a recipient.
func (r *RecipientRepository) Save(ctx context.Context, recipient model.Recipient) (model.Recipient, error) {
	if recipient.ID == 0 {
		// Insert using Model() API
		err := r.db.WithContext(ctx).Model(&recipient).Table(r.tableName()).Insert()
		if err != nil {
			return recipient, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to insert recipient", err)
		}
		return recipient, nil
	}

	// Update using Model() API
	err := r.db.WithContext(ctx).Model(&recipient).Table(r.tableName()).Update()
	if err != nil {
		return recipient, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to update recipient", err)
	}
	return recipient, nil
}

// FindActive retrieves all active recipients.
func (r *RecipientRepository) FindActive(ctx context.Context) ([]model.Recipient, error) {
	var recipients []model.Recipient
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_active = ?", true).
		OrderBy("email ASC").
		WithContext(ctx).
		All(&recipients)
	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find active recipients", err)
	}
	return recipients, nil
}
