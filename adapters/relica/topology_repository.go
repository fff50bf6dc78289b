package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/shelfwire/shelfwire"
	"github.com/shelfwire/shelfwire/model"
)

// TopologyRepository implements shelfwire.TopologyRepository using Relica.
//
// Declarations are idempotent: an entity that already exists by name is
// returned as stored instead of being re-inserted.
type TopologyRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewTopologyRepository creates a new TopologyRepository with default table prefix.
func NewTopologyRepository(sqlDB *sql.DB, driverName string) *TopologyRepository {
	return &TopologyRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "shelfwire_"}
}

// NewTopologyRepositoryWithPrefix creates a new TopologyRepository with custom table prefix.
func NewTopologyRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *TopologyRepository {
	return &TopologyRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *TopologyRepository) exchangeTable() string {
	return r.tablePrefix + "exchange"
}

func (r *TopologyRepository) queueTable() string {
	return r.tablePrefix + "queue"
}

func (r *TopologyRepository) bindingTable() string {
	return r.tablePrefix + "binding"
}

// DeclareExchange stores an exchange declaration.
func (r *TopologyRepository) DeclareExchange(ctx context.Context, ex model.Exchange) (model.Exchange, error) {
	existing, err := r.GetExchange(ctx, ex.Name)
	if err == nil {
		return existing, nil
	}
	if !shelfwire.IsNoData(err) {
		return ex, err
	}

	if err := r.db.WithContext(ctx).Model(&ex).Table(r.exchangeTable()).Insert(); err != nil {
		return ex, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to insert exchange", err)
	}
	return ex, nil
}

// DeclareQueue stores a queue declaration.
func (r *TopologyRepository) DeclareQueue(ctx context.Context, q model.Queue) (model.Queue, error) {
	existing, err := r.GetQueue(ctx, q.Name)
	if err == nil {
		return existing, nil
	}
	if !shelfwire.IsNoData(err) {
		return q, err
	}

	if err := r.db.WithContext(ctx).Model(&q).Table(r.queueTable()).Insert(); err != nil {
		return q, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to insert queue", err)
	}
	return q, nil
}

// DeclareBinding stores a binding declaration.
func (r *TopologyRepository) DeclareBinding(ctx context.Context, b model.Binding) (model.Binding, error) {
	var existing model.Binding
	err := r.db.WithContext(ctx).Select("*").
		From(r.bindingTable()).
		Where("exchange = ? AND queue = ? AND routing_key = ?", b.Exchange, b.Queue, b.RoutingKey).
		One(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return b, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to look up binding", err)
	}

	if err := r.db.WithContext(ctx).Model(&b).Table(r.bindingTable()).Insert(); err != nil {
		return b, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to insert binding", err)
	}
	return b, nil
}

// GetExchange retrieves an exchange by name.
func (r *TopologyRepository) GetExchange(ctx context.Context, name string) (model.Exchange, error) {
	var ex model.Exchange
	err := r.db.WithContext(ctx).Select("*").From(r.exchangeTable()).Where("name = ?", name).One(&ex)
	if errors.Is(err, sql.ErrNoRows) {
		return ex, shelfwire.ErrNoData
	}
	if err != nil {
		return ex, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to load exchange", err)
	}
	return ex, nil
}

// GetQueue retrieves a queue by name.
func (r *TopologyRepository) GetQueue(ctx context.Context, name string) (model.Queue, error) {
	var q model.Queue
	err := r.db.WithContext(ctx).Select("*").From(r.queueTable()).Where("name = ?", name).One(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return q, shelfwire.ErrNoData
	}
	if err != nil {
		return q, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to load queue", err)
	}
	return q, nil
}

// FindBindings retrieves all bindings on an exchange.
func (r *TopologyRepository) FindBindings(ctx context.Context, exchange string) ([]model.Binding, error) {
	var bindings []model.Binding
	err := r.db.WithContext(ctx).Select("*").
		From(r.bindingTable()).
		Where("exchange = ?", exchange).
		OrderBy("id ASC").
		WithContext(ctx).
		All(&bindings)
	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to find bindings", err)
	}
	return bindings, nil
}

// ListQueues retrieves all declared queues.
func (r *TopologyRepository) ListQueues(ctx context.Context) ([]model.Queue, error) {
	var queues []model.Queue
	err := r.db.WithContext(ctx).Select("*").
		From(r.queueTable()).
		OrderBy("name ASC").
		WithContext(ctx).
		All(&queues)
	if err != nil {
		return nil, shelfwire.NewErrorWithCause(shelfwire.ErrCodeDatabase, "failed to list queues", err)
	}
	return queues, nil
}
