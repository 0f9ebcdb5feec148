package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/order")

// Module provides the order repository to Fx.
var Module = fx.Provide(NewRepository)

// ErrNotFound is returned when an order or order item is missing.
var ErrNotFound = errors.New("order not found")

// Repository encapsulates persistence of orders and their items. Every method
// takes the bun.IDB to run on so callers can share one transaction.
type Repository struct{}

// NewRepository builds an order repository.
func NewRepository() *Repository {
	return &Repository{}
}

// Create persists a new order and its items.
func (r *Repository) Create(ctx context.Context, db bun.IDB, order *entity.Order, items []entity.OrderItem) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.String("order.number", order.OrderNumber),
	))
	defer span.End()

	if _, err := db.NewInsert().Model(order).Exec(ctx); err != nil {
		return fail(span, err, "insert order failed")
	}
	if len(items) > 0 {
		if _, err := db.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fail(span, err, "insert items failed")
		}
	}
	return nil
}

// GetByID fetches an order by primary key.
func (r *Repository) GetByID(ctx context.Context, db bun.IDB, id uuid.UUID) (*entity.Order, error) {
	return r.get(ctx, db, id, false)
}

// GetForUpdate fetches an order and locks its row until the transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, db bun.IDB, id uuid.UUID) (*entity.Order, error) {
	return r.get(ctx, db, id, true)
}

func (r *Repository) get(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(
		attribute.String("order.id", id.String()),
		attribute.Bool("db.lock", lock),
	))
	defer span.End()

	order := new(entity.Order)
	q := db.NewSelect().Model(order).Where("?TableAlias.id = ?", id)
	if lock {
		q = database.ForUpdate(db, q)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return order, nil
}

// Update writes the given columns of order and bumps updated_at.
func (r *Repository) Update(ctx context.Context, db bun.IDB, order *entity.Order, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Update", trace.WithAttributes(
		attribute.String("order.id", order.ID.String()),
	))
	defer span.End()

	order.UpdatedAt = time.Now().UTC()
	q := db.NewUpdate().Model(order).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fail(span, err, "update failed")
	}
	return nil
}

// ListByStatus returns up to limit orders in status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, db bun.IDB, status entity.OrderStatus, limit int) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListByStatus", trace.WithAttributes(
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	var orders []entity.Order
	q := db.NewSelect().Model(&orders).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	return orders, nil
}

// Items lists the items of an order in line order.
func (r *Repository) Items(ctx context.Context, db bun.IDB, orderID uuid.UUID) ([]entity.OrderItem, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Items", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
	))
	defer span.End()

	var items []entity.OrderItem
	err := db.NewSelect().Model(&items).
		Where("order_id = ?", orderID).
		Order("line_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return items, nil
}

// GetItem fetches one order item, optionally locking it.
func (r *Repository) GetItem(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.OrderItem, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetItem", trace.WithAttributes(
		attribute.String("order_item.id", id.String()),
	))
	defer span.End()

	item := new(entity.OrderItem)
	q := db.NewSelect().Model(item).Where("?TableAlias.id = ?", id)
	if lock {
		q = database.ForUpdate(db, q)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return item, nil
}

// UpdateItem writes the given columns of item.
func (r *Repository) UpdateItem(ctx context.Context, db bun.IDB, item *entity.OrderItem, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateItem", trace.WithAttributes(
		attribute.String("order_item.id", item.ID.String()),
	))
	defer span.End()

	q := db.NewUpdate().Model(item).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fail(span, err, "update failed")
	}
	return nil
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
