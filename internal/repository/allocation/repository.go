package allocation

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/allocation")

// Module provides the allocation repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository persists inventory allocations.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts one allocation.
func (r *Repository) Create(ctx context.Context, db bun.IDB, a *entity.Allocation) error {
	ctx, span := repoTracer.Start(ctx, "AllocationRepository.Create", trace.WithAttributes(
		attribute.String("order.id", a.OrderID.String()),
		attribute.String("allocation.reservation_id", a.ReservationID),
	))
	defer span.End()

	if _, err := db.NewInsert().Model(a).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// ListByOrder returns an order's allocations in allocation order, optionally
// filtered to the given statuses.
func (r *Repository) ListByOrder(ctx context.Context, db bun.IDB, orderID uuid.UUID, statuses ...entity.AllocationStatus) ([]entity.Allocation, error) {
	ctx, span := repoTracer.Start(ctx, "AllocationRepository.ListByOrder", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
	))
	defer span.End()

	var rows []entity.Allocation
	q := db.NewSelect().Model(&rows).Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	if err := q.Order("allocated_at ASC", "reservation_id ASC").Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// Update writes the given columns of an allocation.
func (r *Repository) Update(ctx context.Context, db bun.IDB, a *entity.Allocation, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "AllocationRepository.Update", trace.WithAttributes(
		attribute.String("allocation.id", a.ID.String()),
		attribute.String("allocation.status", string(a.Status)),
	))
	defer span.End()

	q := db.NewUpdate().Model(a).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	if _, err := q.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return nil
}

// CountByOrder counts an order's allocations in any status.
func (r *Repository) CountByOrder(ctx context.Context, db bun.IDB, orderID uuid.UUID) (int, error) {
	return db.NewSelect().Model((*entity.Allocation)(nil)).Where("order_id = ?", orderID).Count(ctx)
}
