package shipment

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

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/shipment")

// ErrNotFound is returned when a shipment is missing.
var ErrNotFound = errors.New("shipment not found")

// Module provides the shipment repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository persists shipments and their load lists.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Create inserts a shipment with its items.
func (r *Repository) Create(ctx context.Context, db bun.IDB, s *entity.Shipment, items []entity.ShipmentItem) error {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.Create", trace.WithAttributes(
		attribute.String("shipment.number", s.ShipmentNumber),
		attribute.String("order.id", s.OrderID.String()),
	))
	defer span.End()

	if _, err := db.NewInsert().Model(s).Exec(ctx); err != nil {
		return fail(span, err, "insert shipment failed")
	}
	if len(items) > 0 {
		if _, err := db.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fail(span, err, "insert items failed")
		}
	}
	return nil
}

// Get fetches a shipment, optionally locking its row.
func (r *Repository) Get(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.Shipment, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.Get", trace.WithAttributes(
		attribute.String("shipment.id", id.String()),
		attribute.Bool("db.lock", lock),
	))
	defer span.End()

	s := new(entity.Shipment)
	q := db.NewSelect().Model(s).Where("?TableAlias.id = ?", id)
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
	return s, nil
}

// Update writes the given columns of a shipment and bumps updated_at.
func (r *Repository) Update(ctx context.Context, db bun.IDB, s *entity.Shipment, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.Update", trace.WithAttributes(
		attribute.String("shipment.id", s.ID.String()),
	))
	defer span.End()

	s.UpdatedAt = time.Now().UTC()
	q := db.NewUpdate().Model(s).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fail(span, err, "update failed")
	}
	return nil
}

// ListByOrder returns an order's shipments in creation order.
func (r *Repository) ListByOrder(ctx context.Context, db bun.IDB, orderID uuid.UUID) ([]entity.Shipment, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.ListByOrder", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
	))
	defer span.End()

	var rows []entity.Shipment
	err := db.NewSelect().Model(&rows).
		Where("order_id = ?", orderID).
		Order("created_at ASC", "shipment_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return rows, nil
}

// Items returns the load list of a shipment by sequence number.
func (r *Repository) Items(ctx context.Context, db bun.IDB, shipmentID uuid.UUID) ([]entity.ShipmentItem, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.Items", trace.WithAttributes(
		attribute.String("shipment.id", shipmentID.String()),
	))
	defer span.End()

	var items []entity.ShipmentItem
	err := db.NewSelect().Model(&items).
		Where("shipment_id = ?", shipmentID).
		Order("sequence_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return items, nil
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
