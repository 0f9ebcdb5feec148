package picking

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

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/picking")

// ErrNotFound is returned when a picking task or item is missing.
var ErrNotFound = errors.New("picking task not found")

// Module provides the picking repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository persists picking tasks and their items.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// CreateTask inserts a task together with its items.
func (r *Repository) CreateTask(ctx context.Context, db bun.IDB, task *entity.PickingTask, items []entity.PickingItem) error {
	ctx, span := repoTracer.Start(ctx, "PickingRepository.CreateTask", trace.WithAttributes(
		attribute.String("picking_task.number", task.TaskNumber),
		attribute.String("order.id", task.OrderID.String()),
	))
	defer span.End()

	if _, err := db.NewInsert().Model(task).Exec(ctx); err != nil {
		return fail(span, err, "insert task failed")
	}
	if len(items) > 0 {
		if _, err := db.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fail(span, err, "insert items failed")
		}
	}
	return nil
}

// GetTask fetches a task, optionally locking its row.
func (r *Repository) GetTask(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.PickingTask, error) {
	ctx, span := repoTracer.Start(ctx, "PickingRepository.GetTask", trace.WithAttributes(
		attribute.String("picking_task.id", id.String()),
		attribute.Bool("db.lock", lock),
	))
	defer span.End()

	task := new(entity.PickingTask)
	q := db.NewSelect().Model(task).Where("?TableAlias.id = ?", id)
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
	return task, nil
}

// UpdateTask writes the given columns of task and bumps updated_at.
func (r *Repository) UpdateTask(ctx context.Context, db bun.IDB, task *entity.PickingTask, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "PickingRepository.UpdateTask", trace.WithAttributes(
		attribute.String("picking_task.id", task.ID.String()),
	))
	defer span.End()

	task.UpdatedAt = time.Now().UTC()
	q := db.NewUpdate().Model(task).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fail(span, err, "update failed")
	}
	return nil
}

// ListTasksByOrder returns the order's tasks in creation order.
func (r *Repository) ListTasksByOrder(ctx context.Context, db bun.IDB, orderID uuid.UUID) ([]entity.PickingTask, error) {
	ctx, span := repoTracer.Start(ctx, "PickingRepository.ListTasksByOrder", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
	))
	defer span.End()

	var tasks []entity.PickingTask
	err := db.NewSelect().Model(&tasks).
		Where("order_id = ?", orderID).
		Order("created_at ASC", "task_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return tasks, nil
}

// CountTasksByOrder counts the picking tasks of an order.
func (r *Repository) CountTasksByOrder(ctx context.Context, db bun.IDB, orderID uuid.UUID) (int, error) {
	return db.NewSelect().Model((*entity.PickingTask)(nil)).Where("order_id = ?", orderID).Count(ctx)
}

// Items lists a task's items in order line order.
func (r *Repository) Items(ctx context.Context, db bun.IDB, taskID uuid.UUID) ([]entity.PickingItem, error) {
	ctx, span := repoTracer.Start(ctx, "PickingRepository.Items", trace.WithAttributes(
		attribute.String("picking_task.id", taskID.String()),
	))
	defer span.End()

	var items []entity.PickingItem
	err := db.NewSelect().Model(&items).
		Join("JOIN order_items AS oi ON oi.id = pi.order_item_id").
		Where("pi.picking_task_id = ?", taskID).
		Order("oi.line_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return items, nil
}

// UpdateItem writes the given columns of a picking item.
func (r *Repository) UpdateItem(ctx context.Context, db bun.IDB, item *entity.PickingItem, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "PickingRepository.UpdateItem", trace.WithAttributes(
		attribute.String("picking_item.id", item.ID.String()),
	))
	defer span.End()

	item.UpdatedAt = time.Now().UTC()
	q := db.NewUpdate().Model(item).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
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
