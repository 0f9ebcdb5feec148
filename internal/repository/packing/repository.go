package packing

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

var repoTracer = otel.Tracer("github.com/Additional-Code/fulfillment/repository/packing")

var (
	// ErrTaskNotFound is returned when a packing task is missing.
	ErrTaskNotFound = errors.New("packing task not found")
	// ErrPackageNotFound is returned when a package is missing.
	ErrPackageNotFound = errors.New("package not found")
)

// Module provides the packing repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository persists packing tasks, packages and package contents.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) CreateTask(ctx context.Context, db bun.IDB, task *entity.PackingTask) error {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.CreateTask", trace.WithAttributes(
		attribute.String("packing_task.number", task.TaskNumber),
		attribute.String("order.id", task.OrderID.String()),
	))
	defer span.End()

	if _, err := db.NewInsert().Model(task).Exec(ctx); err != nil {
		return fail(span, err, "insert failed")
	}
	return nil
}

// GetTask fetches a packing task, optionally locking its row.
func (r *Repository) GetTask(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.PackingTask, error) {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.GetTask", trace.WithAttributes(
		attribute.String("packing_task.id", id.String()),
		attribute.Bool("db.lock", lock),
	))
	defer span.End()

	task := new(entity.PackingTask)
	q := db.NewSelect().Model(task).Where("?TableAlias.id = ?", id)
	if lock {
		q = database.ForUpdate(db, q)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return task, nil
}

func (r *Repository) UpdateTask(ctx context.Context, db bun.IDB, task *entity.PackingTask, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.UpdateTask", trace.WithAttributes(
		attribute.String("packing_task.id", task.ID.String()),
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

// ListTasksByOrder returns the order's packing tasks in creation order.
func (r *Repository) ListTasksByOrder(ctx context.Context, db bun.IDB, orderID uuid.UUID) ([]entity.PackingTask, error) {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.ListTasksByOrder", trace.WithAttributes(
		attribute.String("order.id", orderID.String()),
	))
	defer span.End()

	var tasks []entity.PackingTask
	err := db.NewSelect().Model(&tasks).
		Where("order_id = ?", orderID).
		Order("created_at ASC", "task_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return tasks, nil
}

func (r *Repository) CreatePackage(ctx context.Context, db bun.IDB, pkg *entity.Package) error {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.CreatePackage", trace.WithAttributes(
		attribute.String("package.number", pkg.PackageNumber),
		attribute.String("packing_task.id", pkg.PackingTaskID.String()),
	))
	defer span.End()

	if _, err := db.NewInsert().Model(pkg).Exec(ctx); err != nil {
		return fail(span, err, "insert failed")
	}
	return nil
}

// GetPackage fetches a package, optionally locking its row.
func (r *Repository) GetPackage(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.Package, error) {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.GetPackage", trace.WithAttributes(
		attribute.String("package.id", id.String()),
		attribute.Bool("db.lock", lock),
	))
	defer span.End()

	pkg := new(entity.Package)
	q := db.NewSelect().Model(pkg).Where("?TableAlias.id = ?", id)
	if lock {
		q = database.ForUpdate(db, q)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return pkg, nil
}

func (r *Repository) UpdatePackage(ctx context.Context, db bun.IDB, pkg *entity.Package, columns ...string) error {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.UpdatePackage", trace.WithAttributes(
		attribute.String("package.id", pkg.ID.String()),
	))
	defer span.End()

	pkg.UpdatedAt = time.Now().UTC()
	q := db.NewUpdate().Model(pkg).WherePK()
	if len(columns) > 0 {
		q = q.Column(append(columns, "updated_at")...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fail(span, err, "update failed")
	}
	return nil
}

// PackageFilter narrows ListPackages.
type PackageFilter struct {
	OrderID       uuid.UUID
	PackingTaskID uuid.UUID
	IDs           []uuid.UUID
	SealedOnly    bool
}

// ListPackages returns packages matching f in creation order.
func (r *Repository) ListPackages(ctx context.Context, db bun.IDB, f PackageFilter) ([]entity.Package, error) {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.ListPackages", trace.WithAttributes(
		attribute.String("order.id", f.OrderID.String()),
		attribute.String("packing_task.id", f.PackingTaskID.String()),
	))
	defer span.End()

	var pkgs []entity.Package
	q := db.NewSelect().Model(&pkgs)
	if f.OrderID != uuid.Nil {
		q = q.Where("order_id = ?", f.OrderID)
	}
	if f.PackingTaskID != uuid.Nil {
		q = q.Where("packing_task_id = ?", f.PackingTaskID)
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN (?)", bun.In(f.IDs))
	}
	if f.SealedOnly {
		q = q.Where("is_sealed = ?", true)
	}
	if err := q.Order("created_at ASC", "package_number ASC").Scan(ctx); err != nil {
		return nil, fail(span, err, "select failed")
	}
	return pkgs, nil
}

func (r *Repository) AddItem(ctx context.Context, db bun.IDB, item *entity.PackageItem) error {
	ctx, span := repoTracer.Start(ctx, "PackingRepository.AddItem", trace.WithAttributes(
		attribute.String("package.id", item.PackageID.String()),
		attribute.String("order_item.id", item.OrderItemID.String()),
	))
	defer span.End()

	if _, err := db.NewInsert().Model(item).Exec(ctx); err != nil {
		return fail(span, err, "insert failed")
	}
	return nil
}

// Items lists the contents of the given packages.
func (r *Repository) Items(ctx context.Context, db bun.IDB, packageIDs ...uuid.UUID) ([]entity.PackageItem, error) {
	if len(packageIDs) == 0 {
		return nil, nil
	}
	ctx, span := repoTracer.Start(ctx, "PackingRepository.Items", trace.WithAttributes(
		attribute.Int("package.count", len(packageIDs)),
	))
	defer span.End()

	var items []entity.PackageItem
	err := db.NewSelect().Model(&items).
		Where("package_id IN (?)", bun.In(packageIDs)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fail(span, err, "select failed")
	}
	return items, nil
}

// HasItem reports whether orderItemID is already in the package.
func (r *Repository) HasItem(ctx context.Context, db bun.IDB, packageID, orderItemID uuid.UUID) (bool, error) {
	return db.NewSelect().Model((*entity.PackageItem)(nil)).
		Where("package_id = ?", packageID).
		Where("order_item_id = ?", orderItemID).
		Exists(ctx)
}

// CountItems counts the rows of a package.
func (r *Repository) CountItems(ctx context.Context, db bun.IDB, packageID uuid.UUID) (int, error) {
	return db.NewSelect().Model((*entity.PackageItem)(nil)).Where("package_id = ?", packageID).Count(ctx)
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
