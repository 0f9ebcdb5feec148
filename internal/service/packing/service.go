// Package packing builds packages from picked order items and seals them.
package packing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/audit"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/event"
	orderrepo "github.com/Additional-Code/fulfillment/internal/repository/order"
	packingrepo "github.com/Additional-Code/fulfillment/internal/repository/packing"
	pickingrepo "github.com/Additional-Code/fulfillment/internal/repository/picking"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
	"github.com/Additional-Code/fulfillment/internal/workflow"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/fulfillment/service/packing")

// Module provides the packing service to Fx.
var Module = fx.Provide(NewService)

// Service manages packing tasks and the packages built under them.
type Service struct {
	db      *database.Connections
	orders  *ordersvc.Service
	items   *orderrepo.Repository
	picking *pickingrepo.Repository
	repo    *packingrepo.Repository
	audit   *audit.Recorder
	events  *event.Publisher
	logger  *zap.Logger
	now     func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	DB         *database.Connections
	Orders     *ordersvc.Service
	Items      *orderrepo.Repository
	Picking    *pickingrepo.Repository
	Repository *packingrepo.Repository
	Audit      *audit.Recorder
	Events     *event.Publisher `optional:"true"`
	Logger     *zap.Logger      `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		orders:  p.Orders,
		items:   p.Items,
		picking: p.Picking,
		repo:    p.Repository,
		audit:   p.Audit,
		events:  p.Events,
		logger:  p.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PackageInput specifies a new package. Nil dimensions are unknown.
type PackageInput struct {
	PackageType entity.PackageType
	Length      *decimal.Decimal
	Width       *decimal.Decimal
	Height      *decimal.Decimal
	EmptyWeight decimal.Decimal
	MaxWeight   *decimal.Decimal
	Notes       string
	Metadata    map[string]any
}

// Position places an item inside a package; nil coordinates are unset.
type Position struct {
	X, Y, Z *decimal.Decimal
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func (in *PackageInput) validate() error {
	if in.PackageType == "" {
		in.PackageType = entity.PackageBox
	}
	if !in.PackageType.Valid() {
		return errorbank.Validation(fmt.Sprintf("unknown package type %s", in.PackageType))
	}
	dims := []struct {
		name  string
		value *decimal.Decimal
	}{{"length", in.Length}, {"width", in.Width}, {"height", in.Height}}
	for _, d := range dims {
		if d.value != nil && d.value.IsNegative() {
			return errorbank.Validation(d.name+" must not be negative", errorbank.WithDetail("field", d.name))
		}
	}
	if in.EmptyWeight.IsNegative() {
		return errorbank.Validation("empty weight must not be negative", errorbank.WithDetail("field", "empty_weight"))
	}
	if in.MaxWeight != nil && !in.MaxWeight.IsPositive() {
		return errorbank.Validation("max weight must be greater than zero", errorbank.WithDetail("field", "max_weight"))
	}
	return nil
}

// CreatePackingTask opens the packing task of an order whose picking is done
// and moves the order to PACKING.
func (s *Service) CreatePackingTask(ctx context.Context, orderID, actor uuid.UUID) (*entity.PackingTask, error) {
	ctx, span := serviceTracer.Start(ctx, "PackingService.CreatePackingTask", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	var (
		task *entity.PackingTask
		ev   event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		order, err := s.orders.Load(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		existing, err := s.repo.ListTasksByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return errorbank.Business(errorbank.CodePackingTaskExists,
				fmt.Sprintf("packing task already exists for order %s", order.OrderNumber))
		}
		if order.Status != entity.OrderPicking {
			return errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus,
				fmt.Sprintf("order %s must be in picking status to create a packing task", order.OrderNumber),
				errorbank.WithDetail("current_status", string(order.Status)),
			)
		}
		picks, err := s.picking.ListTasksByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		open := 0
		for _, p := range picks {
			if p.Status != entity.TaskCompleted {
				open++
			}
		}
		if open > 0 {
			return errorbank.Business(errorbank.CodeIncompletePicking,
				fmt.Sprintf("cannot create packing task: %d picking tasks not completed", open),
				errorbank.WithDetail("incomplete_tasks", open),
			)
		}
		items, err := s.items.Items(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		now := s.now()
		task = &entity.PackingTask{
			ID:         uuid.New(),
			OrderID:    order.ID,
			Status:     entity.TaskNotStarted,
			TotalItems: len(items),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		task.TaskNumber = entity.Number("PAT", task.ID, now, 6)
		if err := s.repo.CreateTask(ctx, tx, task); err != nil {
			return err
		}
		ev, err = s.orders.Transition(ctx, tx, order, entity.OrderPacking, actor, "Packing task created")
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to create packing task")
	}

	s.orders.AfterCommit(ctx, orderID, ev)
	if s.logger != nil {
		s.logger.Info("packing task created", zap.String("task_number", task.TaskNumber), zap.String("order_id", orderID.String()))
	}
	return task, nil
}

// AssignPacker sets the packer of a task that has none.
func (s *Service) AssignPacker(ctx context.Context, taskID, packerID, actor uuid.UUID) (*entity.PackingTask, error) {
	ctx, span := serviceTracer.Start(ctx, "PackingService.AssignPacker", trace.WithAttributes(
		attribute.String("packing_task.id", taskID.String()),
		attribute.String("packer.id", packerID.String()),
	))
	defer span.End()

	if packerID == uuid.Nil {
		return nil, s.fail(span, errorbank.Validation("packer is required"), "invalid packer")
	}

	var task *entity.PackingTask
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if task, err = s.loadTask(ctx, tx, taskID); err != nil {
			return err
		}
		if task.PackerID.Valid {
			return errorbank.Business(errorbank.CodePackerAlreadyAssigned,
				fmt.Sprintf("task %s already has a packer assigned", task.TaskNumber))
		}
		task.PackerID = entity.NullID(packerID)
		task.AssignedAt = bun.NullTime{Time: s.now()}
		if err := s.repo.UpdateTask(ctx, tx, task, "packer_id", "assigned_at"); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityPackingTask,
			EntityID:   task.ID,
			Action:     audit.ActionPackerAssigned,
			Actor:      actor,
			NewValues:  map[string]any{"packer_id": packerID.String()},
			Notes:      fmt.Sprintf("Packer %s assigned to task", packerID),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to assign packer")
	}
	return task, nil
}

// CreatePackage adds an empty package to an open packing task, starting it if needed.
func (s *Service) CreatePackage(ctx context.Context, taskID uuid.UUID, in PackageInput, actor uuid.UUID) (*entity.Package, error) {
	ctx, span := serviceTracer.Start(ctx, "PackingService.CreatePackage", trace.WithAttributes(attribute.String("packing_task.id", taskID.String())))
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, s.fail(span, err, "invalid package")
	}

	var (
		pkg     *entity.Package
		started *event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		task, err := s.loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !task.Status.Open() {
			return errorbank.InvalidStatus(errorbank.CodeInvalidTaskStatus,
				fmt.Sprintf("cannot create package for task %s in status %s", task.TaskNumber, task.Status),
				errorbank.WithDetail("current_status", string(task.Status)),
			)
		}
		if _, err := s.orders.RequireOpen(ctx, tx, task.OrderID); err != nil {
			return err
		}
		if task.Status == entity.TaskNotStarted {
			ev, err := s.transition(ctx, tx, task, entity.TaskInProgress, actor, "Packing started")
			if err != nil {
				return err
			}
			started = &ev
		}

		now := s.now()
		pkg = &entity.Package{
			ID:            uuid.New(),
			PackingTaskID: task.ID,
			OrderID:       task.OrderID,
			PackageType:   in.PackageType,
			Length:        nullable(in.Length),
			Width:         nullable(in.Width),
			Height:        nullable(in.Height),
			EmptyWeight:   in.EmptyWeight,
			GrossWeight:   in.EmptyWeight,
			MaxWeight:     nullable(in.MaxWeight),
			Notes:         in.Notes,
			Metadata:      in.Metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		pkg.PackageNumber = entity.Number("PKG", pkg.ID, now, 6)
		if err := s.repo.CreatePackage(ctx, tx, pkg); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityPackingTask,
			EntityID:   task.ID,
			Action:     audit.ActionPackageCreated,
			Actor:      actor,
			NewValues:  map[string]any{"package_number": pkg.PackageNumber, "package_type": string(pkg.PackageType)},
			Notes:      fmt.Sprintf("Package %s created", pkg.PackageNumber),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to create package")
	}

	if started != nil {
		s.events.Publish(ctx, *started)
	}
	if s.logger != nil {
		s.logger.Info("package created", zap.String("package_number", pkg.PackageNumber))
	}
	return pkg, nil
}

// AddItemToPackage places a picked, not yet packed quantity of an order item
// into an unsealed package of the same order.
func (s *Service) AddItemToPackage(ctx context.Context, packageID, orderItemID uuid.UUID, quantity decimal.Decimal, pos Position, actor uuid.UUID) (*entity.PackageItem, error) {
	ctx, span := serviceTracer.Start(ctx, "PackingService.AddItemToPackage", trace.WithAttributes(
		attribute.String("package.id", packageID.String()),
		attribute.String("order_item.id", orderItemID.String()),
	))
	defer span.End()

	var row *entity.PackageItem
	var orderID uuid.UUID
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		pkg, err := s.loadPackage(ctx, tx, packageID)
		if err != nil {
			return err
		}
		item, err := s.items.GetItem(ctx, tx, orderItemID, true)
		if errors.Is(err, orderrepo.ErrNotFound) {
			return errorbank.NotFound("order item not found", errorbank.WithDetail("order_item_id", orderItemID.String()))
		}
		if err != nil {
			return err
		}
		orderID = pkg.OrderID

		if item.OrderID != pkg.OrderID {
			return errorbank.Validation("package and order item must belong to the same order")
		}
		if pkg.IsSealed {
			return errorbank.Business(errorbank.CodePackageSealed,
				fmt.Sprintf("cannot add items to sealed package %s", pkg.PackageNumber))
		}
		if _, err := s.orders.RequireOpen(ctx, tx, pkg.OrderID); err != nil {
			return err
		}
		dup, err := s.repo.HasItem(ctx, tx, pkg.ID, item.ID)
		if err != nil {
			return err
		}
		if dup {
			return errorbank.Validation(fmt.Sprintf("item %s already in package %s", item.ProductSKU, pkg.PackageNumber))
		}
		if !quantity.IsPositive() {
			return errorbank.Validation("quantity must be greater than zero")
		}
		if available := item.RemainingToPack(); quantity.GreaterThan(available) {
			return errorbank.Validation(
				fmt.Sprintf("cannot pack %s of %s, available: %s", quantity, item.ProductSKU, available),
				errorbank.WithDetail("available_quantity", available.String()),
			)
		}

		row = &entity.PackageItem{
			ID:          uuid.New(),
			PackageID:   pkg.ID,
			OrderItemID: item.ID,
			Quantity:    quantity,
			PositionX:   nullable(pos.X),
			PositionY:   nullable(pos.Y),
			PositionZ:   nullable(pos.Z),
			CreatedAt:   s.now(),
		}
		if err := s.repo.AddItem(ctx, tx, row); err != nil {
			return err
		}
		if item.UnitWeight.Valid {
			pkg.GrossWeight = pkg.GrossWeight.Add(quantity.Mul(item.UnitWeight.Decimal)).Round(2)
			if err := s.repo.UpdatePackage(ctx, tx, pkg, "gross_weight"); err != nil {
				return err
			}
		}
		item.QuantityPacked = item.QuantityPacked.Add(quantity)
		if err := s.items.UpdateItem(ctx, tx, item, "quantity_packed"); err != nil {
			return err
		}

		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityPackage,
			EntityID:   pkg.ID,
			Action:     audit.ActionItemAdded,
			Actor:      actor,
			NewValues:  map[string]any{"product_sku": item.ProductSKU, "quantity": quantity.String()},
			Notes:      fmt.Sprintf("Added %s of %s to package", quantity, item.ProductSKU),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to add item to package")
	}
	s.orders.Invalidate(ctx, orderID)
	return row, nil
}

// FinalizePackage seals a non-empty package within its weight limit.
func (s *Service) FinalizePackage(ctx context.Context, packageID, actor uuid.UUID) (*entity.Package, error) {
	ctx, span := serviceTracer.Start(ctx, "PackingService.FinalizePackage", trace.WithAttributes(attribute.String("package.id", packageID.String())))
	defer span.End()

	var pkg *entity.Package
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if pkg, err = s.loadPackage(ctx, tx, packageID); err != nil {
			return err
		}
		if pkg.IsSealed {
			return errorbank.Business(errorbank.CodePackageAlreadySealed,
				fmt.Sprintf("package %s is already sealed", pkg.PackageNumber))
		}
		count, err := s.repo.CountItems(ctx, tx, pkg.ID)
		if err != nil {
			return err
		}
		if count == 0 {
			return errorbank.Business(errorbank.CodeEmptyPackage,
				fmt.Sprintf("cannot seal empty package %s", pkg.PackageNumber))
		}
		if pkg.IsOverweight() {
			return errorbank.Validation(
				fmt.Sprintf("package %s exceeds maximum weight of %skg", pkg.PackageNumber, pkg.MaxWeight.Decimal),
				errorbank.WithCode(errorbank.CodePackageOverweight),
				errorbank.WithDetail("gross_weight", pkg.GrossWeight.String()),
				errorbank.WithDetail("max_weight", pkg.MaxWeight.Decimal.String()),
			)
		}

		pkg.IsSealed = true
		pkg.SealedAt = bun.NullTime{Time: s.now()}
		if err := s.repo.UpdatePackage(ctx, tx, pkg, "is_sealed", "sealed_at"); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityPackage,
			EntityID:   pkg.ID,
			Action:     audit.ActionPackageSealed,
			Actor:      actor,
			NewValues:  map[string]any{"is_sealed": true, "gross_weight": pkg.GrossWeight.String()},
			Notes:      fmt.Sprintf("Package sealed with %d items", count),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to finalize package")
	}
	if s.logger != nil {
		s.logger.Info("package sealed", zap.String("package_number", pkg.PackageNumber))
	}
	return pkg, nil
}

// CompletePacking closes an in-progress task once every picked quantity is
// packed and every package is sealed.
func (s *Service) CompletePacking(ctx context.Context, taskID, actor uuid.UUID) (*entity.PackingTask, error) {
	ctx, span := serviceTracer.Start(ctx, "PackingService.CompletePacking", trace.WithAttributes(attribute.String("packing_task.id", taskID.String())))
	defer span.End()

	var (
		task *entity.PackingTask
		ev   event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if task, err = s.loadTask(ctx, tx, taskID); err != nil {
			return err
		}
		if task.Status != entity.TaskInProgress {
			return errorbank.InvalidStatus(errorbank.CodeInvalidTaskStatus,
				fmt.Sprintf("task %s must be in progress to complete", task.TaskNumber),
				errorbank.WithDetail("current_status", string(task.Status)),
			)
		}
		items, err := s.items.Items(ctx, tx, task.OrderID)
		if err != nil {
			return err
		}
		unpacked := 0
		for i := range items {
			if !items[i].IsFullyPacked() {
				unpacked++
			}
		}
		if unpacked > 0 {
			return errorbank.Business(errorbank.CodeIncompletePacking,
				fmt.Sprintf("cannot complete packing: %d items not fully packed", unpacked),
				errorbank.WithDetail("unpacked_items", unpacked),
			)
		}
		pkgs, err := s.repo.ListPackages(ctx, tx, packingrepo.PackageFilter{PackingTaskID: task.ID})
		if err != nil {
			return err
		}
		unsealed := 0
		for _, p := range pkgs {
			if !p.IsSealed {
				unsealed++
			}
		}
		if unsealed > 0 {
			return errorbank.Business(errorbank.CodeUnsealedPackages,
				fmt.Sprintf("cannot complete packing: %d packages not sealed", unsealed),
				errorbank.WithDetail("unsealed_packages", unsealed),
			)
		}
		ev, err = s.transition(ctx, tx, task, entity.TaskCompleted, actor, "Packing task completed")
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to complete packing")
	}

	s.orders.Invalidate(ctx, task.OrderID)
	s.events.Publish(ctx, ev)
	if s.logger != nil {
		s.logger.Info("packing task completed", zap.String("task_number", task.TaskNumber))
	}
	return task, nil
}

// transition applies a validated task status change with its timestamps and audit row.
func (s *Service) transition(ctx context.Context, tx bun.IDB, task *entity.PackingTask, to entity.TaskStatus, actor uuid.UUID, notes string) (event.StatusChanged, error) {
	if err := workflow.ValidatePackingTask(task, to); err != nil {
		return event.StatusChanged{}, err
	}
	from := task.Status
	now := s.now()
	task.Status = to
	columns := []string{"status"}
	switch to {
	case entity.TaskInProgress:
		task.StartedAt = bun.NullTime{Time: now}
		columns = append(columns, "started_at")
	case entity.TaskCompleted:
		task.CompletedAt = bun.NullTime{Time: now}
		task.CompletedItems = task.TotalItems
		columns = append(columns, "completed_at", "completed_items")
	}
	if err := s.repo.UpdateTask(ctx, tx, task, columns...); err != nil {
		return event.StatusChanged{}, err
	}
	if err := s.audit.StatusChanged(ctx, tx, entity.EntityPackingTask, task.ID, actor, string(from), string(to), notes); err != nil {
		return event.StatusChanged{}, err
	}
	return event.StatusChanged{
		EntityType: entity.EntityPackingTask,
		EntityID:   task.ID,
		OrderID:    task.OrderID,
		From:       string(from),
		To:         string(to),
		Actor:      actor,
		OccurredAt: now,
	}, nil
}

func (s *Service) loadTask(ctx context.Context, db bun.IDB, id uuid.UUID) (*entity.PackingTask, error) {
	task, err := s.repo.GetTask(ctx, db, id, true)
	if errors.Is(err, packingrepo.ErrTaskNotFound) {
		return nil, errorbank.NotFound("packing task not found", errorbank.WithDetail("task_id", id.String()))
	}
	return task, err
}

func (s *Service) loadPackage(ctx context.Context, db bun.IDB, id uuid.UUID) (*entity.Package, error) {
	pkg, err := s.repo.GetPackage(ctx, db, id, true)
	if errors.Is(err, packingrepo.ErrPackageNotFound) {
		return nil, errorbank.NotFound("package not found", errorbank.WithDetail("package_id", id.String()))
	}
	return pkg, err
}

func (s *Service) fail(span trace.Span, err error, msg string) error {
	err = errorbank.Wrap(err, msg)
	appErr := errorbank.From(err)
	if appErr.Kind() == errorbank.KindInternal {
		span.RecordError(err)
		if s.logger != nil {
			s.logger.Error(msg, zap.Error(err))
		}
	}
	span.SetStatus(codes.Error, appErr.Message())
	return err
}
