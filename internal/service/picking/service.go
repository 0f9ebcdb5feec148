// Package picking turns allocated orders into zone picking tasks and records picks.
package picking

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/database"
	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/event"
	allocationrepo "github.com/Additional-Code/fulfillment/internal/repository/allocation"
	orderrepo "github.com/Additional-Code/fulfillment/internal/repository/order"
	pickingrepo "github.com/Additional-Code/fulfillment/internal/repository/picking"
	ordersvc "github.com/Additional-Code/fulfillment/internal/service/order"
	"github.com/Additional-Code/fulfillment/internal/workflow"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/fulfillment/service/picking")

// UnknownLocation is used for items without an active reservation.
const UnknownLocation = "UNKNOWN"

// Module provides the picking service to Fx.
var Module = fx.Provide(NewService)

// ZoneResolver maps a warehouse location code to its picking zone.
type ZoneResolver func(location string) string

// PrefixZone resolves the zone as the part of the location before sep.
// Locations without sep belong to the empty zone.
func PrefixZone(sep string) ZoneResolver {
	return func(location string) string {
		if sep == "" {
			return ""
		}
		zone, _, found := strings.Cut(location, sep)
		if !found {
			return ""
		}
		return zone
	}
}

// Service generates picking tasks and tracks their progress.
type Service struct {
	db          *database.Connections
	orders      *ordersvc.Service
	items       *orderrepo.Repository
	allocations *allocationrepo.Repository
	tasks       *pickingrepo.Repository
	audit       *audit.Recorder
	events      *event.Publisher
	zone        ZoneResolver
	logger      *zap.Logger
	now         func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	DB          *database.Connections
	Orders      *ordersvc.Service
	Items       *orderrepo.Repository
	Allocations *allocationrepo.Repository
	Tasks       *pickingrepo.Repository
	Audit       *audit.Recorder
	Config      config.Config
	Events      *event.Publisher `optional:"true"`
	Zones       ZoneResolver     `optional:"true"`
	Logger      *zap.Logger      `optional:"true"`
}

func NewService(p Params) *Service {
	zone := p.Zones
	if zone == nil {
		zone = PrefixZone(p.Config.Fulfillment.ZoneSeparator)
	}
	return &Service{
		db:          p.DB,
		orders:      p.Orders,
		items:       p.Items,
		allocations: p.Allocations,
		tasks:       p.Tasks,
		audit:       p.Audit,
		events:      p.Events,
		zone:        zone,
		logger:      p.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// TaskDetail describes a generated picking task.
type TaskDetail struct {
	TaskID      uuid.UUID `json:"task_id"`
	TaskNumber  string    `json:"task_number"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Zone        string    `json:"zone"`
	ItemCount   int       `json:"item_count"`
}

// GenerateResult is the outcome of GeneratePickingTasks.
type GenerateResult struct {
	Success      bool         `json:"success"`
	OrderID      uuid.UUID    `json:"order_id"`
	TasksCreated int          `json:"tasks_created"`
	TaskDetails  []TaskDetail `json:"task_details"`
}

// ItemUpdate sets the cumulative picked quantity of an order item.
type ItemUpdate struct {
	OrderItemID    uuid.UUID       `json:"order_item_id"`
	QuantityPicked decimal.Decimal `json:"quantity_picked"`
}

// ItemError is an update rejected without aborting the others.
type ItemError struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	Error       string    `json:"error"`
}

// UpdateResult is the outcome of UpdatePickedQuantity.
type UpdateResult struct {
	Success          bool         `json:"success"`
	TaskID           uuid.UUID    `json:"task_id"`
	UpdatesApplied   []ItemUpdate `json:"updates_applied"`
	ValidationErrors []ItemError  `json:"validation_errors"`
	CompletedItems   int          `json:"completed_items"`
	TotalItems       int          `json:"total_items"`
}

type groupKey struct {
	warehouse uuid.UUID
	zone      string
}

type group struct {
	key   groupKey
	items []pick
}

type pick struct {
	item     *entity.OrderItem
	location string
}

// GeneratePickingTasks creates one task per (warehouse, zone) group of an
// allocated order and moves the order to PICKING.
func (s *Service) GeneratePickingTasks(ctx context.Context, orderID, actor uuid.UUID) (*GenerateResult, error) {
	ctx, span := serviceTracer.Start(ctx, "PickingService.GeneratePickingTasks", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	var (
		result *GenerateResult
		ev     event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		order, err := s.orders.Load(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		existing, err := s.tasks.CountTasksByOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return errorbank.Business(errorbank.CodePickingTasksExist,
				fmt.Sprintf("picking tasks already exist for order %s", order.OrderNumber))
		}
		if order.Status != entity.OrderAllocated {
			return errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus,
				fmt.Sprintf("order %s must be allocated before generating picking tasks", order.OrderNumber),
				errorbank.WithDetail("current_status", string(order.Status)),
			)
		}

		groups, err := s.group(ctx, tx, order)
		if err != nil {
			return err
		}

		now := s.now()
		result = &GenerateResult{OrderID: order.ID, TaskDetails: make([]TaskDetail, 0, len(groups))}
		for _, g := range groups {
			task := &entity.PickingTask{
				ID:          uuid.New(),
				OrderID:     order.ID,
				Status:      entity.TaskNotStarted,
				WarehouseID: g.key.warehouse,
				Zone:        g.key.zone,
				Priority:    order.Priority,
				TotalItems:  len(g.items),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			task.TaskNumber = entity.Number("PT", task.ID, now, 6)

			rows := make([]entity.PickingItem, len(g.items))
			for i, p := range g.items {
				rows[i] = entity.PickingItem{
					ID:             uuid.New(),
					PickingTaskID:  task.ID,
					OrderItemID:    p.item.ID,
					QuantityToPick: p.item.QuantityAllocated,
					QuantityPicked: decimal.Zero,
					Location:       p.location,
					CreatedAt:      now,
					UpdatedAt:      now,
				}
			}
			if err := s.tasks.CreateTask(ctx, tx, task, rows); err != nil {
				return err
			}
			result.TaskDetails = append(result.TaskDetails, TaskDetail{
				TaskID:      task.ID,
				TaskNumber:  task.TaskNumber,
				WarehouseID: task.WarehouseID,
				Zone:        task.Zone,
				ItemCount:   task.TotalItems,
			})
		}
		result.TasksCreated = len(result.TaskDetails)

		ev, err = s.orders.Transition(ctx, tx, order, entity.OrderPicking, actor,
			fmt.Sprintf("Generated %d picking tasks", result.TasksCreated))
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to generate picking tasks")
	}

	result.Success = true
	s.orders.AfterCommit(ctx, orderID, ev)
	if s.logger != nil {
		s.logger.Info("picking tasks generated", zap.String("order_id", orderID.String()), zap.Int("tasks", result.TasksCreated))
	}
	return result, nil
}

// group partitions the order's items by the warehouse and zone of their first
// active reservation, keeping first-seen group order.
func (s *Service) group(ctx context.Context, db bun.IDB, order *entity.Order) ([]*group, error) {
	items, err := s.items.Items(ctx, db, order.ID)
	if err != nil {
		return nil, err
	}
	active, err := s.allocations.ListByOrder(ctx, db, order.ID, entity.AllocationReserved)
	if err != nil {
		return nil, err
	}
	first := make(map[uuid.UUID]*entity.Allocation, len(active))
	for i := range active {
		if _, ok := first[active[i].OrderItemID]; !ok {
			first[active[i].OrderItemID] = &active[i]
		}
	}

	var groups []*group
	index := make(map[groupKey]*group)
	for i := range items {
		item := &items[i]
		key := groupKey{warehouse: order.WarehouseID.UUID}
		location := UnknownLocation
		if a, ok := first[item.ID]; ok {
			key = groupKey{warehouse: a.WarehouseID, zone: s.zone(a.Location)}
			location = a.Location
		}
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, pick{item: item, location: location})
	}
	return groups, nil
}

// AssignPicker sets the picker of a task that has none.
func (s *Service) AssignPicker(ctx context.Context, taskID, pickerID, actor uuid.UUID) (*entity.PickingTask, error) {
	ctx, span := serviceTracer.Start(ctx, "PickingService.AssignPicker", trace.WithAttributes(
		attribute.String("picking_task.id", taskID.String()),
		attribute.String("picker.id", pickerID.String()),
	))
	defer span.End()

	if pickerID == uuid.Nil {
		return nil, s.fail(span, errorbank.Validation("picker is required"), "invalid picker")
	}

	var task *entity.PickingTask
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if task, err = s.load(ctx, tx, taskID, true); err != nil {
			return err
		}
		if task.PickerID.Valid {
			return errorbank.Business(errorbank.CodePickerAlreadyAssigned,
				fmt.Sprintf("task %s already has a picker assigned", task.TaskNumber))
		}
		task.PickerID = entity.NullID(pickerID)
		task.AssignedAt = bun.NullTime{Time: s.now()}
		if err := s.tasks.UpdateTask(ctx, tx, task, "picker_id", "assigned_at"); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityPickingTask,
			EntityID:   task.ID,
			Action:     audit.ActionPickerAssigned,
			Actor:      actor,
			NewValues:  map[string]any{"picker_id": pickerID.String()},
			Notes:      fmt.Sprintf("Picker %s assigned to task", pickerID),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to assign picker")
	}
	return task, nil
}

// UpdatePickedQuantity records cumulative picks for items of an open task.
// A NOT_STARTED task is started first; invalid updates are reported per item.
func (s *Service) UpdatePickedQuantity(ctx context.Context, taskID uuid.UUID, updates []ItemUpdate, actor uuid.UUID) (*UpdateResult, error) {
	ctx, span := serviceTracer.Start(ctx, "PickingService.UpdatePickedQuantity", trace.WithAttributes(
		attribute.String("picking_task.id", taskID.String()),
		attribute.Int("updates", len(updates)),
	))
	defer span.End()

	var (
		result  *UpdateResult
		task    *entity.PickingTask
		started *event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if task, err = s.load(ctx, tx, taskID, true); err != nil {
			return err
		}
		if !task.Status.Open() {
			return errorbank.InvalidStatus(errorbank.CodeInvalidTaskStatus,
				fmt.Sprintf("cannot update picking for task %s in status %s", task.TaskNumber, task.Status),
				errorbank.WithDetail("current_status", string(task.Status)),
			)
		}
		if _, err := s.orders.RequireOpen(ctx, tx, task.OrderID); err != nil {
			return err
		}
		if task.Status == entity.TaskNotStarted {
			ev, err := s.transition(ctx, tx, task, entity.TaskInProgress, actor, "Picking started")
			if err != nil {
				return err
			}
			started = &ev
		}

		rows, err := s.tasks.Items(ctx, tx, task.ID)
		if err != nil {
			return err
		}
		byItem := make(map[uuid.UUID]*entity.PickingItem, len(rows))
		for i := range rows {
			byItem[rows[i].OrderItemID] = &rows[i]
		}

		result = &UpdateResult{TaskID: task.ID, UpdatesApplied: []ItemUpdate{}, ValidationErrors: []ItemError{}}
		now := s.now()
		for _, u := range updates {
			row, ok := byItem[u.OrderItemID]
			if !ok {
				result.ValidationErrors = append(result.ValidationErrors, ItemError{u.OrderItemID, fmt.Sprintf("item not found in task %s", task.TaskNumber)})
				continue
			}
			if msg := checkPick(row, u.QuantityPicked); msg != "" {
				result.ValidationErrors = append(result.ValidationErrors, ItemError{u.OrderItemID, msg})
				continue
			}

			delta := u.QuantityPicked.Sub(row.QuantityPicked)
			row.ApplyPicked(u.QuantityPicked, now)
			if err := s.tasks.UpdateItem(ctx, tx, row, "quantity_picked", "is_completed", "picked_at"); err != nil {
				return err
			}
			if !delta.IsZero() {
				item, err := s.items.GetItem(ctx, tx, row.OrderItemID, false)
				if err != nil {
					return err
				}
				item.QuantityPicked = item.QuantityPicked.Add(delta)
				if err := s.items.UpdateItem(ctx, tx, item, "quantity_picked"); err != nil {
					return err
				}
			}
			result.UpdatesApplied = append(result.UpdatesApplied, u)
		}

		completed := 0
		for _, r := range rows {
			if r.IsCompleted {
				completed++
			}
		}
		task.CompletedItems = completed
		if err := s.tasks.UpdateTask(ctx, tx, task, "completed_items"); err != nil {
			return err
		}
		result.CompletedItems = completed
		result.TotalItems = task.TotalItems

		_, err = s.audit.Record(ctx, tx, audit.Entry{
			EntityType: entity.EntityPickingTask,
			EntityID:   task.ID,
			Action:     audit.ActionQuantitiesUpdated,
			Actor:      actor,
			NewValues:  map[string]any{"completed_items": completed},
			Notes:      fmt.Sprintf("Updated %d items, %d errors", len(result.UpdatesApplied), len(result.ValidationErrors)),
		})
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to update picked quantities")
	}

	result.Success = len(result.ValidationErrors) == 0
	s.orders.Invalidate(ctx, task.OrderID)
	if started != nil {
		s.events.Publish(ctx, *started)
	}
	return result, nil
}

// checkPick validates a cumulative picked quantity; it returns the reason for
// rejection or "".
func checkPick(row *entity.PickingItem, picked decimal.Decimal) string {
	switch {
	case picked.IsNegative():
		return "picked quantity cannot be negative"
	case picked.GreaterThan(row.QuantityToPick):
		return fmt.Sprintf("picked quantity %s exceeds allocated quantity %s", picked, row.QuantityToPick)
	case picked.LessThan(row.QuantityPicked):
		return fmt.Sprintf("picked quantity %s is below the recorded %s", picked, row.QuantityPicked)
	}
	return ""
}

// CompletePicking closes an in-progress task whose items are all picked.
func (s *Service) CompletePicking(ctx context.Context, taskID, actor uuid.UUID) (*entity.PickingTask, error) {
	ctx, span := serviceTracer.Start(ctx, "PickingService.CompletePicking", trace.WithAttributes(attribute.String("picking_task.id", taskID.String())))
	defer span.End()

	var (
		task *entity.PickingTask
		ev   event.StatusChanged
	)
	err := s.db.RunInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if task, err = s.load(ctx, tx, taskID, true); err != nil {
			return err
		}
		if task.Status != entity.TaskInProgress {
			return errorbank.InvalidStatus(errorbank.CodeInvalidTaskStatus,
				fmt.Sprintf("task %s must be in progress to complete", task.TaskNumber),
				errorbank.WithDetail("current_status", string(task.Status)),
			)
		}
		rows, err := s.tasks.Items(ctx, tx, task.ID)
		if err != nil {
			return err
		}
		incomplete := 0
		for _, r := range rows {
			if !r.IsCompleted {
				incomplete++
			}
		}
		if incomplete > 0 {
			return errorbank.Business(errorbank.CodeIncompletePicking,
				fmt.Sprintf("cannot complete task %s: %d items not fully picked", task.TaskNumber, incomplete),
				errorbank.WithDetail("incomplete_items", incomplete),
			)
		}
		ev, err = s.transition(ctx, tx, task, entity.TaskCompleted, actor, "Picking task completed")
		return err
	})
	if err != nil {
		return nil, s.fail(span, err, "failed to complete picking")
	}

	s.orders.Invalidate(ctx, task.OrderID)
	s.events.Publish(ctx, ev)
	if s.logger != nil {
		s.logger.Info("picking task completed", zap.String("task_number", task.TaskNumber))
	}
	return task, nil
}

// transition applies a validated task status change with its timestamps and audit row.
func (s *Service) transition(ctx context.Context, tx bun.IDB, task *entity.PickingTask, to entity.TaskStatus, actor uuid.UUID, notes string) (event.StatusChanged, error) {
	if err := workflow.ValidatePickingTask(task, to); err != nil {
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
		columns = append(columns, "completed_at")
	}
	if err := s.tasks.UpdateTask(ctx, tx, task, columns...); err != nil {
		return event.StatusChanged{}, err
	}
	if err := s.audit.StatusChanged(ctx, tx, entity.EntityPickingTask, task.ID, actor, string(from), string(to), notes); err != nil {
		return event.StatusChanged{}, err
	}
	return event.StatusChanged{
		EntityType: entity.EntityPickingTask,
		EntityID:   task.ID,
		OrderID:    task.OrderID,
		From:       string(from),
		To:         string(to),
		Actor:      actor,
		OccurredAt: now,
	}, nil
}

func (s *Service) load(ctx context.Context, db bun.IDB, id uuid.UUID, lock bool) (*entity.PickingTask, error) {
	task, err := s.tasks.GetTask(ctx, db, id, lock)
	if errors.Is(err, pickingrepo.ErrNotFound) {
		return nil, errorbank.NotFound("picking task not found", errorbank.WithDetail("task_id", id.String()))
	}
	return task, err
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
