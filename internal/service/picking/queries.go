package picking

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

// ItemProgress is the pick state of one item within a task.
type ItemProgress struct {
	OrderItemID    uuid.UUID       `json:"order_item_id"`
	ProductSKU     string          `json:"product_sku"`
	Location       string          `json:"location"`
	QuantityToPick decimal.Decimal `json:"quantity_to_pick"`
	QuantityPicked decimal.Decimal `json:"quantity_picked"`
	IsCompleted    bool            `json:"is_completed"`
}

// TaskProgress reports one picking task.
type TaskProgress struct {
	TaskID             uuid.UUID         `json:"task_id"`
	TaskNumber         string            `json:"task_number"`
	Status             entity.TaskStatus `json:"status"`
	Zone               string            `json:"zone"`
	PickerID           uuid.NullUUID     `json:"picker_id"`
	ProgressPercentage float64           `json:"progress_percentage"`
	CompletedItems     int               `json:"completed_items"`
	TotalItems         int               `json:"total_items"`
	Items              []ItemProgress    `json:"items"`
}

// Summary reports the picking progress of an order.
type Summary struct {
	OrderID         uuid.UUID      `json:"order_id"`
	TotalTasks      int            `json:"total_tasks"`
	CompletedTasks  int            `json:"completed_tasks"`
	InProgressTasks int            `json:"in_progress_tasks"`
	Tasks           []TaskProgress `json:"tasks"`
}

// GetPickingSummary reports every picking task of an order with its items.
func (s *Service) GetPickingSummary(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	ctx, span := serviceTracer.Start(ctx, "PickingService.GetPickingSummary", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	db := s.db.Reader
	if _, err := s.orders.Load(ctx, db, orderID, false); err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}
	tasks, err := s.tasks.ListTasksByOrder(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list picking tasks")
	}
	items, err := s.items.Items(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list order items")
	}
	skus := make(map[uuid.UUID]string, len(items))
	for _, it := range items {
		skus[it.ID] = it.ProductSKU
	}

	out := &Summary{OrderID: orderID, TotalTasks: len(tasks), Tasks: make([]TaskProgress, 0, len(tasks))}
	for i := range tasks {
		t := &tasks[i]
		switch t.Status {
		case entity.TaskCompleted:
			out.CompletedTasks++
		case entity.TaskInProgress:
			out.InProgressTasks++
		}
		rows, err := s.tasks.Items(ctx, db, t.ID)
		if err != nil {
			return nil, s.fail(span, err, "failed to list picking items")
		}
		progress := TaskProgress{
			TaskID:             t.ID,
			TaskNumber:         t.TaskNumber,
			Status:             t.Status,
			Zone:               t.Zone,
			PickerID:           t.PickerID,
			ProgressPercentage: t.ProgressPercentage(),
			CompletedItems:     t.CompletedItems,
			TotalItems:         t.TotalItems,
			Items:              make([]ItemProgress, 0, len(rows)),
		}
		for _, r := range rows {
			progress.Items = append(progress.Items, ItemProgress{
				OrderItemID:    r.OrderItemID,
				ProductSKU:     skus[r.OrderItemID],
				Location:       r.Location,
				QuantityToPick: r.QuantityToPick,
				QuantityPicked: r.QuantityPicked,
				IsCompleted:    r.IsCompleted,
			})
		}
		out.Tasks = append(out.Tasks, progress)
	}
	return out, nil
}
