package packing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/entity"
	packingrepo "github.com/Additional-Code/fulfillment/internal/repository/packing"
)

// PackageLine is one product inside a package.
type PackageLine struct {
	ProductSKU string          `json:"product_sku"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// PackageSummary reports one package.
type PackageSummary struct {
	PackageID     uuid.UUID          `json:"package_id"`
	PackageNumber string             `json:"package_number"`
	PackageType   entity.PackageType `json:"package_type"`
	GrossWeight   decimal.Decimal    `json:"gross_weight"`
	IsSealed      bool               `json:"is_sealed"`
	Items         []PackageLine      `json:"items"`
}

// TaskSummary reports one packing task and its packages.
type TaskSummary struct {
	TaskID             uuid.UUID         `json:"task_id"`
	TaskNumber         string            `json:"task_number"`
	Status             entity.TaskStatus `json:"status"`
	PackerID           uuid.NullUUID     `json:"packer_id"`
	ProgressPercentage float64           `json:"progress_percentage"`
	Packages           []PackageSummary  `json:"packages"`
}

// Summary reports the packing progress of an order.
type Summary struct {
	OrderID        uuid.UUID     `json:"order_id"`
	TotalTasks     int           `json:"total_tasks"`
	CompletedTasks int           `json:"completed_tasks"`
	Tasks          []TaskSummary `json:"tasks"`
}

// GetPackingSummary reports the packing tasks of an order with their packages.
func (s *Service) GetPackingSummary(ctx context.Context, orderID uuid.UUID) (*Summary, error) {
	ctx, span := serviceTracer.Start(ctx, "PackingService.GetPackingSummary", trace.WithAttributes(attribute.String("order.id", orderID.String())))
	defer span.End()

	db := s.db.Reader
	if _, err := s.orders.Load(ctx, db, orderID, false); err != nil {
		return nil, s.fail(span, err, "failed to load order")
	}
	tasks, err := s.repo.ListTasksByOrder(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list packing tasks")
	}
	items, err := s.items.Items(ctx, db, orderID)
	if err != nil {
		return nil, s.fail(span, err, "failed to list order items")
	}
	skus := make(map[uuid.UUID]string, len(items))
	for _, it := range items {
		skus[it.ID] = it.ProductSKU
	}

	out := &Summary{OrderID: orderID, TotalTasks: len(tasks), Tasks: make([]TaskSummary, 0, len(tasks))}
	for i := range tasks {
		t := &tasks[i]
		if t.Status == entity.TaskCompleted {
			out.CompletedTasks++
		}
		pkgs, err := s.repo.ListPackages(ctx, db, packingrepo.PackageFilter{PackingTaskID: t.ID})
		if err != nil {
			return nil, s.fail(span, err, "failed to list packages")
		}
		ids := make([]uuid.UUID, len(pkgs))
		for j := range pkgs {
			ids[j] = pkgs[j].ID
		}
		contents, err := s.repo.Items(ctx, db, ids...)
		if err != nil {
			return nil, s.fail(span, err, "failed to list package items")
		}
		lines := make(map[uuid.UUID][]PackageLine, len(pkgs))
		for _, c := range contents {
			lines[c.PackageID] = append(lines[c.PackageID], PackageLine{ProductSKU: skus[c.OrderItemID], Quantity: c.Quantity})
		}

		ts := TaskSummary{
			TaskID:             t.ID,
			TaskNumber:         t.TaskNumber,
			Status:             t.Status,
			PackerID:           t.PackerID,
			ProgressPercentage: t.ProgressPercentage(),
			Packages:           make([]PackageSummary, 0, len(pkgs)),
		}
		for _, p := range pkgs {
			ts.Packages = append(ts.Packages, PackageSummary{
				PackageID:     p.ID,
				PackageNumber: p.PackageNumber,
				PackageType:   p.PackageType,
				GrossWeight:   p.GrossWeight,
				IsSealed:      p.IsSealed,
				Items:         append([]PackageLine{}, lines[p.ID]...),
			})
		}
		out.Tasks = append(out.Tasks, ts)
	}
	return out, nil
}
