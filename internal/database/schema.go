package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		(*entity.Order)(nil),
		(*entity.OrderItem)(nil),
		(*entity.Allocation)(nil),
		(*entity.PickingTask)(nil),
		(*entity.PickingItem)(nil),
		(*entity.PackingTask)(nil),
		(*entity.Package)(nil),
		(*entity.PackageItem)(nil),
		(*entity.Shipment)(nil),
		(*entity.ShipmentItem)(nil),
		(*entity.AuditLog)(nil),
	}
}

// CreateSchema creates a table per model straight from the bun definitions.
// Used for SQLite and MySQL, which the postgres migrations do not target.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range Models() {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}

// DropSchema drops every model table in reverse order.
func DropSchema(ctx context.Context, db bun.IDB) error {
	models := Models()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", models[i], err)
		}
	}
	return nil
}
