// Package audit writes the append-only change log of workflow entities.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

var auditTracer = otel.Tracer("github.com/Additional-Code/fulfillment/audit")

const (
	ActionCreated             = "created"
	ActionUpdated             = "updated"
	ActionStatusChanged       = "status_changed"
	ActionAllocationsReleased = "allocations_released"
	ActionPickerAssigned      = "picker_assigned"
	ActionQuantitiesUpdated   = "quantities_updated"
	ActionPackerAssigned      = "packer_assigned"
	ActionPackageCreated      = "package_created"
	ActionItemAdded           = "item_added"
	ActionPackageSealed       = "package_sealed"
	ActionTrackingAssigned    = "tracking_assigned"
	ActionManifestGenerated   = "manifest_generated"
)

// Module provides the audit recorder to Fx.
var Module = fx.Provide(NewRecorder)

// Entry describes one change to record.
type Entry struct {
	EntityType   string
	EntityID     uuid.UUID
	Action       string
	Actor        uuid.UUID
	OldValues    map[string]any
	NewValues    map[string]any
	FieldChanges map[string]any
	Notes        string
	Metadata     map[string]any
}

// Recorder inserts audit rows inside the caller's transaction.
type Recorder struct {
	now func() time.Time
}

// NewRecorder builds a Recorder stamping entries with the current UTC time.
func NewRecorder() *Recorder {
	return &Recorder{now: func() time.Time { return time.Now().UTC() }}
}

// Record appends one audit row.
func (r *Recorder) Record(ctx context.Context, db bun.IDB, e Entry) (*entity.AuditLog, error) {
	ctx, span := auditTracer.Start(ctx, "AuditRecorder.Record", trace.WithAttributes(
		attribute.String("audit.entity_type", e.EntityType),
		attribute.String("audit.entity_id", e.EntityID.String()),
		attribute.String("audit.action", e.Action),
	))
	defer span.End()

	row := &entity.AuditLog{
		ID:           uuid.New(),
		EntityType:   e.EntityType,
		EntityID:     e.EntityID,
		Action:       e.Action,
		UserID:       entity.NullID(e.Actor),
		OldValues:    e.OldValues,
		NewValues:    e.NewValues,
		FieldChanges: e.FieldChanges,
		Notes:        e.Notes,
		Metadata:     e.Metadata,
		Timestamp:    r.now(),
	}
	if _, err := db.NewInsert().Model(row).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, err
	}
	return row, nil
}

// StatusChanged records a status transition with matching old/new/field_changes maps.
func (r *Recorder) StatusChanged(ctx context.Context, db bun.IDB, entityType string, id, actor uuid.UUID, from, to, notes string) error {
	_, err := r.Record(ctx, db, Entry{
		EntityType:   entityType,
		EntityID:     id,
		Action:       ActionStatusChanged,
		Actor:        actor,
		OldValues:    map[string]any{"status": from},
		NewValues:    map[string]any{"status": to},
		FieldChanges: map[string]any{"status": map[string]any{"old": from, "new": to}},
		Notes:        notes,
	})
	return err
}

// History lists the audit rows of one entity, oldest first.
func (r *Recorder) History(ctx context.Context, db bun.IDB, entityType string, id uuid.UUID) ([]entity.AuditLog, error) {
	ctx, span := auditTracer.Start(ctx, "AuditRecorder.History", trace.WithAttributes(
		attribute.String("audit.entity_type", entityType),
		attribute.String("audit.entity_id", id.String()),
	))
	defer span.End()

	var rows []entity.AuditLog
	err := db.NewSelect().Model(&rows).
		Where("entity_type = ?", entityType).
		Where("entity_id = ?", id).
		Order("timestamp ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

// Changes builds old/new/field_changes maps for the fields whose values differ.
func Changes(old, new map[string]any) (oldValues, newValues, fieldChanges map[string]any) {
	oldValues = make(map[string]any)
	newValues = make(map[string]any)
	fieldChanges = make(map[string]any)
	for k, nv := range new {
		ov := old[k]
		oldValues[k] = ov
		newValues[k] = nv
		fieldChanges[k] = map[string]any{"old": ov, "new": nv}
	}
	return oldValues, newValues, fieldChanges
}
