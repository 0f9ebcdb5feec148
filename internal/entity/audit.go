package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditLog is an append-only record of a change to a workflow entity.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:au"`

	ID           uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	EntityType   string         `bun:"entity_type,notnull" json:"entity_type"`
	EntityID     uuid.UUID      `bun:"entity_id,type:uuid,notnull" json:"entity_id"`
	Action       string         `bun:"action,notnull" json:"action"`
	UserID       uuid.NullUUID  `bun:"user_id,type:uuid" json:"user_id"`
	OldValues    map[string]any `bun:"old_values" json:"old_values,omitempty"`
	NewValues    map[string]any `bun:"new_values" json:"new_values,omitempty"`
	FieldChanges map[string]any `bun:"field_changes" json:"field_changes,omitempty"`
	Notes        string         `bun:"notes,notnull" json:"notes"`
	Metadata     map[string]any `bun:"metadata" json:"metadata,omitempty"`
	Timestamp    time.Time      `bun:"timestamp,notnull" json:"timestamp"`
}
