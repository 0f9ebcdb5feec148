// Package event publishes workflow status changes once they are committed.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/fulfillment/internal/config"
	"github.com/Additional-Code/fulfillment/internal/messaging"
)

// TypeStatusChanged is the event_type header of status change messages.
const TypeStatusChanged = "status_changed"

// StatusChanged is emitted after a committed status transition.
type StatusChanged struct {
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	OrderID    uuid.UUID `json:"order_id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Actor      uuid.UUID `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key is the partition key: entity type and id.
func (e StatusChanged) Key() string {
	return fmt.Sprintf("%s-%s", e.EntityType, e.EntityID)
}

// Decode parses a status change message payload.
func Decode(payload []byte) (StatusChanged, error) {
	var e StatusChanged
	err := json.Unmarshal(payload, &e)
	return e, err
}

// Publisher sends status changes to the bus and counts them.
// A nil Publisher drops everything.
type Publisher struct {
	client      messaging.Client
	enabled     bool
	logger      *zap.Logger
	transitions metric.Int64Counter
}

// Params defines dependencies for the fx-built publisher.
type Params struct {
	fx.In

	Client messaging.Client
	Config config.Config
	Logger *zap.Logger
}

// Module provides the Publisher to Fx.
var Module = fx.Provide(NewPublisher)

// NewPublisher builds a Publisher on the global meter provider.
func NewPublisher(p Params) (*Publisher, error) {
	return New(p.Client, p.Config.Messaging.Enabled, p.Logger, otel.Meter("github.com/Additional-Code/fulfillment/event"))
}

// New builds a Publisher recording transitions on meter.
func New(client messaging.Client, enabled bool, logger *zap.Logger, meter metric.Meter) (*Publisher, error) {
	counter, err := meter.Int64Counter("fulfillment.status_transitions",
		metric.WithDescription("Committed workflow status transitions"),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, enabled: enabled, logger: logger, transitions: counter}, nil
}

// Publish emits each event in order. Failures are logged and never returned.
func (p *Publisher) Publish(ctx context.Context, events ...StatusChanged) {
	if p == nil {
		return
	}
	for _, e := range events {
		p.publish(ctx, e)
	}
}

func (p *Publisher) publish(ctx context.Context, e StatusChanged) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	p.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", e.EntityType),
		attribute.String("to_status", e.To),
	))

	if !p.enabled || p.client == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("marshal status change", zap.Error(err))
		}
		return
	}
	headers := map[string]string{messaging.HeaderEventType: TypeStatusChanged}
	if err := p.client.Publish(ctx, []byte(e.Key()), payload, headers); err != nil {
		if p.logger != nil {
			p.logger.Error("publish status change",
				zap.String("entity_type", e.EntityType),
				zap.String("entity_id", e.EntityID.String()),
				zap.Error(err),
			)
		}
	}
}
