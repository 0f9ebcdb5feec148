// Package route holds the request plumbing shared by the HTTP handlers.
package route

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/fulfillment/internal/presentation/http/request"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/response"
)

// Target names the path parameter a route acts on and the span it records.
type Target struct {
	Tracer trace.Tracer
	Span   string
	Attr   string
	Param  string
}

// CommandFunc performs a mutation on behalf of actor.
type CommandFunc func(ctx context.Context, id, actor uuid.UUID) (any, error)

// QueryFunc reads data for id.
type QueryFunc func(ctx context.Context, id uuid.UUID) (any, error)

func (t Target) start(c echo.Context, id uuid.UUID) (context.Context, trace.Span) {
	return t.Tracer.Start(c.Request().Context(), t.Span, trace.WithAttributes(attribute.String(t.Attr, id.String())))
}

func (t Target) param() string {
	if t.Param == "" {
		return "id"
	}
	return t.Param
}

// Command parses the path id and the acting user, runs fn and answers with
// status on success.
func Command(c echo.Context, t Target, status int, fn CommandFunc) error {
	b := response.New(c)

	id, err := request.ID(c, t.param())
	if err != nil {
		return b.WithError(err).Build()
	}
	actor, err := request.Actor(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := t.start(c, id)
	defer span.End()
	span.SetAttributes(attribute.String("user.id", actor.String()))

	data, err := fn(ctx, id, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "command failed")
		return b.WithError(err).Build()
	}
	return b.WithStatus(status).WithData(data).Build()
}

// Query parses the path id, runs fn and answers 200 with its result.
func Query(c echo.Context, t Target, fn QueryFunc) error {
	b := response.New(c)

	id, err := request.ID(c, t.param())
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := t.start(c, id)
	defer span.End()

	data, err := fn(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusOK).WithData(data).Build()
}
