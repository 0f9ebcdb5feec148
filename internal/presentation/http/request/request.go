// Package request binds and validates inbound HTTP payloads.
package request

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

// HeaderUserID carries the acting user of a request.
const HeaderUserID = "X-User-ID"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Bind decodes the body into v and validates its `validate` tags.
func Bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return Validate(v)
}

// Validate checks v against its `validate` tags. Field failures are reported
// as details keyed by JSON field name.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errorbank.Validation("invalid payload", errorbank.WithCause(err))
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return errorbank.Validation("payload failed validation", errorbank.WithDetails(details))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Actor reads the acting user from the X-User-ID header.
func Actor(c echo.Context) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
	if raw == "" {
		return uuid.Nil, errorbank.BadRequest(HeaderUserID + " header is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errorbank.BadRequest(HeaderUserID+" header must be a UUID", errorbank.WithCause(err))
	}
	return id, nil
}

// ID parses the named path parameter as a UUID.
func ID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errorbank.BadRequest("invalid "+name, errorbank.WithCause(err), errorbank.WithDetail("param", name))
	}
	return id, nil
}
