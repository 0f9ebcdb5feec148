package errorbank

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Kind enumerates supported application error categories.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindConflict            Kind = "conflict"
	KindNotFound            Kind = "not_found"
	KindUnprocessableEntity Kind = "unprocessable_entity"
	KindInternal            Kind = "internal"

	// Fulfillment workflow kinds.
	KindInvalidTransition    Kind = "invalid_transition"
	KindInvalidStatus        Kind = "invalid_status"
	KindAllocation           Kind = "allocation"
	KindInventoryUnavailable Kind = "inventory_unavailable"
	KindValidation           Kind = "validation"
	KindBusiness             Kind = "business"
)

// Stable machine-readable codes attached to domain errors.
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeInvalidTransition       = "INVALID_TRANSITION"
	CodeInventoryUnavailable    = "INVENTORY_UNAVAILABLE"
	CodeAllocationFailed        = "ALLOCATION_FAILED"
	CodeInvalidOrderStatus      = "INVALID_ORDER_STATUS"
	CodeInvalidTaskStatus       = "INVALID_TASK_STATUS"
	CodeOrderAlreadyAllocated   = "ORDER_ALREADY_ALLOCATED"
	CodeOrderNotUpdatable       = "ORDER_NOT_UPDATABLE"
	CodeOrderNotCancellable     = "ORDER_NOT_CANCELLABLE"
	CodeAllocationNotReleasable = "ALLOCATION_NOT_RELEASABLE"
	CodeReservationMismatch     = "RESERVATION_MISMATCH"
	CodePickingTasksExist       = "PICKING_TASKS_EXIST"
	CodePickerAlreadyAssigned   = "PICKER_ALREADY_ASSIGNED"
	CodeIncompletePicking       = "INCOMPLETE_PICKING"
	CodePackingTaskExists       = "PACKING_TASK_EXISTS"
	CodePackerAlreadyAssigned   = "PACKER_ALREADY_ASSIGNED"
	CodePackageSealed           = "PACKAGE_SEALED"
	CodePackageAlreadySealed    = "PACKAGE_ALREADY_SEALED"
	CodeEmptyPackage            = "EMPTY_PACKAGE"
	CodePackageOverweight       = "PACKAGE_OVERWEIGHT"
	CodeIncompletePacking       = "INCOMPLETE_PACKING"
	CodeUnsealedPackages        = "UNSEALED_PACKAGES"
	CodeNoPackages              = "NO_PACKAGES"
	CodeTrackingAlreadyAssigned = "TRACKING_ALREADY_ASSIGNED"
)

// AppError captures rich error context shared across transports.
type AppError struct {
	kind    Kind
	code    string
	message string
	details map[string]any
	cause   error
}

// Option mutates an AppError during construction.
type Option func(*AppError)

// WithCause attaches an underlying error.
func WithCause(err error) Option {
	return func(appErr *AppError) {
		appErr.cause = err
	}
}

// WithCode sets the machine-readable error code.
func WithCode(code string) Option {
	return func(appErr *AppError) {
		appErr.code = code
	}
}

// WithDetail adds a single named detail value.
func WithDetail(key string, value any) Option {
	return func(appErr *AppError) {
		if appErr.details == nil {
			appErr.details = make(map[string]any)
		}
		appErr.details[key] = value
	}
}

// WithDetails merges multiple detail values.
func WithDetails(details map[string]any) Option {
	return func(appErr *AppError) {
		if len(details) == 0 {
			return
		}
		if appErr.details == nil {
			appErr.details = make(map[string]any)
		}
		for k, v := range details {
			appErr.details[k] = v
		}
	}
}

// New constructs a new AppError with the supplied kind and message.
func New(kind Kind, message string, opts ...Option) *AppError {
	if message == "" {
		message = string(kind)
	}
	appErr := &AppError{kind: kind, message: message}
	for _, opt := range opts {
		opt(appErr)
	}
	return appErr
}

// Error satisfies the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the error category.
func (e *AppError) Kind() Kind {
	if e == nil {
		return KindInternal
	}
	return e.kind
}

// Code returns the machine-readable code, empty when none was set.
func (e *AppError) Code() string {
	if e == nil {
		return ""
	}
	return e.code
}

// Message returns the human-readable message.
func (e *AppError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Details returns optional metadata about the error.
func (e *AppError) Details() map[string]any {
	if e == nil {
		return nil
	}
	return e.details
}

// StatusCode resolves the HTTP status for the error kind.
func (e *AppError) StatusCode() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.kind {
	case KindBadRequest, KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindInvalidTransition, KindInvalidStatus, KindAllocation, KindInventoryUnavailable:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnprocessableEntity, KindBusiness:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps the error kind onto a gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if e == nil {
		return codes.Internal
	}
	switch e.kind {
	case KindBadRequest, KindValidation:
		return codes.InvalidArgument
	case KindConflict:
		return codes.AlreadyExists
	case KindNotFound:
		return codes.NotFound
	case KindUnprocessableEntity, KindInvalidTransition, KindInvalidStatus, KindBusiness:
		return codes.FailedPrecondition
	case KindAllocation, KindInventoryUnavailable:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// BadRequest constructs a 400 error.
func BadRequest(message string, opts ...Option) *AppError {
	return New(KindBadRequest, message, opts...)
}

// Conflict constructs a 409 error.
func Conflict(message string, opts ...Option) *AppError {
	return New(KindConflict, message, opts...)
}

// NotFound constructs a 404 error.
func NotFound(message string, opts ...Option) *AppError {
	return New(KindNotFound, message, opts...)
}

// Unprocessable constructs a 422 error.
func Unprocessable(message string, opts ...Option) *AppError {
	return New(KindUnprocessableEntity, message, opts...)
}

// Internal constructs a generic 500 error.
func Internal(message string, opts ...Option) *AppError {
	return New(KindInternal, message, opts...)
}

// Validation reports malformed input.
func Validation(message string, opts ...Option) *AppError {
	return New(KindValidation, message, append([]Option{WithCode(CodeValidation)}, opts...)...)
}

// Business reports a precondition violation identified by code.
func Business(code, message string, opts ...Option) *AppError {
	return New(KindBusiness, message, append([]Option{WithCode(code)}, opts...)...)
}

// InvalidStatus reports an operation attempted while the entity is in the wrong status.
func InvalidStatus(code, message string, opts ...Option) *AppError {
	return New(KindInvalidStatus, message, append([]Option{WithCode(code)}, opts...)...)
}

// InvalidTransition reports a state change outside the allowed transition table.
func InvalidTransition(entityType, current, attempted string) *AppError {
	return New(KindInvalidTransition,
		fmt.Sprintf("invalid %s transition from %s to %s", entityType, current, attempted),
		WithCode(CodeInvalidTransition),
		WithDetail("current_status", current),
		WithDetail("attempted_status", attempted),
		WithDetail("entity_type", entityType),
	)
}

// InventoryUnavailable reports that no location can satisfy a requested quantity.
func InventoryUnavailable(sku, requested, available string) *AppError {
	return New(KindInventoryUnavailable,
		fmt.Sprintf("insufficient inventory for %s: requested %s, available %s", sku, requested, available),
		WithCode(CodeInventoryUnavailable),
		WithDetail("product_sku", sku),
		WithDetail("requested_quantity", requested),
		WithDetail("available_quantity", available),
	)
}

// From returns an AppError for any error input, wrapping unexpected values.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", WithCause(err))
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind() == kind
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code() == code
}

// Wrap passes AppErrors through and turns anything else into an internal
// error carrying message. It returns nil for a nil err.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(message, WithCause(err))
}
