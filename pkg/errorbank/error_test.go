package errorbank_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

func TestAppError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    *errorbank.AppError
		status int
		grpc   codes.Code
	}{
		{"validation", errorbank.Validation("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{"invalid transition", errorbank.InvalidTransition("Order", "CREATED", "SHIPPED"), http.StatusConflict, codes.FailedPrecondition},
		{"invalid status", errorbank.InvalidStatus(errorbank.CodeInvalidOrderStatus, "nope"), http.StatusConflict, codes.FailedPrecondition},
		{"allocation", errorbank.New(errorbank.KindAllocation, "short"), http.StatusConflict, codes.ResourceExhausted},
		{"business", errorbank.Business(errorbank.CodePackageSealed, "sealed"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{"not found", errorbank.NotFound("missing"), http.StatusNotFound, codes.NotFound},
		{"internal", errorbank.Internal("boom"), http.StatusInternalServerError, codes.Internal},
	}

	for _, tt := range tests {
		t.Run("should map "+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode())
			assert.Equal(t, tt.grpc, tt.err.GRPCCode())
		})
	}
}

func TestInvalidTransition_CarriesDetails(t *testing.T) {
	err := errorbank.InvalidTransition("Shipment", "CREATED", "DELIVERED")

	assert.Equal(t, errorbank.KindInvalidTransition, err.Kind())
	assert.Equal(t, errorbank.CodeInvalidTransition, err.Code())
	assert.Equal(t, map[string]any{
		"current_status":   "CREATED",
		"attempted_status": "DELIVERED",
		"entity_type":      "Shipment",
	}, err.Details())
}

func TestFrom_WrapsForeignErrors(t *testing.T) {
	cause := errors.New("db down")

	appErr := errorbank.From(cause)
	require.NotNil(t, appErr)
	assert.Equal(t, errorbank.KindInternal, appErr.Kind())
	assert.ErrorIs(t, appErr, cause)

	wrapped := fmt.Errorf("outer: %w", errorbank.Business(errorbank.CodeNoPackages, "none"))
	assert.True(t, errorbank.IsKind(wrapped, errorbank.KindBusiness))
	assert.True(t, errorbank.HasCode(wrapped, errorbank.CodeNoPackages))
	assert.False(t, errorbank.IsKind(cause, errorbank.KindBusiness))
	assert.Nil(t, errorbank.From(nil))
}
