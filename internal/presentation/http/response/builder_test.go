package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/presentation/http/response"
	"github.com/Additional-Code/fulfillment/pkg/errorbank"
)

type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Meta    map[string]any `json:"meta"`
	Error   struct {
		Kind    string         `json:"kind"`
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func render(t *testing.T, requestID string, build func(*response.Builder) error) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if requestID != "" {
		req.Header.Set(echo.HeaderXRequestID, requestID)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, build(response.New(c)))

	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestBuilder(t *testing.T) {
	t.Run("should wrap data with the request id", func(t *testing.T) {
		status, body := render(t, "req-1", func(b *response.Builder) error {
			return b.WithStatus(http.StatusCreated).WithData(map[string]string{"id": "o-1"}).Build()
		})

		assert.Equal(t, http.StatusCreated, status)
		assert.True(t, body.Success)
		assert.Equal(t, "o-1", body.Data["id"])
		assert.Equal(t, "req-1", body.Meta["request_id"])
	})

	t.Run("should omit meta when nothing is attached", func(t *testing.T) {
		_, body := render(t, "", func(b *response.Builder) error {
			return b.WithData(map[string]string{}).Build()
		})

		assert.Nil(t, body.Meta)
	})

	t.Run("should map errors to their kind and status", func(t *testing.T) {
		status, body := render(t, "", func(b *response.Builder) error {
			return b.WithError(errorbank.NotFound("order not found")).Build()
		})

		assert.Equal(t, http.StatusNotFound, status)
		assert.False(t, body.Success)
		assert.Equal(t, "not_found", body.Error.Kind)
		assert.Equal(t, "order not found", body.Error.Message)
	})

	t.Run("should keep an explicit error status", func(t *testing.T) {
		status, _ := render(t, "", func(b *response.Builder) error {
			return b.WithStatus(http.StatusServiceUnavailable).WithError(errorbank.Internal("down")).Build()
		})

		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("should render router errors in the same envelope", func(t *testing.T) {
		status, body := render(t, "", func(b *response.Builder) error {
			return b.WithError(echo.ErrNotFound).Build()
		})

		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", body.Error.Kind)
		assert.Equal(t, "Not Found", body.Error.Message)

		status, body = render(t, "", func(b *response.Builder) error {
			return b.WithError(echo.NewHTTPError(http.StatusRequestEntityTooLarge)).Build()
		})
		assert.Equal(t, http.StatusRequestEntityTooLarge, status)
		assert.Equal(t, "bad_request", body.Error.Kind)
	})
}
