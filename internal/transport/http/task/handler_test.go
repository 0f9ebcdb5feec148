package task_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/fulfillment/internal/entity"
	"github.com/Additional-Code/fulfillment/internal/presentation/http/request"
	"github.com/Additional-Code/fulfillment/internal/service/servicetest"
	"github.com/Additional-Code/fulfillment/internal/transport/http/task"
)

type envelope struct {
	Data  map[string]any `json:"data"`
	Error struct {
		Kind string `json:"kind"`
		Code string `json:"code"`
	} `json:"error"`
}

func post(t *testing.T, e *echo.Echo, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(request.HeaderUserID, servicetest.Actor.String())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func setup(t *testing.T) (*echo.Echo, *servicetest.Env) {
	env := servicetest.New(t)
	e := echo.New()
	task.Register(e, task.NewHandler(env.Picking, env.Packing))
	return e, env
}

func TestPickingRoutes(t *testing.T) {
	e, env := setup(t)
	order := env.ApprovedOrder(t, servicetest.Item("PROD-001", 2, "10.00"))
	_, err := env.Allocation.Allocate(t.Context(), order.ID, servicetest.Actor)
	require.NoError(t, err)
	generated, err := env.Picking.GeneratePickingTasks(t.Context(), order.ID, servicetest.Actor)
	require.NoError(t, err)
	require.Len(t, generated.TaskDetails, 1)
	base := "/picking-tasks/" + generated.TaskDetails[0].TaskID.String()
	item := env.Items(t, order.ID)[0]

	t.Run("should refuse to complete a task that has not started", func(t *testing.T) {
		status, res := post(t, e, base+"/complete", "")
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "invalid_status", res.Error.Kind)
	})

	t.Run("should assign a picker exactly once", func(t *testing.T) {
		status, _ := post(t, e, base+"/assign", `{}`)
		assert.Equal(t, http.StatusBadRequest, status)

		body := fmt.Sprintf(`{"worker_id":%q}`, uuid.NewString())
		status, res := post(t, e, base+"/assign", body)
		require.Equal(t, http.StatusOK, status)
		assert.NotNil(t, res.Data["picker_id"])

		status, res = post(t, e, base+"/assign", body)
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "business", res.Error.Kind)
	})

	t.Run("should record picks and complete the task", func(t *testing.T) {
		body := fmt.Sprintf(`{"updates":[{"order_item_id":%q,"quantity_picked":"2"}]}`, item.ID)
		status, res := post(t, e, base+"/picks", body)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, res.Data["success"])
		assert.EqualValues(t, 1, res.Data["completed_items"])

		status, res = post(t, e, base+"/complete", "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, string(entity.TaskCompleted), res.Data["status"])
	})
}

func TestPackingRoutes(t *testing.T) {
	e, env := setup(t)
	order := env.PickedOrder(t, servicetest.Item("PROD-002", 3, "2.50"))
	packing, err := env.Packing.CreatePackingTask(t.Context(), order.ID, servicetest.Actor)
	require.NoError(t, err)
	item := env.Items(t, order.ID)[0]

	status, res := post(t, e, "/packing-tasks/"+packing.ID.String()+"/packages",
		`{"package_type":"BOX","empty_weight":"0.25"}`)
	require.Equal(t, http.StatusCreated, status)
	pkgID, _ := res.Data["id"].(string)
	require.NotEmpty(t, pkgID)

	t.Run("should reject an unknown package type", func(t *testing.T) {
		status, _ := post(t, e, "/packing-tasks/"+packing.ID.String()+"/packages", `{"package_type":"CRATE"}`)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("should pack, seal and complete", func(t *testing.T) {
		status, _ := post(t, e, "/packages/"+pkgID+"/items",
			fmt.Sprintf(`{"order_item_id":%q,"quantity":"3"}`, item.ID))
		require.Equal(t, http.StatusCreated, status)

		status, _ = post(t, e, "/packages/"+pkgID+"/finalize", "")
		require.Equal(t, http.StatusOK, status)

		status, res := post(t, e, "/packing-tasks/"+packing.ID.String()+"/complete", "")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, string(entity.TaskCompleted), res.Data["status"])
		assert.Equal(t, entity.OrderPacking, env.Reload(t, order.ID).Status)
	})
}
