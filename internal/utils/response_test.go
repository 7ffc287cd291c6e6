package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/classpilot-io/AI-grading/internal/utils"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func respond(t *testing.T, handler fiber.Handler) (int, envelope) {
	t.Helper()
	app := fiber.New()
	app.Post("/", handler)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestSendSuccessWithStatusAcceptedTask(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		task := map[string]interface{}{
			"taskId":     "task-1",
			"submission": map[string]string{"status": "pending", "studentIdentifier": "s-001"},
		}
		return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission queued for grading", task)
	})

	require.Equal(t, fiber.StatusAccepted, status)
	require.True(t, payload.Success)
	require.Equal(t, "submission queued for grading", payload.Message)
	require.JSONEq(t, `{"taskId":"task-1","submission":{"status":"pending","studentIdentifier":"s-001"}}`, string(payload.Data))
	require.Empty(t, payload.Meta)
	require.Empty(t, payload.Details)
}

func TestSendSuccessWithStatusDefaults(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.SendSuccessWithStatus(c, 0, "", nil)
	})

	require.Equal(t, fiber.StatusOK, status)
	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Empty(t, payload.Data)
}

func TestSendErrorBadGatewayOmitsData(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.SendError(c, fiber.StatusBadGateway, "submission file could not be fetched")
	})

	require.Equal(t, fiber.StatusBadGateway, status)
	require.False(t, payload.Success)
	require.Equal(t, "submission file could not be fetched", payload.Message)
	require.Empty(t, payload.Data)
	require.Empty(t, payload.Details)
}

func TestFailCarriesFieldDetails(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.Fail(c, fiber.StatusBadRequest, "", map[string]string{"answerFile": "required"})
	})

	require.Equal(t, fiber.StatusBadRequest, status)
	require.False(t, payload.Success)
	require.Equal(t, "error", payload.Message)
	require.JSONEq(t, `{"answerFile":"required"}`, string(payload.Details))
}

func TestOKAttachesListingMeta(t *testing.T) {
	status, payload := respond(t, func(c *fiber.Ctx) error {
		return utils.OK(c, []string{"a", "b"}, "", map[string]int{"total": 2})
	})

	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "success", payload.Message)
	require.JSONEq(t, `["a","b"]`, string(payload.Data))
	require.JSONEq(t, `{"total":2}`, string(payload.Meta))
}
