package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/classpilot-io/AI-grading/internal/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func sessionApp(guard fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/", guard, func(c *fiber.Ctx) error {
		session := middleware.CurrentSession(c)
		return c.JSON(fiber.Map{"id": session.UserID.String(), "role": session.Role, "auth": session.Authenticated()})
	})
	return app
}

func TestJWTProtectedBindsSession(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, jwt.MapClaims{"sub": userID.String(), "role": "Teacher", "exp": time.Now().Add(time.Hour).Unix()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := sessionApp(middleware.JWTProtected(testSecret)).Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		ID   string `json:"id"`
		Role string `json:"role"`
		Auth bool   `json:"auth"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, userID.String(), body.ID)
	require.Equal(t, "teacher", body.Role)
	require.True(t, body.Auth)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	app := sessionApp(middleware.JWTProtected(testSecret))
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uuid.NewString()}).SignedString([]byte("other"))
	require.NoError(t, err)

	cases := map[string]string{
		"missing":    "",
		"not bearer": "Basic abc",
		"garbage":    "Bearer nope",
		"numeric id": "Bearer " + signToken(t, jwt.MapClaims{"sub": float64(12)}),
		"wrong key":  "Bearer " + foreign,
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestJWTOptionalAllowsAnonymous(t *testing.T) {
	app := sessionApp(middleware.JWTOptional(testSecret))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Auth bool `json:"auth"`
	}
	decodeBody(t, resp, &body)
	require.False(t, body.Auth)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
