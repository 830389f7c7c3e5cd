package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/pkg/config"
)

func ok(c *fiber.Ctx) error { return c.SendString("ok") }

func TestAPIKeyRequired(t *testing.T) {
	app := fiber.New()
	app.Get("/", APIKeyRequired("s3cret"), ok)

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, fiber.StatusUnauthorized},
		{"bad format", map[string]string{"Authorization": "Token s3cret"}, fiber.StatusUnauthorized},
		{"wrong key", map[string]string{"Authorization": "Bearer nope"}, fiber.StatusUnauthorized},
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, fiber.StatusOK},
		{"lowercase bearer", map[string]string{"Authorization": "bearer s3cret"}, fiber.StatusOK},
		{"x-api-key", map[string]string{"X-API-Key": "s3cret"}, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAPIKeyRequired_EmptyKeyRejectsAll(t *testing.T) {
	app := fiber.New()
	app.Get("/", APIKeyRequired(""), ok)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCircuitBreaker_OpensOnServerErrors(t *testing.T) {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "admin",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/fail", CircuitBreaker(cb), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream"})
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestCircuitBreaker_ClientErrorsDoNotCount(t *testing.T) {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "admin"})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/bad", CircuitBreaker(cb), func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusBadRequest).SendString("bad")
	})

	for i := 0; i < 10; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/bad", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	}
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestRateLimit(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(config.RateLimitingConfig{Enabled: true, MaxRequests: 2, Window: time.Minute}))
	app.Get("/", ok)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimit_ExemptPath(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(config.RateLimitingConfig{Enabled: true, MaxRequests: 1, Window: time.Minute}, "/hook"))
	app.Get("/hook", ok)
	app.Get("/", ok)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/hook", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimit_Disabled(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(config.RateLimitingConfig{MaxRequests: 1}))
	app.Get("/", ok)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/internal", func(c *fiber.Ctx) error { return errors.New("db password leaked") })
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "cuerpo inválido") })

	resp, err := app.Test(httptest.NewRequest("GET", "/internal", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Error interno del servidor"}`, string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/bad", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"cuerpo inválido"}`, string(body))
}

func TestNewCORS(t *testing.T) {
	app := fiber.New()
	app.Use(NewCORS(config.CORSConfig{AllowedOrigins: []string{"https://monitor.example.com"}}))
	app.Get("/", ok)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://monitor.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "https://monitor.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewCORS_SkipsWebhook(t *testing.T) {
	app := fiber.New()
	app.Use(NewCORS(config.CORSConfig{}, "/alexa"))
	app.Post("/alexa", ok)
	app.Get("/api/v1/dashboard", ok)

	req := httptest.NewRequest("POST", "/alexa", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/api/v1/dashboard", nil)
	req.Header.Set("Origin", "https://monitor.example.com")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Expose-Headers"), "Content-Disposition")
}
