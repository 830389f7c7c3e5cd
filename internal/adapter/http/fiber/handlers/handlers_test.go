package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/adapter/alexa"
	"github.com/seu-repo/asistente-gemini/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/mocks"
	"github.com/seu-repo/asistente-gemini/internal/service/voice"
	"github.com/seu-repo/asistente-gemini/pkg/config"
)

func newVoiceApp(provider *mocks.MockAnswerProvider, verifier *alexa.Verifier) (*fiber.App, *mocks.MockSessionStore) {
	log := zap.NewNop()
	store := mocks.NewMockSessionStore()
	assistant := voice.NewVoiceAssistant(voice.NewRouter(provider, log), store, nil, log)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	NewVoiceHandler(assistant, verifier, log).RegisterRoutes(app)
	return app, store
}

func envelope(sessionID, requestType, intent string, attrs string) string {
	intentJSON := ""
	if intent != "" {
		intentJSON = fmt.Sprintf(`,"intent":{"name":%q,"slots":{}}`, intent)
	}
	if attrs == "" {
		attrs = "{}"
	}
	return fmt.Sprintf(`{"version":"1.0",
	  "session":{"new":false,"sessionId":%q,"application":{"applicationId":"amzn1.ask.skill.test"},"attributes":%s},
	  "request":{"type":%q,"requestId":"r1","timestamp":"2026-10-16T10:00:00Z"%s}}`,
		sessionID, attrs, requestType, intentJSON)
}

func post(t *testing.T, app *fiber.App, body string) (int, alexa.ResponseEnvelope) {
	t.Helper()
	req := httptest.NewRequest("POST", "/alexa", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var out alexa.ResponseEnvelope
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == fiber.StatusOK {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestHandleAlexa_LaunchThenQuestion(t *testing.T) {
	provider := &mocks.MockAnswerProvider{}
	app, store := newVoiceApp(provider, nil)

	status, out := post(t, app, envelope("s1", "LaunchRequest", "", ""))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "1.0", out.Version)
	assert.Equal(t, voice.DefaultMessages().Greeting, out.Response.OutputSpeech.Text)
	require.NotNil(t, out.Response.Reprompt)
	assert.Equal(t, true, out.SessionAttributes[alexa.AttrAssistantMode])

	stored, ok := store.Get("s1")
	require.True(t, ok)
	assert.True(t, stored.AssistantMode)

	status, out = post(t, app, envelope("s1", "IntentRequest", "GetWeatherIntent", ""))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "respuesta: GetWeatherIntent", out.Response.OutputSpeech.Text)
	assert.Equal(t, []string{"GetWeatherIntent"}, provider.Prompts())
}

func TestHandleAlexa_ModeFromSessionAttributes(t *testing.T) {
	provider := &mocks.MockAnswerProvider{}
	app, _ := newVoiceApp(provider, nil)

	_, out := post(t, app, envelope("s2", "IntentRequest", "GetWeatherIntent", `{"assistantMode":false}`))
	assert.Equal(t, voice.DefaultMessages().Fallback, out.Response.OutputSpeech.Text)
	assert.Empty(t, provider.Prompts())
}

func TestHandleAlexa_SessionEnded(t *testing.T) {
	app, _ := newVoiceApp(&mocks.MockAnswerProvider{}, nil)

	status, out := post(t, app, envelope("s3", "SessionEndedRequest", "", ""))
	require.Equal(t, fiber.StatusOK, status)
	assert.Nil(t, out.Response.OutputSpeech)
	assert.Nil(t, out.Response.Reprompt)
}

func TestHandleAlexa_ProviderFailureStill200(t *testing.T) {
	provider := &mocks.MockAnswerProvider{
		AskFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", fmt.Errorf("%w: status 503", domain.ErrAnswerProvider)
		},
	}
	app, _ := newVoiceApp(provider, nil)

	status, out := post(t, app, envelope("s4", "IntentRequest", "GetWeatherIntent", `{"assistantMode":true}`))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, voice.DefaultMessages().ProviderApology, out.Response.OutputSpeech.Text)
}

func TestHandleAlexa_NotRateLimited(t *testing.T) {
	log := zap.NewNop()
	provider := &mocks.MockAnswerProvider{}
	assistant := voice.NewVoiceAssistant(voice.NewRouter(provider, log), mocks.NewMockSessionStore(), nil, log)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	app.Use(middleware.RateLimit(config.RateLimitingConfig{Enabled: true, MaxRequests: 120, Window: time.Minute}, VoicePath))
	NewVoiceHandler(assistant, nil, log).RegisterRoutes(app)
	app.Get("/api/v1/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	for i := 0; i < 121; i++ {
		status, out := post(t, app, envelope(fmt.Sprintf("s%d", i), "LaunchRequest", "", ""))
		require.Equal(t, fiber.StatusOK, status, "request %d", i+1)
		require.Equal(t, voice.DefaultMessages().Greeting, out.Response.OutputSpeech.Text)
	}

	// Other routes keep their per-IP budget.
	for i := 0; i < 120; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/ping", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestHandleAlexa_BadBody(t *testing.T) {
	app, _ := newVoiceApp(&mocks.MockAnswerProvider{}, nil)

	status, _ := post(t, app, `{"not":"alexa"`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestHandleAlexa_Verification(t *testing.T) {
	verifier := alexa.NewVerifier(alexa.VerifierConfig{ApplicationIDs: []string{"amzn1.ask.skill.other"}}, nil, zap.NewNop())
	app, _ := newVoiceApp(&mocks.MockAnswerProvider{}, verifier)

	status, _ := post(t, app, envelope("s5", "LaunchRequest", "", ""))
	assert.Equal(t, fiber.StatusUnauthorized, status)

	verifier = alexa.NewVerifier(alexa.VerifierConfig{VerifySignature: true}, nil, zap.NewNop())
	app, _ = newVoiceApp(&mocks.MockAnswerProvider{}, verifier)

	status, _ = post(t, app, envelope("s5", "LaunchRequest", "", ""))
	assert.Equal(t, fiber.StatusBadRequest, status, "unsigned request")
}

func newAdminApp(provider *mocks.MockAnswerProvider) (*fiber.App, *circuitbreaker.Manager) {
	log := zap.NewNop()
	breakers := circuitbreaker.NewManager(log)
	breakers.Get(circuitbreaker.DefaultSettings("gemini"))

	app := fiber.New()
	api := app.Group("/api/v1", middleware.APIKeyRequired("k"))
	NewAdminHandler(provider, voice.NewNormalizer(voice.DefaultInvocationPhrases, voice.DefaultConnectives), breakers, log).RegisterRoutes(api)
	return app, breakers
}

func TestAdminAsk(t *testing.T) {
	provider := &mocks.MockAnswerProvider{}
	app, _ := newAdminApp(provider)

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(`{"question":"pregúntale a gemini quién es Albert Einstein"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer k")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out AskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "quién es Albert Einstein", out.Question)
	assert.Equal(t, "respuesta: quién es Albert Einstein", out.Answer)
}

func TestAdminAsk_Errors(t *testing.T) {
	provider := &mocks.MockAnswerProvider{
		AskFunc: func(ctx context.Context, prompt string) (string, error) {
			return "", fmt.Errorf("%w: %w", domain.ErrAnswerProvider, errors.New("quota"))
		},
	}
	app, _ := newAdminApp(provider)

	tests := []struct {
		name string
		body string
		auth string
		want int
	}{
		{"unauthorized", `{"question":"hola"}`, "", fiber.StatusUnauthorized},
		{"empty question", `{"question":"ask the assistant"}`, "Bearer k", fiber.StatusBadRequest},
		{"invalid body", `{`, "Bearer k", fiber.StatusBadRequest},
		{"provider failure", `{"question":"hola"}`, "Bearer k", fiber.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAdminBreakers(t *testing.T) {
	app, _ := newAdminApp(&mocks.MockAnswerProvider{})

	req := httptest.NewRequest("GET", "/api/v1/breakers", nil)
	req.Header.Set("X-API-Key", "k")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Breakers []circuitbreaker.BreakerStatus `json:"breakers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Breakers, 1)
	assert.Equal(t, "gemini", out.Breakers[0].Name)
	assert.Equal(t, "closed", out.Breakers[0].State)
}

func TestAdminHistory(t *testing.T) {
	log := zap.NewNop()
	history := mocks.NewMockInteractionRepository()
	now := time.Now().UTC()
	ctx := context.Background()
	require.NoError(t, history.Save(ctx, &domain.InteractionEvent{ID: "e1", SessionID: "s1", Timestamp: now.Add(-2 * time.Minute)}))
	require.NoError(t, history.Save(ctx, &domain.InteractionEvent{ID: "e2", SessionID: "s1", Question: "hola", Answered: true, Timestamp: now.Add(-time.Minute)}))
	require.NoError(t, history.Save(ctx, &domain.InteractionEvent{ID: "e3", SessionID: "s2", Question: "hola", ProviderFailed: true, Timestamp: now}))

	app := fiber.New()
	api := app.Group("/api/v1", middleware.APIKeyRequired("k"))
	NewAdminHandler(&mocks.MockAnswerProvider{}, voice.NewNormalizer(nil, nil), circuitbreaker.NewManager(log), log).
		WithHistory(history).
		RegisterRoutes(api)

	get := func(path string) (int, []byte) {
		req := httptest.NewRequest("GET", path, nil)
		req.Header.Set("X-API-Key", "k")
		resp, err := app.Test(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body
	}

	t.Run("Session", func(t *testing.T) {
		status, body := get("/api/v1/sessions/s1/interactions")
		require.Equal(t, fiber.StatusOK, status)
		var out struct {
			SessionID    string                    `json:"session_id"`
			Interactions []domain.InteractionEvent `json:"interactions"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, "s1", out.SessionID)
		require.Len(t, out.Interactions, 2)
		assert.Equal(t, "e1", out.Interactions[0].ID)
	})

	t.Run("Recent", func(t *testing.T) {
		status, body := get("/api/v1/interactions?limit=1")
		require.Equal(t, fiber.StatusOK, status)
		var out struct {
			Interactions []domain.InteractionEvent `json:"interactions"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		require.Len(t, out.Interactions, 1)
		assert.Equal(t, "e3", out.Interactions[0].ID)
	})

	t.Run("Stats", func(t *testing.T) {
		status, body := get("/api/v1/stats?window=1h")
		require.Equal(t, fiber.StatusOK, status)
		var out struct {
			Stats       domain.InteractionStats `json:"stats"`
			SuccessRate float64                 `json:"success_rate"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, int64(3), out.Stats.Total)
		assert.Equal(t, int64(2), out.Stats.Sessions)
		assert.InDelta(t, 0.5, out.SuccessRate, 0.001)

		status, _ = get("/api/v1/stats?window=yesterday")
		assert.Equal(t, fiber.StatusBadRequest, status)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		history.Err = errors.New("db down")
		defer func() { history.Err = nil }()
		status, _ := get("/api/v1/interactions")
		assert.Equal(t, fiber.StatusInternalServerError, status)
	})
}

func TestAdminHistory_DisabledWithoutRepository(t *testing.T) {
	app, _ := newAdminApp(&mocks.MockAnswerProvider{})

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	req.Header.Set("X-API-Key", "k")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
