package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/adapter/ai/gemini"
	"github.com/seu-repo/asistente-gemini/internal/adapter/alexa"
	"github.com/seu-repo/asistente-gemini/internal/adapter/cache"
	"github.com/seu-repo/asistente-gemini/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/asistente-gemini/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/asistente-gemini/internal/adapter/session"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/ports"
	"github.com/seu-repo/asistente-gemini/internal/service/health"
	"github.com/seu-repo/asistente-gemini/internal/service/voice"
	"github.com/seu-repo/asistente-gemini/pkg/config"
)

const (
	testSkillID  = "amzn1.ask.skill.integration"
	testAdminKey = "admin-secret"
)

// fakeGemini answers generateContent calls with a canned reply that echoes
// the prompt, or fails with a fixed status when status is set.
type fakeGemini struct {
	mu      sync.Mutex
	prompts []string
	status  int
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contents []struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	status := f.status
	if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
		f.prompts = append(f.prompts, body.Contents[0].Parts[0].Text)
	}
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
		return
	}

	prompt := ""
	if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
		prompt = body.Contents[0].Parts[0].Text
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content": map[string]interface{}{
				"parts": []map[string]string{{"text": "**Respuesta:** " + prompt}},
			},
		}},
	})
}

func (f *fakeGemini) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func (f *fakeGemini) Fail(status int) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

// TestEnv is one running skill wired the way cmd/server wires it.
type TestEnv struct {
	App      *fiber.App
	Gemini   *fakeGemini
	Cache    ports.Cache
	Breakers *circuitbreaker.Manager
	Logger   *zap.Logger
}

// SetupTestEnvironment builds the skill on top of the given session cache.
// A nil cache uses the in-memory one.
func SetupTestEnvironment(t *testing.T, sessionCache ports.Cache) *TestEnv {
	t.Helper()
	logger := zap.NewNop()

	fake := &fakeGemini{}
	geminiServer := httptest.NewServer(fake)
	t.Cleanup(geminiServer.Close)

	if sessionCache == nil {
		local := cache.NewLocalCache(time.Minute, logger)
		t.Cleanup(func() { _ = local.Close() })
		sessionCache = local
	}

	breakers := circuitbreaker.NewManager(logger)
	settings := circuitbreaker.DefaultSettings("gemini")
	settings.MinRequests = 100
	geminiHTTP := circuitbreaker.NewHTTPClient(&http.Client{Timeout: 5 * time.Second}, breakers.Get(settings), logger)

	geminiClient, err := gemini.NewClient(gemini.Config{
		APIKey:  "test-key",
		BaseURL: geminiServer.URL,
		Timeout: 3 * time.Second,
	}, geminiHTTP, logger)
	require.NoError(t, err)

	normalizer := voice.NewNormalizer(voice.DefaultInvocationPhrases, voice.DefaultConnectives)
	router := voice.NewRouter(geminiClient, logger, voice.WithNormalizer(normalizer))
	assistant := voice.NewVoiceAssistant(router, session.NewStore(sessionCache, 30*time.Minute), nil, logger)

	verifier := alexa.NewVerifier(alexa.VerifierConfig{
		ApplicationIDs:     []string{testSkillID},
		TimestampTolerance: 150 * time.Second,
	}, sessionCache, logger)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})
	app.Use(requestid.New())

	health.NewFiberHandler(health.NewService(&health.Config{
		Version:  "test",
		Cache:    sessionCache,
		Breakers: breakers,
	}, logger)).RegisterRoutes(app)

	handlers.NewVoiceHandler(assistant, verifier, logger).RegisterRoutes(app)

	v1 := app.Group("/api/v1", middleware.APIKeyRequired(testAdminKey))
	handlers.NewAdminHandler(geminiClient, normalizer, breakers, logger).RegisterRoutes(v1)

	return &TestEnv{
		App:      app,
		Gemini:   fake,
		Cache:    sessionCache,
		Breakers: breakers,
		Logger:   logger,
	}
}

// SetupRedis returns a Redis session cache, either from REDIS_URL (CI) or
// from a throwaway container.
func SetupRedis(t *testing.T) ports.Cache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	url := os.Getenv("REDIS_URL")
	if url == "" {
		testcontainers.SkipIfProviderIsNotHealthy(t)

		ctx := context.Background()
		container, err := tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("Failed to terminate redis container: %v", err)
			}
		})

		url, err = container.ConnectionString(ctx)
		require.NoError(t, err)
	}

	redisCache, err := cache.NewRedisCache(config.RedisConfig{URL: url}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCache.Close() })
	return redisCache
}

// Conversation plays the Alexa side of one session.
type Conversation struct {
	t          *testing.T
	app        *fiber.App
	sessionID  string
	newSession bool
	attributes map[string]interface{}
	turn       int
}

func NewConversation(t *testing.T, app *fiber.App, sessionID string) *Conversation {
	return &Conversation{t: t, app: app, sessionID: sessionID, newSession: true}
}

// Send posts one request envelope and returns the status and decoded body.
func (c *Conversation) Send(body alexa.RequestBody) (int, alexa.ResponseEnvelope) {
	c.t.Helper()
	c.turn++

	body.RequestID = fmt.Sprintf("%s-req-%d", c.sessionID, c.turn)
	if body.Timestamp == "" {
		body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	body.Locale = "es-ES"

	app := alexa.Application{ApplicationID: testSkillID}
	env := alexa.RequestEnvelope{
		Version: alexa.Version,
		Session: &alexa.Session{
			New:         c.newSession,
			SessionID:   c.sessionID,
			Application: app,
			Attributes:  c.attributes,
		},
		Context: &alexa.Context{System: alexa.System{Application: app}},
		Request: body,
	}

	status, raw := c.post(env)
	var resp alexa.ResponseEnvelope
	if status == fiber.StatusOK {
		require.NoError(c.t, json.Unmarshal(raw, &resp))
		c.newSession = false
		c.attributes = resp.SessionAttributes
	}
	return status, resp
}

func (c *Conversation) post(env alexa.RequestEnvelope) (int, []byte) {
	c.t.Helper()
	payload, err := json.Marshal(env)
	require.NoError(c.t, err)
	return doRequest(c.t, c.app, http.MethodPost, "/alexa", string(payload), nil)
}

func (c *Conversation) Launch() alexa.ResponseEnvelope {
	c.t.Helper()
	status, resp := c.Send(alexa.RequestBody{Type: "LaunchRequest"})
	require.Equal(c.t, fiber.StatusOK, status)
	return resp
}

func (c *Conversation) Intent(name, text string) alexa.ResponseEnvelope {
	c.t.Helper()
	intent := &alexa.Intent{Name: name}
	if text != "" {
		intent.Slots = map[string]alexa.Slot{"texto": {Name: "texto", Value: text}}
	}
	status, resp := c.Send(alexa.RequestBody{Type: "IntentRequest", Intent: intent})
	require.Equal(c.t, fiber.StatusOK, status)
	return resp
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, 10000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func speech(resp alexa.ResponseEnvelope) string {
	if resp.Response.OutputSpeech == nil {
		return ""
	}
	return resp.Response.OutputSpeech.Text
}

func reprompt(resp alexa.ResponseEnvelope) string {
	if resp.Response.Reprompt == nil {
		return ""
	}
	return resp.Response.Reprompt.OutputSpeech.Text
}

func assistantMode(resp alexa.ResponseEnvelope) (bool, bool) {
	on, ok := resp.SessionAttributes[alexa.AttrAssistantMode].(bool)
	return on, ok
}
