package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
)

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}

	settings := circuitbreaker.DefaultSettings(t.Name())
	settings.MinRequests = 2
	settings.FailureThreshold = 0.5
	breaker := circuitbreaker.NewManager(zap.NewNop()).Get(settings)

	c, err := NewClient(cfg, circuitbreaker.NewHTTPClient(srv.Client(), breaker, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return c
}

func writeAnswer(w http.ResponseWriter, parts ...string) {
	resp := map[string]interface{}{}
	ps := make([]map[string]string, 0, len(parts))
	for _, p := range parts {
		ps = append(ps, map[string]string{"text": p})
	}
	resp["candidates"] = []interface{}{
		map[string]interface{}{
			"content":      map[string]interface{}{"role": "model", "parts": ps},
			"finishReason": "STOP",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestAsk_SendsGenerateContentRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "¿Quién es Albert Einstein?", body.Contents[0].Parts[0].Text)
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, "Responde breve.", body.SystemInstruction.Parts[0].Text)
		require.NotNil(t, body.GenerationConfig)
		assert.Equal(t, 256, body.GenerationConfig.MaxOutputTokens)

		writeAnswer(w, "Albert Einstein fue ", "un físico teórico.")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{APIKey: "secret", SystemInstruction: "Responde breve.", MaxOutputTokens: 256})
	answer, err := c.Ask(context.Background(), "¿Quién es Albert Einstein?")

	require.NoError(t, err)
	assert.Equal(t, "Albert Einstein fue un físico teórico.", answer)
}

func TestAsk_MinimalBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Contains(t, raw, "contents")
		assert.NotContains(t, raw, "systemInstruction")
		assert.NotContains(t, raw, "generationConfig")
		writeAnswer(w, "ok")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	_, err := c.Ask(context.Background(), "hola")
	require.NoError(t, err)
}

func TestAsk_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "http error with api message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
				assert.Equal(t, "API key not valid", apiErr.Message)
			},
		},
		{
			name: "no candidates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[]}`))
			},
		},
		{
			name: "blocked prompt",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
			},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "SAFETY")
			},
		},
		{
			name: "empty text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeAnswer(w, "  ")
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(t, srv, Config{}).Ask(context.Background(), "hola")

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrAnswerProvider)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestAsk_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Timeout: 20 * time.Millisecond})
	_, err := c.Ask(context.Background(), "hola")

	assert.ErrorIs(t, err, domain.ErrAnswerProvider)
	assert.Equal(t, "timeout", statusLabel(err))
}

func TestAsk_CircuitOpensOnServerErrors(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Ask(ctx, "hola")
		var apiErr *APIError
		assert.ErrorAs(t, err, &apiErr)
	}

	_, err := c.Ask(ctx, "hola")
	assert.ErrorIs(t, err, domain.ErrAnswerProvider)
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, 2, hits)
}
