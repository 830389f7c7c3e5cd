package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/observability/telemetry"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	tracerName = "github.com/seu-repo/asistente-gemini/internal/adapter/ai/gemini"

	// maxErrorBody caps how much of an error response is kept for logs.
	maxErrorBody = 2048
)

type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration
	SystemInstruction string
	MaxOutputTokens   int
	Temperature       float64
}

// APIError is a non-2xx reply from the generateContent endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini api: %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini api: %d", e.StatusCode)
}

// Client answers questions with one generateContent call per question.
type Client struct {
	cfg    Config
	http   *circuitbreaker.HTTPClient
	logger *zap.Logger
}

func NewClient(cfg Config, httpClient *circuitbreaker.HTTPClient, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1/models/%s:generateContent", c.cfg.BaseURL, c.cfg.Model)
}

func (c *Client) buildRequest(prompt string) generateRequest {
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	if c.cfg.SystemInstruction != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: c.cfg.SystemInstruction}}}
	}
	if c.cfg.MaxOutputTokens > 0 || c.cfg.Temperature > 0 {
		gc := &generationConfig{MaxOutputTokens: c.cfg.MaxOutputTokens}
		if c.cfg.Temperature > 0 {
			t := c.cfg.Temperature
			gc.Temperature = &t
		}
		req.GenerationConfig = gc
	}
	return req
}

// Ask sends prompt as a single user turn and returns the text of the first
// candidate. Every failure wraps domain.ErrAnswerProvider.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "gemini.generateContent")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", c.cfg.Model))

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := c.generate(ctx, prompt)
	telemetry.AnswerProviderLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.AnswerProviderRequestsTotal.WithLabelValues(statusLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Gemini request failed",
			zap.String("model", c.cfg.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", domain.ErrAnswerProvider, err)
	}

	telemetry.AnswerProviderRequestsTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int("gemini.answer_length", len(answer)))
	return answer, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(c.buildRequest(prompt))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeAPIError(resp)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
		}
		return "", errors.New("response has no candidates")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", fmt.Errorf("empty answer (finish reason %q)", out.Candidates[0].FinishReason)
	}
	return answer, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		apiErr.Status = er.Error.Status
		apiErr.Message = er.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func statusLabel(err error) string {
	var apiErr *APIError
	switch {
	case circuitbreaker.IsOpen(err):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	default:
		return "error"
	}
}

var _ ports.AnswerProvider = (*Client)(nil)
