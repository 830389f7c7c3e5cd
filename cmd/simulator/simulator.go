package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/adapter/alexa"
	"github.com/seu-repo/asistente-gemini/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/asistente-gemini/internal/domain"
)

// unmatchedIntent stands in for a custom intent the router does not know.
// With assistant mode on the router asks Gemini with its question slot.
const unmatchedIntent = "CatchAllIntent"

// SimulatorConfig holds the simulator configuration
type SimulatorConfig struct {
	ServerURL     string
	APIURL        string
	APIKey        string
	ApplicationID string
	Locale        string
	UserID        string
	Timeout       time.Duration
}

// Simulator plays the Alexa side of a conversation against the webhook.
// Session attributes returned by the skill are echoed on the next request,
// the way the real platform does.
type Simulator struct {
	config *SimulatorConfig
	log    *zap.Logger

	mu         sync.Mutex
	sessionID  string
	newSession bool
	attributes map[string]interface{}
	now        func() time.Time
}

// NewSimulator creates a simulator with a fresh session
func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	s := &Simulator{
		config: config,
		log:    log,
		now:    time.Now,
	}
	s.Reset()
	return s
}

// Reset discards the current session. The next request opens a new one.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = "amzn1.echo-api.session." + uuid.NewString()
	s.newSession = true
	s.attributes = nil
}

func (s *Simulator) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// AssistantMode reports the mode the skill last returned in its attributes.
func (s *Simulator) AssistantMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	on, _ := s.attributes[alexa.AttrAssistantMode].(bool)
	return on
}

func (s *Simulator) Stop() {
	s.log.Info("Simulator stopped", zap.String("session_id", s.SessionID()))
}

func (s *Simulator) Launch() (*alexa.ResponseEnvelope, error) {
	return s.send(alexa.RequestBody{Type: string(domain.RequestTypeLaunch)})
}

// Intent sends an IntentRequest. A non-empty text fills the question slot.
func (s *Simulator) Intent(name, text string) (*alexa.ResponseEnvelope, error) {
	intent := &alexa.Intent{Name: name, ConfirmationStatus: "NONE"}
	if text != "" {
		intent.Slots = map[string]alexa.Slot{
			domain.SlotQuestion: {Name: domain.SlotQuestion, Value: text},
		}
	}
	return s.send(alexa.RequestBody{Type: string(domain.RequestTypeIntent), Intent: intent})
}

// EndSession sends a SessionEndedRequest and starts a new session afterwards.
func (s *Simulator) EndSession(reason string) (*alexa.ResponseEnvelope, error) {
	if reason == "" {
		reason = "USER_INITIATED"
	}
	resp, err := s.send(alexa.RequestBody{Type: string(domain.RequestTypeSessionEnded), Reason: reason})
	s.Reset()
	return resp, err
}

// AskDirect asks Gemini through the admin API, bypassing the session.
func (s *Simulator) AskDirect(question string) (*handlers.AskResponse, error) {
	agent := fiber.Post(strings.TrimRight(s.config.APIURL, "/") + "/ask").
		JSON(handlers.AskRequest{Question: question}).
		Timeout(s.config.Timeout)
	if s.config.APIKey != "" {
		agent.Set("X-API-Key", s.config.APIKey)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("admin api request failed: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("admin api returned %d: %s", code, strings.TrimSpace(string(body)))
	}

	var out handlers.AskResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode admin api response: %w", err)
	}
	return &out, nil
}

func (s *Simulator) envelope(body alexa.RequestBody) alexa.RequestEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	body.RequestID = "amzn1.echo-api.request." + uuid.NewString()
	body.Timestamp = s.now().UTC().Format(time.RFC3339)
	body.Locale = s.config.Locale

	app := alexa.Application{ApplicationID: s.config.ApplicationID}
	user := alexa.User{UserID: s.config.UserID}

	env := alexa.RequestEnvelope{
		Version: alexa.Version,
		Session: &alexa.Session{
			New:         s.newSession,
			SessionID:   s.sessionID,
			Application: app,
			Attributes:  s.attributes,
			User:        user,
		},
		Context: &alexa.Context{System: alexa.System{Application: app, User: user}},
		Request: body,
	}
	return env
}

func (s *Simulator) send(body alexa.RequestBody) (*alexa.ResponseEnvelope, error) {
	env := s.envelope(body)

	code, raw, errs := fiber.Post(s.config.ServerURL).
		JSON(env).
		Timeout(s.config.Timeout).
		Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("webhook request failed: %w", errors.Join(errs...))
	}

	s.log.Debug("Webhook exchange",
		zap.String("request_type", body.Type),
		zap.String("request_id", body.RequestID),
		zap.Int("status", code),
		zap.ByteString("response", raw),
	)

	if code != fiber.StatusOK {
		return nil, fmt.Errorf("webhook returned %d: %s", code, strings.TrimSpace(string(raw)))
	}

	var resp alexa.ResponseEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode webhook response: %w", err)
	}

	s.mu.Lock()
	s.newSession = false
	s.attributes = resp.SessionAttributes
	s.mu.Unlock()

	if resp.Response.ShouldEndSession != nil && *resp.Response.ShouldEndSession {
		s.Reset()
	}
	return &resp, nil
}

// Exec runs one REPL command line and reports whether the session loop
// should continue.
func (s *Simulator) Exec(line string, out io.Writer) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	if cmd == "" {
		return true
	}

	var (
		resp *alexa.ResponseEnvelope
		err  error
	)

	switch strings.ToLower(cmd) {
	case "launch":
		resp, err = s.Launch()

	case "ask":
		if rest == "" {
			fmt.Fprintln(out, "Usage: ask <text>")
			return true
		}
		resp, err = s.Intent(domain.IntentAskAssistant, rest)

	case "say":
		if rest == "" {
			fmt.Fprintln(out, "Usage: say <text>")
			return true
		}
		resp, err = s.Intent(unmatchedIntent, rest)

	case "intent":
		name, text, _ := strings.Cut(rest, " ")
		if name == "" {
			fmt.Fprintln(out, "Usage: intent <name> [text]")
			return true
		}
		resp, err = s.Intent(name, strings.TrimSpace(text))

	case "on":
		resp, err = s.Intent(domain.IntentActivateAssistantMode, "")

	case "off":
		resp, err = s.Intent(domain.IntentDeactivateAssistantMode, "")

	case "help":
		resp, err = s.Intent(domain.IntentHelp, "")

	case "stop":
		resp, err = s.Intent(domain.IntentStop, "")

	case "cancel":
		resp, err = s.Intent(domain.IntentCancel, "")

	case "end":
		resp, err = s.EndSession(rest)

	case "direct":
		if rest == "" {
			fmt.Fprintln(out, "Usage: direct <text>")
			return true
		}
		answer, err := s.AskDirect(rest)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return true
		}
		fmt.Fprintf(out, "Q: %s\nA: %s\n", answer.Question, answer.Answer)
		return true

	case "new":
		s.Reset()
		fmt.Fprintf(out, "New session %s\n", s.SessionID())
		return true

	case "session":
		fmt.Fprintf(out, "Session %s, assistant mode %v\n", s.SessionID(), s.AssistantMode())
		return true

	case "quit", "exit":
		fmt.Fprintln(out, "Goodbye!")
		return false

	default:
		fmt.Fprintf(out, "Unknown command: %s\n", cmd)
		return true
	}

	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return true
	}
	printResponse(out, resp)
	return true
}

// RunInteractive reads commands until EOF or quit.
func (s *Simulator) RunInteractive(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")

	for scanner.Scan() {
		if !s.Exec(scanner.Text(), out) {
			return
		}
		fmt.Fprint(out, "> ")
	}
}

func printResponse(out io.Writer, resp *alexa.ResponseEnvelope) {
	if resp == nil {
		return
	}
	body := resp.Response
	if body.OutputSpeech != nil {
		fmt.Fprintf(out, "Alexa: %s\n", body.OutputSpeech.Text)
	}
	if body.Reprompt != nil {
		fmt.Fprintf(out, "  (reprompt) %s\n", body.Reprompt.OutputSpeech.Text)
	}
	if body.ShouldEndSession != nil && *body.ShouldEndSession {
		fmt.Fprintln(out, "  [session closed]")
	}
	if on, ok := resp.SessionAttributes[alexa.AttrAssistantMode].(bool); ok {
		fmt.Fprintf(out, "  [assistant mode: %v]\n", on)
	}
}
