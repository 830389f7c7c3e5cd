package voice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/observability/telemetry"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

// VoiceAssistant runs one conversational turn: it loads the session, routes
// the request, persists or discards the session and emits an interaction
// event. Infrastructure failures never change what the user hears.
type VoiceAssistant struct {
	router   *Router
	sessions ports.SessionStore
	events   ports.EventPublisher
	log      *zap.Logger
	now      func() time.Time
}

func NewVoiceAssistant(
	router *Router,
	sessions ports.SessionStore,
	events ports.EventPublisher,
	logger *zap.Logger,
) *VoiceAssistant {
	return &VoiceAssistant{
		router:   router,
		sessions: sessions,
		events:   events,
		log:      logger,
		now:      time.Now,
	}
}

// HandleRequest processes one request. carried is the session state sent by
// the voice platform itself; it seeds the session when the store has none.
func (va *VoiceAssistant) HandleRequest(ctx context.Context, req domain.Request, carried domain.Session) domain.Response {
	start := va.now()
	log := va.log.With(
		zap.String("session_id", req.SessionID),
		zap.String("request_id", req.RequestID),
		zap.String("request_type", string(req.Type)),
		zap.String("intent", req.Intent.Name),
	)

	sess := va.loadSession(ctx, req, carried, log)
	before := sess.AssistantMode

	turn := va.router.Route(ctx, req, sess)
	resp := turn.Response

	resp.Session.New = false
	resp.Session.UpdatedAt = va.now()
	va.persist(ctx, resp, log)

	latency := va.now().Sub(start)
	va.record(req, turn, before, latency)

	log.Debug("Voice request handled",
		zap.Bool("assistant_mode", resp.Session.AssistantMode),
		zap.Bool("asked", turn.Asked),
		zap.Bool("provider_failed", turn.ProviderFailed),
		zap.Duration("latency", latency),
	)

	va.publish(ctx, req, turn, latency, log)
	return resp
}

func (va *VoiceAssistant) loadSession(ctx context.Context, req domain.Request, carried domain.Session, log *zap.Logger) domain.Session {
	if carried.ID == "" {
		carried.ID = req.SessionID
	}
	if va.sessions == nil || carried.ID == "" {
		return carried
	}

	stored, err := va.sessions.Load(ctx, carried.ID)
	switch {
	case err == nil:
		stored.New = carried.New
		return stored
	case errors.Is(err, ports.ErrSessionNotFound):
		return carried
	default:
		log.Warn("Failed to load session, using platform state", zap.Error(err))
		return carried
	}
}

func (va *VoiceAssistant) persist(ctx context.Context, resp domain.Response, log *zap.Logger) {
	if va.sessions == nil || resp.Session.ID == "" {
		return
	}

	if resp.EndSession {
		if err := va.sessions.Delete(ctx, resp.Session.ID); err != nil {
			log.Warn("Failed to delete session", zap.Error(err))
		}
		return
	}

	if err := va.sessions.Save(ctx, resp.Session); err != nil {
		log.Warn("Failed to save session", zap.Error(err))
	}
}

func (va *VoiceAssistant) record(req domain.Request, turn Turn, before bool, latency time.Duration) {
	telemetry.VoiceRequestsTotal.WithLabelValues(string(req.Type), intentLabel(req)).Inc()
	telemetry.VoiceLatency.Observe(latency.Seconds())

	if turn.Asked {
		outcome := "answered"
		if turn.ProviderFailed {
			outcome = "apology"
		}
		telemetry.QuestionsTotal.WithLabelValues(outcome).Inc()
	}

	after := turn.Response.Session.AssistantMode
	if after != before {
		state := "off"
		if after {
			state = "on"
		}
		telemetry.AssistantModeChangesTotal.WithLabelValues(state).Inc()
	}
}

func (va *VoiceAssistant) publish(ctx context.Context, req domain.Request, turn Turn, latency time.Duration, log *zap.Logger) {
	if va.events == nil {
		return
	}

	event := domain.InteractionEvent{
		ID:             uuid.NewString(),
		SessionID:      req.SessionID,
		RequestID:      req.RequestID,
		RequestType:    req.Type,
		Intent:         req.Intent.Name,
		Question:       turn.Question,
		Answered:       turn.Asked && !turn.ProviderFailed,
		ProviderFailed: turn.ProviderFailed,
		AssistantMode:  turn.Response.Session.AssistantMode,
		SessionEnded:   turn.Response.EndSession,
		Latency:        latency,
		Timestamp:      va.now().UTC(),
	}

	if err := va.events.PublishInteraction(ctx, event); err != nil {
		log.Warn("Failed to publish interaction event", zap.Error(err))
	}
}

// intentLabel keeps metric cardinality bounded: only routed intents get
// their own label.
func intentLabel(req domain.Request) string {
	if req.Type != domain.RequestTypeIntent {
		return ""
	}
	switch req.Intent.Name {
	case domain.IntentActivateAssistantMode, domain.IntentDeactivateAssistantMode,
		domain.IntentAskAssistant, domain.IntentAskGeminiLegacy,
		domain.IntentHelp, domain.IntentStop, domain.IntentCancel:
		return req.Intent.Name
	default:
		return "other"
	}
}
