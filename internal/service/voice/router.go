package voice

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

const tracerName = "github.com/seu-repo/asistente-gemini/internal/service/voice"

// DefaultAnswerTimeout bounds one answer provider call. Alexa gives a skill
// eight seconds to answer.
const DefaultAnswerTimeout = 6 * time.Second

// Turn is the outcome of routing one request.
type Turn struct {
	Response domain.Response

	// Question is the normalized text sent to the answer provider, if any.
	Question       string
	Asked          bool
	ProviderFailed bool
}

// Router is the assistant-mode state machine. It maps a request and the
// current session to exactly one response.
type Router struct {
	answers    ports.AnswerProvider
	normalizer *Normalizer
	messages   Messages
	timeout    time.Duration
	log        *zap.Logger
}

type RouterOption func(*Router)

func WithNormalizer(n *Normalizer) RouterOption {
	return func(r *Router) { r.normalizer = n }
}

func WithMessages(m Messages) RouterOption {
	return func(r *Router) { r.messages = m }
}

func WithAnswerTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRouter(answers ports.AnswerProvider, log *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		answers:    answers,
		normalizer: defaultNormalizer,
		messages:   DefaultMessages(),
		timeout:    DefaultAnswerTimeout,
		log:        log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route dispatches on request type, then intent name, in a fixed order with a
// single catch-all arm.
func (r *Router) Route(ctx context.Context, req domain.Request, sess domain.Session) Turn {
	switch req.Type {
	case domain.RequestTypeLaunch:
		return r.reply(sess.WithAssistantMode(true), r.messages.Greeting, r.messages.Reprompt)

	case domain.RequestTypeSessionEnded:
		r.log.Info("Session ended",
			zap.String("session_id", sess.ID),
			zap.String("reason", req.Reason),
			zap.String("error", req.Error),
		)
		return Turn{Response: domain.Response{Session: sess, EndSession: true}}

	case domain.RequestTypeIntent:
		switch req.Intent.Name {
		case domain.IntentActivateAssistantMode:
			return r.reply(sess.WithAssistantMode(true), r.messages.ActivateConfirm, r.messages.Reprompt)

		case domain.IntentDeactivateAssistantMode:
			return r.reply(sess.WithAssistantMode(false), r.messages.DeactivateConfirm, "")

		case domain.IntentAskAssistant, domain.IntentAskGeminiLegacy:
			return r.askExplicit(ctx, req, sess.WithAssistantMode(true))

		case domain.IntentHelp:
			return r.reply(sess, r.messages.Help, r.messages.Reprompt)

		case domain.IntentStop, domain.IntentCancel:
			end := true
			return Turn{Response: domain.Response{
				SpeechText:       r.messages.Goodbye,
				ShouldEndSession: &end,
				Session:          sess.WithAssistantMode(false),
				EndSession:       true,
			}}
		}
	}

	return r.askImplicit(ctx, req, sess)
}

// askExplicit answers the question slot regardless of mode.
func (r *Router) askExplicit(ctx context.Context, req domain.Request, sess domain.Session) Turn {
	raw, ok := req.Intent.SlotValue(domain.SlotQuestion)
	if !ok {
		return r.reply(sess, r.messages.AskForQuestion, r.messages.Reprompt)
	}

	question := r.normalizer.Normalize(raw)
	if question == "" {
		return r.reply(sess, r.messages.AskForQuestion, r.messages.Reprompt)
	}

	return r.answer(ctx, sess, question)
}

// askImplicit treats an unrecognized utterance as a question only while
// assistant mode is on. The question slot wins over the intent name.
func (r *Router) askImplicit(ctx context.Context, req domain.Request, sess domain.Session) Turn {
	if !sess.AssistantMode {
		return r.reply(sess, r.messages.Fallback, r.messages.Reprompt)
	}

	var question string
	if raw, ok := req.Intent.SlotValue(domain.SlotQuestion); ok {
		question = r.normalizer.Normalize(raw)
	}
	if question == "" {
		question = r.normalizer.Normalize(req.Intent.Name)
	}
	if question == "" {
		return r.reply(sess, r.messages.Fallback, r.messages.Reprompt)
	}

	return r.answer(ctx, sess, question)
}

func (r *Router) answer(ctx context.Context, sess domain.Session, question string) Turn {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "voice.answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.Int("question.length", len(question)),
	)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	turn := Turn{Question: question, Asked: true}

	answer, err := r.answers.Ask(ctx, question)
	if err == nil {
		answer = Speakable(answer)
	}
	if err != nil || answer == "" {
		span.SetStatus(codes.Error, "answer provider failure")
		if err != nil {
			span.RecordError(err)
		}
		r.log.Warn("Answer provider failed, speaking apology",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		turn.ProviderFailed = true
		turn.Response = r.reply(sess, r.messages.ProviderApology, r.messages.FollowUp).Response
		return turn
	}

	turn.Response = r.reply(sess, answer, r.messages.FollowUp).Response
	return turn
}

func (r *Router) reply(sess domain.Session, speech, reprompt string) Turn {
	return Turn{Response: domain.Response{
		SpeechText:   speech,
		RepromptText: reprompt,
		Session:      sess,
	}}
}
