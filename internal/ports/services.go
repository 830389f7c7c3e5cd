package ports

import (
	"context"

	"github.com/seu-repo/asistente-gemini/internal/domain"
)

// AnswerProvider answers a free-form question. Every error it returns wraps
// domain.ErrAnswerProvider.
type AnswerProvider interface {
	Ask(ctx context.Context, prompt string) (string, error)
}

// SessionStore keeps per-session state between turns of one conversation.
type SessionStore interface {
	// Load returns ErrSessionNotFound when the session has no stored state.
	Load(ctx context.Context, sessionID string) (domain.Session, error)
	Save(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// EventPublisher fans interaction events out to observers (queue, live feed).
type EventPublisher interface {
	PublishInteraction(ctx context.Context, event domain.InteractionEvent) error
}
