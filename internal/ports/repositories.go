package ports

import (
	"context"
	"time"

	"github.com/seu-repo/asistente-gemini/internal/domain"
)

// InteractionRepository keeps the interaction history for operators.
type InteractionRepository interface {
	// Save is idempotent on event id, so redelivered events are harmless.
	Save(ctx context.Context, event *domain.InteractionEvent) error
	FindBySession(ctx context.Context, sessionID string, limit int) ([]domain.InteractionEvent, error)
	FindRecent(ctx context.Context, limit int) ([]domain.InteractionEvent, error)
	// FindBetween returns events in [start, end) oldest first.
	FindBetween(ctx context.Context, start, end time.Time, limit int) ([]domain.InteractionEvent, error)
	Stats(ctx context.Context, since time.Time) (domain.InteractionStats, error)
}
