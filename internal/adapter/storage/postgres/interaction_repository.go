package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

const (
	maxHistoryLimit = 500
	maxReportLimit  = 50000
)

type interactionRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	SessionID      string    `gorm:"size:255;not null;index:idx_interactions_session,priority:1"`
	RequestID      string    `gorm:"size:255"`
	RequestType    string    `gorm:"size:64;not null"`
	Intent         string    `gorm:"size:255"`
	Question       string    `gorm:"type:text"`
	Answered       bool      `gorm:"not null;default:false"`
	ProviderFailed bool      `gorm:"not null;default:false"`
	AssistantMode  bool      `gorm:"not null;default:false"`
	SessionEnded   bool      `gorm:"not null;default:false"`
	LatencyNS      int64     `gorm:"column:latency_ns;not null;default:0"`
	OccurredAt     time.Time `gorm:"not null;index;index:idx_interactions_session,priority:2"`
	CreatedAt      time.Time
}

func (interactionRecord) TableName() string {
	return "interactions"
}

func toRecord(e *domain.InteractionEvent) *interactionRecord {
	return &interactionRecord{
		ID:             e.ID,
		SessionID:      e.SessionID,
		RequestID:      e.RequestID,
		RequestType:    string(e.RequestType),
		Intent:         e.Intent,
		Question:       e.Question,
		Answered:       e.Answered,
		ProviderFailed: e.ProviderFailed,
		AssistantMode:  e.AssistantMode,
		SessionEnded:   e.SessionEnded,
		LatencyNS:      int64(e.Latency),
		OccurredAt:     e.Timestamp.UTC(),
	}
}

func (r *interactionRecord) toDomain() domain.InteractionEvent {
	return domain.InteractionEvent{
		ID:             r.ID,
		SessionID:      r.SessionID,
		RequestID:      r.RequestID,
		RequestType:    domain.RequestType(r.RequestType),
		Intent:         r.Intent,
		Question:       r.Question,
		Answered:       r.Answered,
		ProviderFailed: r.ProviderFailed,
		AssistantMode:  r.AssistantMode,
		SessionEnded:   r.SessionEnded,
		Latency:        time.Duration(r.LatencyNS),
		Timestamp:      r.OccurredAt.UTC(),
	}
}

type InteractionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewInteractionRepository(db *gorm.DB, log *zap.Logger) *InteractionRepository {
	return &InteractionRepository{
		db:  db,
		log: log,
	}
}

func (r *InteractionRepository) Save(ctx context.Context, event *domain.InteractionEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(toRecord(event)).Error
}

// PublishInteraction lets the repository sit directly in the event fan-out
// when no message queue is configured.
func (r *InteractionRepository) PublishInteraction(ctx context.Context, event domain.InteractionEvent) error {
	return r.Save(ctx, &event)
}

// FindBySession returns the session history in conversation order.
func (r *InteractionRepository) FindBySession(ctx context.Context, sessionID string, limit int) ([]domain.InteractionEvent, error) {
	var records []interactionRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at asc").
		Limit(clampLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toEvents(records), nil
}

// FindRecent returns the newest interactions first.
func (r *InteractionRepository) FindRecent(ctx context.Context, limit int) ([]domain.InteractionEvent, error) {
	var records []interactionRecord
	err := r.db.WithContext(ctx).
		Order("occurred_at desc").
		Limit(clampLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toEvents(records), nil
}

func (r *InteractionRepository) FindBetween(ctx context.Context, start, end time.Time, limit int) ([]domain.InteractionEvent, error) {
	var records []interactionRecord
	err := r.db.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at < ?", start.UTC(), end.UTC()).
		Order("occurred_at asc").
		Limit(clampLimitTo(limit, maxReportLimit)).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return toEvents(records), nil
}

func (r *InteractionRepository) Stats(ctx context.Context, since time.Time) (domain.InteractionStats, error) {
	var row struct {
		Total          int64
		Questions      int64
		Answered       int64
		ProviderFailed int64
		Sessions       int64
		AvgLatency     float64
	}

	err := r.db.WithContext(ctx).
		Model(&interactionRecord{}).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE question <> '') AS questions,
			COUNT(*) FILTER (WHERE answered) AS answered,
			COUNT(*) FILTER (WHERE provider_failed) AS provider_failed,
			COUNT(DISTINCT session_id) AS sessions,
			COALESCE(AVG(latency_ns), 0) AS avg_latency`).
		Where("occurred_at >= ?", since.UTC()).
		Scan(&row).Error
	if err != nil {
		return domain.InteractionStats{}, err
	}

	return domain.InteractionStats{
		Since:          since.UTC(),
		Total:          row.Total,
		Questions:      row.Questions,
		Answered:       row.Answered,
		ProviderFailed: row.ProviderFailed,
		Sessions:       row.Sessions,
		AverageLatency: time.Duration(row.AvgLatency),
	}, nil
}

func (r *InteractionRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toEvents(records []interactionRecord) []domain.InteractionEvent {
	events := make([]domain.InteractionEvent, 0, len(records))
	for i := range records {
		events = append(events, records[i].toDomain())
	}
	return events
}

func clampLimit(limit int) int {
	return clampLimitTo(limit, maxHistoryLimit)
}

func clampLimitTo(limit, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}

var (
	_ ports.InteractionRepository = (*InteractionRepository)(nil)
	_ ports.EventPublisher        = (*InteractionRepository)(nil)
)
