package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

// MockInteractionRepository is an in-memory ports.InteractionRepository
type MockInteractionRepository struct {
	mu     sync.Mutex
	events map[string]domain.InteractionEvent
	Err    error
}

func NewMockInteractionRepository() *MockInteractionRepository {
	return &MockInteractionRepository{events: make(map[string]domain.InteractionEvent)}
}

func (m *MockInteractionRepository) Save(ctx context.Context, event *domain.InteractionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.events[event.ID]; !ok {
		m.events[event.ID] = *event
	}
	return nil
}

func (m *MockInteractionRepository) PublishInteraction(ctx context.Context, event domain.InteractionEvent) error {
	return m.Save(ctx, &event)
}

func (m *MockInteractionRepository) FindBySession(ctx context.Context, sessionID string, limit int) ([]domain.InteractionEvent, error) {
	all, err := m.sorted()
	if err != nil {
		return nil, err
	}
	var out []domain.InteractionEvent
	for _, e := range all {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return truncate(out, limit), nil
}

func (m *MockInteractionRepository) FindRecent(ctx context.Context, limit int) ([]domain.InteractionEvent, error) {
	all, err := m.sorted()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return truncate(all, limit), nil
}

func (m *MockInteractionRepository) FindBetween(ctx context.Context, start, end time.Time, limit int) ([]domain.InteractionEvent, error) {
	all, err := m.sorted()
	if err != nil {
		return nil, err
	}
	var out []domain.InteractionEvent
	for _, e := range all {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	return truncate(out, limit), nil
}

func (m *MockInteractionRepository) Stats(ctx context.Context, since time.Time) (domain.InteractionStats, error) {
	all, err := m.sorted()
	if err != nil {
		return domain.InteractionStats{}, err
	}

	stats := domain.InteractionStats{Since: since}
	sessions := make(map[string]struct{})
	var latency time.Duration
	for _, e := range all {
		if e.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		latency += e.Latency
		sessions[e.SessionID] = struct{}{}
		if e.Question != "" {
			stats.Questions++
		}
		if e.Answered {
			stats.Answered++
		}
		if e.ProviderFailed {
			stats.ProviderFailed++
		}
	}
	stats.Sessions = int64(len(sessions))
	if stats.Total > 0 {
		stats.AverageLatency = latency / time.Duration(stats.Total)
	}
	return stats, nil
}

func (m *MockInteractionRepository) sorted() ([]domain.InteractionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]domain.InteractionEvent, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func truncate(events []domain.InteractionEvent, limit int) []domain.InteractionEvent {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}

var (
	_ ports.InteractionRepository = (*MockInteractionRepository)(nil)
	_ ports.EventPublisher        = (*MockInteractionRepository)(nil)
)
