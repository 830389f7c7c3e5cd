package mocks

import (
	"context"
	"sync"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

// MockAnswerProvider is a mock implementation of ports.AnswerProvider
type MockAnswerProvider struct {
	mu      sync.Mutex
	prompts []string
	AskFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *MockAnswerProvider) Ask(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.AskFunc != nil {
		return m.AskFunc(ctx, prompt)
	}
	return "respuesta: " + prompt, nil
}

// Prompts returns every prompt received so far.
func (m *MockAnswerProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// MockSessionStore is a mock implementation of ports.SessionStore
type MockSessionStore struct {
	mu         sync.Mutex
	Sessions   map[string]domain.Session
	LoadFunc   func(ctx context.Context, sessionID string) (domain.Session, error)
	SaveFunc   func(ctx context.Context, session domain.Session) error
	DeleteFunc func(ctx context.Context, sessionID string) error
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{Sessions: make(map[string]domain.Session)}
}

func (m *MockSessionStore) Load(ctx context.Context, sessionID string) (domain.Session, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[sessionID]
	if !ok {
		return domain.Session{}, ports.ErrSessionNotFound
	}
	return s, nil
}

func (m *MockSessionStore) Save(ctx context.Context, session domain.Session) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[session.ID] = session
	return nil
}

func (m *MockSessionStore) Delete(ctx context.Context, sessionID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, sessionID)
	return nil
}

// Get returns a stored session without going through LoadFunc.
func (m *MockSessionStore) Get(sessionID string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[sessionID]
	return s, ok
}

// MockEventPublisher is a mock implementation of ports.EventPublisher
type MockEventPublisher struct {
	mu          sync.Mutex
	Events      []domain.InteractionEvent
	PublishFunc func(ctx context.Context, event domain.InteractionEvent) error
}

func (m *MockEventPublisher) PublishInteraction(ctx context.Context, event domain.InteractionEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, event)
	}
	return nil
}

// Published returns a copy of the recorded events.
func (m *MockEventPublisher) Published() []domain.InteractionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.InteractionEvent(nil), m.Events...)
}
