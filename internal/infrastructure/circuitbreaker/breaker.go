package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/observability/telemetry"
	"github.com/seu-repo/asistente-gemini/pkg/config"
)

// Settings configures a breaker that trips on failure ratio once enough
// requests have been seen in the current interval.
type Settings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32

	// IsSuccessful decides whether an error counts against the breaker.
	// Nil counts every non-nil error as a failure.
	IsSuccessful func(err error) bool
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// SettingsFromConfig fills zero config values with defaults.
func SettingsFromConfig(name string, cfg config.CircuitBreakerConfig) Settings {
	s := DefaultSettings(name)
	if cfg.MaxRequests > 0 {
		s.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		s.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		s.Timeout = cfg.Timeout
	}
	if cfg.FailureThreshold > 0 {
		s.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.MinRequests > 0 {
		s.MinRequests = cfg.MinRequests
	}
	return s
}

// IsOpen reports whether err was returned because the breaker rejected the
// call without running it.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// BreakerStatus is the JSON view of one breaker.
type BreakerStatus struct {
	Name   string           `json:"name"`
	State  string           `json:"state"`
	Counts gobreaker.Counts `json:"counts"`
}

// Manager owns the named breakers of the process so their state can be
// reported in one place.
type Manager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	mu       sync.RWMutex
	log      *zap.Logger
}

func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      log,
	}
}

// Get returns the breaker registered under settings.Name, creating it on
// first use. Later calls ignore settings.
func (m *Manager) Get(settings Settings) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, exists := m.breakers[settings.Name]
	m.mu.RUnlock()
	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, exists = m.breakers[settings.Name]; exists {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(m.gobreakerSettings(settings))
	m.breakers[settings.Name] = cb
	telemetry.CircuitBreakerState.WithLabelValues(settings.Name).Set(stateValue(gobreaker.StateClosed))
	return cb
}

func (m *Manager) gobreakerSettings(s Settings) gobreaker.Settings {
	threshold := s.FailureThreshold
	minRequests := s.MinRequests
	return gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			telemetry.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			m.log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: s.IsSuccessful,
	}
}

// Status returns every breaker sorted by name.
func (m *Manager) Status() []BreakerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make([]BreakerStatus, 0, len(m.breakers))
	for name, cb := range m.breakers {
		status = append(status, BreakerStatus{
			Name:   name,
			State:  cb.State().String(),
			Counts: cb.Counts(),
		})
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// AnyOpen reports whether some breaker is currently open.
func (m *Manager) AnyOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cb := range m.breakers {
		if cb.State() == gobreaker.StateOpen {
			return true
		}
	}
	return false
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
