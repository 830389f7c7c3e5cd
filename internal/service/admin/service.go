package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/ports"
)

const (
	ReportInteractions = "interactions"
	ReportDaily        = "daily"

	dayLayout = "2006-01-02"
)

// ErrInvalidReport is returned for unknown report types or empty ranges.
var ErrInvalidReport = errors.New("invalid report")

// Dashboard summarizes recent skill usage for operators.
type Dashboard struct {
	LastDay     domain.InteractionStats        `json:"last_day"`
	LastWeek    domain.InteractionStats        `json:"last_week"`
	SuccessRate float64                        `json:"success_rate"`
	Breakers    []circuitbreaker.BreakerStatus `json:"breakers,omitempty"`
	GeneratedAt time.Time                      `json:"generated_at"`
}

// Service builds dashboards and CSV reports from the interaction history.
type Service struct {
	history  ports.InteractionRepository
	breakers *circuitbreaker.Manager
	log      *zap.Logger
	now      func() time.Time
}

func NewService(history ports.InteractionRepository, breakers *circuitbreaker.Manager, log *zap.Logger) *Service {
	return &Service{
		history:  history,
		breakers: breakers,
		log:      log,
		now:      time.Now,
	}
}

// GetDashboard returns dashboard statistics
func (s *Service) GetDashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now().UTC()

	day, err := s.history.Stats(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to load daily stats: %w", err)
	}

	week, err := s.history.Stats(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly stats: %w", err)
	}

	dashboard := &Dashboard{
		LastDay:     day,
		LastWeek:    week,
		SuccessRate: day.SuccessRate(),
		GeneratedAt: now,
	}
	if s.breakers != nil {
		dashboard.Breakers = s.breakers.Status()
	}
	return dashboard, nil
}

// GenerateReport renders a CSV report for [startDate, endDate].
// endDate is inclusive at day granularity.
func (s *Service) GenerateReport(ctx context.Context, reportType string, startDate, endDate time.Time) ([]byte, error) {
	if reportType != ReportInteractions && reportType != ReportDaily {
		return nil, fmt.Errorf("%w: unknown report type %q", ErrInvalidReport, reportType)
	}

	start := startDate.UTC().Truncate(24 * time.Hour)
	end := endDate.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start date after end date", ErrInvalidReport)
	}

	events, err := s.history.FindBetween(ctx, start, end, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	switch reportType {
	case ReportInteractions:
		writeInteractions(w, events)
	case ReportDaily:
		writeDaily(w, events, start, end)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write CSV: %w", err)
	}

	s.log.Info("Report generated",
		zap.String("type", reportType),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("events", len(events)),
	)

	return buf.Bytes(), nil
}

func writeInteractions(w *csv.Writer, events []domain.InteractionEvent) {
	_ = w.Write([]string{
		"Timestamp", "SessionID", "RequestType", "Intent", "Question",
		"Answered", "ProviderFailed", "AssistantMode", "Latency_ms",
	})
	for _, e := range events {
		_ = w.Write([]string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.SessionID,
			string(e.RequestType),
			e.Intent,
			e.Question,
			strconv.FormatBool(e.Answered),
			strconv.FormatBool(e.ProviderFailed),
			strconv.FormatBool(e.AssistantMode),
			strconv.FormatInt(e.Latency.Milliseconds(), 10),
		})
	}
}

type dayTotals struct {
	interactions, questions, answered, failed int
	sessions                                  map[string]struct{}
	latency                                   time.Duration
}

func writeDaily(w *csv.Writer, events []domain.InteractionEvent, start, end time.Time) {
	days := make(map[string]*dayTotals)
	for _, e := range events {
		key := e.Timestamp.UTC().Format(dayLayout)
		t, ok := days[key]
		if !ok {
			t = &dayTotals{sessions: make(map[string]struct{})}
			days[key] = t
		}
		t.interactions++
		t.latency += e.Latency
		t.sessions[e.SessionID] = struct{}{}
		if e.Question != "" {
			t.questions++
		}
		if e.Answered {
			t.answered++
		}
		if e.ProviderFailed {
			t.failed++
		}
	}

	_ = w.Write([]string{"Date", "Interactions", "Sessions", "Questions", "Answered", "ProviderFailed", "Avg_Latency_ms"})
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		t, ok := days[key]
		if !ok {
			_ = w.Write([]string{key, "0", "0", "0", "0", "0", "0"})
			continue
		}
		avg := t.latency / time.Duration(t.interactions)
		_ = w.Write([]string{
			key,
			strconv.Itoa(t.interactions),
			strconv.Itoa(len(t.sessions)),
			strconv.Itoa(t.questions),
			strconv.Itoa(t.answered),
			strconv.Itoa(t.failed),
			strconv.FormatInt(avg.Milliseconds(), 10),
		})
	}
}
