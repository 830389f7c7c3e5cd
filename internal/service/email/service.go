package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/service/admin"
)

// Provider defines the interface for email providers
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// ReportSource is satisfied by *admin.Service.
type ReportSource interface {
	GetDashboard(ctx context.Context) (*admin.Dashboard, error)
	GenerateReport(ctx context.Context, reportType string, startDate, endDate time.Time) ([]byte, error)
}

// ReportMailer e-mails the daily usage summary to operators.
type ReportMailer struct {
	appName    string
	recipients []string
	provider   Provider
	reports    ReportSource
	tmpl       *template.Template
	log        *zap.Logger
	now        func() time.Time
}

func NewReportMailer(appName string, recipients []string, provider Provider, reports ReportSource, log *zap.Logger) *ReportMailer {
	return &ReportMailer{
		appName:    appName,
		recipients: recipients,
		provider:   provider,
		reports:    reports,
		tmpl:       template.Must(template.New("daily_report").Parse(dailyReportTemplate)),
		log:        log,
		now:        time.Now,
	}
}

type reportData struct {
	AppName        string
	Day            string
	Stats          domain.InteractionStats
	SuccessPercent float64
	Breakers       []circuitbreaker.BreakerStatus
}

// SendDaily renders the last 24h dashboard and attaches the interaction CSV.
func (m *ReportMailer) SendDaily(ctx context.Context) error {
	if len(m.recipients) == 0 {
		return errors.New("no report recipients configured")
	}

	dashboard, err := m.reports.GetDashboard(ctx)
	if err != nil {
		return fmt.Errorf("failed to build dashboard: %w", err)
	}

	now := m.now().UTC()
	csvData, err := m.reports.GenerateReport(ctx, admin.ReportInteractions, now.Add(-24*time.Hour), now)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	day := now.Format("2006-01-02")
	var buf bytes.Buffer
	if err := m.tmpl.Execute(&buf, reportData{
		AppName:        m.appName,
		Day:            day,
		Stats:          dashboard.LastDay,
		SuccessPercent: dashboard.SuccessRate * 100,
		Breakers:       dashboard.Breakers,
	}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	msg := Message{
		To:      m.recipients,
		Subject: fmt.Sprintf("%s: informe diario %s", m.appName, day),
		Text: fmt.Sprintf("Interacciones: %d, preguntas: %d, respondidas: %d, fallos: %d",
			dashboard.LastDay.Total, dashboard.LastDay.Questions, dashboard.LastDay.Answered, dashboard.LastDay.ProviderFailed),
		HTML: buf.String(),
		Attachments: []Attachment{{
			Filename:    "interactions-" + day + ".csv",
			ContentType: "text/csv",
			Data:        csvData,
		}},
	}

	if err := m.provider.Send(ctx, msg); err != nil {
		m.log.Error("Failed to send daily report",
			zap.Strings("to", m.recipients),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.log.Info("Daily report sent",
		zap.Strings("to", m.recipients),
		zap.Int64("interactions", dashboard.LastDay.Total),
	)
	return nil
}

// Run sends a report every interval until ctx is done. Failures are logged
// and retried on the next tick.
func (m *ReportMailer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sendCtx, cancel := context.WithTimeout(ctx, time.Minute)
			_ = m.SendDaily(sendCtx)
			cancel()
		}
	}
}
