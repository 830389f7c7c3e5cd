package admin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/mocks"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func seededService(t *testing.T) (*Service, *mocks.MockInteractionRepository) {
	t.Helper()
	ctx := context.Background()
	history := mocks.NewMockInteractionRepository()
	events := []*domain.InteractionEvent{
		{ID: "e1", SessionID: "s1", RequestType: domain.RequestTypeLaunch, Latency: 10 * time.Millisecond, Timestamp: fixedNow.Add(-2 * time.Hour)},
		{ID: "e2", SessionID: "s1", RequestType: domain.RequestTypeIntent, Question: "qué hora es", Answered: true, AssistantMode: true, Latency: 30 * time.Millisecond, Timestamp: fixedNow.Add(-time.Hour)},
		{ID: "e3", SessionID: "s2", RequestType: domain.RequestTypeIntent, Question: "hola", ProviderFailed: true, Latency: 50 * time.Millisecond, Timestamp: fixedNow.AddDate(0, 0, -3)},
	}
	for _, e := range events {
		require.NoError(t, history.Save(ctx, e))
	}

	svc := NewService(history, circuitbreaker.NewManager(zap.NewNop()), zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, history
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestService_GetDashboard(t *testing.T) {
	svc, _ := seededService(t)

	dashboard, err := svc.GetDashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), dashboard.LastDay.Total)
	assert.Equal(t, int64(1), dashboard.LastDay.Answered)
	assert.Equal(t, int64(3), dashboard.LastWeek.Total)
	assert.Equal(t, int64(2), dashboard.LastWeek.Sessions)
	assert.InDelta(t, 1.0, dashboard.SuccessRate, 0.001)
	assert.Equal(t, fixedNow, dashboard.GeneratedAt)
}

func TestService_GetDashboard_RepositoryError(t *testing.T) {
	svc, history := seededService(t)
	history.Err = errors.New("db down")

	_, err := svc.GetDashboard(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestService_GenerateReport(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	t.Run("Interactions", func(t *testing.T) {
		data, err := svc.GenerateReport(ctx, ReportInteractions, fixedNow, fixedNow)
		require.NoError(t, err)

		rows := readCSV(t, data)
		require.Len(t, rows, 3)
		assert.Equal(t, "Timestamp", rows[0][0])
		assert.Equal(t, "s1", rows[1][1])
		assert.Equal(t, "LaunchRequest", rows[1][2])
		assert.Equal(t, "qué hora es", rows[2][4])
		assert.Equal(t, "true", rows[2][5])
		assert.Equal(t, "30", rows[2][8])
	})

	t.Run("Daily", func(t *testing.T) {
		data, err := svc.GenerateReport(ctx, ReportDaily, fixedNow.AddDate(0, 0, -3), fixedNow)
		require.NoError(t, err)

		rows := readCSV(t, data)
		require.Len(t, rows, 5)
		assert.Equal(t, []string{"2026-10-13", "1", "1", "1", "0", "1", "50"}, rows[1])
		assert.Equal(t, []string{"2026-10-14", "0", "0", "0", "0", "0", "0"}, rows[2])
		assert.Equal(t, []string{"2026-10-16", "2", "1", "1", "1", "0", "20"}, rows[4])
	})

	t.Run("UnknownType", func(t *testing.T) {
		_, err := svc.GenerateReport(ctx, "revenue", fixedNow, fixedNow)
		assert.ErrorIs(t, err, ErrInvalidReport)
	})

	t.Run("InvertedRange", func(t *testing.T) {
		_, err := svc.GenerateReport(ctx, ReportDaily, fixedNow, fixedNow.AddDate(0, 0, -2))
		assert.ErrorIs(t, err, ErrInvalidReport)
	})
}

func TestHandler(t *testing.T) {
	svc, _ := seededService(t)
	app := fiber.New()
	NewHandler(svc, zap.NewNop()).RegisterRoutes(app.Group("/api/v1"))

	get := func(path string) (*httpResult, error) {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &httpResult{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: body}, nil
	}

	t.Run("Dashboard", func(t *testing.T) {
		res, err := get("/api/v1/dashboard")
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, res.status)

		var out Dashboard
		require.NoError(t, json.Unmarshal(res.body, &out))
		assert.Equal(t, int64(3), out.LastWeek.Total)
	})

	t.Run("Report", func(t *testing.T) {
		res, err := get("/api/v1/reports/daily?start_date=2026-10-15&end_date=2026-10-16")
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, res.status)
		assert.Equal(t, "text/csv", res.contentType)
		assert.Len(t, readCSV(t, res.body), 3)
	})

	t.Run("BadDate", func(t *testing.T) {
		res, err := get("/api/v1/reports/daily?start_date=yesterday")
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, res.status)
	})

	t.Run("UnknownReport", func(t *testing.T) {
		res, err := get("/api/v1/reports/stations")
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, res.status)
	})
}

type httpResult struct {
	status      int
	contentType string
	body        []byte
}
