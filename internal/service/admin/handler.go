package admin

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles admin HTTP requests
type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts the dashboard and reports on an already
// authenticated router.
func (h *Handler) RegisterRoutes(router fiber.Router) {
	router.Get("/dashboard", h.GetDashboard)
	router.Get("/reports/:type", h.GenerateReport)
}

// GetDashboard handles GET /api/v1/dashboard
func (h *Handler) GetDashboard(c *fiber.Ctx) error {
	dashboard, err := h.service.GetDashboard(c.UserContext())
	if err != nil {
		h.log.Warn("Dashboard failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(dashboard)
}

// GenerateReport handles GET /api/v1/reports/:type
func (h *Handler) GenerateReport(c *fiber.Ctx) error {
	reportType := c.Params("type")
	startDate, endDate, err := parseDateRange(c, time.Now())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	report, err := h.service.GenerateReport(c.UserContext(), reportType, startDate, endDate)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrInvalidReport) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+reportType+"-report.csv")
	return c.Send(report)
}

// parseDateRange reads start_date and end_date (YYYY-MM-DD). The default
// range is the last 30 days.
func parseDateRange(c *fiber.Ctx, now time.Time) (time.Time, time.Time, error) {
	startDate := now.AddDate(0, 0, -30)
	endDate := now

	if startStr := c.Query("start_date"); startStr != "" {
		t, err := time.Parse(dayLayout, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start_date, expected YYYY-MM-DD")
		}
		startDate = t
	}

	if endStr := c.Query("end_date"); endStr != "" {
		t, err := time.Parse(dayLayout, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end_date, expected YYYY-MM-DD")
		}
		endDate = t
	}

	return startDate, endDate, nil
}
