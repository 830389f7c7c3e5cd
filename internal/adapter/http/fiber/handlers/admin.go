package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/ports"
	"github.com/seu-repo/asistente-gemini/internal/service/voice"
)

// AdminHandler exposes operator endpoints under /api/v1.
type AdminHandler struct {
	answers    ports.AnswerProvider
	normalizer *voice.Normalizer
	breakers   *circuitbreaker.Manager
	history    ports.InteractionRepository
	log        *zap.Logger
}

func NewAdminHandler(answers ports.AnswerProvider, normalizer *voice.Normalizer, breakers *circuitbreaker.Manager, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		answers:    answers,
		normalizer: normalizer,
		breakers:   breakers,
		log:        log,
	}
}

// WithHistory enables the interaction history endpoints.
func (h *AdminHandler) WithHistory(history ports.InteractionRepository) *AdminHandler {
	h.history = history
	return h
}

func (h *AdminHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/ask", h.Ask)
	router.Get("/breakers", h.Breakers)

	if h.history != nil {
		router.Get("/interactions", h.RecentInteractions)
		router.Get("/sessions/:id/interactions", h.SessionInteractions)
		router.Get("/stats", h.Stats)
	}
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Ask sends a question straight to Gemini, bypassing sessions.
func (h *AdminHandler) Ask(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	question := h.normalizer.Normalize(req.Question)
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "question is required"})
	}

	answer, err := h.answers.Ask(c.UserContext(), question)
	if err != nil {
		h.log.Warn("Admin ask failed", zap.Error(err))
		status := fiber.StatusInternalServerError
		if errors.Is(err, domain.ErrAnswerProvider) {
			status = fiber.StatusBadGateway
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(AskResponse{Question: question, Answer: answer})
}

func (h *AdminHandler) Breakers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"breakers": h.breakers.Status()})
}

func (h *AdminHandler) RecentInteractions(c *fiber.Ctx) error {
	events, err := h.history.FindRecent(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		h.log.Error("Failed to list interactions", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list interactions")
	}
	return c.JSON(fiber.Map{"interactions": events})
}

func (h *AdminHandler) SessionInteractions(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	events, err := h.history.FindBySession(c.UserContext(), sessionID, c.QueryInt("limit", 100))
	if err != nil {
		h.log.Error("Failed to list session interactions", zap.String("session_id", sessionID), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list interactions")
	}
	return c.JSON(fiber.Map{"session_id": sessionID, "interactions": events})
}

// Stats summarizes the history over a window given as ?window=24h.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid window"})
		}
		window = d
	}

	stats, err := h.history.Stats(c.UserContext(), time.Now().Add(-window))
	if err != nil {
		h.log.Error("Failed to compute interaction stats", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to compute stats")
	}
	return c.JSON(fiber.Map{
		"stats":        stats,
		"success_rate": stats.SuccessRate(),
	})
}
