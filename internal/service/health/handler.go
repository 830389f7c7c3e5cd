package health

import (
	"github.com/gofiber/fiber/v2"
)

// FiberHandler exposes the service on the public listener. /ready reports
// every registered checker by name: session_store, circuit_breakers and,
// with persistence on, database.
type FiberHandler struct {
	service *Service
}

func NewFiberHandler(service *Service) *FiberHandler {
	return &FiberHandler{service: service}
}

// RegisterRoutes mounts /health and /ready with their z-suffixed aliases.
func (h *FiberHandler) RegisterRoutes(app fiber.Router) {
	for _, path := range []string{"/health", "/healthz"} {
		app.Get(path, h.Health)
	}
	for _, path := range []string{"/ready", "/readyz"} {
		app.Get(path, h.Ready)
	}
}

// Health answers 200 while the process serves requests.
func (h *FiberHandler) Health(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(h.service.Health(c.UserContext()))
}

// Ready answers 503 when a checker is unhealthy. An open Gemini breaker only
// degrades the service: the skill still answers with its fallback message.
func (h *FiberHandler) Ready(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	resp := h.service.Ready(c.UserContext())
	if !resp.Ready {
		c.Status(fiber.StatusServiceUnavailable)
	}
	return c.JSON(resp)
}
