package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fibercors "github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/seu-repo/asistente-gemini/pkg/config"
)

// Defaults cover the monitoring dashboard: it reads /api/v1 with an API key
// and follows /ws/interactions.
const (
	corsMethods = "GET,POST,OPTIONS"
	corsHeaders = "Origin,Content-Type,Accept,X-API-Key,X-Request-ID"
	corsExpose  = "Content-Disposition,X-Request-ID"
	corsMaxAge  = 3600
)

// NewCORS allows browser clients of the admin API. Paths in skip (the Alexa
// webhook) never get CORS headers since only Amazon calls them.
func NewCORS(cfg config.CORSConfig, skip ...string) fiber.Handler {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = corsMaxAge
	}

	return fibercors.New(fibercors.Config{
		Next: func(c *fiber.Ctx) bool {
			for _, path := range skip {
				if c.Path() == path {
					return true
				}
			}
			return false
		},
		AllowOrigins:     joinOr(cfg.AllowedOrigins, "*"),
		AllowMethods:     joinOr(cfg.AllowedMethods, corsMethods),
		AllowHeaders:     joinOr(cfg.AllowedHeaders, corsHeaders),
		ExposeHeaders:    joinOr(cfg.ExposeHeaders, corsExpose),
		AllowCredentials: cfg.Credentials,
		MaxAge:           maxAge,
	})
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ",")
}
