package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/seu-repo/asistente-gemini/pkg/config"
)

// RateLimit limits requests per client IP. A disabled config lets every
// request through. Exempt paths are never limited: the Alexa webhook shares
// a handful of Amazon egress addresses across all users and must always get
// a skill response.
func RateLimit(cfg config.RateLimitingConfig, exempt ...string) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	limit := cfg.MaxRequests
	if limit <= 0 {
		limit = 120
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	skip := make(map[string]struct{}, len(exempt))
	for _, path := range exempt {
		skip[path] = struct{}{}
	}

	return limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			_, ok := skip[c.Path()]
			return ok
		},
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
			})
		},
	})
}
