package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
)

// errServerStatus marks a handler that already wrote a 5xx response.
var errServerStatus = errors.New("handler responded with server error")

// CircuitBreaker sheds load with 503 while cb is open. Handler errors and
// 5xx responses count as failures.
func CircuitBreaker(cb *gobreaker.CircuitBreaker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, err := cb.Execute(func() (interface{}, error) {
			if err := c.Next(); err != nil {
				return nil, err
			}
			if c.Response().StatusCode() >= fiber.StatusInternalServerError {
				return nil, errServerStatus
			}
			return nil, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Service temporarily unavailable",
			})
		}
		if errors.Is(err, errServerStatus) {
			return nil
		}
		return err
	}
}
