package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/auth"
)

// RegisterAuthRoutes wires the login endpoint behind the rate limiter.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	r.Post("/login", chain(rateLimiter, h.Login)...)
}
