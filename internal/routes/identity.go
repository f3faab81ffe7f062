package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/identity"
)

// RegisterIdentityRoutes wires member onboarding.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/register", h.Register)
}
