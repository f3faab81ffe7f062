package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/funding"
)

// RegisterFundingRoutes wires coin top-ups.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idem fiber.Handler) {
	r.Post("/wallet/topup", chain(idem, h.TopUp)...)
}
