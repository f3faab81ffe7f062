package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/purchase"
)

// RegisterPurchaseRoutes wires the purchase endpoint and its path-style alias.
func RegisterPurchaseRoutes(r fiber.Router, h *purchase.Handler, idem fiber.Handler) {
	r.Post("/purchase", chain(idem, h.Purchase)...)
	r.Post("/menus/:menuId/unlock", chain(idem, h.Unlock)...)
}

// chain prepends mw when it is set.
func chain(mw fiber.Handler, h fiber.Handler) []fiber.Handler {
	if mw == nil {
		return []fiber.Handler{h}
	}
	return []fiber.Handler{mw, h}
}
