package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/wallet"
)

// RegisterWalletRoutes exposes the caller's profile and wallet.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/me", h.Me)
	r.Get("/wallet", h.Wallet)
}
