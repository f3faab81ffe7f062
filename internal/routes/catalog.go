package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/catalog"
)

// RegisterPublicCatalogRoutes exposes browsing without a token.
func RegisterPublicCatalogRoutes(r fiber.Router, h *catalog.Handler) {
	r.Get("/menus", h.List)
	r.Get("/menus/:menuId", h.Get)
}

// RegisterCatalogRoutes wires authoring and premium content.
func RegisterCatalogRoutes(r fiber.Router, h *catalog.Handler) {
	r.Post("/menus", h.Create)
	r.Get("/menus/:menuId/content", h.Content)
}
