package catalog

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

// Handler exposes catalog HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a catalog HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	ContentRef string `json:"content_ref"`
}

type menuResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(m Menu) menuResponse {
	return menuResponse{ID: m.ID, AuthorID: m.AuthorID, Title: m.Title, Price: m.Price, CreatedAt: m.CreatedAt}
}

// Create publishes a menu authored by the caller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	menu, err := h.service.Create(c.UserContext(), CreateInput{AuthorID: uid, Title: req.Title, Price: req.Price, ContentRef: req.ContentRef})
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return fiber.NewError(http.StatusBadRequest, verrs.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(menu))
}

// List returns a page of menus without their content.
func (h *Handler) List(c *fiber.Ctx) error {
	menus, err := h.service.List(c.UserContext(), c.QueryInt("limit", defaultPageSize), c.QueryInt("offset", 0))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]menuResponse, 0, len(menus))
	for _, m := range menus {
		out = append(out, toResponse(m))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"menus": out})
}

// Get returns menu metadata.
func (h *Handler) Get(c *fiber.Ctx) error {
	menu, err := h.service.Get(c.UserContext(), c.Params("menuId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "menu not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(menu))
}

// Content returns the premium content for unlocked menus.
func (h *Handler) Content(c *fiber.Ctx) error {
	menuID := c.Params("menuId")
	uid, _ := c.Locals("user_id").(string)
	ref, err := h.service.Content(c.UserContext(), menuID, uid)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "menu not found")
		case errors.Is(err, ErrLocked):
			return fiber.NewError(http.StatusPaymentRequired, "unlock this menu to view its content")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"menu_id": menuID, "content_ref": ref})
}
