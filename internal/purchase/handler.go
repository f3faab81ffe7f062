package purchase

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/entitlement"
)

// Handler exposes purchase endpoints.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler constructs a purchase handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

type purchaseRequest struct {
	ItemID string `json:"itemId"`
}

type receiptResponse struct {
	IdentityID string    `json:"identity_id"`
	ItemID     string    `json:"item_id"`
	Amount     int64     `json:"amount"`
	Balance    int64     `json:"balance"`
	GrantedAt  time.Time `json:"granted_at"`
	Replayed   bool      `json:"replayed"`
}

// Purchase unlocks the item named in the body for the caller.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return h.purchase(c, strings.TrimSpace(req.ItemID))
}

// Unlock is Purchase with the menu id taken from the path.
func (h *Handler) Unlock(c *fiber.Ctx) error {
	return h.purchase(c, c.Params("menuId"))
}

func (h *Handler) purchase(c *fiber.Ctx, itemID string) error {
	if itemID == "" {
		return fiber.NewError(http.StatusBadRequest, "itemId is required")
	}
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing token")
	}

	receipt, err := h.coordinator.Purchase(c.UserContext(), uid, itemID)
	if err != nil {
		switch {
		case errors.Is(err, entitlement.ErrInsufficientCoins):
			return fiber.NewError(http.StatusPaymentRequired, "insufficient coins")
		case errors.Is(err, entitlement.ErrItemNotFound):
			return fiber.NewError(http.StatusNotFound, "item not found")
		case errors.Is(err, entitlement.ErrIdentityNotFound):
			return fiber.NewError(http.StatusNotFound, "identity not found")
		case errors.Is(err, entitlement.ErrRollbackFailed):
			return fiber.NewError(http.StatusInternalServerError, "purchase could not be completed; support has been notified")
		default:
			return fiber.NewError(http.StatusInternalServerError, "purchase unavailable")
		}
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"receipt": receiptResponse{
		IdentityID: receipt.IdentityID,
		ItemID:     receipt.ItemID,
		Amount:     receipt.Amount,
		Balance:    receipt.Balance,
		GrantedAt:  receipt.GrantedAt,
		Replayed:   receipt.Replayed,
	}})
}
