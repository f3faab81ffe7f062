package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type entryResponse struct {
	ItemID    string    `json:"item_id"`
	Amount    int64     `json:"amount"`
	GrantedAt time.Time `json:"granted_at"`
}

// Me returns the caller's profile with balance and unlocked menu ids.
func (h *Handler) Me(c *fiber.Ctx) error {
	sum, err := h.summary(c)
	if err != nil {
		return err
	}
	granted := make([]string, 0, len(sum.Unlocked))
	for _, e := range sum.Unlocked {
		granted = append(granted, e.ItemID)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"id":               sum.IdentityID,
		"username":         sum.Username,
		"email":            sum.Email,
		"created_at":       sum.CreatedAt,
		"last_login":       sum.LastLogin,
		"coins":            sum.Balance.Coins,
		"granted_item_ids": granted,
	})
}

// Wallet returns the caller's balance and purchase history.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	sum, err := h.summary(c)
	if err != nil {
		return err
	}
	entries := make([]entryResponse, 0, len(sum.Unlocked))
	for _, e := range sum.Unlocked {
		entries = append(entries, entryResponse{ItemID: e.ItemID, Amount: e.Amount, GrantedAt: e.GrantedAt})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"identity_id": sum.IdentityID,
		"coins":       sum.Balance.Coins,
		"as_of":       sum.Balance.AsOf,
		"unlocked":    entries,
	})
}

func (h *Handler) summary(c *fiber.Ctx) (Summary, error) {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return Summary{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	sum, err := h.service.Summary(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Summary{}, fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return Summary{}, fiber.NewError(http.StatusInternalServerError, "wallet unavailable")
	}
	return sum, nil
}
