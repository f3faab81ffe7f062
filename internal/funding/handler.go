package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/entitlement"
)

// Handler exposes HTTP endpoints for coin top-ups.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// TopUp buys coins for the caller with a card.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.TopUp(c.UserContext(), TopUpInput{
		IdentityID: uid,
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
	})
	if err != nil {
		switch {
		case errors.Is(err, entitlement.ErrDuplicateTopUp):
			resp := toResponse(result)
			resp.Replayed = true
			return c.Status(http.StatusOK).JSON(resp)
		case errors.Is(err, entitlement.ErrIdentityNotFound):
			return fiber.NewError(http.StatusNotFound, "coin account not found")
		case errors.Is(err, ErrDeclined):
			return fiber.NewError(http.StatusPaymentRequired, err.Error())
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCard):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "top-up unavailable")
		}
	}

	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result TopUpResult) TopUpResponse {
	return TopUpResponse{
		TransactionID:     result.TransactionID,
		Status:            result.Status,
		Coins:             result.Amount,
		Balance:           result.Balance,
		AcquirerReference: result.AcquirerReference,
	}
}
