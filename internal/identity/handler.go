package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/logging"
)

const undoTimeout = 5 * time.Second

// AccountOpener provisions the coin account that backs a new identity.
type AccountOpener interface {
	OpenAccount(ctx context.Context, identityID string, coins int64) error
}

// Handler exposes identity endpoints.
type Handler struct {
	service  *Service
	accounts AccountOpener
	bonus    int64
	logger   *slog.Logger
}

// NewHandler constructs an identity HTTP handler. New members start with bonus coins.
func NewHandler(service *Service, accounts AccountOpener, bonus int64, logger *slog.Logger) *Handler {
	return &Handler{service: service, accounts: accounts, bonus: bonus, logger: logging.Component(logger, "identity")}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Coins    int64  `json:"coins"`
}

// Register handles member onboarding and opens the coin account.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Registration{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			return fiber.NewError(http.StatusBadRequest, verrs.Error())
		case errors.Is(err, ErrAlreadyExists):
			return fiber.NewError(http.StatusConflict, "username or email already registered")
		default:
			return fiber.NewError(http.StatusInternalServerError, "registration failed")
		}
	}
	if err := h.accounts.OpenAccount(c.UserContext(), user.ID, h.bonus); err != nil {
		h.logger.Error("open coin account", slog.String("user_id", user.ID), slog.Any("error", err))
		h.undoRegistration(c.UserContext(), user.ID)
		return fiber.NewError(http.StatusInternalServerError, "registration failed")
	}
	h.logger.Info("identity.register completed",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.Int64("coins", h.bonus),
	)
	return c.Status(http.StatusCreated).JSON(registerResponse{UserID: user.ID, Username: user.Username, Email: user.Email, Coins: h.bonus})
}

// undoRegistration removes a user left without a coin account so the signup can be retried.
func (h *Handler) undoRegistration(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), undoTimeout)
	defer cancel()
	if err := h.service.Remove(ctx, id); err != nil {
		h.logger.Error("undo registration failed", slog.String("user_id", id), slog.Any("error", err))
	}
}
