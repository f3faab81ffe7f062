package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/menumarket/menumarket/internal/entitlement"
	"github.com/menumarket/menumarket/internal/identity"
	"github.com/menumarket/menumarket/internal/logging"
)

// AccountReader loads the coin account shown in the login response.
type AccountReader interface {
	Account(ctx context.Context, identityID string) (entitlement.Account, error)
}

// FailureRecorder counts rejected authentication attempts by reason.
type FailureRecorder interface {
	AuthFailure(reason string)
}

// Handler exposes the login endpoint.
type Handler struct {
	ids      *identity.Service
	svc      *Service
	accounts AccountReader
	failures FailureRecorder
	logger   *slog.Logger
}

// NewHandler builds the login handler. failures may be nil.
func NewHandler(ids *identity.Service, svc *Service, accounts AccountReader, failures FailureRecorder, logger *slog.Logger) *Handler {
	return &Handler{ids: ids, svc: svc, accounts: accounts, failures: failures, logger: logging.Component(logger, "auth")}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type identityView struct {
	ID             string   `json:"id"`
	Username       string   `json:"username"`
	Email          string   `json:"email"`
	Coins          int64    `json:"coins"`
	GrantedItemIDs []string `json:"granted_item_ids"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in"`
	Identity  identityView `json:"identity"`
}

// Login verifies credentials and returns a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Identifier: req.Identifier, Password: req.Password})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.recordFailure("invalid_credentials")
			return fiber.NewError(http.StatusUnauthorized, identity.ErrInvalidCredentials.Error())
		}
		h.logger.Error("credential lookup failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "login unavailable")
	}

	account, err := h.accounts.Account(c.UserContext(), user.ID)
	if err != nil {
		h.logger.Error("load coin account", slog.String("user_id", user.ID), slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "login unavailable")
	}

	session, err := h.svc.Login(user)
	if err != nil {
		h.logger.Error("issue token", slog.String("user_id", user.ID), slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "login unavailable")
	}

	granted := account.GrantedItemIDs
	if granted == nil {
		granted = []string{}
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		Token:     session.Token,
		TokenType: "Bearer",
		ExpiresIn: session.ExpiresIn,
		Identity: identityView{
			ID:             user.ID,
			Username:       user.Username,
			Email:          user.Email,
			Coins:          account.Coins,
			GrantedItemIDs: granted,
		},
	})
}

func (h *Handler) recordFailure(reason string) {
	if h.failures != nil {
		h.failures.AuthFailure(reason)
	}
}
