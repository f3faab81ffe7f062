package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/menumarket/menumarket/internal/entitlement"
	"github.com/menumarket/menumarket/internal/logging"
	"github.com/menumarket/menumarket/internal/notification"
)

const (
	statusApproved = "approved"
	statusCredited = "credited"
	maxTopUpCoins  = 100_000
)

var (
	// ErrInvalidAmount is returned for non-positive or oversized top-ups.
	ErrInvalidAmount = errors.New("amount must be between 1 and 100000 coins")
	// ErrDeclined is returned when the acquirer refuses the charge.
	ErrDeclined = errors.New("card declined")
	// ErrInvalidCard is returned for card numbers that fail basic checks.
	ErrInvalidCard = errors.New("invalid card number")
)

// Crediter credits coins idempotently per identity and client transaction id.
type Crediter interface {
	Account(ctx context.Context, identityID string) (entitlement.Account, error)
	FindTopUp(ctx context.Context, identityID, clientTxID string) (entitlement.TopUpResult, error)
	TopUp(ctx context.Context, identityID, clientTxID string, amount int64, at time.Time) (entitlement.TopUpResult, error)
}

// Recorder counts credited coins.
type Recorder interface {
	TopUp(amount int64)
}

// Service buys coins with a card: authorize with the acquirer, then credit the account.
type Service struct {
	store    Crediter
	acquirer Acquirer
	notifier notification.Notifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService prepares a funding service. A nil acquirer falls back to StaticAcquirer;
// notifier and recorder may be nil.
func NewService(store Crediter, acquirer Acquirer, notifier notification.Notifier, recorder Recorder, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("entitlement store is required")
	}
	if acquirer == nil {
		acquirer = StaticAcquirer{}
	}
	return &Service{
		store:    store,
		acquirer: acquirer,
		notifier: notifier,
		recorder: recorder,
		logger:   logging.Component(logger, "funding"),
		now:      time.Now,
	}, nil
}

// TopUpInput captures the required data for a card top-up.
type TopUpInput struct {
	IdentityID string
	Amount     int64
	ClientTxID string
	CardNumber string
	Expiry     string
	CVV        string
}

// TopUpResult represents the domain outcome of a top-up.
type TopUpResult struct {
	TransactionID     string
	Status            string
	Amount            int64
	Balance           int64
	AcquirerReference string
	CompletedAt       time.Time
}

// TopUp authorizes the card and credits the coins. A ClientTxID the identity
// already used returns the original result together with entitlement.ErrDuplicateTopUp
// and the card is not charged again.
func (s *Service) TopUp(ctx context.Context, input TopUpInput) (TopUpResult, error) {
	if err := validateCardNumber(input.CardNumber); err != nil {
		return TopUpResult{}, err
	}
	if input.Amount <= 0 || input.Amount > maxTopUpCoins {
		return TopUpResult{}, ErrInvalidAmount
	}
	if input.ClientTxID == "" {
		input.ClientTxID = uuid.NewString()
	}

	prior, err := s.store.FindTopUp(ctx, input.IdentityID, input.ClientTxID)
	switch {
	case err == nil:
		return replayed(prior), entitlement.ErrDuplicateTopUp
	case !errors.Is(err, entitlement.ErrTopUpNotFound):
		return TopUpResult{}, err
	}
	if _, err := s.store.Account(ctx, input.IdentityID); err != nil {
		return TopUpResult{}, err
	}

	decision, err := s.acquirer.AuthorizeTopUp(ctx, CardAuthorization{
		CardNumber: input.CardNumber,
		Expiry:     input.Expiry,
		CVV:        input.CVV,
		Amount:     input.Amount,
	})
	if err != nil {
		return TopUpResult{}, fmt.Errorf("authorize top-up: %w", err)
	}
	if decision.Status != statusApproved {
		return TopUpResult{}, ErrDeclined
	}

	credited, err := s.store.TopUp(ctx, input.IdentityID, input.ClientTxID, input.Amount, s.now())
	if err != nil {
		if errors.Is(err, entitlement.ErrDuplicateTopUp) {
			// A concurrent request with the same id credited first.
			s.logger.Warn("duplicate top-up after authorization",
				slog.String("user_id", input.IdentityID),
				slog.String("acquirer_reference", decision.Reference),
			)
			return replayed(credited), err
		}
		return TopUpResult{}, err
	}

	s.logger.Info("coins topped up",
		slog.String("user_id", input.IdentityID),
		slog.Int64("amount", credited.Amount),
		slog.String("acquirer_reference", decision.Reference),
	)
	if s.recorder != nil {
		s.recorder.TopUp(credited.Amount)
	}
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindCoinsTopUp,
			Destination: input.IdentityID,
			Body:        fmt.Sprintf("Added %d coins. Balance: %d coins", credited.Amount, credited.Balance),
		})
	}

	return TopUpResult{
		TransactionID:     credited.TransactionID,
		Status:            statusCredited,
		Amount:            credited.Amount,
		Balance:           credited.Balance,
		AcquirerReference: decision.Reference,
		CompletedAt:       credited.CreatedAt,
	}, nil
}

func replayed(prior entitlement.TopUpResult) TopUpResult {
	return TopUpResult{
		TransactionID: prior.TransactionID,
		Status:        statusCredited,
		Amount:        prior.Amount,
		Balance:       prior.Balance,
		CompletedAt:   prior.CreatedAt,
	}
}

func validateCardNumber(card string) error {
	digits := strings.ReplaceAll(card, " ", "")
	if len(digits) < 12 || len(digits) > 19 {
		return fmt.Errorf("%w: must be between 12 and 19 digits", ErrInvalidCard)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: must be numeric", ErrInvalidCard)
		}
	}
	return nil
}
