package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/menumarket/menumarket/internal/logging"
)

const creditBackTimeout = 5 * time.Second

// Compensation outcomes.
const (
	CompensationReversed = "reversed"
	CompensationFailed   = "failed"
)

// Compensation is the audit record of a debit that had to be reversed.
type Compensation struct {
	IdentityID string
	ItemID     string
	Amount     int64
	Reason     string
	Outcome    string
	At         time.Time
}

// Journal persists compensation records for later audit.
type Journal interface {
	RecordCompensation(ctx context.Context, c Compensation) error
}

// Compensating turns a StepStore into a Store by debiting first, recording the
// grant second, and crediting the debit back when the grant cannot be recorded.
type Compensating struct {
	StepStore
	journal Journal
	logger  *slog.Logger
	now     func() time.Time
}

// NewCompensating wraps steps. journal may be nil, in which case compensations
// are only logged.
func NewCompensating(steps StepStore, journal Journal, logger *slog.Logger) *Compensating {
	return &Compensating{StepStore: steps, journal: journal, logger: logging.Component(logger, "entitlement"), now: time.Now}
}

// DebitAndGrant implements Store.
func (c *Compensating) DebitAndGrant(ctx context.Context, identityID, itemID string, amount int64, at time.Time) (Grant, error) {
	existing, err := c.FindGrant(ctx, identityID, itemID)
	if err == nil {
		return existing, ErrGrantExists
	}
	if !errors.Is(err, ErrGrantNotFound) {
		return Grant{}, err
	}

	balance, err := c.Debit(ctx, identityID, amount)
	if err != nil {
		return Grant{}, err
	}

	grant := Grant{IdentityID: identityID, ItemID: itemID, Amount: amount, BalanceAfter: balance, GrantedAt: at.UTC()}
	grantErr := c.InsertGrant(ctx, grant)
	if grantErr == nil {
		return grant, nil
	}

	if rbErr := c.reverse(ctx, grant, grantErr); rbErr != nil {
		return Grant{}, rbErr
	}
	if errors.Is(grantErr, ErrGrantExists) {
		// A concurrent writer recorded the grant first; report theirs.
		winner, err := c.FindGrant(ctx, identityID, itemID)
		if err != nil {
			return Grant{}, fmt.Errorf("load existing grant: %w", err)
		}
		return winner, ErrGrantExists
	}
	return Grant{}, fmt.Errorf("record grant: %w", grantErr)
}

// reverse credits the debit back on a context that outlives the caller.
func (c *Compensating) reverse(ctx context.Context, grant Grant, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), creditBackTimeout)
	defer cancel()

	record := Compensation{
		IdentityID: grant.IdentityID,
		ItemID:     grant.ItemID,
		Amount:     grant.Amount,
		Reason:     cause.Error(),
		Outcome:    CompensationReversed,
		At:         c.now().UTC(),
	}

	_, creditErr := c.Credit(ctx, grant.IdentityID, grant.Amount)
	if creditErr != nil {
		record.Outcome = CompensationFailed
	}
	c.record(ctx, record)

	if creditErr != nil {
		return fmt.Errorf("%w: %d coins debited from %s for %s not returned: %v (grant error: %v)",
			ErrRollbackFailed, grant.Amount, grant.IdentityID, grant.ItemID, creditErr, cause)
	}
	return nil
}

func (c *Compensating) record(ctx context.Context, rec Compensation) {
	attrs := []any{
		slog.String("user_id", rec.IdentityID),
		slog.String("item_id", rec.ItemID),
		slog.Int64("amount", rec.Amount),
		slog.String("reason", rec.Reason),
		slog.String("outcome", rec.Outcome),
	}
	if rec.Outcome == CompensationFailed {
		c.logger.Error("debit compensation failed", attrs...)
	} else {
		c.logger.Warn("debit compensated", attrs...)
	}
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordCompensation(ctx, rec); err != nil {
		c.logger.Error("compensation journal write failed", append(attrs, slog.Any("error", err))...)
	}
}
