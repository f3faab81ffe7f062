package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/menumarket/menumarket/internal/entitlement"
	"github.com/menumarket/menumarket/internal/identity"
)

// ErrNotFound is returned when the identity or its coin account is missing.
var ErrNotFound = errors.New("wallet not found")

// AccountReader is the part of the entitlement store the wallet view reads.
type AccountReader interface {
	Account(ctx context.Context, identityID string) (entitlement.Account, error)
	Grants(ctx context.Context, identityID string) ([]entitlement.Grant, error)
}

// UserReader resolves profiles.
type UserReader interface {
	FindByID(ctx context.Context, id string) (identity.User, error)
}

// Service exposes read-only wallet views.
type Service struct {
	accounts AccountReader
	users    UserReader
	now      func() time.Time
}

// NewService builds a wallet service instance.
func NewService(accounts AccountReader, users UserReader) *Service {
	return &Service{accounts: accounts, users: users, now: time.Now}
}

// Balance returns the coin balance of identityID.
func (s *Service) Balance(ctx context.Context, identityID string) (Balance, error) {
	acct, err := s.accounts.Account(ctx, identityID)
	if err != nil {
		if errors.Is(err, entitlement.ErrIdentityNotFound) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return Balance{IdentityID: identityID, Coins: acct.Coins, AsOf: s.now().UTC()}, nil
}

// Summary returns the profile, balance and unlocked menus of identityID.
func (s *Service) Summary(ctx context.Context, identityID string) (Summary, error) {
	user, err := s.users.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	balance, err := s.Balance(ctx, identityID)
	if err != nil {
		return Summary{}, err
	}
	grants, err := s.accounts.Grants(ctx, identityID)
	if err != nil {
		return Summary{}, err
	}

	unlocked := make([]Entry, 0, len(grants))
	for _, g := range grants {
		unlocked = append(unlocked, Entry{ItemID: g.ItemID, Amount: g.Amount, GrantedAt: g.GrantedAt})
	}
	return Summary{
		IdentityID: user.ID,
		Username:   user.Username,
		Email:      user.Email,
		CreatedAt:  user.CreatedAt,
		LastLogin:  user.LastLogin,
		Balance:    balance,
		Unlocked:   unlocked,
	}, nil
}
