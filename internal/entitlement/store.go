package entitlement

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrIdentityNotFound occurs when no coin account exists for the identity.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrItemNotFound occurs when the purchased item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrInsufficientCoins occurs when the account balance cannot cover the price.
	ErrInsufficientCoins = errors.New("insufficient coins")

	// ErrGrantExists indicates the identity already owns the item. Callers treat it
	// as an idempotent replay; the existing grant is returned alongside it.
	ErrGrantExists = errors.New("grant already exists")

	// ErrGrantNotFound is returned by FindGrant when the pair was never granted.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrTopUpNotFound is returned by FindTopUp when the client transaction id
	// was never applied for the identity.
	ErrTopUpNotFound = errors.New("top-up not found")

	// ErrInvalidAmount rejects negative debits and non-positive credits.
	ErrInvalidAmount = errors.New("invalid coin amount")

	// ErrDuplicateTopUp indicates the identity already applied the client transaction id.
	// The original result is returned alongside it.
	ErrDuplicateTopUp = errors.New("duplicate top-up")

	// ErrStoreUnavailable wraps backend failures that survived a retry.
	ErrStoreUnavailable = errors.New("entitlement store unavailable")

	// ErrRollbackFailed means a debit was applied, the grant was not, and the
	// credit-back also failed. The account is short by the debited amount until an
	// operator intervenes.
	ErrRollbackFailed = errors.New("transaction rollback failed")
)

// Account is the coin balance and entitlements of one identity.
type Account struct {
	IdentityID     string
	Coins          int64
	GrantedItemIDs []string
}

// Grant records that an identity unlocked an item, and what it paid.
type Grant struct {
	IdentityID   string
	ItemID       string
	Amount       int64
	BalanceAfter int64
	GrantedAt    time.Time
}

// TopUpResult captures the outcome of a coin credit.
type TopUpResult struct {
	TransactionID string
	IdentityID    string
	Amount        int64
	Balance       int64
	CreatedAt     time.Time
}

// Reader is the read side of the store plus account provisioning.
type Reader interface {
	OpenAccount(ctx context.Context, identityID string, coins int64) error
	Account(ctx context.Context, identityID string) (Account, error)
	FindGrant(ctx context.Context, identityID, itemID string) (Grant, error)
	Grants(ctx context.Context, identityID string) ([]Grant, error)
	FindTopUp(ctx context.Context, identityID, clientTxID string) (TopUpResult, error)
	TopUp(ctx context.Context, identityID, clientTxID string, amount int64, at time.Time) (TopUpResult, error)
}

// Store is the contract consumed by the purchase path. DebitAndGrant must apply
// the debit and the grant together or not at all.
type Store interface {
	Reader
	DebitAndGrant(ctx context.Context, identityID, itemID string, amount int64, at time.Time) (Grant, error)
}

// StepStore is a backend without multi-record transactions. Wrap it with
// NewCompensating to obtain a Store.
type StepStore interface {
	Reader
	Debit(ctx context.Context, identityID string, amount int64) (int64, error)
	InsertGrant(ctx context.Context, grant Grant) error
	Credit(ctx context.Context, identityID string, amount int64) (int64, error)
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ StepStore = (*MemoryStore)(nil)
	_ Journal   = (*MemoryStore)(nil)
	_ Store     = (*PostgresStore)(nil)
	_ Store     = (*Compensating)(nil)
)
