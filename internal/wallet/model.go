package wallet

import "time"

// Balance is the coin balance of one identity at a point in time.
type Balance struct {
	IdentityID string
	Coins      int64
	AsOf       time.Time
}

// Entry is one unlocked menu and what was paid for it.
type Entry struct {
	ItemID    string
	Amount    int64
	GrantedAt time.Time
}

// Summary is the profile and wallet view of the caller.
type Summary struct {
	IdentityID string
	Username   string
	Email      string
	CreatedAt  time.Time
	LastLogin  *time.Time
	Balance    Balance
	Unlocked   []Entry
}
