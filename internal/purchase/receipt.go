package purchase

import (
	"time"

	"github.com/menumarket/menumarket/internal/entitlement"
)

// Receipt is the outcome of a purchase. Replays carry the stored values of the
// original purchase with Replayed set.
type Receipt struct {
	IdentityID string
	ItemID     string
	Amount     int64
	Balance    int64
	GrantedAt  time.Time
	Replayed   bool
}

func receiptFrom(g entitlement.Grant, replayed bool) Receipt {
	return Receipt{
		IdentityID: g.IdentityID,
		ItemID:     g.ItemID,
		Amount:     g.Amount,
		Balance:    g.BalanceAfter,
		GrantedAt:  g.GrantedAt,
		Replayed:   replayed,
	}
}
