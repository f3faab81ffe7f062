package entitlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type grantKey struct {
	identityID string
	itemID     string
}

// Client transaction ids are only unique per identity.
type topUpKey struct {
	identityID string
	clientTxID string
}

// MemoryStore is a concurrency-safe in-memory store. It satisfies both Store and
// StepStore, and keeps a journal of compensations.
type MemoryStore struct {
	mu            sync.RWMutex
	balances      map[string]int64
	grants        map[grantKey]Grant
	topups        map[topUpKey]TopUpResult
	compensations []Compensation
}

// NewInMemory creates an in-memory store useful for unit tests and local development.
func NewInMemory() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int64),
		grants:   make(map[grantKey]Grant),
		topups:   make(map[topUpKey]TopUpResult),
	}
}

func (s *MemoryStore) OpenAccount(_ context.Context, identityID string, coins int64) error {
	if coins < 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.balances[identityID]; !exists {
		s.balances[identityID] = coins
	}
	return nil
}

func (s *MemoryStore) Account(_ context.Context, identityID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coins, ok := s.balances[identityID]
	if !ok {
		return Account{}, ErrIdentityNotFound
	}
	acct := Account{IdentityID: identityID, Coins: coins}
	for key := range s.grants {
		if key.identityID == identityID {
			acct.GrantedItemIDs = append(acct.GrantedItemIDs, key.itemID)
		}
	}
	sort.Strings(acct.GrantedItemIDs)
	return acct, nil
}

func (s *MemoryStore) FindGrant(_ context.Context, identityID, itemID string) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[grantKey{identityID, itemID}]
	if !ok {
		return Grant{}, ErrGrantNotFound
	}
	return grant, nil
}

func (s *MemoryStore) Grants(_ context.Context, identityID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.balances[identityID]; !ok {
		return nil, ErrIdentityNotFound
	}
	var out []Grant
	for key, grant := range s.grants {
		if key.identityID == identityID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

func (s *MemoryStore) DebitAndGrant(_ context.Context, identityID, itemID string, amount int64, at time.Time) (Grant, error) {
	if amount < 0 {
		return Grant{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[identityID]
	if !ok {
		return Grant{}, ErrIdentityNotFound
	}
	key := grantKey{identityID, itemID}
	if existing, exists := s.grants[key]; exists {
		return existing, ErrGrantExists
	}
	if balance < amount {
		return Grant{}, ErrInsufficientCoins
	}

	balance -= amount
	grant := Grant{IdentityID: identityID, ItemID: itemID, Amount: amount, BalanceAfter: balance, GrantedAt: at.UTC()}
	s.balances[identityID] = balance
	s.grants[key] = grant
	return grant, nil
}

func (s *MemoryStore) FindTopUp(_ context.Context, identityID, clientTxID string) (TopUpResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.topups[topUpKey{identityID, clientTxID}]
	if !ok {
		return TopUpResult{}, ErrTopUpNotFound
	}
	return res, nil
}

func (s *MemoryStore) TopUp(_ context.Context, identityID, clientTxID string, amount int64, at time.Time) (TopUpResult, error) {
	if amount <= 0 {
		return TopUpResult{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := topUpKey{identityID, clientTxID}
	if res, exists := s.topups[key]; exists {
		return res, ErrDuplicateTopUp
	}
	balance, ok := s.balances[identityID]
	if !ok {
		return TopUpResult{}, ErrIdentityNotFound
	}

	balance += amount
	s.balances[identityID] = balance
	res := TopUpResult{
		TransactionID: uuid.NewString(),
		IdentityID:    identityID,
		Amount:        amount,
		Balance:       balance,
		CreatedAt:     at.UTC(),
	}
	s.topups[key] = res
	return res, nil
}

// Debit removes coins without recording a grant.
func (s *MemoryStore) Debit(_ context.Context, identityID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[identityID]
	if !ok {
		return 0, ErrIdentityNotFound
	}
	if amount < 0 {
		return balance, ErrInvalidAmount
	}
	if balance < amount {
		return balance, ErrInsufficientCoins
	}
	balance -= amount
	s.balances[identityID] = balance
	return balance, nil
}

// InsertGrant records a grant without touching the balance.
func (s *MemoryStore) InsertGrant(_ context.Context, grant Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{grant.IdentityID, grant.ItemID}
	if _, exists := s.grants[key]; exists {
		return ErrGrantExists
	}
	s.grants[key] = grant
	return nil
}

// Credit returns coins to an account.
func (s *MemoryStore) Credit(_ context.Context, identityID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[identityID]
	if !ok {
		return 0, ErrIdentityNotFound
	}
	balance += amount
	s.balances[identityID] = balance
	return balance, nil
}

// RecordCompensation appends to the audit journal.
func (s *MemoryStore) RecordCompensation(_ context.Context, c Compensation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compensations = append(s.compensations, c)
	return nil
}

// Compensations returns a copy of the audit journal.
func (s *MemoryStore) Compensations() []Compensation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Compensation(nil), s.compensations...)
}
