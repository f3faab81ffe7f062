package entitlement

// SeedCoins is a test helper that sets the balance for an identity, creating the account if needed.
func SeedCoins(s *MemoryStore, identityID string, coins int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[identityID] = coins
}
