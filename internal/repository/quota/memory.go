// Package quota stores quota accounts in process memory.
package quota

import (
	"context"
	"sync"

	domquota "github.com/kailas-cloud/tokenguard/internal/domain/quota"
)

// MemoryStore is a mutex-guarded map of accounts. Update holds the lock
// across the callback, so concurrent charges to one principal never interleave.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]domquota.Account
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]domquota.Account)}
}

// Get returns a copy of the account.
func (s *MemoryStore) Get(_ context.Context, principal string) (domquota.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[principal]
	return acc, ok, nil
}

// Update applies fn atomically. The account is not stored if fn fails.
func (s *MemoryStore) Update(
	_ context.Context, principal string, fn func(acc *domquota.Account, exists bool) error,
) (domquota.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[principal]
	if err := fn(&acc, ok); err != nil {
		return domquota.Account{}, err
	}
	s.accounts[principal] = acc
	return acc, nil
}

// Len returns the number of known principals.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
