package memory

import (
	"context"
	"sync"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

// UsageStore is an in-memory implementation of storage.UsageStore.
type UsageStore struct {
	mu   sync.RWMutex
	data map[string]model.Usage
}

func NewUsageStore() *UsageStore {
	return &UsageStore{data: make(map[string]model.Usage)}
}

func (s *UsageStore) LoadUsage(_ context.Context, userID string) (model.Usage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usage, ok := s.data[userID]
	return usage, ok, nil
}

func (s *UsageStore) SaveUsage(_ context.Context, usage model.Usage) error {
	if usage.UserID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[usage.UserID] = usage
	return nil
}

// TierStore is an in-memory implementation of storage.TierStore.
type TierStore struct {
	mu    sync.RWMutex
	tiers map[string]model.Tier
}

func NewTierStore() *TierStore {
	return &TierStore{tiers: make(map[string]model.Tier)}
}

// SetTier records the verified tier for a user.
func (s *TierStore) SetTier(userID string, tier model.Tier) {
	s.mu.Lock()
	s.tiers[userID] = tier
	s.mu.Unlock()
}

// TierOf returns TierNone for unknown users.
func (s *TierStore) TierOf(_ context.Context, userID string) (model.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tiers[userID], nil
}
