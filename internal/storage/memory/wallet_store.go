// Package memory provides in-memory implementations of the storage contracts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu       sync.RWMutex
	data     map[string]model.Wallet
	balances *BalanceStore
}

// NewWalletStore creates a new in-memory wallet store. Initial balances go to balances.
func NewWalletStore(balances *BalanceStore) *WalletStore {
	return &WalletStore{data: make(map[string]model.Wallet), balances: balances}
}

// CreateWallet adds a wallet. Returns ErrDuplicateKey if the id exists.
func (s *WalletStore) CreateWallet(_ context.Context, wallet model.Wallet, balances []model.Balance) error {
	if wallet.ID == "" || wallet.UserID == "" {
		return storage.ErrInvalidInput
	}
	for _, balance := range balances {
		if balance.WalletID != wallet.ID || balance.Amount == nil || balance.Amount.Sign() < 0 {
			return storage.ErrInvalidInput
		}
	}
	if len(balances) > 0 && s.balances == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[wallet.ID]; exists {
		return storage.ErrDuplicateKey
	}
	if len(balances) > 0 {
		s.balances.putAll(balances)
	}
	wallet.EncryptedKey = append([]byte(nil), wallet.EncryptedKey...)
	s.data[wallet.ID] = wallet
	return nil
}

func (s *WalletStore) GetWallet(_ context.Context, id string) (model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, ok := s.data[id]
	if !ok {
		return model.Wallet{}, storage.ErrNotFound
	}
	return wallet, nil
}

func (s *WalletStore) GetWalletByAddress(_ context.Context, network, address string) (model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, wallet := range s.data {
		if strings.EqualFold(wallet.Network, network) && strings.EqualFold(wallet.Address, address) {
			return wallet, nil
		}
	}
	return model.Wallet{}, storage.ErrNotFound
}

// ListWalletsByUser returns the user's wallets ordered by creation time.
func (s *WalletStore) ListWalletsByUser(_ context.Context, userID string) ([]model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Wallet
	for _, wallet := range s.data {
		if wallet.UserID == userID {
			out = append(out, wallet)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *WalletStore) SetWalletActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	wallet.IsActive = active
	s.data[id] = wallet
	return nil
}
