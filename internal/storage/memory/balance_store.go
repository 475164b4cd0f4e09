package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

// BalanceStore is an in-memory implementation of storage.BalanceStore.
type BalanceStore struct {
	mu   sync.RWMutex
	data map[string]model.Balance
}

func NewBalanceStore() *BalanceStore {
	return &BalanceStore{data: make(map[string]model.Balance)}
}

func balanceKey(walletID string, token model.Token) string {
	return walletID + "|" + token.Key()
}

func (s *BalanceStore) GetBalance(_ context.Context, walletID string, token model.Token) (model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.data[balanceKey(walletID, token)]
	if !ok {
		return model.Balance{}, storage.ErrNotFound
	}
	return balance.Clone(), nil
}

func (s *BalanceStore) ListBalances(_ context.Context, walletID string) ([]model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Balance
	for _, balance := range s.data {
		if balance.WalletID == walletID {
			out = append(out, balance.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Token.Key() < out[j].Token.Key()
	})
	return out, nil
}

func (s *BalanceStore) PutBalance(_ context.Context, balance model.Balance) error {
	if balance.WalletID == "" || balance.Amount == nil {
		return storage.ErrInvalidInput
	}
	if balance.Amount.Sign() < 0 {
		return storage.ErrNegativeBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[balanceKey(balance.WalletID, balance.Token)] = balance.Clone()
	return nil
}

func (s *BalanceStore) putAll(balances []model.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, balance := range balances {
		s.data[balanceKey(balance.WalletID, balance.Token)] = balance.Clone()
	}
}

func (s *BalanceStore) AdjustBalance(_ context.Context, walletID string, token model.Token, delta *big.Int, at time.Time) (model.Balance, error) {
	if walletID == "" || delta == nil {
		return model.Balance{}, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := balanceKey(walletID, token)
	current, ok := s.data[key]
	if !ok {
		current = model.Balance{WalletID: walletID, Token: token, Amount: new(big.Int)}
	}
	next := new(big.Int).Add(current.Amount, delta)
	if next.Sign() < 0 {
		return model.Balance{}, storage.ErrNegativeBalance
	}
	current.Amount = next
	current.SyncedAt = at
	s.data[key] = current
	return current.Clone(), nil
}
