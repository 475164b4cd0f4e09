package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[string]model.Transaction
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{data: make(map[string]model.Transaction)}
}

func (s *TransactionStore) CreateTransaction(_ context.Context, tx model.Transaction) error {
	if tx.ID == "" || tx.WalletID == "" || tx.Amount == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[tx.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[tx.ID] = tx.Clone()
	return nil
}

func (s *TransactionStore) GetTransaction(_ context.Context, id string) (model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.data[id]
	if !ok {
		return model.Transaction{}, storage.ErrNotFound
	}
	return tx.Clone(), nil
}

func (s *TransactionStore) SetChainHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if err := tx.SetChainHash(hash); err != nil {
		return storage.ErrConflict
	}
	s.data[id] = tx
	return nil
}

func (s *TransactionStore) FinalizeTransaction(_ context.Context, id string, status model.TxStatus, reason string, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.data[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if tx.Status != model.StatusPending {
		return false, nil
	}
	tx.Status = status
	tx.FailureReason = reason
	if status == model.StatusConfirmed {
		confirmedAt := at
		tx.ConfirmedAt = &confirmedAt
	}
	s.data[id] = tx
	return true, nil
}

// ListTransactionsByWallet returns the newest transactions first.
func (s *TransactionStore) ListTransactionsByWallet(_ context.Context, walletID string, limit int) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for _, tx := range s.data {
		if tx.WalletID == walletID {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

// ListPendingTransactions returns the oldest pending transactions first.
func (s *TransactionStore) ListPendingTransactions(_ context.Context, limit int) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Transaction
	for _, tx := range s.data {
		if tx.Status == model.StatusPending {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

func truncate(txs []model.Transaction, limit int) []model.Transaction {
	if limit > 0 && len(txs) > limit {
		return txs[:limit]
	}
	return txs
}
