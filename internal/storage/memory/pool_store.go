package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu    sync.RWMutex
	pools map[string]model.Pool
	units map[string]map[string]*big.Int // pool id -> wallet id -> lp units
}

func NewPoolStore() *PoolStore {
	return &PoolStore{
		pools: make(map[string]model.Pool),
		units: make(map[string]map[string]*big.Int),
	}
}

func (s *PoolStore) CreatePool(_ context.Context, pool model.Pool) error {
	if pool.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[pool.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.pools[pool.ID] = pool.Clone()
	s.units[pool.ID] = make(map[string]*big.Int)
	return nil
}

func (s *PoolStore) GetPool(_ context.Context, id string) (model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[id]
	if !ok {
		return model.Pool{}, storage.ErrNotFound
	}
	return pool.Clone(), nil
}

func (s *PoolStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, pool.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *PoolStore) SavePool(_ context.Context, pool model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[pool.ID]; !ok {
		return storage.ErrNotFound
	}
	s.pools[pool.ID] = pool.Clone()
	return nil
}

func (s *PoolStore) GetLPUnits(_ context.Context, walletID, poolID string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holders, ok := s.units[poolID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if units, ok := holders[walletID]; ok {
		return new(big.Int).Set(units), nil
	}
	return new(big.Int), nil
}

func (s *PoolStore) ListLPUnits(_ context.Context, poolID string) (map[string]*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holders, ok := s.units[poolID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make(map[string]*big.Int, len(holders))
	for walletID, units := range holders {
		out[walletID] = new(big.Int).Set(units)
	}
	return out, nil
}

func (s *PoolStore) SavePoolAndUnits(_ context.Context, pool model.Pool, walletID string, lpUnits *big.Int) error {
	if walletID == "" || lpUnits == nil || lpUnits.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[pool.ID]; !ok {
		return storage.ErrNotFound
	}
	s.pools[pool.ID] = pool.Clone()
	if lpUnits.Sign() == 0 {
		delete(s.units[pool.ID], walletID)
		return nil
	}
	s.units[pool.ID][walletID] = new(big.Int).Set(lpUnits)
	return nil
}
