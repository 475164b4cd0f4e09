// Package storage defines persistence contracts for wallets, balances, transactions and pools.
package storage

import (
	"context"
	"math/big"
	"time"

	"walletEngine/internal/model"
)

// WalletStore persists wallets. Wallets are never deleted.
type WalletStore interface {
	// CreateWallet persists the wallet together with its initial balances. Nothing is
	// written when any part fails.
	CreateWallet(ctx context.Context, wallet model.Wallet, balances []model.Balance) error
	GetWallet(ctx context.Context, id string) (model.Wallet, error)
	// GetWalletByAddress matches the address case-insensitively within a network.
	GetWalletByAddress(ctx context.Context, network, address string) (model.Wallet, error)
	ListWalletsByUser(ctx context.Context, userID string) ([]model.Wallet, error)
	SetWalletActive(ctx context.Context, id string, active bool) error
}

// BalanceStore persists per-wallet, per-token balances.
type BalanceStore interface {
	GetBalance(ctx context.Context, walletID string, token model.Token) (model.Balance, error)
	ListBalances(ctx context.Context, walletID string) ([]model.Balance, error)
	PutBalance(ctx context.Context, balance model.Balance) error
	// AdjustBalance adds delta to the stored amount atomically. It returns ErrNegativeBalance
	// and leaves the row untouched when the result would drop below zero.
	AdjustBalance(ctx context.Context, walletID string, token model.Token, delta *big.Int, at time.Time) (model.Balance, error)
}

// TransactionStore persists transactions and guards their status transitions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx model.Transaction) error
	GetTransaction(ctx context.Context, id string) (model.Transaction, error)
	// SetChainHash stores the hash once. A different hash on a second call returns ErrConflict.
	SetChainHash(ctx context.Context, id, hash string) error
	// FinalizeTransaction moves a PENDING transaction to a terminal status. It reports false
	// without changing anything when the transaction is already terminal.
	FinalizeTransaction(ctx context.Context, id string, status model.TxStatus, reason string, at time.Time) (bool, error)
	ListTransactionsByWallet(ctx context.Context, walletID string, limit int) ([]model.Transaction, error)
	ListPendingTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
}

// PoolStore persists pools and LP unit holdings.
type PoolStore interface {
	CreatePool(ctx context.Context, pool model.Pool) error
	GetPool(ctx context.Context, id string) (model.Pool, error)
	ListPools(ctx context.Context) ([]model.Pool, error)
	SavePool(ctx context.Context, pool model.Pool) error
	GetLPUnits(ctx context.Context, walletID, poolID string) (*big.Int, error)
	ListLPUnits(ctx context.Context, poolID string) (map[string]*big.Int, error)
	// SavePoolAndUnits writes the pool and one wallet's LP units in a single atomic step.
	SavePoolAndUnits(ctx context.Context, pool model.Pool, walletID string, lpUnits *big.Int) error
}

// UsageStore persists KYC spend counters.
type UsageStore interface {
	LoadUsage(ctx context.Context, userID string) (model.Usage, bool, error)
	SaveUsage(ctx context.Context, usage model.Usage) error
}

// TierStore resolves a user's KYC tier.
type TierStore interface {
	TierOf(ctx context.Context, userID string) (model.Tier, error)
}
