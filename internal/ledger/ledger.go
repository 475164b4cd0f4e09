// Package ledger owns wallet balances and the reservations held against them by in-flight
// transactions. spendable = balance - sum(open reservations) per (wallet, token).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletEngine/internal/keylock"
	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrReservationClosed   = errors.New("reservation already closed")
	ErrPendingReservations = errors.New("balance has open reservations")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// BalanceSource reads the on-chain balance of a wallet.
type BalanceSource interface {
	Balance(ctx context.Context, wallet model.Wallet, token model.Token) (*big.Int, error)
}

// Observer receives reservation gauge updates.
type Observer interface {
	ReservationOpened()
	ReservationClosed()
}

// Reservation is a hold on spendable balance. It is closed exactly once by Commit or Release.
type Reservation struct {
	id       string
	walletID string
	token    model.Token
	amount   *big.Int
	closed   bool
}

func (r *Reservation) ID() string         { return r.id }
func (r *Reservation) WalletID() string   { return r.walletID }
func (r *Reservation) Token() model.Token { return r.token }

// Amount returns a copy of the reserved amount.
func (r *Reservation) Amount() *big.Int { return new(big.Int).Set(r.amount) }

// Ledger is the sole mutator of balances.
type Ledger struct {
	store    storage.BalanceStore
	source   BalanceSource
	locks    *keylock.Locker
	observer Observer
	logger   *zap.Logger
	clock    func() time.Time

	mu    sync.Mutex
	holds map[string]map[string]*Reservation
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithObserver reports reservation counts to o.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

func New(store storage.BalanceStore, source BalanceSource, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:  store,
		source: source,
		locks:  keylock.New(),
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
		holds:  make(map[string]map[string]*Reservation),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func holdKey(walletID string, token model.Token) string {
	return walletID + "|" + token.Key()
}

// Balance returns the last synced balance, resyncing from chain when none is stored.
func (l *Ledger) Balance(ctx context.Context, wallet model.Wallet, token model.Token) (model.Balance, error) {
	unlock := l.locks.Lock(holdKey(wallet.ID, token))
	defer unlock()

	return l.loadLocked(ctx, wallet, token)
}

// Balances lists the stored balances of a wallet.
func (l *Ledger) Balances(ctx context.Context, walletID string) ([]model.Balance, error) {
	return l.store.ListBalances(ctx, walletID)
}

// Spendable returns balance minus open reservations.
func (l *Ledger) Spendable(ctx context.Context, wallet model.Wallet, token model.Token) (*big.Int, error) {
	key := holdKey(wallet.ID, token)
	unlock := l.locks.Lock(key)
	defer unlock()

	balance, err := l.loadLocked(ctx, wallet, token)
	if err != nil {
		return nil, err
	}
	return balance.Amount.Sub(balance.Amount, l.heldLocked(key)), nil
}

// Reserve holds amount of token for an in-flight transaction. It is atomic with respect to
// other reservations on the same wallet and token.
func (l *Ledger) Reserve(ctx context.Context, wallet model.Wallet, token model.Token, amount *big.Int) (*Reservation, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	key := holdKey(wallet.ID, token)
	unlock := l.locks.Lock(key)
	defer unlock()

	balance, err := l.loadLocked(ctx, wallet, token)
	if err != nil {
		return nil, err
	}
	spendable := new(big.Int).Sub(balance.Amount, l.heldLocked(key))
	if amount.Cmp(spendable) > 0 {
		return nil, fmt.Errorf("%w: %s %s requested, %s spendable", ErrInsufficientBalance, amount, token.Symbol, spendable)
	}

	res := &Reservation{
		id:       uuid.NewString(),
		walletID: wallet.ID,
		token:    token,
		amount:   new(big.Int).Set(amount),
	}
	l.mu.Lock()
	if l.holds[key] == nil {
		l.holds[key] = make(map[string]*Reservation)
	}
	l.holds[key][res.id] = res
	l.mu.Unlock()
	if l.observer != nil {
		l.observer.ReservationOpened()
	}

	l.logger.Debug("reserve",
		zap.String("wallet_id", wallet.ID),
		zap.String("token", token.Symbol),
		zap.String("amount", amount.String()),
		zap.String("reservation_id", res.id),
	)
	return res, nil
}

// Commit applies the signed delta to the persisted balance and closes the reservation.
// On error the reservation stays open so the caller can still release it.
func (l *Ledger) Commit(ctx context.Context, res *Reservation, delta *big.Int) (model.Balance, error) {
	key := holdKey(res.walletID, res.token)
	unlock := l.locks.Lock(key)
	defer unlock()

	if res.closed {
		return model.Balance{}, ErrReservationClosed
	}
	balance, err := l.store.AdjustBalance(ctx, res.walletID, res.token, delta, l.clock())
	if err != nil {
		return model.Balance{}, fmt.Errorf("commit reservation %s: %w", res.id, err)
	}
	l.closeLocked(key, res)
	return balance, nil
}

// Release closes the reservation without touching the persisted balance. Releasing a closed
// reservation is a no-op and reports false.
func (l *Ledger) Release(res *Reservation) bool {
	if res == nil {
		return false
	}
	key := holdKey(res.walletID, res.token)
	unlock := l.locks.Lock(key)
	defer unlock()

	if res.closed {
		return false
	}
	l.closeLocked(key, res)
	return true
}

// Credit adds amount to the persisted balance, creating the row when none is stored. The
// node may not reflect the credit yet, so a missing row is never resynced here.
func (l *Ledger) Credit(ctx context.Context, wallet model.Wallet, token model.Token, amount *big.Int) (model.Balance, error) {
	if amount == nil || amount.Sign() < 0 {
		return model.Balance{}, ErrInvalidAmount
	}
	unlock := l.locks.Lock(holdKey(wallet.ID, token))
	defer unlock()

	balance, err := l.store.AdjustBalance(ctx, wallet.ID, token, amount, l.clock())
	if err != nil {
		return model.Balance{}, fmt.Errorf("credit %s: %w", token.Symbol, err)
	}
	return balance, nil
}

// Sync refreshes the stored balance from chain. It refuses while reservations are open,
// since the chain may already reflect a debit the ledger has not committed.
func (l *Ledger) Sync(ctx context.Context, wallet model.Wallet, token model.Token) (model.Balance, error) {
	key := holdKey(wallet.ID, token)
	unlock := l.locks.Lock(key)
	defer unlock()

	if l.heldLocked(key).Sign() > 0 {
		return model.Balance{}, ErrPendingReservations
	}
	return l.syncLocked(ctx, wallet, token)
}

func (l *Ledger) loadLocked(ctx context.Context, wallet model.Wallet, token model.Token) (model.Balance, error) {
	balance, err := l.store.GetBalance(ctx, wallet.ID, token)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.Balance{}, fmt.Errorf("load balance: %w", err)
	}
	return l.syncLocked(ctx, wallet, token)
}

func (l *Ledger) syncLocked(ctx context.Context, wallet model.Wallet, token model.Token) (model.Balance, error) {
	if l.source == nil {
		return model.Balance{}, fmt.Errorf("resync %s: balance source is nil", token.Symbol)
	}
	amount, err := l.source.Balance(ctx, wallet, token)
	if err != nil {
		return model.Balance{}, fmt.Errorf("resync balance: %w", err)
	}
	balance := model.Balance{
		WalletID: wallet.ID,
		Token:    token,
		Amount:   amount,
		SyncedAt: l.clock(),
	}
	if err := l.store.PutBalance(ctx, balance); err != nil {
		return model.Balance{}, fmt.Errorf("store balance: %w", err)
	}
	l.logger.Info("balance resynced",
		zap.String("wallet_id", wallet.ID),
		zap.String("token", token.Symbol),
		zap.String("amount", amount.String()),
	)
	return balance.Clone(), nil
}

func (l *Ledger) heldLocked(key string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := new(big.Int)
	for _, res := range l.holds[key] {
		total.Add(total, res.amount)
	}
	return total
}

func (l *Ledger) closeLocked(key string, res *Reservation) {
	res.closed = true
	l.mu.Lock()
	delete(l.holds[key], res.id)
	if len(l.holds[key]) == 0 {
		delete(l.holds, key)
	}
	l.mu.Unlock()
	if l.observer != nil {
		l.observer.ReservationClosed()
	}
}
