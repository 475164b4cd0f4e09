// Package engine runs transfers, swaps and liquidity operations against the chain. Each
// request reserves what it spends, is submitted once, and is monitored in the background
// until the transaction reaches CONFIRMED or FAILED. Balance and pool changes are applied
// only by the caller that moves the transaction out of PENDING.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"walletEngine/internal/amm"
	"walletEngine/internal/chain"
	"walletEngine/internal/keylock"
	"walletEngine/internal/kyc"
	"walletEngine/internal/ledger"
	"walletEngine/internal/liquidity"
	"walletEngine/internal/model"
	"walletEngine/internal/notify"
	"walletEngine/internal/pricing"
	"walletEngine/internal/storage"
)

var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrNetworkMismatch  = errors.New("pool is on a different network")
	ErrSubmissionFailed = errors.New("chain submission failed")
	ErrNotInFlight      = errors.New("transaction is not tracked by this engine")
	ErrClosed           = errors.New("engine is closed")
	ErrWalletBusy       = errors.New("wallet has transactions in flight")
)

// Wallets resolves wallets for the engine.
type Wallets interface {
	Get(ctx context.Context, walletID string) (model.Wallet, error)
	Active(ctx context.Context, walletID string) (model.Wallet, error)
}

// LimitGuard authorizes USD values against KYC limits.
type LimitGuard interface {
	Authorize(ctx context.Context, userID string, value decimal.Decimal) (*kyc.Authorization, error)
	Revert(ctx context.Context, auth *kyc.Authorization) error
}

// Observer receives engine telemetry.
type Observer interface {
	TransactionSubmitted(txType string)
	TransactionFinalized(txType, status string, elapsed time.Duration)
	TransactionRecovered()
	MonitorStarted()
	MonitorStopped()
	NotificationFailed()
}

type nopObserver struct{}

func (nopObserver) TransactionSubmitted(string) {}
func (nopObserver) TransactionFinalized(string, string, time.Duration) {}
func (nopObserver) TransactionRecovered() {}
func (nopObserver) MonitorStarted() {}
func (nopObserver) MonitorStopped() {}
func (nopObserver) NotificationFailed() {}

// Config controls monitoring and pool defaults.
type Config struct {
	MonitorAttempts    int
	MonitorInterval    time.Duration
	MonitorMaxBackoff  time.Duration
	MonitorConcurrency int64
	FeeBps             uint32
	HistoryLimit       int
}

func (c Config) withDefaults() Config {
	if c.MonitorAttempts <= 0 {
		c.MonitorAttempts = 30
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 5 * time.Second
	}
	if c.MonitorMaxBackoff < c.MonitorInterval {
		c.MonitorMaxBackoff = 12 * c.MonitorInterval
	}
	if c.MonitorConcurrency <= 0 {
		c.MonitorConcurrency = 32
	}
	if c.FeeBps == 0 {
		c.FeeBps = 30
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return c
}

// Deps are the collaborators of the engine.
type Deps struct {
	Wallets      Wallets
	Ledger       *ledger.Ledger
	Pools        *liquidity.Book
	Guard        LimitGuard
	Oracle       pricing.Oracle
	Gateway      chain.Gateway
	Transactions storage.TransactionStore
	Dispatcher   notify.Dispatcher
	Observer     Observer
}

// flight is the in-memory state of a PENDING transaction.
type flight struct {
	wallet model.Wallet
	debits map[string]*ledger.Reservation
	hold   *liquidity.Hold
	auth   *kyc.Authorization
}

func newFlight(wallet model.Wallet) *flight {
	return &flight{wallet: wallet, debits: make(map[string]*ledger.Reservation)}
}

func (f *flight) debit(token model.Token) *ledger.Reservation {
	return f.debits[token.Key()]
}

type Engine struct {
	cfg        Config
	wallets    Wallets
	ledger     *ledger.Ledger
	pools      *liquidity.Book
	guard      LimitGuard
	oracle     pricing.Oracle
	gateway    chain.Gateway
	txs        storage.TransactionStore
	dispatcher notify.Dispatcher
	observer   Observer
	logger     *zap.Logger
	clock      func() time.Time

	txLocks *keylock.Locker
	sem     *semaphore.Weighted
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[string]*flight
}

func New(cfg Config, deps Deps, logger *zap.Logger) (*Engine, error) {
	switch {
	case deps.Wallets == nil:
		return nil, fmt.Errorf("wallets is nil")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("ledger is nil")
	case deps.Pools == nil:
		return nil, fmt.Errorf("pool book is nil")
	case deps.Guard == nil:
		return nil, fmt.Errorf("kyc guard is nil")
	case deps.Oracle == nil:
		return nil, fmt.Errorf("pricing oracle is nil")
	case deps.Gateway == nil:
		return nil, fmt.Errorf("chain gateway is nil")
	case deps.Transactions == nil:
		return nil, fmt.Errorf("transaction store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		wallets:    deps.Wallets,
		ledger:     deps.Ledger,
		pools:      deps.Pools,
		guard:      deps.Guard,
		oracle:     deps.Oracle,
		gateway:    deps.Gateway,
		txs:        deps.Transactions,
		dispatcher: deps.Dispatcher,
		observer:   observer,
		logger:     logger,
		clock:      func() time.Time { return time.Now().UTC() },
		txLocks:    keylock.New(),
		sem:        semaphore.NewWeighted(cfg.MonitorConcurrency),
		ctx:        ctx,
		cancel:     cancel,
		inflight:   make(map[string]*flight),
	}, nil
}

// Wait blocks until every running monitor has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops accepting requests and stops the monitors. Transactions still PENDING stay
// PENDING and are picked up by Recover on the next start.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
}

// Balance returns the wallet's last synced balance of token.
func (e *Engine) Balance(ctx context.Context, walletID string, token model.Token) (model.Balance, error) {
	w, err := e.wallets.Get(ctx, walletID)
	if err != nil {
		return model.Balance{}, err
	}
	return e.ledger.Balance(ctx, w, token)
}

// Balances lists every stored balance of the wallet.
func (e *Engine) Balances(ctx context.Context, walletID string) ([]model.Balance, error) {
	if _, err := e.wallets.Get(ctx, walletID); err != nil {
		return nil, err
	}
	return e.ledger.Balances(ctx, walletID)
}

// Spendable returns balance minus amounts reserved by pending transactions.
func (e *Engine) Spendable(ctx context.Context, walletID string, token model.Token) (*big.Int, error) {
	w, err := e.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return e.ledger.Spendable(ctx, w, token)
}

// SyncBalance refreshes a balance from the chain.
func (e *Engine) SyncBalance(ctx context.Context, walletID string, token model.Token) (model.Balance, error) {
	w, err := e.wallets.Get(ctx, walletID)
	if err != nil {
		return model.Balance{}, err
	}
	return e.ledger.Sync(ctx, w, token)
}

// SyncIfIdle refreshes a balance from the chain only while no transaction of the wallet is in
// flight, so a chain balance that already includes an unreconciled result is never stored.
func (e *Engine) SyncIfIdle(ctx context.Context, walletID string, token model.Token) (model.Balance, error) {
	if e.busy(walletID) {
		return model.Balance{}, fmt.Errorf("%w: %s", ErrWalletBusy, walletID)
	}
	return e.SyncBalance(ctx, walletID, token)
}

// History returns the wallet's transactions, newest first.
func (e *Engine) History(ctx context.Context, walletID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = e.cfg.HistoryLimit
	}
	return e.txs.ListTransactionsByWallet(ctx, walletID, limit)
}

// Transaction returns one transaction.
func (e *Engine) Transaction(ctx context.Context, txID string) (model.Transaction, error) {
	return e.txs.GetTransaction(ctx, txID)
}

func (e *Engine) Pool(ctx context.Context, poolID string) (model.Pool, error) {
	return e.pools.Pool(ctx, poolID)
}

func (e *Engine) Pools(ctx context.Context) ([]model.Pool, error) {
	return e.pools.Pools(ctx)
}

func (e *Engine) Position(ctx context.Context, walletID, poolID string) (model.LiquidityPosition, error) {
	return e.pools.Position(ctx, walletID, poolID)
}

// RegisterPool creates a pool with zero reserves. A missing id or fee is filled in.
func (e *Engine) RegisterPool(ctx context.Context, pool model.Pool) (model.Pool, error) {
	if pool.ID == "" {
		pool.ID = uuid.NewString()
	}
	if pool.FeeBps == 0 {
		pool.FeeBps = e.cfg.FeeBps
	}
	if pool.Network == "" {
		pool.Network = pool.Token0.Network
	}
	created, err := e.pools.Register(ctx, pool)
	if err != nil {
		return model.Pool{}, fmt.Errorf("register pool: %w", err)
	}
	return created, nil
}

// QuoteSwap prices a swap against current reserves without reserving anything.
func (e *Engine) QuoteSwap(ctx context.Context, poolID string, tokenIn model.Token, amountIn *big.Int) (amm.SwapQuote, error) {
	if !positive(amountIn) {
		return amm.SwapQuote{}, ErrInvalidAmount
	}
	return e.pools.Quote(ctx, poolID, tokenIn, amountIn)
}

func (e *Engine) track(txID string, f *flight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight[txID] = f
}

func (e *Engine) lookup(txID string) *flight {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[txID]
}

func (e *Engine) untrack(txID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, txID)
}

func (e *Engine) busy(walletID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.inflight {
		if f.wallet.ID == walletID {
			return true
		}
	}
	return false
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// abandon releases everything a flight holds and reverts its KYC usage.
func (e *Engine) abandon(ctx context.Context, f *flight) {
	for _, res := range f.debits {
		e.ledger.Release(res)
	}
	e.pools.ReleaseHold(f.hold)
	if f.auth != nil {
		if err := e.guard.Revert(ctx, f.auth); err != nil {
			e.logger.Warn("kyc revert failed", zap.String("wallet_id", f.wallet.ID), zap.Error(err))
		}
	}
}

func (e *Engine) notify(ctx context.Context, userID string, event model.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.At.IsZero() {
		event.At = e.clock()
	}
	event.UserID = userID
	if err := e.dispatcher.Notify(ctx, userID, event); err != nil {
		e.observer.NotificationFailed()
		e.logger.Warn("notify failed",
			zap.String("kind", string(event.Kind)),
			zap.String("tx_id", event.TransactionID),
			zap.Error(err),
		)
	}
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func nonNegative(v *big.Int) bool {
	return v == nil || v.Sign() >= 0
}
