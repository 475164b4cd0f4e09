// Package liquidity owns pool reserves and LP positions. Every reserve mutation for a pool is
// serialized, so quotes and deposits are computed against the reserves actually updated.
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"walletEngine/internal/amm"
	"walletEngine/internal/keylock"
	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrHoldClosed            = errors.New("lp hold already closed")
	ErrInvalidPool           = errors.New("invalid pool")
)

// Hold reserves LP units of a position for a pending withdrawal.
type Hold struct {
	walletID string
	poolID   string
	units    *big.Int
	closed   bool
}

func (h *Hold) PoolID() string   { return h.poolID }
func (h *Hold) WalletID() string { return h.walletID }
func (h *Hold) Units() *big.Int  { return new(big.Int).Set(h.units) }

// Book serializes pool state changes per pool.
type Book struct {
	store  storage.PoolStore
	locks  *keylock.Locker
	logger *zap.Logger
	clock  func() time.Time

	mu    sync.Mutex
	holds map[string]*big.Int
}

func NewBook(store storage.PoolStore, logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{
		store:  store,
		locks:  keylock.New(),
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
		holds:  make(map[string]*big.Int),
	}
}

func holdKey(walletID, poolID string) string {
	return poolID + "|" + walletID
}

// Register introduces a pool with zero reserves and supply.
func (b *Book) Register(ctx context.Context, pool model.Pool) (model.Pool, error) {
	if pool.ID == "" || pool.Token0.Equal(pool.Token1) {
		return model.Pool{}, ErrInvalidPool
	}
	if pool.FeeBps >= amm.BpsDenominator {
		return model.Pool{}, amm.ErrInvalidFee
	}
	pool.Reserve0 = new(big.Int)
	pool.Reserve1 = new(big.Int)
	pool.TotalSupply = new(big.Int)
	pool.UpdatedAt = b.clock()
	if err := b.store.CreatePool(ctx, pool); err != nil {
		return model.Pool{}, fmt.Errorf("create pool: %w", err)
	}
	b.logger.Info("pool registered", zap.String("pool_id", pool.ID), zap.String("token0", pool.Token0.Symbol), zap.String("token1", pool.Token1.Symbol))
	return pool, nil
}

func (b *Book) Pool(ctx context.Context, poolID string) (model.Pool, error) {
	return b.store.GetPool(ctx, poolID)
}

func (b *Book) Pools(ctx context.Context) ([]model.Pool, error) {
	return b.store.ListPools(ctx)
}

// Position derives the wallet's position from current reserves.
func (b *Book) Position(ctx context.Context, walletID, poolID string) (model.LiquidityPosition, error) {
	unlock := b.locks.Lock(poolID)
	defer unlock()

	pool, err := b.store.GetPool(ctx, poolID)
	if err != nil {
		return model.LiquidityPosition{}, err
	}
	units, err := b.store.GetLPUnits(ctx, walletID, poolID)
	if err != nil {
		return model.LiquidityPosition{}, err
	}
	return model.NewPosition(pool, walletID, units), nil
}

// Quote prices a swap against the pool's current reserves.
func (b *Book) Quote(ctx context.Context, poolID string, tokenIn model.Token, amountIn *big.Int) (amm.SwapQuote, error) {
	unlock := b.locks.Lock(poolID)
	defer unlock()

	pool, err := b.store.GetPool(ctx, poolID)
	if err != nil {
		return amm.SwapQuote{}, err
	}
	return amm.QuoteSwap(pool, tokenIn, amountIn)
}

// Deposit is the ratio-adjusted deposit computed against current reserves.
type Deposit struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// PlanDeposit computes the ratio-preserving deposit for the desired amounts.
func (b *Book) PlanDeposit(ctx context.Context, poolID string, amount0Desired, amount1Desired *big.Int) (Deposit, error) {
	unlock := b.locks.Lock(poolID)
	defer unlock()

	pool, err := b.store.GetPool(ctx, poolID)
	if err != nil {
		return Deposit{}, err
	}
	a0, a1, err := amm.OptimalDeposit(pool, amount0Desired, amount1Desired)
	if err != nil {
		return Deposit{}, err
	}
	return Deposit{Amount0: a0, Amount1: a1}, nil
}

// HoldUnits reserves lpUnits of the wallet's position. It fails with ErrInsufficientLiquidity
// when the position, minus units already held, is smaller than requested.
func (b *Book) HoldUnits(ctx context.Context, walletID, poolID string, lpUnits *big.Int) (*Hold, error) {
	if lpUnits == nil || lpUnits.Sign() <= 0 {
		return nil, amm.ErrInvalidAmount
	}
	unlock := b.locks.Lock(poolID)
	defer unlock()

	units, err := b.store.GetLPUnits(ctx, walletID, poolID)
	if err != nil {
		return nil, err
	}
	key := holdKey(walletID, poolID)
	b.mu.Lock()
	defer b.mu.Unlock()

	available := new(big.Int).Set(units)
	if held, ok := b.holds[key]; ok {
		available.Sub(available, held)
	}
	if lpUnits.Cmp(available) > 0 {
		return nil, fmt.Errorf("%w: %s units requested, %s available", ErrInsufficientLiquidity, lpUnits, available)
	}
	if b.holds[key] == nil {
		b.holds[key] = new(big.Int)
	}
	b.holds[key].Add(b.holds[key], lpUnits)
	return &Hold{walletID: walletID, poolID: poolID, units: new(big.Int).Set(lpUnits)}, nil
}

// ReleaseHold frees held units without burning them. It reports false for closed holds.
func (b *Book) ReleaseHold(h *Hold) bool {
	if h == nil {
		return false
	}
	unlock := b.locks.Lock(h.poolID)
	defer unlock()

	if h.closed {
		return false
	}
	b.closeLocked(h)
	return true
}

// Withdrawal is the payout for burned LP units.
type Withdrawal struct {
	Amount0 *big.Int
	Amount1 *big.Int
}

// PlanWithdrawal computes the proportional payout for lpUnits against current reserves.
func (b *Book) PlanWithdrawal(ctx context.Context, poolID string, lpUnits *big.Int) (Withdrawal, error) {
	unlock := b.locks.Lock(poolID)
	defer unlock()

	pool, err := b.store.GetPool(ctx, poolID)
	if err != nil {
		return Withdrawal{}, err
	}
	a0, a1, err := amm.BurnAmounts(pool, lpUnits)
	if err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{Amount0: a0, Amount1: a1}, nil
}

// Session is a pool loaded under its lock. It is only valid inside the Locked callback and
// its methods never take the pool lock themselves.
type Session struct {
	book *Book
	pool model.Pool
}

// Locked runs fn while holding the pool's lock, so checks made in fn still hold when fn
// applies changes.
func (b *Book) Locked(ctx context.Context, poolID string, fn func(s *Session) error) error {
	unlock := b.locks.Lock(poolID)
	defer unlock()

	pool, err := b.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	return fn(&Session{book: b, pool: pool})
}

// Pool returns the session's current view of the pool.
func (s *Session) Pool() model.Pool {
	return s.pool.Clone()
}

func (s *Session) Quote(tokenIn model.Token, amountIn *big.Int) (amm.SwapQuote, error) {
	return amm.QuoteSwap(s.pool, tokenIn, amountIn)
}

func (s *Session) PlanWithdrawal(lpUnits *big.Int) (Withdrawal, error) {
	a0, a1, err := amm.BurnAmounts(s.pool, lpUnits)
	if err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{Amount0: a0, Amount1: a1}, nil
}

// ApplySwap moves the reserves by a confirmed swap. A nil amountOut is recomputed from the
// current reserves. It returns the realized output.
func (s *Session) ApplySwap(ctx context.Context, tokenIn model.Token, amountIn, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil {
		quote, err := amm.QuoteSwap(s.pool, tokenIn, amountIn)
		if err != nil {
			return nil, err
		}
		amountOut = quote.AmountOut
	}
	next, err := amm.ApplySwap(s.pool, tokenIn, amountIn, amountOut)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = s.book.clock()
	if err := s.book.store.SavePool(ctx, next); err != nil {
		return nil, fmt.Errorf("save pool: %w", err)
	}
	s.pool = next
	return new(big.Int).Set(amountOut), nil
}

// ApplyDeposit mints LP units for a confirmed deposit and credits them to the wallet.
func (s *Session) ApplyDeposit(ctx context.Context, walletID string, amount0, amount1 *big.Int) (*big.Int, model.LiquidityPosition, error) {
	minted, err := amm.MintUnits(s.pool, amount0, amount1)
	if err != nil {
		return nil, model.LiquidityPosition{}, err
	}
	units, err := s.book.store.GetLPUnits(ctx, walletID, s.pool.ID)
	if err != nil {
		return nil, model.LiquidityPosition{}, err
	}
	next := amm.ApplyDeposit(s.pool, amount0, amount1, minted)
	next.UpdatedAt = s.book.clock()
	units.Add(units, minted)
	if err := s.book.store.SavePoolAndUnits(ctx, next, walletID, units); err != nil {
		return nil, model.LiquidityPosition{}, fmt.Errorf("save deposit: %w", err)
	}
	s.pool = next
	return minted, model.NewPosition(next, walletID, units), nil
}

// ApplyWithdrawal burns the held units and shrinks the pool by the proportional payout,
// computed from the reserves at this moment.
func (s *Session) ApplyWithdrawal(ctx context.Context, h *Hold) (Withdrawal, model.LiquidityPosition, error) {
	if h.poolID != s.pool.ID {
		return Withdrawal{}, model.LiquidityPosition{}, fmt.Errorf("%w: hold for %s", ErrInvalidPool, h.poolID)
	}
	if h.closed {
		return Withdrawal{}, model.LiquidityPosition{}, ErrHoldClosed
	}
	units, err := s.book.store.GetLPUnits(ctx, h.walletID, h.poolID)
	if err != nil {
		return Withdrawal{}, model.LiquidityPosition{}, err
	}
	if h.units.Cmp(units) > 0 {
		return Withdrawal{}, model.LiquidityPosition{}, ErrInsufficientLiquidity
	}
	payout, err := s.PlanWithdrawal(h.units)
	if err != nil {
		return Withdrawal{}, model.LiquidityPosition{}, err
	}
	next, err := amm.ApplyWithdrawal(s.pool, payout.Amount0, payout.Amount1, h.units)
	if err != nil {
		return Withdrawal{}, model.LiquidityPosition{}, err
	}
	next.UpdatedAt = s.book.clock()
	units.Sub(units, h.units)
	if err := s.book.store.SavePoolAndUnits(ctx, next, h.walletID, units); err != nil {
		return Withdrawal{}, model.LiquidityPosition{}, fmt.Errorf("save withdrawal: %w", err)
	}
	s.book.closeLocked(h)
	s.pool = next
	return payout, model.NewPosition(next, h.walletID, units), nil
}

// ApplySwap applies a confirmed swap under the pool lock.
func (b *Book) ApplySwap(ctx context.Context, poolID string, tokenIn model.Token, amountIn, amountOut *big.Int) (*big.Int, model.Pool, error) {
	var out *big.Int
	var pool model.Pool
	err := b.Locked(ctx, poolID, func(s *Session) error {
		var err error
		out, err = s.ApplySwap(ctx, tokenIn, amountIn, amountOut)
		pool = s.Pool()
		return err
	})
	if err != nil {
		return nil, model.Pool{}, err
	}
	return out, pool, nil
}

// ApplyDeposit applies a confirmed deposit under the pool lock.
func (b *Book) ApplyDeposit(ctx context.Context, poolID, walletID string, amount0, amount1 *big.Int) (*big.Int, model.LiquidityPosition, error) {
	var minted *big.Int
	var position model.LiquidityPosition
	err := b.Locked(ctx, poolID, func(s *Session) error {
		var err error
		minted, position, err = s.ApplyDeposit(ctx, walletID, amount0, amount1)
		return err
	})
	return minted, position, err
}

// ApplyWithdrawal applies a confirmed withdrawal under the pool lock.
func (b *Book) ApplyWithdrawal(ctx context.Context, h *Hold) (Withdrawal, model.LiquidityPosition, error) {
	var payout Withdrawal
	var position model.LiquidityPosition
	err := b.Locked(ctx, h.poolID, func(s *Session) error {
		var err error
		payout, position, err = s.ApplyWithdrawal(ctx, h)
		return err
	})
	return payout, position, err
}

// CheckSupply verifies that the pool's total supply equals the sum of all LP holdings.
func (b *Book) CheckSupply(ctx context.Context, poolID string) error {
	unlock := b.locks.Lock(poolID)
	defer unlock()

	pool, err := b.store.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	holders, err := b.store.ListLPUnits(ctx, poolID)
	if err != nil {
		return err
	}
	sum := new(big.Int)
	for _, units := range holders {
		sum.Add(sum, units)
	}
	if sum.Cmp(pool.TotalSupply) != 0 {
		return fmt.Errorf("pool %s: lp units %s != total supply %s", poolID, sum, pool.TotalSupply)
	}
	return nil
}

func (b *Book) closeLocked(h *Hold) {
	h.closed = true
	key := holdKey(h.walletID, h.poolID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if held, ok := b.holds[key]; ok {
		held.Sub(held, h.units)
		if held.Sign() <= 0 {
			delete(b.holds, key)
		}
	}
}
