// Package amm implements constant-product pool arithmetic. All functions are pure and
// operate on integer base units.
package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"walletEngine/internal/model"
)

// BpsDenominator is the fee denominator (1 bps = 1/10000).
const BpsDenominator = 10000

var (
	ErrSlippageExceeded = errors.New("slippage exceeded")
	ErrEmptyPool        = errors.New("pool has no liquidity")
	ErrImbalancedPool   = errors.New("pool has a single empty reserve")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrUnknownToken     = errors.New("token not in pool")
	ErrNothingMinted    = errors.New("deposit too small to mint liquidity")
	ErrExceedsSupply    = errors.New("lp units exceed total supply")
	ErrInvalidFee       = errors.New("fee must be below 10000 bps")
)

// SwapQuote is the deterministic result of pricing a swap against reserves.
type SwapQuote struct {
	TokenIn     model.Token
	TokenOut    model.Token
	AmountIn    *big.Int
	AmountOut   *big.Int
	Fee         *big.Int
	PriceImpact decimal.Decimal
}

// OptimalDeposit returns the largest deposit not exceeding the desired amounts that keeps the
// pool ratio. An empty pool accepts the desired amounts unchanged.
func OptimalDeposit(pool model.Pool, amount0Desired, amount1Desired *big.Int) (*big.Int, *big.Int, error) {
	if !positive(amount0Desired) || !positive(amount1Desired) {
		return nil, nil, ErrInvalidAmount
	}
	r0, r1 := value(pool.Reserve0), value(pool.Reserve1)
	if r0.Sign() == 0 && r1.Sign() == 0 {
		return new(big.Int).Set(amount0Desired), new(big.Int).Set(amount1Desired), nil
	}
	if r0.Sign() == 0 || r1.Sign() == 0 {
		return nil, nil, ErrImbalancedPool
	}

	amount1Optimal := mulDiv(amount0Desired, r1, r0)
	if amount1Optimal.Cmp(amount1Desired) <= 0 {
		return new(big.Int).Set(amount0Desired), amount1Optimal, nil
	}
	amount0Optimal := mulDiv(amount1Desired, r0, r1)
	return amount0Optimal, new(big.Int).Set(amount1Desired), nil
}

// CheckSlippage fails when amount is below the caller's minimum.
func CheckSlippage(amount, min *big.Int) error {
	if min == nil {
		return nil
	}
	if value(amount).Cmp(min) < 0 {
		return fmt.Errorf("%w: got %s, minimum %s", ErrSlippageExceeded, model.FormatAmount(amount), min.String())
	}
	return nil
}

// QuoteSwap prices amountIn of tokenIn against the pool with its fixed fee rate.
// The output is non-decreasing in amountIn and always strictly below the output reserve.
func QuoteSwap(pool model.Pool, tokenIn model.Token, amountIn *big.Int) (SwapQuote, error) {
	if !positive(amountIn) {
		return SwapQuote{}, ErrInvalidAmount
	}
	if pool.FeeBps >= BpsDenominator {
		return SwapQuote{}, ErrInvalidFee
	}
	reserveIn, reserveOut, tokenOut, err := orient(pool, tokenIn)
	if err != nil {
		return SwapQuote{}, err
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return SwapQuote{}, ErrEmptyPool
	}

	feeFactor := big.NewInt(int64(BpsDenominator - pool.FeeBps))
	inWithFee := new(big.Int).Mul(amountIn, feeFactor)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(BpsDenominator))
	denominator.Add(denominator, inWithFee)
	amountOut := new(big.Int).Quo(numerator, denominator)

	fee := mulDiv(amountIn, big.NewInt(int64(pool.FeeBps)), big.NewInt(BpsDenominator))

	return SwapQuote{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   amountOut,
		Fee:         fee,
		PriceImpact: priceImpact(amountIn, amountOut, reserveIn, reserveOut),
	}, nil
}

// MintUnits returns the LP units minted for a deposit. The first deposit mints
// sqrt(amount0*amount1); later deposits mint proportionally to the smaller leg.
func MintUnits(pool model.Pool, amount0, amount1 *big.Int) (*big.Int, error) {
	if !positive(amount0) || !positive(amount1) {
		return nil, ErrInvalidAmount
	}
	supply := value(pool.TotalSupply)
	var minted *big.Int
	if supply.Sign() == 0 {
		minted = new(big.Int).Sqrt(new(big.Int).Mul(amount0, amount1))
	} else {
		r0, r1 := value(pool.Reserve0), value(pool.Reserve1)
		if r0.Sign() == 0 || r1.Sign() == 0 {
			return nil, ErrImbalancedPool
		}
		minted = minInt(mulDiv(amount0, supply, r0), mulDiv(amount1, supply, r1))
	}
	if minted.Sign() <= 0 {
		return nil, ErrNothingMinted
	}
	return minted, nil
}

// BurnAmounts returns the proportional reserves paid out for lpUnits.
func BurnAmounts(pool model.Pool, lpUnits *big.Int) (*big.Int, *big.Int, error) {
	if !positive(lpUnits) {
		return nil, nil, ErrInvalidAmount
	}
	supply := value(pool.TotalSupply)
	if supply.Sign() == 0 {
		return nil, nil, ErrEmptyPool
	}
	if lpUnits.Cmp(supply) > 0 {
		return nil, nil, ErrExceedsSupply
	}
	return mulDiv(lpUnits, value(pool.Reserve0), supply), mulDiv(lpUnits, value(pool.Reserve1), supply), nil
}

// ApplySwap returns the pool after amountIn of tokenIn entered and amountOut left.
func ApplySwap(pool model.Pool, tokenIn model.Token, amountIn, amountOut *big.Int) (model.Pool, error) {
	next := pool.Clone()
	switch {
	case next.Token0.Equal(tokenIn):
		if amountOut.Cmp(next.Reserve1) >= 0 {
			return model.Pool{}, ErrEmptyPool
		}
		next.Reserve0.Add(next.Reserve0, amountIn)
		next.Reserve1.Sub(next.Reserve1, amountOut)
	case next.Token1.Equal(tokenIn):
		if amountOut.Cmp(next.Reserve0) >= 0 {
			return model.Pool{}, ErrEmptyPool
		}
		next.Reserve1.Add(next.Reserve1, amountIn)
		next.Reserve0.Sub(next.Reserve0, amountOut)
	default:
		return model.Pool{}, ErrUnknownToken
	}
	return next, nil
}

// ApplyDeposit returns the pool after a deposit minting minted units.
func ApplyDeposit(pool model.Pool, amount0, amount1, minted *big.Int) model.Pool {
	next := pool.Clone()
	next.Reserve0.Add(next.Reserve0, amount0)
	next.Reserve1.Add(next.Reserve1, amount1)
	next.TotalSupply.Add(next.TotalSupply, minted)
	return next
}

// ApplyWithdrawal returns the pool after burning lpUnits for the given payout.
func ApplyWithdrawal(pool model.Pool, amount0, amount1, lpUnits *big.Int) (model.Pool, error) {
	next := pool.Clone()
	if lpUnits.Cmp(next.TotalSupply) > 0 {
		return model.Pool{}, ErrExceedsSupply
	}
	if amount0.Cmp(next.Reserve0) > 0 || amount1.Cmp(next.Reserve1) > 0 {
		return model.Pool{}, ErrEmptyPool
	}
	next.Reserve0.Sub(next.Reserve0, amount0)
	next.Reserve1.Sub(next.Reserve1, amount1)
	next.TotalSupply.Sub(next.TotalSupply, lpUnits)
	return next, nil
}

func orient(pool model.Pool, tokenIn model.Token) (*big.Int, *big.Int, model.Token, error) {
	switch {
	case pool.Token0.Equal(tokenIn):
		return value(pool.Reserve0), value(pool.Reserve1), pool.Token1, nil
	case pool.Token1.Equal(tokenIn):
		return value(pool.Reserve1), value(pool.Reserve0), pool.Token0, nil
	default:
		return nil, nil, model.Token{}, ErrUnknownToken
	}
}

// priceImpact is 1 - executionPrice/spotPrice = 1 - (out*reserveIn)/(in*reserveOut).
func priceImpact(amountIn, amountOut, reserveIn, reserveOut *big.Int) decimal.Decimal {
	exec := new(big.Int).Mul(amountOut, reserveIn)
	spot := new(big.Int).Mul(amountIn, reserveOut)
	if spot.Sign() == 0 {
		return decimal.Zero
	}
	ratio := decimal.NewFromBigInt(exec, 0).DivRound(decimal.NewFromBigInt(spot, 0), 18)
	return decimal.NewFromInt(1).Sub(ratio)
}

func mulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func value(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
