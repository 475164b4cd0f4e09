package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Pool is a constant-product liquidity pool. Reserves are the source of truth for pricing.
type Pool struct {
	ID          string    `json:"id"`
	Network     string    `json:"network"`
	Token0      Token     `json:"token0"`
	Token1      Token     `json:"token1"`
	Reserve0    *big.Int  `json:"reserve0"`
	Reserve1    *big.Int  `json:"reserve1"`
	TotalSupply *big.Int  `json:"total_supply"`
	FeeBps      uint32    `json:"fee_bps"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the pool.
func (p Pool) Clone() Pool {
	p.Reserve0 = cloneInt(p.Reserve0)
	p.Reserve1 = cloneInt(p.Reserve1)
	p.TotalSupply = cloneInt(p.TotalSupply)
	return p
}

// Has reports whether token is one of the pool's legs.
func (p Pool) Has(token Token) bool {
	return p.Token0.Equal(token) || p.Token1.Equal(token)
}

// LiquidityPosition is a wallet's claim on a pool. Token amounts and share are derived from the pool.
type LiquidityPosition struct {
	WalletID     string          `json:"wallet_id"`
	PoolID       string          `json:"pool_id"`
	LPUnits      *big.Int        `json:"lp_units"`
	Token0Amount *big.Int        `json:"token0_amount"`
	Token1Amount *big.Int        `json:"token1_amount"`
	Share        decimal.Decimal `json:"share"`
}

// NewPosition derives a position view from the pool state and the wallet's LP units.
func NewPosition(pool Pool, walletID string, lpUnits *big.Int) LiquidityPosition {
	units := cloneInt(lpUnits)
	pos := LiquidityPosition{
		WalletID:     walletID,
		PoolID:       pool.ID,
		LPUnits:      units,
		Token0Amount: new(big.Int),
		Token1Amount: new(big.Int),
		Share:        decimal.Zero,
	}
	if pool.TotalSupply == nil || pool.TotalSupply.Sign() == 0 || units.Sign() == 0 {
		return pos
	}
	pos.Token0Amount.Quo(new(big.Int).Mul(units, pool.Reserve0), pool.TotalSupply)
	pos.Token1Amount.Quo(new(big.Int).Mul(units, pool.Reserve1), pool.TotalSupply)
	pos.Share = decimal.NewFromBigInt(units, 0).DivRound(decimal.NewFromBigInt(pool.TotalSupply, 0), 18)
	return pos
}
