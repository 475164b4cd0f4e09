// Package pricing values token amounts in USD.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"walletEngine/internal/model"
)

// ErrPriceUnavailable is returned when no price is known for a token.
var ErrPriceUnavailable = errors.New("price unavailable")

// Oracle supplies current USD prices per whole token.
type Oracle interface {
	PriceUSD(ctx context.Context, token model.Token) (decimal.Decimal, error)
}

// StaticOracle serves prices from a fixed table keyed by token key or symbol.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewStaticOracle(prices map[string]decimal.Decimal) *StaticOracle {
	o := &StaticOracle{prices: make(map[string]decimal.Decimal, len(prices))}
	for key, price := range prices {
		o.prices[normalize(key)] = price
	}
	return o
}

// ParsePrices converts textual prices (symbol or network:address -> USD) into a table.
func ParsePrices(input map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(input))
	for key, value := range input {
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", key, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("price %s: negative", key)
		}
		out[key] = price
	}
	return out, nil
}

// Set updates a token price.
func (o *StaticOracle) Set(key string, price decimal.Decimal) {
	o.mu.Lock()
	o.prices[normalize(key)] = price
	o.mu.Unlock()
}

func (o *StaticOracle) PriceUSD(_ context.Context, token model.Token) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if price, ok := o.prices[normalize(token.Key())]; ok {
		return price, nil
	}
	if price, ok := o.prices[normalize(token.Symbol)]; ok {
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, token.Symbol)
}

// ValueUSD converts a base-unit amount to USD using the token's decimals.
func ValueUSD(ctx context.Context, oracle Oracle, token model.Token, amount *big.Int) (decimal.Decimal, error) {
	if amount == nil || amount.Sign() == 0 {
		return decimal.Zero, nil
	}
	price, err := oracle.PriceUSD(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	units := decimal.NewFromBigInt(amount, -int32(token.Decimals))
	return units.Mul(price), nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
