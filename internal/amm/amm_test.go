package amm

import (
	"errors"
	"math/big"
	"testing"

	"walletEngine/internal/model"
)

var (
	tokenA = model.Token{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Symbol: "AAA", Decimals: 18, Network: "bsc"}
	tokenB = model.Token{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Symbol: "BBB", Decimals: 18, Network: "bsc"}
)

func testPool(r0, r1, supply int64) model.Pool {
	return model.Pool{
		ID:          "0x1111111111111111111111111111111111111111",
		Network:     "bsc",
		Token0:      tokenA,
		Token1:      tokenB,
		Reserve0:    big.NewInt(r0),
		Reserve1:    big.NewInt(r1),
		TotalSupply: big.NewInt(supply),
		FeeBps:      30,
	}
}

func TestOptimalDepositEmptyPool(t *testing.T) {
	a0, a1, err := OptimalDeposit(testPool(0, 0, 0), big.NewInt(7), big.NewInt(13))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a0.Int64() != 7 || a1.Int64() != 13 {
		t.Fatalf("amounts mismatch: %s %s", a0, a1)
	}
}

func TestOptimalDepositRatio(t *testing.T) {
	pool := testPool(100, 200, 100)

	cases := []struct {
		d0, d1 int64
		w0, w1 int64
	}{
		{10, 10, 5, 10},
		{30, 10, 5, 10},
		{10, 50, 10, 20},
		{10, 20, 10, 20},
	}
	for _, tc := range cases {
		a0, a1, err := OptimalDeposit(pool, big.NewInt(tc.d0), big.NewInt(tc.d1))
		if err != nil {
			t.Fatalf("(%d,%d): unexpected error: %v", tc.d0, tc.d1, err)
		}
		if a0.Int64() != tc.w0 || a1.Int64() != tc.w1 {
			t.Fatalf("(%d,%d): got (%s,%s), want (%d,%d)", tc.d0, tc.d1, a0, a1, tc.w0, tc.w1)
		}
	}
}

func TestOptimalDepositImbalanced(t *testing.T) {
	if _, _, err := OptimalDeposit(testPool(100, 0, 10), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrImbalancedPool) {
		t.Fatalf("expected ErrImbalancedPool, got %v", err)
	}
	if _, _, err := OptimalDeposit(testPool(100, 100, 10), big.NewInt(0), big.NewInt(1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCheckSlippage(t *testing.T) {
	if err := CheckSlippage(big.NewInt(10), big.NewInt(10)); err != nil {
		t.Fatalf("equal amount should pass: %v", err)
	}
	if err := CheckSlippage(big.NewInt(9), big.NewInt(10)); !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	if err := CheckSlippage(big.NewInt(0), nil); err != nil {
		t.Fatalf("nil minimum should pass: %v", err)
	}
}

func TestQuoteSwapNeverDrainsAndMonotonic(t *testing.T) {
	pool := testPool(1000, 5000, 0)
	prev := big.NewInt(-1)
	for _, in := range []int64{1, 2, 10, 100, 1000, 10_000, 1_000_000, 1_000_000_000_000} {
		quote, err := QuoteSwap(pool, tokenA, big.NewInt(in))
		if err != nil {
			t.Fatalf("quote %d: %v", in, err)
		}
		if quote.AmountOut.Cmp(pool.Reserve1) >= 0 {
			t.Fatalf("quote %d drains pool: %s", in, quote.AmountOut)
		}
		if quote.AmountOut.Cmp(prev) < 0 {
			t.Fatalf("quote %d decreased: %s < %s", in, quote.AmountOut, prev)
		}
		prev = quote.AmountOut
	}
}

func TestQuoteSwapValues(t *testing.T) {
	pool := testPool(1000, 1000, 0)
	quote, err := QuoteSwap(pool, tokenB, big.NewInt(100))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// 100*9970*1000 / (1000*10000 + 100*9970) = 90.66 -> 90
	if quote.AmountOut.Int64() != 90 {
		t.Fatalf("amount out mismatch: %s", quote.AmountOut)
	}
	if !quote.TokenOut.Equal(tokenA) {
		t.Fatalf("token out mismatch: %+v", quote.TokenOut)
	}
	if quote.Fee.Int64() != 0 {
		t.Fatalf("fee mismatch: %s", quote.Fee)
	}
	if !quote.PriceImpact.IsPositive() {
		t.Fatalf("price impact should be positive: %s", quote.PriceImpact)
	}
}

func TestQuoteSwapErrors(t *testing.T) {
	if _, err := QuoteSwap(testPool(0, 0, 0), tokenA, big.NewInt(1)); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
	other := model.Token{Address: "0xcccccccccccccccccccccccccccccccccccccccc", Network: "bsc"}
	if _, err := QuoteSwap(testPool(10, 10, 0), other, big.NewInt(1)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if _, err := QuoteSwap(testPool(10, 10, 0), tokenA, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMintUnits(t *testing.T) {
	first, err := MintUnits(testPool(0, 0, 0), big.NewInt(400), big.NewInt(900))
	if err != nil {
		t.Fatalf("first mint: %v", err)
	}
	if first.Int64() != 600 {
		t.Fatalf("first mint mismatch: %s", first)
	}

	minted, err := MintUnits(testPool(100, 200, 1000), big.NewInt(10), big.NewInt(30))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	// min(10*1000/100, 30*1000/200) = min(100, 150)
	if minted.Int64() != 100 {
		t.Fatalf("mint mismatch: %s", minted)
	}

	if _, err := MintUnits(testPool(1_000_000, 1_000_000, 1), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrNothingMinted) {
		t.Fatalf("expected ErrNothingMinted, got %v", err)
	}
}

func TestBurnAmounts(t *testing.T) {
	a0, a1, err := BurnAmounts(testPool(100, 200, 1000), big.NewInt(250))
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if a0.Int64() != 25 || a1.Int64() != 50 {
		t.Fatalf("burn mismatch: %s %s", a0, a1)
	}
	if _, _, err := BurnAmounts(testPool(100, 200, 1000), big.NewInt(1001)); !errors.Is(err, ErrExceedsSupply) {
		t.Fatalf("expected ErrExceedsSupply, got %v", err)
	}
}

func TestApplySwapDoesNotMutateInput(t *testing.T) {
	pool := testPool(1000, 1000, 10)
	next, err := ApplySwap(pool, tokenA, big.NewInt(100), big.NewInt(90))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.Reserve0.Int64() != 1100 || next.Reserve1.Int64() != 910 {
		t.Fatalf("reserves mismatch: %s %s", next.Reserve0, next.Reserve1)
	}
	if pool.Reserve0.Int64() != 1000 || pool.Reserve1.Int64() != 1000 {
		t.Fatalf("input pool mutated")
	}
	if _, err := ApplySwap(pool, tokenA, big.NewInt(1), big.NewInt(1000)); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

func TestApplyDepositAndWithdrawal(t *testing.T) {
	pool := ApplyDeposit(testPool(100, 200, 1000), big.NewInt(10), big.NewInt(20), big.NewInt(100))
	if pool.Reserve0.Int64() != 110 || pool.Reserve1.Int64() != 220 || pool.TotalSupply.Int64() != 1100 {
		t.Fatalf("deposit mismatch: %+v", pool)
	}
	out, err := ApplyWithdrawal(pool, big.NewInt(10), big.NewInt(20), big.NewInt(100))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out.Reserve0.Int64() != 100 || out.Reserve1.Int64() != 200 || out.TotalSupply.Int64() != 1000 {
		t.Fatalf("withdraw mismatch: %+v", out)
	}
}
