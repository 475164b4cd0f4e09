package model

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestSwapDetailsJSONStringFields(t *testing.T) {
	details := SwapDetails{
		PoolID:       "0x1111111111111111111111111111111111111111",
		TokenIn:      Token{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Symbol: "AAA", Decimals: 18, Network: "bsc"},
		TokenOut:     Token{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Symbol: "BBB", Decimals: 6, Network: "bsc"},
		AmountIn:     mustAmount(t, "12345678901234567890"),
		QuotedOut:    big.NewInt(42),
		MinAmountOut: big.NewInt(40),
		Fee:          big.NewInt(3),
	}

	data, err := MarshalDetails(details)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"amount_in", "quoted_out", "min_amount_out", "fee"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}

	back, err := UnmarshalDetails(TxSwap, data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	swap, ok := back.(SwapDetails)
	if !ok {
		t.Fatalf("decoded type mismatch: %T", back)
	}
	if swap.AmountIn.Cmp(details.AmountIn) != 0 || !swap.TokenOut.Equal(details.TokenOut) {
		t.Fatalf("swap details mismatch: %+v", swap)
	}
}

func TestUnmarshalDetailsUnknownType(t *testing.T) {
	if _, err := UnmarshalDetails(TxType("BRIDGE"), []byte("{}")); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestUnmarshalDetailsInvalidAmount(t *testing.T) {
	if _, err := UnmarshalDetails(TxLiquidityRemove, []byte(`{"lp_units":"1.5"}`)); err == nil {
		t.Fatalf("expected error for fractional amount")
	}
}

func TestSetChainHashOnce(t *testing.T) {
	tx := Transaction{}
	if err := tx.SetChainHash("0xabc"); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := tx.SetChainHash("0xabc"); err != nil {
		t.Fatalf("same hash should be accepted: %v", err)
	}
	if err := tx.SetChainHash("0xdef"); err != ErrChainHashSet {
		t.Fatalf("expected ErrChainHashSet, got %v", err)
	}
	if tx.ChainHash != "0xabc" {
		t.Fatalf("hash changed: %s", tx.ChainHash)
	}
}

func TestNewPositionShare(t *testing.T) {
	pool := Pool{
		ID:          "pool",
		Reserve0:    big.NewInt(1000),
		Reserve1:    big.NewInt(4000),
		TotalSupply: big.NewInt(2000),
	}
	pos := NewPosition(pool, "w1", big.NewInt(500))
	if pos.Token0Amount.Int64() != 250 || pos.Token1Amount.Int64() != 1000 {
		t.Fatalf("amounts mismatch: %s %s", pos.Token0Amount, pos.Token1Amount)
	}
	if pos.Share.String() != "0.25" {
		t.Fatalf("share mismatch: %s", pos.Share)
	}

	empty := NewPosition(Pool{ID: "p"}, "w1", nil)
	if empty.LPUnits.Sign() != 0 || !empty.Share.IsZero() {
		t.Fatalf("empty position should be zero: %+v", empty)
	}
}

func mustAmount(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := ParseAmount(s)
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	return v
}
