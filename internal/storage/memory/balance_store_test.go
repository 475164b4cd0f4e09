package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

func TestBalanceStore_AdjustNeverNegative(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()
	token := model.Token{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Network: "bsc"}

	if err := store.PutBalance(ctx, model.Balance{WalletID: "w1", Token: token, Amount: big.NewInt(50)}); err != nil {
		t.Fatalf("PutBalance failed: %v", err)
	}
	if _, err := store.AdjustBalance(ctx, "w1", token, big.NewInt(-51), time.Now()); !errors.Is(err, storage.ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}
	got, err := store.AdjustBalance(ctx, "w1", token, big.NewInt(-50), time.Now())
	if err != nil {
		t.Fatalf("AdjustBalance failed: %v", err)
	}
	if got.Amount.Sign() != 0 {
		t.Fatalf("amount mismatch: %s", got.Amount)
	}

	// Returned balances must not alias stored state.
	got.Amount.SetInt64(999)
	again, _ := store.GetBalance(ctx, "w1", token)
	if again.Amount.Sign() != 0 {
		t.Fatalf("store aliased returned amount")
	}
}

func TestBalanceStore_TokenIdentityIgnoresCase(t *testing.T) {
	store := NewBalanceStore()
	ctx := context.Background()
	lower := model.Token{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Network: "bsc"}
	upper := model.Token{Address: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", Network: "BSC", Symbol: "AAA"}

	if err := store.PutBalance(ctx, model.Balance{WalletID: "w1", Token: lower, Amount: big.NewInt(5)}); err != nil {
		t.Fatalf("PutBalance failed: %v", err)
	}
	got, err := store.GetBalance(ctx, "w1", upper)
	if err != nil || got.Amount.Int64() != 5 {
		t.Fatalf("lookup by equal token failed: %v %+v", err, got)
	}
}
