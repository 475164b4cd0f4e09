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

func TestTransactionStore_FinalizeOnce(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	tx := model.Transaction{
		ID:        "tx1",
		WalletID:  "w1",
		Type:      model.TxTransfer,
		Amount:    big.NewInt(10),
		Status:    model.StatusPending,
		CreatedAt: time.Unix(1700000000, 0),
	}
	if err := store.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	ok, err := store.FinalizeTransaction(ctx, "tx1", model.StatusConfirmed, "", time.Unix(1700000100, 0))
	if err != nil || !ok {
		t.Fatalf("first finalize: ok=%v err=%v", ok, err)
	}
	ok, err = store.FinalizeTransaction(ctx, "tx1", model.StatusFailed, "late", time.Now())
	if err != nil || ok {
		t.Fatalf("second finalize should be a no-op: ok=%v err=%v", ok, err)
	}

	got, err := store.GetTransaction(ctx, "tx1")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if got.Status != model.StatusConfirmed || got.FailureReason != "" || got.ConfirmedAt == nil {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestTransactionStore_ChainHashWriteOnce(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	if err := store.CreateTransaction(ctx, model.Transaction{ID: "tx1", WalletID: "w1", Amount: big.NewInt(1), Status: model.StatusPending}); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	if err := store.SetChainHash(ctx, "tx1", "0xaa"); err != nil {
		t.Fatalf("SetChainHash failed: %v", err)
	}
	if err := store.SetChainHash(ctx, "tx1", "0xbb"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTransactionStore_ListOrdering(t *testing.T) {
	store := NewTransactionStore()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		tx := model.Transaction{
			ID:        id,
			WalletID:  "w1",
			Amount:    big.NewInt(1),
			Status:    model.StatusPending,
			CreatedAt: time.Unix(int64(1000+i), 0),
		}
		if err := store.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}
	if _, err := store.FinalizeTransaction(ctx, "a", model.StatusFailed, "x", time.Now()); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	history, _ := store.ListTransactionsByWallet(ctx, "w1", 2)
	if len(history) != 2 || history[0].ID != "c" || history[1].ID != "b" {
		t.Fatalf("history mismatch: %+v", history)
	}
	pending, _ := store.ListPendingTransactions(ctx, 0)
	if len(pending) != 2 || pending[0].ID != "b" {
		t.Fatalf("pending mismatch: %+v", pending)
	}
}
