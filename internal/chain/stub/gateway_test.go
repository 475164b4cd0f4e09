package stub

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"walletEngine/internal/chain"
	"walletEngine/internal/model"
)

func TestConfirmAfterAndSettleOnce(t *testing.T) {
	g := New()
	g.SetOutcome(ConfirmAfter(2))
	usdc := model.Token{Address: "0x1000000000000000000000000000000000000001", Symbol: "USDC", Network: "sepolia"}
	wallet := model.Wallet{ID: "w1", Network: "sepolia"}
	g.SetBalance("w1", usdc, big.NewInt(100))

	tx := model.Transaction{ID: "tx-1", Token: usdc, Amount: big.NewInt(30), Details: model.TransferDetails{}}
	hash, err := g.Submit(context.Background(), wallet, tx)
	if err != nil || hash != Hash(tx) {
		t.Fatalf("submit: %s %v", hash, err)
	}
	for i, want := range []chain.State{chain.StatePending, chain.StateConfirmed, chain.StateConfirmed} {
		res, _ := g.Status(context.Background(), wallet, tx)
		if res.State != want {
			t.Fatalf("poll %d: expected %s, got %s", i+1, want, res.State)
		}
	}
	bal, _ := g.Balance(context.Background(), wallet, usdc)
	if bal.Int64() != 70 {
		t.Fatalf("expected single settlement to 70, got %s", bal)
	}
	if g.Polls("tx-1") != 3 {
		t.Fatalf("expected 3 polls, got %d", g.Polls("tx-1"))
	}
}

func TestFailSubmissions(t *testing.T) {
	g := New()
	boom := errors.New("insufficient gas")
	g.FailSubmissions(boom)
	if _, err := g.Submit(context.Background(), model.Wallet{}, model.Transaction{ID: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected submit failure, got %v", err)
	}
	if len(g.Submitted()) != 0 {
		t.Fatalf("failed submission recorded")
	}
}
