package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
	"walletEngine/internal/storage/memory"
)

var usdt = model.Token{Address: "0x55d398326f99059fF775485246999027B3197955", Symbol: "USDT", Decimals: 18, Network: "bsc"}

type fixedSource struct {
	mu      sync.Mutex
	amounts map[string]*big.Int
	calls   int
}

func (f *fixedSource) Balance(_ context.Context, _ model.Wallet, token model.Token) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if v, ok := f.amounts[token.Key()]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func newTestLedger(t *testing.T, balance int64) (*Ledger, model.Wallet, *memory.BalanceStore) {
	t.Helper()
	store := memory.NewBalanceStore()
	wallet := model.Wallet{ID: "w1", UserID: "u1", Address: "0x1", Network: "bsc", IsActive: true}
	require.NoError(t, store.PutBalance(context.Background(), model.Balance{WalletID: wallet.ID, Token: usdt, Amount: big.NewInt(balance)}))
	return New(store, &fixedSource{}, nil), wallet, store
}

func TestReserveConcurrentExactlyOneSucceeds(t *testing.T) {
	l, wallet, _ := newTestLedger(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(ctx, wallet, usdt, big.NewInt(60))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)

	spendable, err := l.Spendable(ctx, wallet, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(40), spendable.Int64())
}

func TestCommitAppliesDeltaOnce(t *testing.T) {
	l, wallet, store := newTestLedger(t, 100)
	ctx := context.Background()

	res, err := l.Reserve(ctx, wallet, usdt, big.NewInt(30))
	require.NoError(t, err)

	balance, err := l.Commit(ctx, res, big.NewInt(-30))
	require.NoError(t, err)
	require.Equal(t, int64(70), balance.Amount.Int64())

	_, err = l.Commit(ctx, res, big.NewInt(-30))
	require.ErrorIs(t, err, ErrReservationClosed)
	require.False(t, l.Release(res))

	stored, err := store.GetBalance(ctx, wallet.ID, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(70), stored.Amount.Int64())

	spendable, err := l.Spendable(ctx, wallet, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(70), spendable.Int64())
}

func TestReleaseRestoresSpendableOnly(t *testing.T) {
	l, wallet, store := newTestLedger(t, 100)
	ctx := context.Background()

	res, err := l.Reserve(ctx, wallet, usdt, big.NewInt(100))
	require.NoError(t, err)

	_, err = l.Reserve(ctx, wallet, usdt, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	require.True(t, l.Release(res))
	spendable, err := l.Spendable(ctx, wallet, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(100), spendable.Int64())

	stored, err := store.GetBalance(ctx, wallet.ID, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(100), stored.Amount.Int64())
}

func TestCommitRejectsNegativeBalance(t *testing.T) {
	l, wallet, _ := newTestLedger(t, 10)
	ctx := context.Background()

	res, err := l.Reserve(ctx, wallet, usdt, big.NewInt(10))
	require.NoError(t, err)

	_, err = l.Commit(ctx, res, big.NewInt(-11))
	require.ErrorIs(t, err, storage.ErrNegativeBalance)
	require.True(t, l.Release(res), "failed commit must leave the reservation releasable")
}

func TestBalanceResyncOnMiss(t *testing.T) {
	store := memory.NewBalanceStore()
	source := &fixedSource{amounts: map[string]*big.Int{usdt.Key(): big.NewInt(500)}}
	l := New(store, source, nil)
	wallet := model.Wallet{ID: "w2", Network: "bsc"}
	ctx := context.Background()

	balance, err := l.Balance(ctx, wallet, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(500), balance.Amount.Int64())

	_, err = l.Balance(ctx, wallet, usdt)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)
}

func TestSyncRefusesWithOpenReservations(t *testing.T) {
	l, wallet, _ := newTestLedger(t, 100)
	ctx := context.Background()

	res, err := l.Reserve(ctx, wallet, usdt, big.NewInt(1))
	require.NoError(t, err)
	_, err = l.Sync(ctx, wallet, usdt)
	require.ErrorIs(t, err, ErrPendingReservations)

	l.Release(res)
	balance, err := l.Sync(ctx, wallet, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance.Amount.Int64())
}

func TestCreditExistingBalance(t *testing.T) {
	l, wallet, _ := newTestLedger(t, 5)
	balance, err := l.Credit(context.Background(), wallet, usdt, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, int64(12), balance.Amount.Int64())
}

func TestCreditWithoutStoredRowKeepsAmount(t *testing.T) {
	store := memory.NewBalanceStore()
	source := &fixedSource{amounts: map[string]*big.Int{usdt.Key(): big.NewInt(0)}}
	l := New(store, source, nil)
	wallet := model.Wallet{ID: "w2", UserID: "u2", Address: "0x2", Network: "bsc", IsActive: true}

	balance, err := l.Credit(context.Background(), wallet, usdt, big.NewInt(75))
	require.NoError(t, err)
	require.Equal(t, int64(75), balance.Amount.Int64())
	require.Equal(t, 0, source.calls)

	stored, err := store.GetBalance(context.Background(), wallet.ID, usdt)
	require.NoError(t, err)
	require.Equal(t, int64(75), stored.Amount.Int64())
}
