package deposits

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"walletEngine/internal/chain"
	"walletEngine/internal/engine"
	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

var (
	usdc    = model.Token{Address: "0x1000000000000000000000000000000000000001", Symbol: "USDC", Decimals: 6, Network: "sepolia"}
	custody = common.HexToAddress("0x6000000000000000000000000000000000000006")
	other   = common.HexToAddress("0x7000000000000000000000000000000000000007")
)

type fakeSource struct {
	head    uint64
	logs    []types.Log
	queries []blockRange
}

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ [][]common.Hash) ([]types.Log, error) {
	f.queries = append(f.queries, blockRange{From: from, To: to})
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

type fakeDirectory map[string]model.Wallet

func (d fakeDirectory) ByAddress(_ context.Context, _ string, address string) (model.Wallet, error) {
	if w, ok := d[strings.ToLower(address)]; ok {
		return w, nil
	}
	return model.Wallet{}, storage.ErrNotFound
}

type fakeSyncer struct {
	busy  int
	calls []string
}

func (s *fakeSyncer) SyncIfIdle(_ context.Context, walletID string, token model.Token) (model.Balance, error) {
	s.calls = append(s.calls, walletID+":"+token.Symbol)
	if s.busy > 0 {
		s.busy--
		return model.Balance{}, fmt.Errorf("%w: %s", engine.ErrWalletBusy, walletID)
	}
	return model.Balance{WalletID: walletID, Token: token, Amount: big.NewInt(1)}, nil
}

func transferLog(block uint64, to common.Address) types.Log {
	return types.Log{
		Address:     common.HexToAddress(usdc.Address),
		BlockNumber: block,
		Topics: []common.Hash{
			chain.TransferEventID,
			common.BytesToHash(other.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(big.NewInt(5).Bytes(), 32),
	}
}

func newWatcher(t *testing.T, cfg Config, source *fakeSource, syncer *fakeSyncer) *Watcher {
	t.Helper()
	cfg.Network = "sepolia"
	cfg.Tokens = []model.Token{usdc}
	dir := fakeDirectory{strings.ToLower(custody.Hex()): {ID: "w1", Network: "sepolia", Address: custody.Hex()}}
	w, err := New(cfg, source, dir, syncer, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return w
}

func TestSplitRange(t *testing.T) {
	got, err := splitRange(100, 105, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []blockRange{{From: 100, To: 101}, {From: 102, To: 103}, {From: 104, To: 105}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges mismatch: %+v != %+v", got, want)
	}

	got, err = splitRange(5, 5, 10)
	if err != nil || !reflect.DeepEqual(got, []blockRange{{From: 5, To: 5}}) {
		t.Fatalf("single range: %+v %v", got, err)
	}
	if _, err := splitRange(10, 9, 1); err == nil {
		t.Fatalf("expected error for invalid range")
	}
	if _, err := splitRange(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestScanRefreshesCustodialRecipientsOnly(t *testing.T) {
	source := &fakeSource{head: 112, logs: []types.Log{
		transferLog(101, custody),
		transferLog(102, other),
		transferLog(104, custody),
		transferLog(111, custody),
	}}
	syncer := &fakeSyncer{}
	w := newWatcher(t, Config{FromBlock: 100, BatchSize: 3, Confirmations: 2}, source, syncer)

	synced, err := w.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if synced != 1 || len(syncer.calls) != 1 || syncer.calls[0] != "w1:USDC" {
		t.Fatalf("expected one refresh of w1, got %d %v", synced, syncer.calls)
	}
	last := source.queries[len(source.queries)-1]
	if last.To != 110 {
		t.Fatalf("expected scan to stop at the safe head 110, got %+v", last)
	}

	source.head = 113
	source.queries = nil
	if _, err := w.Scan(context.Background()); err != nil {
		t.Fatalf("second Scan failed: %v", err)
	}
	if len(source.queries) != 1 || source.queries[0] != (blockRange{From: 111, To: 111}) {
		t.Fatalf("expected resume from checkpoint, got %+v", source.queries)
	}
	if len(syncer.calls) != 2 {
		t.Fatalf("expected deposit at block 111 to be refreshed, got %v", syncer.calls)
	}
}

func TestScanDefersBusyWallets(t *testing.T) {
	source := &fakeSource{head: 10, logs: []types.Log{transferLog(10, custody)}}
	syncer := &fakeSyncer{busy: 1}
	w := newWatcher(t, Config{FromBlock: 10}, source, syncer)

	synced, err := w.Scan(context.Background())
	if err != nil || synced != 0 || w.Pending() != 1 {
		t.Fatalf("expected deferred refresh, got synced=%d pending=%d err=%v", synced, w.Pending(), err)
	}

	synced, err = w.Scan(context.Background())
	if err != nil || synced != 1 || w.Pending() != 0 {
		t.Fatalf("expected refresh on retry, got synced=%d pending=%d err=%v", synced, w.Pending(), err)
	}
}

func TestCheckpointPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deposits", "sepolia.json")
	source := &fakeSource{head: 50}
	w := newWatcher(t, Config{FromBlock: 40, CheckpointPath: path}, source, &fakeSyncer{})
	if _, err := w.Scan(context.Background()); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}

	last, ok, err := newCheckpointFile(path, "sepolia").Load()
	if err != nil || !ok || last != 50 {
		t.Fatalf("unexpected checkpoint: %d %v %v", last, ok, err)
	}
	if _, _, err := newCheckpointFile(path, "mainnet").Load(); err == nil {
		t.Fatalf("expected network mismatch error")
	}
}

func TestNewRequiresERC20Tokens(t *testing.T) {
	native := model.Token{Address: model.NativeTokenAddress, Symbol: "ETH", Decimals: 18, Network: "sepolia"}
	_, err := New(Config{Network: "sepolia", Tokens: []model.Token{native}}, &fakeSource{}, fakeDirectory{}, &fakeSyncer{}, nil)
	if err == nil {
		t.Fatalf("expected error without ERC20 tokens")
	}
}
