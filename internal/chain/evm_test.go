package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"walletEngine/internal/model"
)

type fakeBackend struct {
	mu       sync.Mutex
	code     map[common.Address][]byte
	native   *big.Int
	erc20    *big.Int
	receipt  *types.Receipt
	sent     []*types.Transaction
	nonce    uint64
	sendErr  error
	nonceErr []error
}

func (f *fakeBackend) CodeAt(_ context.Context, account common.Address) ([]byte, error) {
	return f.code[account], nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.nonceErr) > 0 {
		err := f.nonceErr[0]
		f.nonceErr = f.nonceErr[1:]
		return 0, err
	}
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 65_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	erc20, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}
	return erc20.Methods["balanceOf"].Outputs.Pack(f.erc20)
}

type keySigner struct {
	key *ecdsa.PrivateKey
}

func (s keySigner) SignTx(_ context.Context, _ model.Wallet, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

type poolMap map[string]model.Pool

func (p poolMap) Pool(_ context.Context, id string) (model.Pool, error) {
	pool, ok := p[id]
	if !ok {
		return model.Pool{}, errors.New("no pool")
	}
	return pool, nil
}

const (
	usdcAddr   = "0x1000000000000000000000000000000000000001"
	wethAddr   = "0x2000000000000000000000000000000000000002"
	routerAddr = "0x3000000000000000000000000000000000000003"
	peerAddr   = "0x4000000000000000000000000000000000000004"
)

func newTestGateway(t *testing.T, backend *fakeBackend) (*EVMGateway, model.Wallet) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pools := poolMap{"pool-1": {
		ID:      "pool-1",
		Network: "sepolia",
		Token0:  model.Token{Address: usdcAddr, Symbol: "USDC", Network: "sepolia"},
		Token1:  model.Token{Address: wethAddr, Symbol: "WETH", Network: "sepolia"},
	}}
	gw, err := NewEVMGateway(EVMConfig{
		Network: "sepolia",
		ChainID: big.NewInt(11155111),
		Router:  routerAddr,
	}, backend, keySigner{key: key}, pools, nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	wallet := model.Wallet{ID: "w1", Address: crypto.PubkeyToAddress(key.PublicKey).Hex(), Network: "sepolia"}
	return gw, wallet
}

func TestSubmitERC20Transfer(t *testing.T) {
	backend := &fakeBackend{nonce: 7}
	gw, wallet := newTestGateway(t, backend)

	tx := model.Transaction{
		ID:      "tx-1",
		Type:    model.TxTransfer,
		Token:   model.Token{Address: usdcAddr, Symbol: "USDC", Network: "sepolia"},
		Amount:  big.NewInt(1_500_000),
		Details: model.TransferDetails{Recipient: peerAddr},
	}
	hash, err := gw.Submit(context.Background(), wallet, tx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(backend.sent))
	}
	sent := backend.sent[0]
	if sent.Hash().Hex() != hash {
		t.Fatalf("hash mismatch: %s vs %s", sent.Hash().Hex(), hash)
	}
	if sent.Nonce() != 7 {
		t.Fatalf("expected nonce 7, got %d", sent.Nonce())
	}
	if *sent.To() != common.HexToAddress(usdcAddr) {
		t.Fatalf("expected call to token contract, got %s", sent.To().Hex())
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), sent)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != common.HexToAddress(wallet.Address) {
		t.Fatalf("unexpected sender %s", sender.Hex())
	}

	erc20, _ := erc20ABIInstance()
	method, err := erc20.MethodById(sent.Data()[:4])
	if err != nil || method.Name != "transfer" {
		t.Fatalf("expected transfer selector, got %v %v", method, err)
	}
	args, err := method.Inputs.Unpack(sent.Data()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(peerAddr) || args[1].(*big.Int).Int64() != 1_500_000 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestSubmitNativeTransferCarriesValue(t *testing.T) {
	backend := &fakeBackend{}
	gw, wallet := newTestGateway(t, backend)

	tx := model.Transaction{
		ID:      "tx-2",
		Type:    model.TxTransfer,
		Token:   model.Token{Address: model.NativeTokenAddress, Symbol: "ETH", Network: "sepolia"},
		Amount:  big.NewInt(42),
		Details: model.TransferDetails{Recipient: peerAddr},
	}
	if _, err := gw.Submit(context.Background(), wallet, tx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sent := backend.sent[0]
	if sent.Value().Int64() != 42 || len(sent.Data()) != 0 {
		t.Fatalf("expected plain value transfer, got value=%s data=%x", sent.Value(), sent.Data())
	}
}

func TestSubmitSwapPacksPath(t *testing.T) {
	backend := &fakeBackend{}
	gw, wallet := newTestGateway(t, backend)

	tx := model.Transaction{
		ID:   "tx-3",
		Type: model.TxSwap,
		Details: model.SwapDetails{
			PoolID:       "pool-1",
			TokenIn:      model.Token{Address: usdcAddr, Network: "sepolia"},
			TokenOut:     model.Token{Address: wethAddr, Network: "sepolia"},
			AmountIn:     big.NewInt(100),
			MinAmountOut: big.NewInt(90),
		},
	}
	if _, err := gw.Submit(context.Background(), wallet, tx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sent := backend.sent[0]
	if *sent.To() != common.HexToAddress(routerAddr) {
		t.Fatalf("expected router call, got %s", sent.To().Hex())
	}
	router, _ := routerABIInstance()
	method, err := router.MethodById(sent.Data()[:4])
	if err != nil || method.Name != "swapExactTokensForTokens" {
		t.Fatalf("unexpected method %v %v", method, err)
	}
	args, err := method.Inputs.Unpack(sent.Data()[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	path := args[2].([]common.Address)
	if len(path) != 2 || path[0] != common.HexToAddress(usdcAddr) || path[1] != common.HexToAddress(wethAddr) {
		t.Fatalf("unexpected path %v", path)
	}
	if args[1].(*big.Int).Int64() != 90 {
		t.Fatalf("expected min out 90, got %v", args[1])
	}
}

func TestSubmitRetriesNonceLookup(t *testing.T) {
	backend := &fakeBackend{nonceErr: []error{errors.New("timeout")}}
	gw, wallet := newTestGateway(t, backend)
	gw.cfg.MaxRetries = 2
	gw.cfg.RetryDelay = 1

	tx := model.Transaction{
		ID:      "tx-4",
		Type:    model.TxTransfer,
		Token:   model.Token{Address: model.NativeTokenAddress, Network: "sepolia"},
		Amount:  big.NewInt(1),
		Details: model.TransferDetails{Recipient: peerAddr},
	}
	if _, err := gw.Submit(context.Background(), wallet, tx); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitPropagatesSendError(t *testing.T) {
	backend := &fakeBackend{sendErr: errors.New("nonce too low")}
	gw, wallet := newTestGateway(t, backend)

	tx := model.Transaction{
		ID:      "tx-5",
		Type:    model.TxTransfer,
		Token:   model.Token{Address: model.NativeTokenAddress, Network: "sepolia"},
		Amount:  big.NewInt(1),
		Details: model.TransferDetails{Recipient: peerAddr},
	}
	if _, err := gw.Submit(context.Background(), wallet, tx); err == nil {
		t.Fatalf("expected send error")
	}
}

func TestStatusFromReceipt(t *testing.T) {
	backend := &fakeBackend{}
	gw, wallet := newTestGateway(t, backend)
	tx := model.Transaction{
		ID:        "tx-6",
		Type:      model.TxSwap,
		ChainHash: "0xabc",
		Details: model.SwapDetails{
			TokenIn:  model.Token{Address: usdcAddr},
			TokenOut: model.Token{Address: wethAddr},
		},
	}

	res, err := gw.Status(context.Background(), wallet, tx)
	if err != nil || res.State != StatePending {
		t.Fatalf("expected pending, got %v %v", res, err)
	}

	backend.receipt = &types.Receipt{Status: types.ReceiptStatusFailed}
	res, err = gw.Status(context.Background(), wallet, tx)
	if err != nil || res.State != StateFailed || res.Reason != ReasonExecutionReverted {
		t.Fatalf("expected revert, got %v %v", res, err)
	}

	owner := common.HexToAddress(wallet.Address)
	backend.receipt = &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		Logs: []*types.Log{{
			Address: common.HexToAddress(wethAddr),
			Topics: []common.Hash{
				TransferEventID,
				common.BytesToHash(common.HexToAddress(routerAddr).Bytes()),
				common.BytesToHash(owner.Bytes()),
			},
			Data: common.LeftPadBytes(big.NewInt(88).Bytes(), 32),
		}},
	}
	res, err = gw.Status(context.Background(), wallet, tx)
	if err != nil || res.State != StateConfirmed {
		t.Fatalf("expected confirmed, got %v %v", res, err)
	}
	if res.AmountOut == nil || res.AmountOut.Int64() != 88 {
		t.Fatalf("expected realized out 88, got %v", res.AmountOut)
	}
}

func TestBalanceAndContractDetection(t *testing.T) {
	backend := &fakeBackend{
		native: big.NewInt(5),
		erc20:  big.NewInt(1234),
		code:   map[common.Address][]byte{common.HexToAddress(routerAddr): {0x60, 0x80}},
	}
	gw, wallet := newTestGateway(t, backend)
	ctx := context.Background()

	native, err := gw.Balance(ctx, wallet, model.Token{Address: model.NativeTokenAddress})
	if err != nil || native.Int64() != 5 {
		t.Fatalf("native balance: %v %v", native, err)
	}
	token, err := gw.Balance(ctx, wallet, model.Token{Address: usdcAddr})
	if err != nil || token.Int64() != 1234 {
		t.Fatalf("erc20 balance: %v %v", token, err)
	}

	isContract, err := gw.IsContractAddress(ctx, "sepolia", routerAddr)
	if err != nil || !isContract {
		t.Fatalf("expected contract, got %v %v", isContract, err)
	}
	isContract, err = gw.IsContractAddress(ctx, "sepolia", peerAddr)
	if err != nil || isContract {
		t.Fatalf("expected account, got %v %v", isContract, err)
	}
	if _, err := gw.IsContractAddress(ctx, "mainnet", peerAddr); !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("expected unsupported network, got %v", err)
	}
}
