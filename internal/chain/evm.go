package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"walletEngine/internal/model"
)

// ReasonExecutionReverted is reported for mined transactions with a failed receipt.
const ReasonExecutionReverted = "ExecutionReverted"

// Backend is the subset of RPC calls the EVM gateway uses. *Client implements it.
type Backend interface {
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Signer signs transactions with the custodial key of a wallet.
type Signer interface {
	SignTx(ctx context.Context, wallet model.Wallet, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// PoolSource resolves pool token pairs for liquidity calls.
type PoolSource interface {
	Pool(ctx context.Context, poolID string) (model.Pool, error)
}

// EVMConfig configures an EVM gateway for one network.
type EVMConfig struct {
	Network    string
	ChainID    *big.Int
	Router     string
	SubmitRate float64
	MaxRetries int
	RetryDelay time.Duration
	Deadline   time.Duration
}

// EVMGateway talks to an EVM chain through JSON-RPC. Token approvals for the router are
// expected to be in place for custodial wallets.
type EVMGateway struct {
	cfg     EVMConfig
	backend Backend
	signer  Signer
	pools   PoolSource
	router  common.Address
	limiter *rate.Limiter
	logger  *zap.Logger
	clock   func() time.Time
}

func NewEVMGateway(cfg EVMConfig, backend Backend, signer Signer, pools PoolSource, logger *zap.Logger) (*EVMGateway, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is nil")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 20 * time.Minute
	}
	var router common.Address
	if cfg.Router != "" {
		addr, err := ParseAddress(cfg.Router)
		if err != nil {
			return nil, fmt.Errorf("parse router: %w", err)
		}
		router = addr
	}
	limit := rate.Inf
	if cfg.SubmitRate > 0 {
		limit = rate.Limit(cfg.SubmitRate)
	}
	return &EVMGateway{
		cfg:     cfg,
		backend: backend,
		signer:  signer,
		pools:   pools,
		router:  router,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		clock:   time.Now,
	}, nil
}

// call is a contract call or value transfer ready to be signed.
type call struct {
	to    common.Address
	value *big.Int
	data  []byte
}

// Submit builds, signs and broadcasts tx. The nonce is taken from the pending pool.
func (g *EVMGateway) Submit(ctx context.Context, wallet model.Wallet, tx model.Transaction) (string, error) {
	if err := g.checkNetwork(wallet.Network); err != nil {
		return "", err
	}
	from, err := ParseAddress(wallet.Address)
	if err != nil {
		return "", err
	}
	c, err := g.buildCall(ctx, from, tx)
	if err != nil {
		return "", err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait submit slot: %w", err)
	}

	var nonce uint64
	if err := Retry(ctx, g.cfg.MaxRetries, g.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		nonce, err = g.backend.PendingNonceAt(ctx, from)
		return err
	}); err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	var gasPrice *big.Int
	if err := Retry(ctx, g.cfg.MaxRetries, g.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		gasPrice, err = g.backend.SuggestGasPrice(ctx)
		return err
	}); err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	to := c.to
	gas, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: c.value, Data: c.data})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	raw := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    c.value,
		Data:     c.data,
	})
	signed, err := g.signer.SignTx(ctx, wallet, raw, g.cfg.ChainID)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	g.logger.Info("tx broadcast",
		zap.String("tx_id", tx.ID),
		zap.String("wallet_id", wallet.ID),
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)
	return signed.Hash().Hex(), nil
}

// Status polls the receipt of a submitted transaction. A missing receipt is pending.
func (g *EVMGateway) Status(ctx context.Context, wallet model.Wallet, tx model.Transaction) (Result, error) {
	if tx.ChainHash == "" {
		return Result{}, fmt.Errorf("transaction %s has no chain hash", tx.ID)
	}
	var receipt *types.Receipt
	err := Retry(ctx, g.cfg.MaxRetries, g.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		receipt, err = g.backend.TransactionReceipt(ctx, common.HexToHash(tx.ChainHash))
		if errors.Is(err, ethereum.NotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		return Result{State: StatePending}, nil
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return Failed(ReasonExecutionReverted), nil
	}

	owner := common.HexToAddress(wallet.Address)
	result := Confirmed()
	switch d := tx.Details.(type) {
	case model.SwapDetails:
		result.AmountOut = transferred(receipt.Logs, d.TokenOut, nil, &owner)
	case model.LiquidityAddDetails, model.LiquidityRemoveDetails:
		pool, err := g.pool(ctx, tx)
		if err != nil {
			g.logger.Warn("pool lookup for receipt failed", zap.String("tx_id", tx.ID), zap.Error(err))
			return result, nil
		}
		from, to := &owner, (*common.Address)(nil)
		if tx.Type == model.TxLiquidityRemove {
			from, to = nil, &owner
		}
		result.Amount0 = transferred(receipt.Logs, pool.Token0, from, to)
		result.Amount1 = transferred(receipt.Logs, pool.Token1, from, to)
	}
	return result, nil
}

// Balance reads the native or ERC20 balance of the wallet.
func (g *EVMGateway) Balance(ctx context.Context, wallet model.Wallet, token model.Token) (*big.Int, error) {
	if err := g.checkNetwork(wallet.Network); err != nil {
		return nil, err
	}
	owner, err := ParseAddress(wallet.Address)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	err = Retry(ctx, g.cfg.MaxRetries, g.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		if token.IsNative() {
			balance, err = g.backend.BalanceAt(ctx, owner)
			return err
		}
		balance, err = g.balanceOf(ctx, common.HexToAddress(token.Address), owner)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", token.Symbol, err)
	}
	return balance, nil
}

// IsContractAddress reports whether code is deployed at address.
func (g *EVMGateway) IsContractAddress(ctx context.Context, network, address string) (bool, error) {
	if err := g.checkNetwork(network); err != nil {
		return false, err
	}
	addr, err := ParseAddress(address)
	if err != nil {
		return false, err
	}
	var code []byte
	if err := Retry(ctx, g.cfg.MaxRetries, g.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		code, err = g.backend.CodeAt(ctx, addr)
		return err
	}); err != nil {
		return false, fmt.Errorf("code at %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

func (g *EVMGateway) checkNetwork(network string) error {
	if g.cfg.Network != "" && !strings.EqualFold(network, g.cfg.Network) {
		return fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	return nil
}

func (g *EVMGateway) buildCall(ctx context.Context, from common.Address, tx model.Transaction) (call, error) {
	switch d := tx.Details.(type) {
	case model.TransferDetails:
		recipient, err := ParseAddress(d.Recipient)
		if err != nil {
			return call{}, err
		}
		if tx.Token.IsNative() {
			return call{to: recipient, value: new(big.Int).Set(tx.Amount)}, nil
		}
		erc20, err := erc20ABIInstance()
		if err != nil {
			return call{}, fmt.Errorf("parse erc20 abi: %w", err)
		}
		data, err := erc20.Pack("transfer", recipient, tx.Amount)
		if err != nil {
			return call{}, fmt.Errorf("pack transfer: %w", err)
		}
		return call{to: common.HexToAddress(tx.Token.Address), value: new(big.Int), data: data}, nil

	case model.SwapDetails:
		data, err := g.packRouter("swapExactTokensForTokens",
			d.AmountIn,
			orZero(d.MinAmountOut),
			[]common.Address{common.HexToAddress(d.TokenIn.Address), common.HexToAddress(d.TokenOut.Address)},
			from,
			g.deadline(),
		)
		if err != nil {
			return call{}, err
		}
		return call{to: g.router, value: new(big.Int), data: data}, nil

	case model.LiquidityAddDetails:
		pool, err := g.pool(ctx, tx)
		if err != nil {
			return call{}, err
		}
		data, err := g.packRouter("addLiquidity",
			common.HexToAddress(pool.Token0.Address),
			common.HexToAddress(pool.Token1.Address),
			d.Amount0,
			d.Amount1,
			orZero(d.Amount0Min),
			orZero(d.Amount1Min),
			from,
			g.deadline(),
		)
		if err != nil {
			return call{}, err
		}
		return call{to: g.router, value: new(big.Int), data: data}, nil

	case model.LiquidityRemoveDetails:
		pool, err := g.pool(ctx, tx)
		if err != nil {
			return call{}, err
		}
		data, err := g.packRouter("removeLiquidity",
			common.HexToAddress(pool.Token0.Address),
			common.HexToAddress(pool.Token1.Address),
			d.LPUnits,
			orZero(d.Amount0Min),
			orZero(d.Amount1Min),
			from,
			g.deadline(),
		)
		if err != nil {
			return call{}, err
		}
		return call{to: g.router, value: new(big.Int), data: data}, nil
	}
	return call{}, fmt.Errorf("%w: %s", ErrUnsupportedTx, tx.Type)
}

func (g *EVMGateway) packRouter(method string, args ...interface{}) ([]byte, error) {
	if g.router == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s requires a router address", ErrUnsupportedTx, method)
	}
	router, err := routerABIInstance()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	data, err := router.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

func (g *EVMGateway) pool(ctx context.Context, tx model.Transaction) (model.Pool, error) {
	if g.pools == nil {
		return model.Pool{}, fmt.Errorf("pool source is nil")
	}
	var poolID string
	switch d := tx.Details.(type) {
	case model.LiquidityAddDetails:
		poolID = d.PoolID
	case model.LiquidityRemoveDetails:
		poolID = d.PoolID
	}
	return g.pools.Pool(ctx, poolID)
}

func (g *EVMGateway) deadline() *big.Int {
	return big.NewInt(g.clock().Add(g.cfg.Deadline).Unix())
}

func (g *EVMGateway) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc20, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}
	data, err := erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	resp, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	values, err := erc20.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("balanceOf returned no values")
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return balance, nil
}

// transferred sums ERC20 Transfer events of token matching the optional from/to filters.
// It returns nil when nothing matched.
func transferred(logs []*types.Log, token model.Token, from, to *common.Address) *big.Int {
	tokenAddr := common.HexToAddress(token.Address)
	var total *big.Int
	for _, lg := range logs {
		if lg == nil || lg.Address != tokenAddr || len(lg.Topics) != 3 || lg.Topics[0] != TransferEventID {
			continue
		}
		if from != nil && common.BytesToAddress(lg.Topics[1].Bytes()) != *from {
			continue
		}
		if to != nil && common.BytesToAddress(lg.Topics[2].Bytes()) != *to {
			continue
		}
		if total == nil {
			total = new(big.Int)
		}
		total.Add(total, new(big.Int).SetBytes(lg.Data))
	}
	return total
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
