package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletEngine/internal/amm"
	"walletEngine/internal/chain"
	"walletEngine/internal/kyc"
	"walletEngine/internal/model"
	"walletEngine/internal/pricing"
	"walletEngine/internal/storage"
)

// Transfer sends amount of token from the wallet to an externally owned account.
func (e *Engine) Transfer(ctx context.Context, walletID string, token model.Token, recipient string, amount *big.Int) (model.Transaction, error) {
	if !positive(amount) {
		return model.Transaction{}, ErrInvalidAmount
	}
	w, err := e.wallets.Active(ctx, walletID)
	if err != nil {
		return model.Transaction{}, err
	}
	if !chain.ValidAddress(recipient) {
		return model.Transaction{}, fmt.Errorf("%w: malformed address %q", ErrInvalidRecipient, recipient)
	}
	isContract, err := e.gateway.IsContractAddress(ctx, w.Network, recipient)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("check recipient: %w", err)
	}
	if isContract {
		return model.Transaction{}, fmt.Errorf("%w: %s is a contract", ErrInvalidRecipient, recipient)
	}

	f := newFlight(w)
	if f.auth, err = e.authorize(ctx, w, pricedLeg{token, amount}); err != nil {
		return model.Transaction{}, err
	}
	if err := e.reserve(ctx, f, token, amount); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, err
	}

	tx := e.newTransaction(w, model.TxTransfer, recipient, token, amount, model.TransferDetails{Recipient: recipient})
	return e.launch(ctx, f, tx)
}

// Swap exchanges amountIn of tokenIn for the pool's other token, failing with
// amm.ErrSlippageExceeded when the quote is below minAmountOut.
func (e *Engine) Swap(ctx context.Context, walletID, poolID string, tokenIn model.Token, amountIn, minAmountOut *big.Int) (model.Transaction, error) {
	if !positive(amountIn) || !nonNegative(minAmountOut) {
		return model.Transaction{}, ErrInvalidAmount
	}
	w, pool, err := e.walletAndPool(ctx, walletID, poolID)
	if err != nil {
		return model.Transaction{}, err
	}
	if !pool.Has(tokenIn) {
		return model.Transaction{}, fmt.Errorf("%w: %s", amm.ErrUnknownToken, tokenIn.Symbol)
	}
	tokenIn = poolToken(pool, tokenIn)
	tokenOut := pool.Token1
	if tokenIn.Equal(pool.Token1) {
		tokenOut = pool.Token0
	}

	// The output row must hold the chain balance before the confirmation credits it.
	if _, err := e.ledger.Balance(ctx, w, tokenOut); err != nil {
		return model.Transaction{}, fmt.Errorf("load %s balance: %w", tokenOut.Symbol, err)
	}

	f := newFlight(w)
	if f.auth, err = e.authorize(ctx, w, pricedLeg{tokenIn, amountIn}); err != nil {
		return model.Transaction{}, err
	}
	if err := e.reserve(ctx, f, tokenIn, amountIn); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, err
	}
	quote, err := e.pools.Quote(ctx, poolID, tokenIn, amountIn)
	if err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, fmt.Errorf("quote swap: %w", err)
	}
	if err := amm.CheckSlippage(quote.AmountOut, minAmountOut); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, err
	}

	details := model.SwapDetails{
		PoolID:       poolID,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     new(big.Int).Set(amountIn),
		QuotedOut:    quote.AmountOut,
		MinAmountOut: copyOrNil(minAmountOut),
		Fee:          quote.Fee,
	}
	tx := e.newTransaction(w, model.TxSwap, pool.ID, tokenIn, amountIn, details)
	return e.launch(ctx, f, tx)
}

// AddLiquidity deposits both pool tokens at the pool's current ratio.
func (e *Engine) AddLiquidity(ctx context.Context, walletID, poolID string, amount0Desired, amount1Desired, amount0Min, amount1Min *big.Int) (model.Transaction, error) {
	if !positive(amount0Desired) || !positive(amount1Desired) || !nonNegative(amount0Min) || !nonNegative(amount1Min) {
		return model.Transaction{}, ErrInvalidAmount
	}
	w, pool, err := e.walletAndPool(ctx, walletID, poolID)
	if err != nil {
		return model.Transaction{}, err
	}

	f := newFlight(w)
	if f.auth, err = e.authorize(ctx, w, pricedLeg{pool.Token0, amount0Desired}, pricedLeg{pool.Token1, amount1Desired}); err != nil {
		return model.Transaction{}, err
	}
	if err := e.reserve(ctx, f, pool.Token0, amount0Desired); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, err
	}
	if err := e.reserve(ctx, f, pool.Token1, amount1Desired); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, err
	}
	deposit, err := e.pools.PlanDeposit(ctx, poolID, amount0Desired, amount1Desired)
	if err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, fmt.Errorf("plan deposit: %w", err)
	}
	if err := checkBoth(deposit.Amount0, amount0Min, deposit.Amount1, amount1Min); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, err
	}

	details := model.LiquidityAddDetails{
		PoolID:         poolID,
		Amount0Desired: new(big.Int).Set(amount0Desired),
		Amount1Desired: new(big.Int).Set(amount1Desired),
		Amount0:        deposit.Amount0,
		Amount1:        deposit.Amount1,
		Amount0Min:     copyOrNil(amount0Min),
		Amount1Min:     copyOrNil(amount1Min),
	}
	tx := e.newTransaction(w, model.TxLiquidityAdd, pool.ID, pool.Token0, deposit.Amount0, details)
	return e.launch(ctx, f, tx)
}

// RemoveLiquidity burns lpUnits of the wallet's position for a proportional payout.
func (e *Engine) RemoveLiquidity(ctx context.Context, walletID, poolID string, lpUnits, amount0Min, amount1Min *big.Int) (model.Transaction, error) {
	if !positive(lpUnits) || !nonNegative(amount0Min) || !nonNegative(amount1Min) {
		return model.Transaction{}, ErrInvalidAmount
	}
	w, pool, err := e.walletAndPool(ctx, walletID, poolID)
	if err != nil {
		return model.Transaction{}, err
	}

	for _, token := range []model.Token{pool.Token0, pool.Token1} {
		if _, err := e.ledger.Balance(ctx, w, token); err != nil {
			return model.Transaction{}, fmt.Errorf("load %s balance: %w", token.Symbol, err)
		}
	}

	f := newFlight(w)
	if f.hold, err = e.pools.HoldUnits(ctx, w.ID, poolID, lpUnits); err != nil {
		return model.Transaction{}, err
	}
	payout, err := e.pools.PlanWithdrawal(ctx, poolID, lpUnits)
	if err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, fmt.Errorf("plan withdrawal: %w", err)
	}
	if err := checkBoth(payout.Amount0, amount0Min, payout.Amount1, amount1Min); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, err
	}

	details := model.LiquidityRemoveDetails{
		PoolID:     poolID,
		LPUnits:    new(big.Int).Set(lpUnits),
		Amount0:    payout.Amount0,
		Amount1:    payout.Amount1,
		Amount0Min: copyOrNil(amount0Min),
		Amount1Min: copyOrNil(amount1Min),
	}
	tx := e.newTransaction(w, model.TxLiquidityRemove, pool.ID, model.LPToken(pool), lpUnits, details)
	return e.launch(ctx, f, tx)
}

// launch persists tx as PENDING, submits it and starts its monitor. The caller's context
// only matters until the transaction is created; from then on the flow runs to a terminal
// state regardless of cancellation.
func (e *Engine) launch(ctx context.Context, f *flight, tx model.Transaction) (model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		e.abandon(context.WithoutCancel(ctx), f)
		return model.Transaction{}, err
	}
	if e.isClosed() {
		e.abandon(ctx, f)
		return model.Transaction{}, ErrClosed
	}
	ctx = context.WithoutCancel(ctx)

	tx.Spend = f.auth.Spend()
	if err := e.txs.CreateTransaction(ctx, tx); err != nil {
		e.abandon(ctx, f)
		return model.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	e.track(tx.ID, f)
	logger := e.logger.With(
		zap.String("tx_id", tx.ID),
		zap.String("wallet_id", tx.WalletID),
		zap.String("type", string(tx.Type)),
	)

	hash, err := e.gateway.Submit(ctx, f.wallet, tx)
	if err != nil {
		logger.Warn("submit failed", zap.Error(err))
		e.conclude(tx.ID, chain.Failed(err.Error()), logger)
		failed, gerr := e.txs.GetTransaction(ctx, tx.ID)
		if gerr != nil {
			failed = tx
		}
		return failed, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	if err := tx.SetChainHash(hash); err != nil {
		logger.Error("chain hash", zap.Error(err))
	}
	e.persistHash(tx.ID, hash, logger)
	e.observer.TransactionSubmitted(string(tx.Type))
	logger.Info("transaction submitted", zap.String("hash", hash))
	e.notify(ctx, f.wallet.UserID, model.Event{
		Kind:          model.EventTransactionSubmitted,
		WalletID:      tx.WalletID,
		TransactionID: tx.ID,
		Type:          tx.Type,
		ChainHash:     hash,
		AmountIn:      model.FormatAmount(tx.Amount),
	})

	if !e.startMonitor(tx, f.wallet) {
		logger.Warn("engine closing, transaction left for recovery")
	}
	return tx.Clone(), nil
}

// persistHash stores the submitted hash, retrying until it is written or the engine closes.
// A different stored hash is never overwritten.
func (e *Engine) persistHash(txID, hash string, logger *zap.Logger) {
	err := chain.Retry(e.ctx, maxSettleRetries, e.cfg.MonitorInterval, func(ctx context.Context) error {
		err := e.txs.SetChainHash(ctx, txID, hash)
		switch {
		case errors.Is(err, storage.ErrConflict):
			logger.Error("stored chain hash differs", zap.String("hash", hash), zap.Error(err))
			return nil
		case err != nil:
			logger.Warn("persist chain hash failed, retrying", zap.String("hash", hash), zap.Error(err))
		}
		return err
	})
	if err != nil {
		logger.Error("persist chain hash", zap.String("hash", hash), zap.Error(err))
	}
}

func (e *Engine) newTransaction(w model.Wallet, txType model.TxType, to string, token model.Token, amount *big.Int, details model.Details) model.Transaction {
	return model.Transaction{
		ID:          uuid.NewString(),
		WalletID:    w.ID,
		Type:        txType,
		FromAddress: w.Address,
		ToAddress:   to,
		Token:       token,
		Amount:      new(big.Int).Set(amount),
		Details:     details,
		CreatedAt:   e.clock(),
		Status:      model.StatusPending,
	}
}

func (e *Engine) walletAndPool(ctx context.Context, walletID, poolID string) (model.Wallet, model.Pool, error) {
	w, err := e.wallets.Active(ctx, walletID)
	if err != nil {
		return model.Wallet{}, model.Pool{}, err
	}
	pool, err := e.pools.Pool(ctx, poolID)
	if err != nil {
		return model.Wallet{}, model.Pool{}, fmt.Errorf("load pool %s: %w", poolID, err)
	}
	if pool.Network != "" && pool.Network != w.Network {
		return model.Wallet{}, model.Pool{}, fmt.Errorf("%w: pool %s, wallet %s", ErrNetworkMismatch, pool.Network, w.Network)
	}
	return w, pool, nil
}

type pricedLeg struct {
	token  model.Token
	amount *big.Int
}

// authorize values the legs in USD and checks them against the user's limits as one request.
func (e *Engine) authorize(ctx context.Context, w model.Wallet, legs ...pricedLeg) (*kyc.Authorization, error) {
	total := decimal.Zero
	for _, leg := range legs {
		value, err := pricing.ValueUSD(ctx, e.oracle, leg.token, leg.amount)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", leg.token.Symbol, err)
		}
		total = total.Add(value)
	}
	return e.guard.Authorize(ctx, w.UserID, total)
}

func (e *Engine) reserve(ctx context.Context, f *flight, token model.Token, amount *big.Int) error {
	res, err := e.ledger.Reserve(ctx, f.wallet, token, amount)
	if err != nil {
		return err
	}
	f.debits[token.Key()] = res
	return nil
}

func checkBoth(amount0, min0, amount1, min1 *big.Int) error {
	if err := amm.CheckSlippage(amount0, min0); err != nil {
		return fmt.Errorf("token0: %w", err)
	}
	if err := amm.CheckSlippage(amount1, min1); err != nil {
		return fmt.Errorf("token1: %w", err)
	}
	return nil
}

// poolToken returns the pool's own descriptor for token so symbols and decimals match.
func poolToken(pool model.Pool, token model.Token) model.Token {
	if token.Equal(pool.Token0) {
		return pool.Token0
	}
	return pool.Token1
}

func copyOrNil(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
