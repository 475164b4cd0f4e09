package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"walletEngine/internal/amm"
	"walletEngine/internal/chain"
	"walletEngine/internal/liquidity"
	"walletEngine/internal/model"
)

// ReasonChainFailed is stored when the chain reports a failure without a reason.
const ReasonChainFailed = "ChainFailed"

// maxSettleRetries keeps store retries going until the engine closes.
const maxSettleRetries = math.MaxInt32

// startMonitor reports false when the engine is closing; the transaction then stays PENDING
// for Recover.
func (e *Engine) startMonitor(tx model.Transaction, wallet model.Wallet) bool {
	return e.goBackground(func() {
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)

		e.observer.MonitorStarted()
		defer e.observer.MonitorStopped()
		e.poll(e.ctx, tx, wallet)
	})
}

// goBackground runs fn tracked by the wait group. The closed check and wg.Add share e.mu
// with Close, so no Add happens once Close waits.
func (e *Engine) goBackground(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

// conclude settles a transaction, retrying store failures until the transition is made or
// the engine closes. It reports whether the transaction left PENDING through this engine.
func (e *Engine) conclude(txID string, res chain.Result, logger *zap.Logger) bool {
	err := chain.Retry(e.ctx, maxSettleRetries, e.cfg.MonitorInterval, func(ctx context.Context) error {
		_, err := e.settle(ctx, txID, res)
		if errors.Is(err, ErrNotInFlight) {
			logger.Warn("settle skipped", zap.Error(err))
			return nil
		}
		if err != nil {
			logger.Warn("settle failed, retrying", zap.Error(err))
		}
		return err
	})
	if err != nil {
		logger.Error("transaction left pending", zap.Error(err))
		return false
	}
	return true
}

// poll asks the gateway for the transaction's state with exponential backoff. It gives up
// with ConfirmationTimeout after the configured number of attempts.
func (e *Engine) poll(ctx context.Context, tx model.Transaction, wallet model.Wallet) {
	logger := e.logger.With(zap.String("tx_id", tx.ID), zap.String("wallet_id", tx.WalletID))
	delay := e.cfg.MonitorInterval
	for attempt := 1; ; attempt++ {
		if e.lookup(tx.ID) == nil {
			return
		}
		res, err := e.gateway.Status(ctx, wallet, tx)
		switch {
		case err != nil:
			logger.Warn("status poll failed", zap.Int("attempt", attempt), zap.Error(err))
		case res.State != chain.StatePending:
			e.conclude(tx.ID, res, logger)
			return
		}
		if attempt >= e.cfg.MonitorAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > e.cfg.MonitorMaxBackoff {
			delay = e.cfg.MonitorMaxBackoff
		}
	}

	logger.Warn("confirmation timeout", zap.Int("attempts", e.cfg.MonitorAttempts))
	e.conclude(tx.ID, chain.Failed(model.ReasonConfirmationTimeout), logger)
}

// Observe applies a pushed chain result. Results for transactions that are already
// terminal are ignored, so webhooks may be delivered more than once.
func (e *Engine) Observe(ctx context.Context, txID string, res chain.Result) error {
	if res.State == chain.StatePending {
		return nil
	}
	_, err := e.settle(context.WithoutCancel(ctx), txID, res)
	return err
}

// settle moves a PENDING transaction to its terminal status and then reconciles balances
// and pools. Only the call that wins the status transition reconciles and notifies. A
// confirmed pool transaction is checked, finalized and applied under the pool lock, so its
// realized amounts are the ones checked against the caller's minimums. Nothing changes when
// an error is returned, so settle may be retried.
func (e *Engine) settle(ctx context.Context, txID string, res chain.Result) (bool, error) {
	unlock := e.txLocks.Lock(txID)
	defer unlock()

	tx, err := e.txs.GetTransaction(ctx, txID)
	if err != nil {
		return false, fmt.Errorf("load transaction: %w", err)
	}
	logger := e.logger.With(zap.String("tx_id", tx.ID), zap.String("wallet_id", tx.WalletID))
	if tx.Status.IsTerminal() {
		logger.Debug("result for terminal transaction ignored",
			zap.String("status", string(tx.Status)),
			zap.String("result", res.State.String()),
		)
		return false, nil
	}
	f := e.lookup(txID)
	if f == nil {
		return false, fmt.Errorf("%w: %s", ErrNotInFlight, txID)
	}

	var out outcome
	finalize := func(s *liquidity.Session) error {
		var ferr error
		out, ferr = e.finalize(ctx, tx, f, res, s, logger)
		return ferr
	}
	if poolID := poolOf(tx.Details); poolID != "" && res.State == chain.StateConfirmed {
		err = e.pools.Locked(ctx, poolID, finalize)
	} else {
		err = finalize(nil)
	}
	if err != nil {
		return false, err
	}

	e.untrack(txID)
	if !out.won {
		e.release(f)
		return false, nil
	}
	if out.status == model.StatusConfirmed {
		e.release(f)
	} else {
		e.abandon(ctx, f)
	}

	logger.Info("transaction finalized", zap.String("status", string(out.status)), zap.String("reason", out.reason))
	e.observer.TransactionFinalized(string(tx.Type), string(out.status), out.event.At.Sub(tx.CreatedAt))
	e.notify(ctx, f.wallet.UserID, out.event)
	return true, nil
}

type outcome struct {
	won    bool
	status model.TxStatus
	reason string
	event  model.Event
}

// finalize records the terminal status and, for confirmations, reconciles. s is nil for
// transactions that touch no pool and for failures.
func (e *Engine) finalize(ctx context.Context, tx model.Transaction, f *flight, res chain.Result, s *liquidity.Session, logger *zap.Logger) (outcome, error) {
	status, reason := model.StatusConfirmed, ""
	if res.State == chain.StateFailed {
		status, reason = model.StatusFailed, res.Reason
		if reason == "" {
			reason = ReasonChainFailed
		}
	}
	if status == model.StatusConfirmed && s != nil {
		if err := checkRealized(s, tx, res); err != nil {
			status, reason = model.StatusFailed, err.Error()
			if errors.Is(err, amm.ErrSlippageExceeded) {
				reason = model.ReasonSlippageExceeded
			}
			logger.Warn("confirmed result rejected", zap.Error(err))
		}
	}

	now := e.clock()
	won, err := e.txs.FinalizeTransaction(ctx, tx.ID, status, reason, now)
	if err != nil {
		return outcome{}, fmt.Errorf("finalize transaction: %w", err)
	}
	if !won {
		return outcome{}, nil
	}
	tx.Status = status
	tx.FailureReason = reason

	event := model.Event{
		WalletID:      tx.WalletID,
		TransactionID: tx.ID,
		Type:          tx.Type,
		ChainHash:     tx.ChainHash,
		At:            now,
	}
	if status == model.StatusConfirmed {
		tx.ConfirmedAt = &now
		event.Kind = model.EventTransactionConfirmed
		if err := e.reconcile(ctx, tx, f, res, s, &event); err != nil {
			logger.Error("reconcile confirmed transaction", zap.Error(err))
		}
	} else {
		event.Kind = model.EventTransactionFailed
		event.Reason = reason
	}
	return outcome{won: true, status: status, reason: reason, event: event}, nil
}

// checkRealized re-checks the caller's minimums against the amounts a confirmation realizes
// at the pool's current reserves.
func checkRealized(s *liquidity.Session, tx model.Transaction, res chain.Result) error {
	switch d := tx.Details.(type) {
	case model.SwapDetails:
		out := res.AmountOut
		if out == nil {
			quote, err := s.Quote(d.TokenIn, d.AmountIn)
			if err != nil {
				return err
			}
			out = quote.AmountOut
		}
		return amm.CheckSlippage(out, d.MinAmountOut)
	case model.LiquidityAddDetails:
		return checkBoth(pick(res.Amount0, d.Amount0), d.Amount0Min, pick(res.Amount1, d.Amount1), d.Amount1Min)
	case model.LiquidityRemoveDetails:
		payout, err := s.PlanWithdrawal(d.LPUnits)
		if err != nil {
			return err
		}
		return checkBoth(payout.Amount0, d.Amount0Min, payout.Amount1, d.Amount1Min)
	}
	return nil
}

func poolOf(details model.Details) string {
	switch d := details.(type) {
	case model.SwapDetails:
		return d.PoolID
	case model.LiquidityAddDetails:
		return d.PoolID
	case model.LiquidityRemoveDetails:
		return d.PoolID
	}
	return ""
}

// reconcile applies a confirmed transaction to the ledger and the pool. Every step is
// attempted; failures are joined and leave the balance to be fixed by a resync.
func (e *Engine) reconcile(ctx context.Context, tx model.Transaction, f *flight, res chain.Result, s *liquidity.Session, event *model.Event) error {
	var errs []error
	commit := func(token model.Token, amount *big.Int) {
		r := f.debit(token)
		if r == nil {
			errs = append(errs, fmt.Errorf("no reservation for %s", token.Symbol))
			return
		}
		if _, err := e.ledger.Commit(ctx, r, new(big.Int).Neg(amount)); err != nil {
			errs = append(errs, err)
		}
	}
	credit := func(token model.Token, amount *big.Int) {
		if amount == nil || amount.Sign() == 0 {
			return
		}
		if _, err := e.ledger.Credit(ctx, f.wallet, token, amount); err != nil {
			errs = append(errs, fmt.Errorf("credit %s: %w", token.Symbol, err))
		}
	}

	switch d := tx.Details.(type) {
	case model.TransferDetails:
		commit(tx.Token, tx.Amount)
		event.AmountIn = model.FormatAmount(tx.Amount)

	case model.SwapDetails:
		commit(d.TokenIn, d.AmountIn)
		out, err := s.ApplySwap(ctx, d.TokenIn, d.AmountIn, res.AmountOut)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply swap: %w", err))
			out = res.AmountOut
		}
		credit(d.TokenOut, out)
		event.AmountIn = model.FormatAmount(d.AmountIn)
		event.AmountOut = model.FormatAmount(out)

	case model.LiquidityAddDetails:
		amount0, amount1 := pick(res.Amount0, d.Amount0), pick(res.Amount1, d.Amount1)
		pool := s.Pool()
		commit(pool.Token0, amount0)
		commit(pool.Token1, amount1)
		minted, position, err := s.ApplyDeposit(ctx, tx.WalletID, amount0, amount1)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply deposit: %w", err))
			break
		}
		share := position.Share
		event.Share = &share
		event.AmountIn = model.FormatAmount(amount0) + "," + model.FormatAmount(amount1)
		event.AmountOut = model.FormatAmount(minted)

	case model.LiquidityRemoveDetails:
		pool := s.Pool()
		payout, position, err := s.ApplyWithdrawal(ctx, f.hold)
		if err != nil {
			errs = append(errs, fmt.Errorf("apply withdrawal: %w", err))
			break
		}
		credit(pool.Token0, payout.Amount0)
		credit(pool.Token1, payout.Amount1)
		share := position.Share
		event.Share = &share
		event.AmountIn = model.FormatAmount(d.LPUnits)
		event.AmountOut = model.FormatAmount(payout.Amount0) + "," + model.FormatAmount(payout.Amount1)

	default:
		errs = append(errs, fmt.Errorf("unsupported details %T", tx.Details))
	}
	return errors.Join(errs...)
}

// release closes whatever the flight still holds without touching KYC usage.
func (e *Engine) release(f *flight) {
	for _, res := range f.debits {
		e.ledger.Release(res)
	}
	e.pools.ReleaseHold(f.hold)
}

func pick(reported, planned *big.Int) *big.Int {
	if reported != nil {
		return reported
	}
	return planned
}
