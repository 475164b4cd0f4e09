package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"walletEngine/internal/chain"
	"walletEngine/internal/kyc"
	"walletEngine/internal/model"
)

// Recover resumes monitoring of transactions left PENDING by a previous run. Reservations
// and LP holds are re-established first; a transaction whose funds can no longer be
// reserved fails with ReservationLost. KYC usage kept with each transaction is reverted if
// the recovered transaction fails.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	pending, err := e.txs.ListPendingTransactions(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list pending transactions: %w", err)
	}
	resumed := 0
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}
		if e.lookup(tx.ID) != nil {
			continue
		}
		logger := e.logger.With(zap.String("tx_id", tx.ID), zap.String("wallet_id", tx.WalletID))

		w, err := e.wallets.Get(ctx, tx.WalletID)
		if err != nil {
			return resumed, fmt.Errorf("load wallet for %s: %w", tx.ID, err)
		}
		f := newFlight(w)
		if tx.Spend != nil {
			f.auth = kyc.Restore(w.UserID, *tx.Spend)
		}
		reason := ""
		if rerr := e.rebuild(ctx, f, tx); rerr != nil {
			logger.Warn("reservation lost", zap.Error(rerr))
			reason = model.ReasonReservationLost
		} else if tx.ChainHash == "" {
			reason = model.ReasonSubmissionLost
		}
		e.track(tx.ID, f)

		if reason != "" {
			if _, err := e.settle(ctx, tx.ID, chain.Failed(reason)); err != nil {
				return resumed, err
			}
			continue
		}
		if !e.startMonitor(tx, w) {
			return resumed, ErrClosed
		}
		e.observer.TransactionRecovered()
		logger.Info("monitor resumed", zap.String("hash", tx.ChainHash))
		resumed++
	}
	return resumed, nil
}

// rebuild re-reserves what a pending transaction spends. On error everything taken so far
// is released.
func (e *Engine) rebuild(ctx context.Context, f *flight, tx model.Transaction) error {
	var err error
	switch d := tx.Details.(type) {
	case model.TransferDetails:
		err = e.reserve(ctx, f, tx.Token, tx.Amount)
	case model.SwapDetails:
		err = e.reserve(ctx, f, d.TokenIn, d.AmountIn)
	case model.LiquidityAddDetails:
		pool, perr := e.pools.Pool(ctx, d.PoolID)
		if perr != nil {
			err = perr
			break
		}
		if err = e.reserve(ctx, f, pool.Token0, d.Amount0); err == nil {
			err = e.reserve(ctx, f, pool.Token1, d.Amount1)
		}
	case model.LiquidityRemoveDetails:
		f.hold, err = e.pools.HoldUnits(ctx, tx.WalletID, d.PoolID, d.LPUnits)
	default:
		err = fmt.Errorf("unsupported details %T", tx.Details)
	}
	if err != nil {
		e.release(f)
	}
	return err
}
