// Package deposits detects inbound ERC20 transfers to custodial wallets and refreshes the
// affected balances from the chain.
package deposits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"walletEngine/internal/chain"
	"walletEngine/internal/engine"
	"walletEngine/internal/ledger"
	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

// LogSource reads chain logs.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// Directory resolves custodial addresses to wallets.
type Directory interface {
	ByAddress(ctx context.Context, network, address string) (model.Wallet, error)
}

// Syncer refreshes a wallet balance once the wallet has nothing in flight.
type Syncer interface {
	SyncIfIdle(ctx context.Context, walletID string, token model.Token) (model.Balance, error)
}

// Config holds runtime settings for the watcher.
type Config struct {
	Network string
	Tokens  []model.Token
	// FromBlock is where a watcher without a checkpoint starts. Zero means the current safe head.
	FromBlock      uint64
	BatchSize      uint64
	Confirmations  uint64
	PollInterval   time.Duration
	CheckpointPath string
	MaxRetries     int
	RetryBackoff   time.Duration
}

// Watcher scans Transfer logs of the configured tokens block range by block range.
type Watcher struct {
	cfg        Config
	source     LogSource
	wallets    Directory
	syncer     Syncer
	logger     *zap.Logger
	checkpoint *checkpointFile
	tokens     map[common.Address]model.Token
	addresses  []common.Address
	// pending balances still to be refreshed, keyed by wallet id and token key
	pending map[string]pendingSync
}

type pendingSync struct {
	walletID string
	token    model.Token
}

func New(cfg Config, source LogSource, wallets Directory, syncer Syncer, logger *zap.Logger) (*Watcher, error) {
	switch {
	case source == nil:
		return nil, fmt.Errorf("log source is nil")
	case wallets == nil:
		return nil, fmt.Errorf("wallet directory is nil")
	case syncer == nil:
		return nil, fmt.Errorf("balance syncer is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}

	w := &Watcher{
		cfg:        cfg,
		source:     source,
		wallets:    wallets,
		syncer:     syncer,
		logger:     logger,
		checkpoint: newCheckpointFile(cfg.CheckpointPath, cfg.Network),
		tokens:     make(map[common.Address]model.Token),
		pending:    make(map[string]pendingSync),
	}
	for _, token := range cfg.Tokens {
		if token.IsNative() || !strings.EqualFold(token.Network, cfg.Network) {
			continue
		}
		addr, err := chain.ParseAddress(token.Address)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", token.Symbol, err)
		}
		if _, dup := w.tokens[addr]; !dup {
			w.addresses = append(w.addresses, addr)
		}
		w.tokens[addr] = token
	}
	if len(w.addresses) == 0 {
		return nil, fmt.Errorf("no ERC20 tokens to watch on %s", cfg.Network)
	}
	return w, nil
}

// Run scans until ctx is done. Scan errors are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("deposit scan failed", zap.String("network", w.cfg.Network), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan processes every block between the checkpoint and the safe head, then refreshes the
// balances of wallets that received transfers. It returns the number of balances refreshed.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	var head uint64
	err := chain.Retry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = w.source.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if head < w.cfg.Confirmations {
		return w.flush(ctx), nil
	}
	safe := head - w.cfg.Confirmations

	last, ok, err := w.checkpoint.Load()
	if err != nil {
		return 0, err
	}
	from := w.cfg.FromBlock
	switch {
	case ok && last >= from:
		from = last + 1
	case !ok && from == 0:
		from = safe
	}

	if from <= safe {
		ranges, err := splitRange(from, safe, w.cfg.BatchSize)
		if err != nil {
			return 0, err
		}
		for _, r := range ranges {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			if err := w.scanRange(ctx, r); err != nil {
				return 0, err
			}
			if err := w.checkpoint.Save(r.To); err != nil {
				return 0, err
			}
		}
	}
	return w.flush(ctx), nil
}

func (w *Watcher) scanRange(ctx context.Context, r blockRange) error {
	var logs []types.Log
	err := chain.Retry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = w.source.FilterLogs(ctx, r.From, r.To, w.addresses, [][]common.Hash{{chain.TransferEventID}})
		if err != nil {
			w.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", r.From), zap.Uint64("to", r.To))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	found := 0
	for _, lg := range logs {
		token, ok := w.tokens[lg.Address]
		if !ok || lg.Removed || len(lg.Topics) != 3 || lg.Topics[0] != chain.TransferEventID {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		wallet, err := w.wallets.ByAddress(ctx, w.cfg.Network, to.Hex())
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve %s: %w", to.Hex(), err)
		}
		w.pending[wallet.ID+"|"+token.Key()] = pendingSync{walletID: wallet.ID, token: token}
		found++
	}

	w.logger.Debug("deposit range scanned",
		zap.Uint64("from", r.From),
		zap.Uint64("to", r.To),
		zap.Int("logs", len(logs)),
		zap.Int("deposits", found),
	)
	return nil
}

// flush refreshes pending balances. Wallets with work in flight stay pending.
func (w *Watcher) flush(ctx context.Context) int {
	keys := make([]string, 0, len(w.pending))
	for key := range w.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	synced := 0
	for _, key := range keys {
		p := w.pending[key]
		balance, err := w.syncer.SyncIfIdle(ctx, p.walletID, p.token)
		switch {
		case err == nil:
			delete(w.pending, key)
			synced++
			w.logger.Info("deposit balance refreshed",
				zap.String("wallet_id", p.walletID),
				zap.String("token", p.token.Symbol),
				zap.String("amount", balance.Amount.String()),
			)
		case errors.Is(err, engine.ErrWalletBusy), errors.Is(err, ledger.ErrPendingReservations):
			w.logger.Debug("deposit refresh deferred", zap.String("wallet_id", p.walletID), zap.String("token", p.token.Symbol))
		default:
			w.logger.Warn("deposit refresh failed",
				zap.String("wallet_id", p.walletID),
				zap.String("token", p.token.Symbol),
				zap.Error(err),
			)
		}
	}
	return synced
}

// Pending returns how many balances are waiting to be refreshed.
func (w *Watcher) Pending() int {
	return len(w.pending)
}
