package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"walletEngine/internal/chain"
	"walletEngine/internal/chain/stub"
	"walletEngine/internal/config"
	"walletEngine/internal/engine"
	"walletEngine/internal/keyvault"
	"walletEngine/internal/kyc"
	"walletEngine/internal/ledger"
	"walletEngine/internal/liquidity"
	"walletEngine/internal/metrics"
	"walletEngine/internal/model"
	"walletEngine/internal/notify"
	"walletEngine/internal/pricing"
	"walletEngine/internal/storage"
	"walletEngine/internal/storage/memory"
	"walletEngine/internal/storage/postgres"
	"walletEngine/internal/wallet"
)

const simulatePassphrase = "walletd-simulate"

// stores bundles one backend's implementation of every storage contract.
type stores struct {
	wallets  storage.WalletStore
	balances storage.BalanceStore
	txs      storage.TransactionStore
	pools    storage.PoolStore
	usage    storage.UsageStore
	tiers    storage.TierStore
	setTier  func(ctx context.Context, userID string, tier model.Tier) error
	close    func()
}

func openStores(ctx context.Context, dsn string) (stores, error) {
	if dsn == "" {
		balances := memory.NewBalanceStore()
		tiers := memory.NewTierStore()
		return stores{
			wallets:  memory.NewWalletStore(balances),
			balances: balances,
			txs:      memory.NewTransactionStore(),
			pools:    memory.NewPoolStore(),
			usage:    memory.NewUsageStore(),
			tiers:    tiers,
			setTier: func(_ context.Context, userID string, tier model.Tier) error {
				tiers.SetTier(userID, tier)
				return nil
			},
			close: func() {},
		}, nil
	}

	pg, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return stores{}, err
	}
	return stores{
		wallets:  pg,
		balances: pg,
		txs:      pg,
		pools:    pg,
		usage:    pg,
		tiers:    pg,
		setTier:  pg.SetTier,
		close:    pg.Close,
	}, nil
}

// app is the wired service graph shared by the run and create-wallet commands.
type app struct {
	cfg      config.Config
	stores   stores
	registry *wallet.Registry
	engine   *engine.Engine
	sim      *stub.Gateway
	metrics  *prometheus.Registry
	client   *chain.Client
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, stores: st, metrics: prometheus.NewRegistry()}
	if err := a.wire(ctx, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, logger *zap.Logger) error {
	cfg := a.cfg

	collector, err := metrics.New(a.metrics)
	if err != nil {
		return err
	}

	limits := kyc.DefaultLimits()
	if len(cfg.KYCTiers) > 0 {
		if limits, err = kyc.ParseLimits(cfg.KYCTiers); err != nil {
			return fmt.Errorf("parse kyc tiers: %w", err)
		}
	}
	tiers := kyc.NewStaticTiers(a.stores.tiers, limits)
	guard := kyc.NewGuard(tiers, a.stores.usage, collector, logger)

	prices, err := pricing.ParsePrices(cfg.Prices)
	if err != nil {
		return err
	}
	oracle := pricing.NewStaticOracle(prices)

	passphrase, light := cfg.KeystorePassphrase, cfg.KeystoreLight
	if cfg.Simulate && passphrase == "" {
		passphrase, light = simulatePassphrase, true
	}
	vault, err := keyvault.New(passphrase, light, logger)
	if err != nil {
		return err
	}

	book := liquidity.NewBook(a.stores.pools, logger)

	networks := chain.NewNetworks()
	if cfg.Simulate {
		a.sim = stub.New()
		networks.Register(cfg.Network, a.sim)
	} else {
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		a.client = client
		if cfg.Tokens, err = chain.ResolveTokens(ctx, client, cfg.Tokens, logger); err != nil {
			return err
		}
		a.cfg.Tokens = cfg.Tokens
		evm, err := chain.NewEVMGateway(chain.EVMConfig{
			Network:    cfg.Network,
			ChainID:    big.NewInt(cfg.ChainID),
			Router:     cfg.Router,
			SubmitRate: cfg.SubmitRate,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Deadline:   cfg.Deadline,
		}, client, vault, book, logger)
		if err != nil {
			return err
		}
		networks.Register(cfg.Network, evm)
	}

	dispatcher := notify.Fanout{notify.NewLogDispatcher(logger)}
	if cfg.NotifyOut != "" {
		dispatcher = append(dispatcher, notify.NewJSONLDispatcher(cfg.NotifyOut))
	}

	tokens := make(map[string][]model.Token)
	for _, token := range cfg.Tokens {
		tokens[token.Network] = append(tokens[token.Network], token)
	}
	a.registry = wallet.NewRegistry(wallet.Config{
		MinTier: cfg.MinWalletTier,
		Tokens:  tokens,
	}, tiers, vault, a.stores.wallets, dispatcher, logger)

	a.engine, err = engine.New(engine.Config{
		MonitorAttempts:    cfg.MonitorAttempts,
		MonitorInterval:    cfg.MonitorInterval,
		MonitorConcurrency: int64(cfg.MonitorConcurrency),
		FeeBps:             cfg.FeeBps,
		HistoryLimit:       cfg.HistoryLimit,
	}, engine.Deps{
		Wallets:      a.registry,
		Ledger:       ledger.New(a.stores.balances, networks, logger, ledger.WithObserver(collector)),
		Pools:        book,
		Guard:        guard,
		Oracle:       oracle,
		Gateway:      networks,
		Transactions: a.stores.txs,
		Dispatcher:   dispatcher,
		Observer:     collector,
	}, logger)
	return err
}

func (a *app) Close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	a.stores.close()
}
