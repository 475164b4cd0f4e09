package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"walletEngine/internal/config"
	"walletEngine/internal/deposits"
	"walletEngine/internal/model"
	"walletEngine/internal/storage/migrations"
	"walletEngine/internal/storage/postgres"
)

func runEngine(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.sim != nil {
		raw, _ := cmd.Flags().GetString("simulate-balance")
		amount, err := model.ParseAmount(raw)
		if err != nil {
			return fmt.Errorf("simulate balance: %w", err)
		}
		a.sim.SetDefaultBalance(amount)
	}

	resumed, err := a.engine.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover pending transactions: %w", err)
	}

	if cfg.WatchDeposits {
		if a.client == nil {
			return fmt.Errorf("deposit watching needs an rpc endpoint")
		}
		watcher, err := deposits.New(deposits.Config{
			Network:        cfg.Network,
			Tokens:         a.cfg.Tokens,
			FromBlock:      cfg.DepositFromBlock,
			BatchSize:      cfg.DepositBatchSize,
			Confirmations:  cfg.DepositConfirmations,
			PollInterval:   cfg.DepositInterval,
			CheckpointPath: cfg.DepositCheckpoint,
			MaxRetries:     cfg.MaxRetries,
			RetryBackoff:   cfg.RetryDelay,
		}, a.client, a.registry, a.engine, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("deposit watcher stopped", zap.Error(err))
			}
		}()
	}

	var server *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("walletd start",
		zap.String("network", cfg.Network),
		zap.Bool("simulate", cfg.Simulate),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("watch_deposits", cfg.WatchDeposits),
		zap.Int("resumed", resumed),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	<-ctx.Done()
	logger.Info("walletd stopping")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := migrations.RunPostgresMigrations(ctx, store)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Int("files", applied))
	return nil
}
