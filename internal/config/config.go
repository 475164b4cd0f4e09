// Package config loads walletd settings from flags, environment and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"walletEngine/internal/kyc"
	"walletEngine/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string
	PGDSN    string
	Simulate bool

	Network    string
	RPCURL     string
	ChainID    int64
	Router     string
	SubmitRate float64
	MaxRetries int
	RetryDelay time.Duration
	Deadline   time.Duration

	KeystorePassphrase string
	KeystoreLight      bool

	MinWalletTier model.Tier
	KYCTiers      []kyc.TierLimit
	Prices        map[string]string
	Tokens        []model.Token

	FeeBps             uint32
	MonitorAttempts    int
	MonitorInterval    time.Duration
	MonitorConcurrency int
	HistoryLimit       int

	NotifyOut   string
	MetricsAddr string

	WatchDeposits        bool
	DepositFromBlock     uint64
	DepositBatchSize     uint64
	DepositConfirmations uint64
	DepositInterval      time.Duration
	DepositCheckpoint    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WALLETD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("network", "ethereum")
	v.SetDefault("chain-id", int64(1))
	v.SetDefault("submit-rate", 5.0)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("deadline", 20*time.Minute)
	v.SetDefault("min-wallet-tier", int(model.TierBasic))
	v.SetDefault("fee-bps", 30)
	v.SetDefault("monitor-attempts", 30)
	v.SetDefault("monitor-interval", 5*time.Second)
	v.SetDefault("monitor-concurrency", 32)
	v.SetDefault("history-limit", 50)
	v.SetDefault("notify-out", "./data/events.jsonl")
	v.SetDefault("deposit-batch-size", uint64(2000))
	v.SetDefault("deposit-confirmations", uint64(12))
	v.SetDefault("deposit-interval", 15*time.Second)
	v.SetDefault("deposit-checkpoint", "./data/deposits.json")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:           v.GetString("log-level"),
		PGDSN:              v.GetString("pg-dsn"),
		Simulate:           v.GetBool("simulate"),
		Network:            strings.ToLower(v.GetString("network")),
		RPCURL:             v.GetString("rpc"),
		ChainID:            v.GetInt64("chain-id"),
		Router:             v.GetString("router"),
		SubmitRate:         v.GetFloat64("submit-rate"),
		MaxRetries:         v.GetInt("max-retries"),
		RetryDelay:         v.GetDuration("retry-backoff"),
		Deadline:           v.GetDuration("deadline"),
		KeystorePassphrase: v.GetString("keystore-passphrase"),
		KeystoreLight:      v.GetBool("keystore-light"),
		MinWalletTier:      model.Tier(v.GetInt("min-wallet-tier")),
		FeeBps:             v.GetUint32("fee-bps"),
		MonitorAttempts:    v.GetInt("monitor-attempts"),
		MonitorInterval:    v.GetDuration("monitor-interval"),
		MonitorConcurrency: v.GetInt("monitor-concurrency"),
		HistoryLimit:       v.GetInt("history-limit"),
		NotifyOut:          v.GetString("notify-out"),
		MetricsAddr:        v.GetString("metrics-addr"),

		WatchDeposits:        v.GetBool("watch-deposits"),
		DepositFromBlock:     v.GetUint64("deposit-from-block"),
		DepositBatchSize:     v.GetUint64("deposit-batch-size"),
		DepositConfirmations: v.GetUint64("deposit-confirmations"),
		DepositInterval:      v.GetDuration("deposit-interval"),
		DepositCheckpoint:    v.GetString("deposit-checkpoint"),
	}

	var err error
	if cfg.KYCTiers, err = tierLimits(v, "kyc-tiers"); err != nil {
		return Config{}, err
	}
	if cfg.Prices, err = pairs(getStringSlice(v, "prices")); err != nil {
		return Config{}, fmt.Errorf("prices: %w", err)
	}
	if cfg.Tokens, err = tokens(v, "tokens", cfg.Network); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings needed to talk to a real chain.
func (c Config) Validate() error {
	if c.Simulate {
		return nil
	}
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required unless --simulate is set")
	}
	if c.KeystorePassphrase == "" {
		return fmt.Errorf("keystore passphrase is required")
	}
	if c.WatchDeposits && len(c.Tokens) == 0 {
		return fmt.Errorf("watching deposits needs at least one configured token")
	}
	return nil
}
