package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "walletd",
		Short:        "Custodial wallet transaction engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the transaction engine",
		RunE:  runEngine,
	}
	addEngineFlags(runCmd.Flags())
	runCmd.Flags().String("metrics-addr", "", "address for the Prometheus /metrics endpoint, empty disables it")
	runCmd.Flags().String("simulate-balance", "0", "starting simulated balance per wallet and token (base units)")
	runCmd.Flags().Bool("watch-deposits", false, "scan Transfer logs of configured tokens for inbound deposits")
	runCmd.Flags().Uint64("deposit-from-block", 0, "first block to scan without a checkpoint, 0 means the safe head")
	runCmd.Flags().Uint64("deposit-batch-size", 2000, "blocks per log query")
	runCmd.Flags().Uint64("deposit-confirmations", 12, "blocks behind head considered final")
	runCmd.Flags().Duration("deposit-interval", 15*time.Second, "deposit scan interval")
	runCmd.Flags().String("deposit-checkpoint", "./data/deposits.json", "deposit checkpoint file")
	root.AddCommand(runCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a constant-product swap against given reserves",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("reserve-in", "", "reserve of the input token (base units)")
	quoteCmd.Flags().String("reserve-out", "", "reserve of the output token (base units)")
	quoteCmd.Flags().String("amount-in", "", "input amount (base units)")
	quoteCmd.Flags().Uint32("fee-bps", 30, "swap fee in basis points")
	root.AddCommand(quoteCmd)

	createWalletCmd := &cobra.Command{
		Use:   "create-wallet",
		Short: "Create a custodial wallet for a user",
		RunE:  runCreateWallet,
	}
	addEngineFlags(createWalletCmd.Flags())
	createWalletCmd.Flags().String("user", "", "owner user id")
	createWalletCmd.Flags().Int("tier", -1, "record this KYC tier for the user before creating the wallet")
	root.AddCommand(createWalletCmd)

	return root
}

func addEngineFlags(flags *pflag.FlagSet) {
	flags.String("pg-dsn", "", "Postgres DSN, empty keeps state in memory")
	flags.Bool("simulate", false, "use the in-memory chain instead of an RPC endpoint")
	flags.String("network", "ethereum", "network name")
	flags.String("rpc", "", "EVM JSON-RPC URL")
	flags.Int64("chain-id", 1, "EVM chain id")
	flags.String("router", "", "UniswapV2-style router address")
	flags.Float64("submit-rate", 5, "max chain submissions per second")
	flags.Int("max-retries", 5, "maximum retry attempts for RPC reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("keystore-passphrase", "", "passphrase protecting wallet keys")
	flags.Bool("keystore-light", false, "use light scrypt parameters for wallet keys")
	flags.Int("min-wallet-tier", 1, "minimum KYC tier to own a wallet")
	flags.StringSlice("kyc-tiers", nil, "tier limits as tier;daily;monthly;single (comma-separated)")
	flags.StringSlice("prices", nil, "USD prices as symbol=usd (comma-separated)")
	flags.StringSlice("tokens", nil, "seeded tokens as SYMBOL:ADDRESS:DECIMALS (comma-separated)")
	flags.Uint32("fee-bps", 30, "swap fee in basis points")
	flags.Int("monitor-attempts", 30, "status polls before a transaction times out")
	flags.Duration("monitor-interval", 5*time.Second, "initial status poll interval")
	flags.Int("monitor-concurrency", 32, "max concurrently polling monitors")
	flags.String("notify-out", "./data/events.jsonl", "JSONL audit file for events, empty disables it")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
