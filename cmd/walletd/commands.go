package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"walletEngine/internal/amm"
	"walletEngine/internal/config"
	"walletEngine/internal/model"
)

var (
	quoteTokenIn  = model.Token{Address: "0x0000000000000000000000000000000000000001", Symbol: "IN", Network: "quote"}
	quoteTokenOut = model.Token{Address: "0x0000000000000000000000000000000000000002", Symbol: "OUT", Network: "quote"}
)

func runQuote(cmd *cobra.Command, _ []string) error {
	reserveIn, _ := cmd.Flags().GetString("reserve-in")
	reserveOut, _ := cmd.Flags().GetString("reserve-out")
	amountIn, _ := cmd.Flags().GetString("amount-in")
	feeBps, _ := cmd.Flags().GetUint32("fee-bps")

	amounts, err := model.ParseAmounts(reserveIn, reserveOut, amountIn)
	if err != nil {
		return err
	}
	pool := model.Pool{
		ID:          "quote",
		Network:     "quote",
		Token0:      quoteTokenIn,
		Token1:      quoteTokenOut,
		Reserve0:    amounts[0],
		Reserve1:    amounts[1],
		TotalSupply: amounts[0],
		FeeBps:      feeBps,
	}
	quote, err := amm.QuoteSwap(pool, quoteTokenIn, amounts[2])
	if err != nil {
		return fmt.Errorf("quote swap: %w", err)
	}

	return writeJSON(cmd, map[string]string{
		"amount_in":    model.FormatAmount(quote.AmountIn),
		"amount_out":   model.FormatAmount(quote.AmountOut),
		"fee":          model.FormatAmount(quote.Fee),
		"price_impact": quote.PriceImpact.String(),
	})
}

func runCreateWallet(cmd *cobra.Command, _ []string) error {
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

	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		return fmt.Errorf("user is required")
	}
	tier, _ := cmd.Flags().GetInt("tier")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if tier >= 0 {
		if err := a.stores.setTier(ctx, userID, model.Tier(tier)); err != nil {
			return fmt.Errorf("set tier: %w", err)
		}
	}

	created, err := a.registry.CreateWallet(ctx, userID, cfg.Network)
	if err != nil {
		return err
	}
	return writeJSON(cmd, created)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
