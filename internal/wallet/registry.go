// Package wallet creates and deactivates custodial wallets.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletEngine/internal/model"
	"walletEngine/internal/notify"
	"walletEngine/internal/storage"
)

var (
	ErrKYCTooLow          = errors.New("kyc tier too low for a wallet")
	ErrWalletInactive     = errors.New("wallet is inactive")
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// KeyVault generates custodial keys. Only the encrypted form leaves the vault.
type KeyVault interface {
	CreateKeyPair(ctx context.Context) (string, []byte, error)
}

// TierSource resolves a user's KYC tier.
type TierSource interface {
	TierOf(ctx context.Context, userID string) (model.Tier, error)
}

// Config holds the wallet policy.
type Config struct {
	MinTier model.Tier
	// Tokens lists the assets seeded with a zero balance per network. When non-empty,
	// wallets can only be created on the networks it names.
	Tokens map[string][]model.Token
}

// Registry owns wallet lifecycle.
type Registry struct {
	cfg        Config
	tiers      TierSource
	vault      KeyVault
	wallets    storage.WalletStore
	dispatcher notify.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

func NewRegistry(cfg Config, tiers TierSource, vault KeyVault, wallets storage.WalletStore, dispatcher notify.Dispatcher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:        cfg,
		tiers:      tiers,
		vault:      vault,
		wallets:    wallets,
		dispatcher: dispatcher,
		logger:     logger,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateWallet creates an active wallet with zero balances for the network's tokens.
// The caller owns idempotency; every call creates a new wallet.
func (r *Registry) CreateWallet(ctx context.Context, userID, network string) (model.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Wallet{}, fmt.Errorf("user id is required")
	}
	tokens, err := r.tokensFor(network)
	if err != nil {
		return model.Wallet{}, err
	}
	tier, err := r.tiers.TierOf(ctx, userID)
	if err != nil {
		return model.Wallet{}, fmt.Errorf("load kyc tier: %w", err)
	}
	if tier < r.cfg.MinTier {
		return model.Wallet{}, fmt.Errorf("%w: tier %d, need %d", ErrKYCTooLow, tier, r.cfg.MinTier)
	}

	address, encrypted, err := r.vault.CreateKeyPair(ctx)
	if err != nil {
		return model.Wallet{}, fmt.Errorf("create key pair: %w", err)
	}
	now := r.clock()
	w := model.Wallet{
		ID:           uuid.NewString(),
		UserID:       userID,
		Address:      address,
		Network:      network,
		IsActive:     true,
		EncryptedKey: encrypted,
		CreatedAt:    now,
	}
	balances := make([]model.Balance, 0, len(tokens))
	for _, token := range tokens {
		balances = append(balances, model.Balance{WalletID: w.ID, Token: token, Amount: new(big.Int), SyncedAt: now})
	}
	if err := r.wallets.CreateWallet(ctx, w, balances); err != nil {
		return model.Wallet{}, fmt.Errorf("persist wallet: %w", err)
	}

	r.logger.Info("wallet created",
		zap.String("wallet_id", w.ID),
		zap.String("user_id", userID),
		zap.String("network", network),
		zap.String("address", address),
	)
	r.notify(ctx, model.Event{Kind: model.EventWalletCreated, UserID: userID, WalletID: w.ID, At: now})
	return w, nil
}

// DeactivateWallet marks the wallet inactive. Pending transactions run to completion.
func (r *Registry) DeactivateWallet(ctx context.Context, walletID string) error {
	if err := r.wallets.SetWalletActive(ctx, walletID, false); err != nil {
		return fmt.Errorf("deactivate wallet %s: %w", walletID, err)
	}
	r.logger.Info("wallet deactivated", zap.String("wallet_id", walletID))
	return nil
}

// Get returns a wallet regardless of its state.
func (r *Registry) Get(ctx context.Context, walletID string) (model.Wallet, error) {
	return r.wallets.GetWallet(ctx, walletID)
}

// Active returns the wallet or ErrWalletInactive.
func (r *Registry) Active(ctx context.Context, walletID string) (model.Wallet, error) {
	w, err := r.wallets.GetWallet(ctx, walletID)
	if err != nil {
		return model.Wallet{}, err
	}
	if !w.IsActive {
		return model.Wallet{}, fmt.Errorf("%w: %s", ErrWalletInactive, walletID)
	}
	return w, nil
}

// ByAddress resolves a custodial address on a network to its wallet.
func (r *Registry) ByAddress(ctx context.Context, network, address string) (model.Wallet, error) {
	return r.wallets.GetWalletByAddress(ctx, network, address)
}

// WalletsOf lists a user's wallets, oldest first.
func (r *Registry) WalletsOf(ctx context.Context, userID string) ([]model.Wallet, error) {
	return r.wallets.ListWalletsByUser(ctx, userID)
}

func (r *Registry) tokensFor(network string) ([]model.Token, error) {
	if strings.TrimSpace(network) == "" {
		return nil, fmt.Errorf("%w: empty network", ErrUnsupportedNetwork)
	}
	if len(r.cfg.Tokens) == 0 {
		return nil, nil
	}
	for name, tokens := range r.cfg.Tokens {
		if strings.EqualFold(name, network) {
			return tokens, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
}

func (r *Registry) notify(ctx context.Context, event model.Event) {
	if r.dispatcher == nil {
		return
	}
	if err := r.dispatcher.Notify(ctx, event.UserID, event); err != nil {
		r.logger.Warn("notify failed",
			zap.String("kind", string(event.Kind)),
			zap.String("wallet_id", event.WalletID),
			zap.Error(err),
		)
	}
}
