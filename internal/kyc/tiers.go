package kyc

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

// TierSource resolves users to tiers and tiers to limits.
type TierSource interface {
	TierOf(ctx context.Context, userID string) (model.Tier, error)
	LimitsOf(tier model.Tier) (model.Limits, error)
}

// StaticTiers maps tiers to a fixed limit table and delegates user lookup to a TierStore.
type StaticTiers struct {
	users  storage.TierStore
	limits map[model.Tier]model.Limits
}

func NewStaticTiers(users storage.TierStore, limits map[model.Tier]model.Limits) *StaticTiers {
	copied := make(map[model.Tier]model.Limits, len(limits))
	for tier, l := range limits {
		copied[tier] = l
	}
	return &StaticTiers{users: users, limits: copied}
}

func (s *StaticTiers) TierOf(ctx context.Context, userID string) (model.Tier, error) {
	if s.users == nil {
		return model.TierNone, fmt.Errorf("tier store is nil")
	}
	return s.users.TierOf(ctx, userID)
}

// LimitsOf returns zero limits for tiers without an entry, which rejects any positive value.
func (s *StaticTiers) LimitsOf(tier model.Tier) (model.Limits, error) {
	if l, ok := s.limits[tier]; ok {
		return l, nil
	}
	return model.Limits{Daily: decimal.Zero, Monthly: decimal.Zero, Single: decimal.Zero}, nil
}

// TierLimit is the textual form of one tier's limits, as read from configuration.
type TierLimit struct {
	Tier    int    `mapstructure:"tier"`
	Daily   string `mapstructure:"daily"`
	Monthly string `mapstructure:"monthly"`
	Single  string `mapstructure:"single"`
}

// ParseLimits converts configured tier limits into a limit table.
func ParseLimits(entries []TierLimit) (map[model.Tier]model.Limits, error) {
	out := make(map[model.Tier]model.Limits, len(entries))
	for _, entry := range entries {
		daily, err := decimal.NewFromString(entry.Daily)
		if err != nil {
			return nil, fmt.Errorf("tier %d daily: %w", entry.Tier, err)
		}
		monthly, err := decimal.NewFromString(entry.Monthly)
		if err != nil {
			return nil, fmt.Errorf("tier %d monthly: %w", entry.Tier, err)
		}
		single, err := decimal.NewFromString(entry.Single)
		if err != nil {
			return nil, fmt.Errorf("tier %d single: %w", entry.Tier, err)
		}
		out[model.Tier(entry.Tier)] = model.Limits{Daily: daily, Monthly: monthly, Single: single}
	}
	return out, nil
}

// DefaultLimits is the limit table used when none is configured.
func DefaultLimits() map[model.Tier]model.Limits {
	return map[model.Tier]model.Limits{
		model.TierBasic:    {Daily: decimal.NewFromInt(1_000), Monthly: decimal.NewFromInt(5_000), Single: decimal.NewFromInt(500)},
		model.TierVerified: {Daily: decimal.NewFromInt(10_000), Monthly: decimal.NewFromInt(50_000), Single: decimal.NewFromInt(5_000)},
		model.TierEnhanced: {Daily: decimal.NewFromInt(100_000), Monthly: decimal.NewFromInt(1_000_000), Single: decimal.NewFromInt(50_000)},
	}
}
