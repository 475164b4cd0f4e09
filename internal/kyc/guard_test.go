package kyc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"walletEngine/internal/model"
	"walletEngine/internal/storage/memory"
)

func newTestGuard(t *testing.T, now *time.Time) (*Guard, *memory.UsageStore) {
	t.Helper()
	users := memory.NewTierStore()
	users.SetTier("u1", model.TierVerified)
	limits := map[model.Tier]model.Limits{
		model.TierVerified: {
			Single:  decimal.NewFromInt(1000),
			Daily:   decimal.NewFromInt(1500),
			Monthly: decimal.NewFromInt(2500),
		},
	}
	usage := memory.NewUsageStore()
	g := NewGuard(NewStaticTiers(users, limits), usage, nil, nil)
	g.SetClock(func() time.Time { return *now })
	return g, usage
}

func TestAuthorizeSingleLimit(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, &now)
	ctx := context.Background()

	if _, err := g.Authorize(ctx, "u1", decimal.RequireFromString("1000.01")); !errors.Is(err, ErrTransactionLimitExceeded) {
		t.Fatalf("expected ErrTransactionLimitExceeded, got %v", err)
	}
	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("limit value should pass: %v", err)
	}
}

func TestAuthorizeDailyAndMonthlyRollover(t *testing.T) {
	now := time.Date(2024, 3, 30, 23, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, &now)
	ctx := context.Background()

	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(900)); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(700)); !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got %v", err)
	}

	// Next UTC day, still March: daily resets, monthly does not.
	now = time.Date(2024, 3, 30, 23, 59, 0, 0, time.UTC).Add(2 * time.Minute)
	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(900)); err != nil {
		t.Fatalf("authorize after day rollover: %v", err)
	}
	usage, _ := g.Usage(ctx, "u1")
	if !usage.Monthly.Equal(decimal.NewFromInt(1800)) {
		t.Fatalf("monthly mismatch: %s", usage.Monthly)
	}

	now = time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(900)); err != nil {
		t.Fatalf("april authorize: %v", err)
	}
	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(600)); err != nil {
		t.Fatalf("april second authorize: %v", err)
	}
	now = time.Date(2024, 4, 3, 8, 0, 0, 0, time.UTC)
	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(50)); err != nil {
		t.Fatalf("april third authorize: %v", err)
	}
	now = time.Date(2024, 4, 4, 8, 0, 0, 0, time.UTC)
	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(1000)); !errors.Is(err, ErrMonthlyLimitExceeded) {
		t.Fatalf("expected ErrMonthlyLimitExceeded, got %v", err)
	}
}

func TestRevertRestoresAllowance(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, &now)
	ctx := context.Background()

	auth, err := g.Authorize(ctx, "u1", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := g.Revert(ctx, auth); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if err := g.Revert(ctx, auth); err != nil {
		t.Fatalf("second revert: %v", err)
	}

	usage, err := g.Usage(ctx, "u1")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !usage.Daily.IsZero() || !usage.Monthly.IsZero() {
		t.Fatalf("usage not reverted: %+v", usage)
	}
}

func TestRejectionDoesNotCount(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, &now)
	ctx := context.Background()

	if _, err := g.Authorize(ctx, "u1", decimal.NewFromInt(5000)); err == nil {
		t.Fatalf("expected rejection")
	}
	usage, _ := g.Usage(ctx, "u1")
	if !usage.Daily.IsZero() {
		t.Fatalf("rejected value counted: %s", usage.Daily)
	}
}

func TestUnknownTierRejectsPositiveValues(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	g, _ := newTestGuard(t, &now)
	if _, err := g.Authorize(context.Background(), "nobody", decimal.NewFromInt(1)); !errors.Is(err, ErrTransactionLimitExceeded) {
		t.Fatalf("expected rejection for tier none, got %v", err)
	}
}

func TestParseLimits(t *testing.T) {
	limits, err := ParseLimits([]TierLimit{{Tier: 2, Daily: "10", Monthly: "100", Single: "5.5"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !limits[model.TierVerified].Single.Equal(decimal.RequireFromString("5.5")) {
		t.Fatalf("single mismatch: %+v", limits)
	}
	if _, err := ParseLimits([]TierLimit{{Tier: 1, Daily: "x", Monthly: "1", Single: "1"}}); err == nil {
		t.Fatalf("expected parse error")
	}
}
