// Package kyc enforces tiered transaction limits with rolling UTC daily and monthly counters.
package kyc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletEngine/internal/keylock"
	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

var (
	ErrTransactionLimitExceeded = errors.New("single transaction limit exceeded")
	ErrDailyLimitExceeded       = errors.New("daily limit exceeded")
	ErrMonthlyLimitExceeded     = errors.New("monthly limit exceeded")
	ErrNegativeValue            = errors.New("value must not be negative")
)

// Observer is told about every rejection.
type Observer interface {
	KYCRejected(reason string)
}

// Authorization records spend counted against a user's limits so it can be reverted.
type Authorization struct {
	UserID string
	Value  decimal.Decimal
	Day    time.Time
	Month  time.Time

	reverted bool
}

// Restore rebuilds the authorization a persisted spend came from, so it can still be reverted.
func Restore(userID string, spend model.Spend) *Authorization {
	return &Authorization{UserID: userID, Value: spend.Value, Day: spend.Day, Month: spend.Month}
}

// Spend is the part of the authorization kept with its transaction.
func (a *Authorization) Spend() *model.Spend {
	if a == nil {
		return nil
	}
	return &model.Spend{Value: a.Value, Day: a.Day, Month: a.Month}
}

// Guard approves or rejects USD values against a user's tier limits.
type Guard struct {
	tiers    TierSource
	usage    storage.UsageStore
	locks    *keylock.Locker
	observer Observer
	logger   *zap.Logger
	clock    func() time.Time
}

func NewGuard(tiers TierSource, usage storage.UsageStore, observer Observer, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		tiers:    tiers,
		usage:    usage,
		locks:    keylock.New(),
		observer: observer,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for counter boundaries.
func (g *Guard) SetClock(clock func() time.Time) {
	g.clock = clock
}

// Authorize checks value against the single, daily and monthly limits and, on success,
// counts it toward the daily and monthly totals.
func (g *Guard) Authorize(ctx context.Context, userID string, value decimal.Decimal) (*Authorization, error) {
	if value.IsNegative() {
		return nil, ErrNegativeValue
	}
	unlock := g.locks.Lock(userID)
	defer unlock()

	tier, err := g.tiers.TierOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tier: %w", err)
	}
	limits, err := g.tiers.LimitsOf(tier)
	if err != nil {
		return nil, fmt.Errorf("load limits: %w", err)
	}

	if value.GreaterThan(limits.Single) {
		return nil, g.reject(userID, ErrTransactionLimitExceeded, value, limits.Single)
	}

	now := g.clock()
	usage, err := g.loadLocked(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if usage.Daily.Add(value).GreaterThan(limits.Daily) {
		return nil, g.reject(userID, ErrDailyLimitExceeded, value, limits.Daily.Sub(usage.Daily))
	}
	if usage.Monthly.Add(value).GreaterThan(limits.Monthly) {
		return nil, g.reject(userID, ErrMonthlyLimitExceeded, value, limits.Monthly.Sub(usage.Monthly))
	}

	usage.Daily = usage.Daily.Add(value)
	usage.Monthly = usage.Monthly.Add(value)
	if err := g.usage.SaveUsage(ctx, usage); err != nil {
		return nil, fmt.Errorf("save usage: %w", err)
	}

	return &Authorization{UserID: userID, Value: value, Day: usage.Day, Month: usage.Month}, nil
}

// Revert removes an authorization's value from the counters it was added to. Counters that
// have rolled over since are left alone. Reverting twice is a no-op.
func (g *Guard) Revert(ctx context.Context, auth *Authorization) error {
	if auth == nil || auth.reverted {
		return nil
	}
	unlock := g.locks.Lock(auth.UserID)
	defer unlock()

	usage, err := g.loadLocked(ctx, auth.UserID, g.clock())
	if err != nil {
		return err
	}
	if usage.Day.Equal(auth.Day) {
		usage.Daily = decimal.Max(decimal.Zero, usage.Daily.Sub(auth.Value))
	}
	if usage.Month.Equal(auth.Month) {
		usage.Monthly = decimal.Max(decimal.Zero, usage.Monthly.Sub(auth.Value))
	}
	if err := g.usage.SaveUsage(ctx, usage); err != nil {
		return fmt.Errorf("save usage: %w", err)
	}
	auth.reverted = true
	return nil
}

// Usage returns the user's counters as of now.
func (g *Guard) Usage(ctx context.Context, userID string) (model.Usage, error) {
	unlock := g.locks.Lock(userID)
	defer unlock()

	return g.loadLocked(ctx, userID, g.clock())
}

func (g *Guard) loadLocked(ctx context.Context, userID string, now time.Time) (model.Usage, error) {
	usage, ok, err := g.usage.LoadUsage(ctx, userID)
	if err != nil {
		return model.Usage{}, fmt.Errorf("load usage: %w", err)
	}
	day, month := dayStart(now), monthStart(now)
	if !ok {
		return model.Usage{UserID: userID, Day: day, Daily: decimal.Zero, Month: month, Monthly: decimal.Zero}, nil
	}
	if !usage.Day.Equal(day) {
		usage.Day = day
		usage.Daily = decimal.Zero
	}
	if !usage.Month.Equal(month) {
		usage.Month = month
		usage.Monthly = decimal.Zero
	}
	return usage, nil
}

func (g *Guard) reject(userID string, reason error, value, limit decimal.Decimal) error {
	if g.observer != nil {
		g.observer.KYCRejected(reason.Error())
	}
	g.logger.Info("kyc limit rejected",
		zap.String("user_id", userID),
		zap.String("reason", reason.Error()),
		zap.String("value_usd", value.String()),
		zap.String("remaining_usd", limit.String()),
	)
	return fmt.Errorf("%w: %s USD over %s USD", reason, value.StringFixed(2), limit.StringFixed(2))
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
