package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

func (s *Store) LoadUsage(ctx context.Context, userID string) (model.Usage, bool, error) {
	var daily, monthly string
	usage := model.Usage{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		SELECT day, daily::text, month, monthly::text FROM kyc_usage WHERE user_id=$1
	`, userID).Scan(&usage.Day, &daily, &usage.Month, &monthly)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Usage{}, false, nil
	}
	if err != nil {
		return model.Usage{}, false, err
	}
	if usage.Daily, err = parseDecimal(daily); err != nil {
		return model.Usage{}, false, err
	}
	if usage.Monthly, err = parseDecimal(monthly); err != nil {
		return model.Usage{}, false, err
	}
	return usage, true, nil
}

func (s *Store) SaveUsage(ctx context.Context, usage model.Usage) error {
	if usage.UserID == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kyc_usage (user_id, day, daily, month, monthly)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric)
		ON CONFLICT (user_id)
		DO UPDATE SET
			day = EXCLUDED.day,
			daily = EXCLUDED.daily,
			month = EXCLUDED.month,
			monthly = EXCLUDED.monthly
	`, usage.UserID, usage.Day, usage.Daily.String(), usage.Month, usage.Monthly.String())
	return err
}

// TierOf returns TierNone for users without a KYC profile.
func (s *Store) TierOf(ctx context.Context, userID string) (model.Tier, error) {
	var tier int16
	err := s.pool.QueryRow(ctx, `SELECT tier FROM kyc_profiles WHERE user_id=$1`, userID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TierNone, nil
	}
	if err != nil {
		return model.TierNone, err
	}
	return model.Tier(tier), nil
}

// SetTier records the verified tier for a user.
func (s *Store) SetTier(ctx context.Context, userID string, tier model.Tier) error {
	if userID == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kyc_profiles (user_id, tier, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET tier = EXCLUDED.tier, updated_at = now()
	`, userID, int16(tier))
	return err
}
