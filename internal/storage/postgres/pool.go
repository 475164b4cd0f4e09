package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

const poolColumns = `id, network, token0, token1, reserve0::text, reserve1::text, total_supply::text, fee_bps, updated_at`

func (s *Store) CreatePool(ctx context.Context, pool model.Pool) error {
	if pool.ID == "" {
		return storage.ErrInvalidInput
	}
	token0, token1, err := encodePoolTokens(pool)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pools (`+poolColumns+`)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9)
	`,
		pool.ID,
		pool.Network,
		token0,
		token1,
		model.FormatAmount(pool.Reserve0),
		model.FormatAmount(pool.Reserve1),
		model.FormatAmount(pool.TotalSupply),
		int64(pool.FeeBps),
		pool.UpdatedAt,
	)
	return mapErr(err)
}

func (s *Store) GetPool(ctx context.Context, id string) (model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id=$1`, id)
	pool, err := scanPool(row)
	if err != nil {
		return model.Pool{}, mapErr(err)
	}
	return pool, nil
}

func (s *Store) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, rows.Err()
}

func (s *Store) SavePool(ctx context.Context, pool model.Pool) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return updatePool(ctx, tx, pool)
	})
}

func (s *Store) GetLPUnits(ctx context.Context, walletID, poolID string) (*big.Int, error) {
	var raw *string
	err := s.pool.QueryRow(ctx, `
		SELECT u.units::text
		FROM pools p
		LEFT JOIN lp_units u ON u.pool_id = p.id AND u.wallet_id = $1
		WHERE p.id = $2
	`, walletID, poolID).Scan(&raw)
	if err != nil {
		return nil, mapErr(err)
	}
	if raw == nil {
		return new(big.Int), nil
	}
	return parseInt(*raw)
}

func (s *Store) ListLPUnits(ctx context.Context, poolID string) (map[string]*big.Int, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pools WHERE id=$1)`, poolID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `SELECT wallet_id, units::text FROM lp_units WHERE pool_id=$1`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*big.Int)
	for rows.Next() {
		var walletID, raw string
		if err := rows.Scan(&walletID, &raw); err != nil {
			return nil, err
		}
		units, err := parseInt(raw)
		if err != nil {
			return nil, err
		}
		out[walletID] = units
	}
	return out, rows.Err()
}

func (s *Store) SavePoolAndUnits(ctx context.Context, pool model.Pool, walletID string, lpUnits *big.Int) error {
	if walletID == "" || lpUnits == nil || lpUnits.Sign() < 0 {
		return storage.ErrInvalidInput
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := updatePool(ctx, tx, pool); err != nil {
			return err
		}
		if lpUnits.Sign() == 0 {
			_, err := tx.Exec(ctx, `DELETE FROM lp_units WHERE pool_id=$1 AND wallet_id=$2`, pool.ID, walletID)
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO lp_units (pool_id, wallet_id, units)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (pool_id, wallet_id)
			DO UPDATE SET units = EXCLUDED.units
		`, pool.ID, walletID, lpUnits.String())
		return err
	})
}

func updatePool(ctx context.Context, tx pgx.Tx, pool model.Pool) error {
	tag, err := tx.Exec(ctx, `
		UPDATE pools
		SET reserve0=$2::numeric, reserve1=$3::numeric, total_supply=$4::numeric, fee_bps=$5, updated_at=$6
		WHERE id=$1
	`,
		pool.ID,
		model.FormatAmount(pool.Reserve0),
		model.FormatAmount(pool.Reserve1),
		model.FormatAmount(pool.TotalSupply),
		int64(pool.FeeBps),
		pool.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func encodePoolTokens(pool model.Pool) ([]byte, []byte, error) {
	token0, err := json.Marshal(pool.Token0)
	if err != nil {
		return nil, nil, fmt.Errorf("encode token0: %w", err)
	}
	token1, err := json.Marshal(pool.Token1)
	if err != nil {
		return nil, nil, fmt.Errorf("encode token1: %w", err)
	}
	return token0, token1, nil
}

func scanPool(row pgx.Row) (model.Pool, error) {
	var (
		pool                       model.Pool
		token0, token1             []byte
		reserve0, reserve1, supply string
		feeBps                     int64
	)
	err := row.Scan(&pool.ID, &pool.Network, &token0, &token1, &reserve0, &reserve1, &supply, &feeBps, &pool.UpdatedAt)
	if err != nil {
		return model.Pool{}, err
	}
	if err := json.Unmarshal(token0, &pool.Token0); err != nil {
		return model.Pool{}, fmt.Errorf("decode token0 of %s: %w", pool.ID, err)
	}
	if err := json.Unmarshal(token1, &pool.Token1); err != nil {
		return model.Pool{}, fmt.Errorf("decode token1 of %s: %w", pool.ID, err)
	}
	amounts, err := model.ParseAmounts(reserve0, reserve1, supply)
	if err != nil {
		return model.Pool{}, err
	}
	pool.Reserve0, pool.Reserve1, pool.TotalSupply = amounts[0], amounts[1], amounts[2]
	pool.FeeBps = uint32(feeBps)
	return pool, nil
}
