package postgres

import (
	"context"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

const balanceColumns = `wallet_id, token_address, token_symbol, token_decimals, token_network, amount::text, synced_at`

func queueBalanceUpsert(batch *pgx.Batch, balance model.Balance) {
	batch.Queue(`
		INSERT INTO balances (
			wallet_id, token_key, token_address, token_symbol, token_decimals, token_network, amount, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)
		ON CONFLICT (wallet_id, token_key)
		DO UPDATE SET
			amount = EXCLUDED.amount,
			synced_at = EXCLUDED.synced_at
	`,
		balance.WalletID,
		tokenKey(balance.Token),
		balance.Token.Address,
		balance.Token.Symbol,
		int16(balance.Token.Decimals),
		balance.Token.Network,
		model.FormatAmount(balance.Amount),
		balance.SyncedAt,
	)
}

func (s *Store) GetBalance(ctx context.Context, walletID string, token model.Token) (model.Balance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+balanceColumns+` FROM balances WHERE wallet_id=$1 AND token_key=$2
	`, walletID, tokenKey(token))
	balance, err := scanBalance(row)
	if err != nil {
		return model.Balance{}, mapErr(err)
	}
	return balance, nil
}

func (s *Store) ListBalances(ctx context.Context, walletID string) ([]model.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+balanceColumns+` FROM balances WHERE wallet_id=$1 ORDER BY token_key
	`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Balance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, balance)
	}
	return out, rows.Err()
}

func (s *Store) PutBalance(ctx context.Context, balance model.Balance) error {
	if balance.WalletID == "" || balance.Amount == nil {
		return storage.ErrInvalidInput
	}
	if balance.Amount.Sign() < 0 {
		return storage.ErrNegativeBalance
	}
	batch := &pgx.Batch{}
	queueBalanceUpsert(batch, balance)
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	_, err := br.Exec()
	return err
}

// AdjustBalance locks the row, so concurrent adjustments of one balance serialize.
func (s *Store) AdjustBalance(ctx context.Context, walletID string, token model.Token, delta *big.Int, at time.Time) (model.Balance, error) {
	if walletID == "" || delta == nil {
		return model.Balance{}, storage.ErrInvalidInput
	}

	var out model.Balance
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO balances (
				wallet_id, token_key, token_address, token_symbol, token_decimals, token_network, amount, synced_at
			) VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
			ON CONFLICT (wallet_id, token_key) DO NOTHING
		`, walletID, tokenKey(token), token.Address, token.Symbol, int16(token.Decimals), token.Network, at)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			SELECT `+balanceColumns+` FROM balances WHERE wallet_id=$1 AND token_key=$2 FOR UPDATE
		`, walletID, tokenKey(token))
		current, err := scanBalance(row)
		if err != nil {
			return mapErr(err)
		}

		next := new(big.Int).Add(current.Amount, delta)
		if next.Sign() < 0 {
			return storage.ErrNegativeBalance
		}
		_, err = tx.Exec(ctx, `
			UPDATE balances SET amount=$3::numeric, synced_at=$4 WHERE wallet_id=$1 AND token_key=$2
		`, walletID, tokenKey(token), next.String(), at)
		if err != nil {
			return err
		}
		current.Amount = next
		current.SyncedAt = at
		out = current
		return nil
	})
	if err != nil {
		return model.Balance{}, err
	}
	return out, nil
}

func scanBalance(row pgx.Row) (model.Balance, error) {
	var (
		balance  model.Balance
		decimals int16
		amount   string
	)
	err := row.Scan(
		&balance.WalletID,
		&balance.Token.Address,
		&balance.Token.Symbol,
		&decimals,
		&balance.Token.Network,
		&amount,
		&balance.SyncedAt,
	)
	if err != nil {
		return model.Balance{}, err
	}
	balance.Token.Decimals = uint8(decimals)
	if balance.Amount, err = parseInt(amount); err != nil {
		return model.Balance{}, err
	}
	return balance, nil
}
