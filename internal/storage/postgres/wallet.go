package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

const walletColumns = `id, user_id, address, network, is_active, encrypted_key, created_at`

func (s *Store) CreateWallet(ctx context.Context, wallet model.Wallet, balances []model.Balance) error {
	if wallet.ID == "" || wallet.UserID == "" {
		return storage.ErrInvalidInput
	}
	for _, balance := range balances {
		if balance.WalletID != wallet.ID || balance.Amount == nil || balance.Amount.Sign() < 0 {
			return storage.ErrInvalidInput
		}
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO wallets (`+walletColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, wallet.ID, wallet.UserID, wallet.Address, wallet.Network, wallet.IsActive, wallet.EncryptedKey, wallet.CreatedAt)
		if err != nil {
			return mapErr(err)
		}

		batch := &pgx.Batch{}
		for _, balance := range balances {
			queueBalanceUpsert(batch, balance)
		}
		br := tx.SendBatch(ctx, batch)
		for range balances {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert balance: %w", err)
			}
		}
		return br.Close()
	})
}

func (s *Store) GetWallet(ctx context.Context, id string) (model.Wallet, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id=$1`, id)
	wallet, err := scanWallet(row)
	if err != nil {
		return model.Wallet{}, mapErr(err)
	}
	return wallet, nil
}

func (s *Store) GetWalletByAddress(ctx context.Context, network, address string) (model.Wallet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE network=$1 AND lower(address)=lower($2)
	`, network, address)
	wallet, err := scanWallet(row)
	if err != nil {
		return model.Wallet{}, mapErr(err)
	}
	return wallet, nil
}

func (s *Store) ListWalletsByUser(ctx context.Context, userID string) ([]model.Wallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id=$1 ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wallet)
	}
	return out, rows.Err()
}

func (s *Store) SetWalletActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE wallets SET is_active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (model.Wallet, error) {
	var wallet model.Wallet
	err := row.Scan(&wallet.ID, &wallet.UserID, &wallet.Address, &wallet.Network, &wallet.IsActive, &wallet.EncryptedKey, &wallet.CreatedAt)
	return wallet, err
}
