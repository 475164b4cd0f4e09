package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"walletEngine/internal/model"
	"walletEngine/internal/storage"
)

const txColumns = `
	id, wallet_id, type, from_address, to_address, token, amount::text, details,
	created_at, status, chain_hash, failure_reason, confirmed_at, spend
`

func (s *Store) CreateTransaction(ctx context.Context, tx model.Transaction) error {
	if tx.ID == "" || tx.WalletID == "" || tx.Amount == nil {
		return storage.ErrInvalidInput
	}
	token, err := json.Marshal(tx.Token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	details, err := model.MarshalDetails(tx.Details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	var spend []byte
	if tx.Spend != nil {
		if spend, err = json.Marshal(tx.Spend); err != nil {
			return fmt.Errorf("encode spend: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14)
	`,
		tx.ID,
		tx.WalletID,
		string(tx.Type),
		tx.FromAddress,
		tx.ToAddress,
		token,
		model.FormatAmount(tx.Amount),
		details,
		tx.CreatedAt,
		string(tx.Status),
		tx.ChainHash,
		tx.FailureReason,
		tx.ConfirmedAt,
		spend,
	)
	return mapErr(err)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (model.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return model.Transaction{}, mapErr(err)
	}
	return tx, nil
}

func (s *Store) SetChainHash(ctx context.Context, id, hash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions SET chain_hash=$2 WHERE id=$1 AND (chain_hash='' OR chain_hash=$2)
	`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := s.transactionExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

// FinalizeTransaction relies on the status predicate so only one caller wins the transition.
func (s *Store) FinalizeTransaction(ctx context.Context, id string, status model.TxStatus, reason string, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, storage.ErrInvalidInput
	}
	var confirmedAt *time.Time
	if status == model.StatusConfirmed {
		confirmedAt = &at
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET status=$2, failure_reason=$3, confirmed_at=$4
		WHERE id=$1 AND status=$5
	`, id, string(status), reason, confirmedAt, string(model.StatusPending))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	exists, err := s.transactionExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

func (s *Store) ListTransactionsByWallet(ctx context.Context, walletID string, limit int) ([]model.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE wallet_id=$1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, walletID, limitOrAll(limit))
}

func (s *Store) ListPendingTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE status=$1
		ORDER BY created_at, id
		LIMIT $2
	`, string(model.StatusPending), limitOrAll(limit))
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) transactionExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

// limitOrAll maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var (
		tx      model.Transaction
		txType  string
		status  string
		token   []byte
		amount  string
		details []byte
		spend   []byte
	)
	err := row.Scan(
		&tx.ID,
		&tx.WalletID,
		&txType,
		&tx.FromAddress,
		&tx.ToAddress,
		&token,
		&amount,
		&details,
		&tx.CreatedAt,
		&status,
		&tx.ChainHash,
		&tx.FailureReason,
		&tx.ConfirmedAt,
		&spend,
	)
	if err != nil {
		return model.Transaction{}, err
	}
	tx.Type = model.TxType(txType)
	tx.Status = model.TxStatus(status)
	if err := json.Unmarshal(token, &tx.Token); err != nil {
		return model.Transaction{}, fmt.Errorf("decode token of %s: %w", tx.ID, err)
	}
	if tx.Amount, err = parseInt(amount); err != nil {
		return model.Transaction{}, err
	}
	if tx.Details, err = model.UnmarshalDetails(tx.Type, details); err != nil {
		return model.Transaction{}, fmt.Errorf("decode details of %s: %w", tx.ID, err)
	}
	if len(spend) > 0 {
		tx.Spend = new(model.Spend)
		if err := json.Unmarshal(spend, tx.Spend); err != nil {
			return model.Transaction{}, fmt.Errorf("decode spend of %s: %w", tx.ID, err)
		}
	}
	return tx, nil
}
