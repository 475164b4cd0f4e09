package model

import (
	"errors"
	"math/big"
	"time"
)

// TxType enumerates the transaction families.
type TxType string

const (
	TxTransfer        TxType = "TRANSFER"
	TxSwap            TxType = "SWAP"
	TxLiquidityAdd    TxType = "LIQUIDITY_ADD"
	TxLiquidityRemove TxType = "LIQUIDITY_REMOVE"
)

// TxStatus is the state of a transaction. CONFIRMED and FAILED are terminal.
type TxStatus string

const (
	StatusPending   TxStatus = "PENDING"
	StatusConfirmed TxStatus = "CONFIRMED"
	StatusFailed    TxStatus = "FAILED"
)

// IsTerminal reports whether no further transition may happen from s.
func (s TxStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Failure reasons set by the engine itself. Chain and gateway reasons are stored verbatim.
const (
	ReasonConfirmationTimeout = "ConfirmationTimeout"
	ReasonReservationLost     = "ReservationLost"
	ReasonSubmissionLost      = "SubmissionLost"
	ReasonSlippageExceeded    = "SlippageExceeded"
)

// ErrChainHashSet is returned when a chain hash is assigned twice.
var ErrChainHashSet = errors.New("chain hash already set")

// Transaction is one submission attempt. Amount and identity fields never change after creation.
type Transaction struct {
	ID            string     `json:"id"`
	WalletID      string     `json:"wallet_id"`
	Type          TxType     `json:"type"`
	FromAddress   string     `json:"from_address"`
	ToAddress     string     `json:"to_address"`
	Token         Token      `json:"token"`
	Amount        *big.Int   `json:"amount"`
	Details       Details    `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	Status        TxStatus   `json:"status"`
	ChainHash     string     `json:"chain_hash,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	Spend         *Spend     `json:"-"`
}

// SetChainHash assigns the hash returned by the chain. It may only be set once.
func (t *Transaction) SetChainHash(hash string) error {
	if t.ChainHash != "" && t.ChainHash != hash {
		return ErrChainHashSet
	}
	t.ChainHash = hash
	return nil
}

// Clone returns a deep copy of the transaction.
func (t Transaction) Clone() Transaction {
	t.Amount = cloneInt(t.Amount)
	if t.ConfirmedAt != nil {
		at := *t.ConfirmedAt
		t.ConfirmedAt = &at
	}
	if t.Spend != nil {
		spend := *t.Spend
		t.Spend = &spend
	}
	if t.Details != nil {
		t.Details = t.Details.clone()
	}
	return t
}
