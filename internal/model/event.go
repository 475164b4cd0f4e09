package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names a user-facing notification.
type EventKind string

const (
	EventWalletCreated        EventKind = "wallet_created"
	EventTransactionSubmitted EventKind = "transaction_submitted"
	EventTransactionConfirmed EventKind = "transaction_confirmed"
	EventTransactionFailed    EventKind = "transaction_failed"
)

// Event is delivered to a user by the notification dispatcher.
type Event struct {
	Kind          EventKind        `json:"kind"`
	UserID        string           `json:"user_id"`
	WalletID      string           `json:"wallet_id"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Type          TxType           `json:"type,omitempty"`
	ChainHash     string           `json:"chain_hash,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	AmountIn      string           `json:"amount_in,omitempty"`
	AmountOut     string           `json:"amount_out,omitempty"`
	Share         *decimal.Decimal `json:"share,omitempty"`
	At            time.Time        `json:"at"`
}
