// Package chain is the boundary to the blockchain network. Gateway submits signed
// transactions, reports their on-chain state and reads balances.
package chain

import (
	"context"
	"errors"
	"math/big"

	"walletEngine/internal/model"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrUnsupportedTx      = errors.New("unsupported transaction")
)

// State is the on-chain state of a submitted transaction.
type State int

const (
	StatePending State = iota
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Result is one observation of a submitted transaction. Realized amounts are optional and
// only set when the chain reports them.
type Result struct {
	State     State
	Reason    string
	AmountOut *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

// Gateway is implemented by every network backend.
type Gateway interface {
	Submit(ctx context.Context, wallet model.Wallet, tx model.Transaction) (string, error)
	Status(ctx context.Context, wallet model.Wallet, tx model.Transaction) (Result, error)
	Balance(ctx context.Context, wallet model.Wallet, token model.Token) (*big.Int, error)
	IsContractAddress(ctx context.Context, network, address string) (bool, error)
}

// Confirmed is a convenience constructor for a successful result.
func Confirmed() Result { return Result{State: StateConfirmed} }

// Failed is a convenience constructor for a definitive on-chain failure.
func Failed(reason string) Result { return Result{State: StateFailed, Reason: reason} }
