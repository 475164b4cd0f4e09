package model

import (
	"math/big"
	"time"
)

// Wallet is a custodial wallet owned by a single user.
type Wallet struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Address      string    `json:"address"`
	Network      string    `json:"network"`
	IsActive     bool      `json:"is_active"`
	EncryptedKey []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Balance is the last synced on-chain balance of a wallet for one token.
type Balance struct {
	WalletID string    `json:"wallet_id"`
	Token    Token     `json:"token"`
	Amount   *big.Int  `json:"amount"`
	SyncedAt time.Time `json:"synced_at"`
}

// Clone returns a deep copy of the balance.
func (b Balance) Clone() Balance {
	b.Amount = cloneInt(b.Amount)
	return b
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
