package model

import (
	"strings"
)

// NativeTokenAddress identifies the network's gas token.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// Token describes a fungible asset on a network. Tokens compare by address and network.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Network  string `json:"network"`
}

// Key returns the identity key of the token.
func (t Token) Key() string {
	return strings.ToLower(t.Network) + ":" + strings.ToLower(t.Address)
}

// Equal reports whether both tokens refer to the same asset.
func (t Token) Equal(other Token) bool {
	return t.Key() == other.Key()
}

// IsNative reports whether the token is the network's gas token.
func (t Token) IsNative() bool {
	return strings.EqualFold(t.Address, NativeTokenAddress)
}

// LPToken returns the token descriptor for a pool's liquidity units.
func LPToken(pool Pool) Token {
	return Token{
		Address:  pool.ID,
		Symbol:   pool.Token0.Symbol + "-" + pool.Token1.Symbol + "-LP",
		Decimals: 18,
		Network:  pool.Network,
	}
}
