package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a user's verified-identity level. Higher tiers allow larger transactions.
type Tier int

const (
	TierNone Tier = iota
	TierBasic
	TierVerified
	TierEnhanced
)

// Limits bounds the USD value a tier may move.
type Limits struct {
	Daily   decimal.Decimal `json:"daily"`
	Monthly decimal.Decimal `json:"monthly"`
	Single  decimal.Decimal `json:"single"`
}

// Usage is a user's accumulated spend in the current UTC day and month.
type Usage struct {
	UserID  string          `json:"user_id"`
	Day     time.Time       `json:"day"`
	Daily   decimal.Decimal `json:"daily"`
	Month   time.Time       `json:"month"`
	Monthly decimal.Decimal `json:"monthly"`
}

// Spend is the USD value a transaction counted against its user's limits, with the counter
// periods it was added to.
type Spend struct {
	Value decimal.Decimal `json:"value"`
	Day   time.Time       `json:"day"`
	Month time.Time       `json:"month"`
}
