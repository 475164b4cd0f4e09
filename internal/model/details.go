package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Details carries the type-specific fields of a transaction.
// Implementations: TransferDetails, SwapDetails, LiquidityAddDetails, LiquidityRemoveDetails.
type Details interface {
	TxType() TxType
	clone() Details
}

// TransferDetails holds transfer specific data.
type TransferDetails struct {
	Recipient string
}

// SwapDetails holds the swap leg and its quote at submission.
type SwapDetails struct {
	PoolID       string
	TokenIn      Token
	TokenOut     Token
	AmountIn     *big.Int
	QuotedOut    *big.Int
	MinAmountOut *big.Int
	Fee          *big.Int
}

// LiquidityAddDetails holds a deposit after ratio adjustment.
type LiquidityAddDetails struct {
	PoolID         string
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0        *big.Int
	Amount1        *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
}

// LiquidityRemoveDetails holds a withdrawal and its expected payout.
type LiquidityRemoveDetails struct {
	PoolID     string
	LPUnits    *big.Int
	Amount0    *big.Int
	Amount1    *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
}

func (TransferDetails) TxType() TxType        { return TxTransfer }
func (SwapDetails) TxType() TxType            { return TxSwap }
func (LiquidityAddDetails) TxType() TxType    { return TxLiquidityAdd }
func (LiquidityRemoveDetails) TxType() TxType { return TxLiquidityRemove }

func (d TransferDetails) clone() Details { return d }

func (d SwapDetails) clone() Details {
	d.AmountIn = cloneInt(d.AmountIn)
	d.QuotedOut = cloneInt(d.QuotedOut)
	d.MinAmountOut = cloneInt(d.MinAmountOut)
	d.Fee = cloneInt(d.Fee)
	return d
}

func (d LiquidityAddDetails) clone() Details {
	d.Amount0Desired = cloneInt(d.Amount0Desired)
	d.Amount1Desired = cloneInt(d.Amount1Desired)
	d.Amount0 = cloneInt(d.Amount0)
	d.Amount1 = cloneInt(d.Amount1)
	d.Amount0Min = cloneInt(d.Amount0Min)
	d.Amount1Min = cloneInt(d.Amount1Min)
	return d
}

func (d LiquidityRemoveDetails) clone() Details {
	d.LPUnits = cloneInt(d.LPUnits)
	d.Amount0 = cloneInt(d.Amount0)
	d.Amount1 = cloneInt(d.Amount1)
	d.Amount0Min = cloneInt(d.Amount0Min)
	d.Amount1Min = cloneInt(d.Amount1Min)
	return d
}

// Wire forms keep amounts as decimal strings.

type transferDetailsJSON struct {
	Recipient string `json:"recipient"`
}

type swapDetailsJSON struct {
	PoolID       string `json:"pool_id"`
	TokenIn      Token  `json:"token_in"`
	TokenOut     Token  `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	QuotedOut    string `json:"quoted_out"`
	MinAmountOut string `json:"min_amount_out"`
	Fee          string `json:"fee"`
}

type liquidityAddDetailsJSON struct {
	PoolID         string `json:"pool_id"`
	Amount0Desired string `json:"amount0_desired"`
	Amount1Desired string `json:"amount1_desired"`
	Amount0        string `json:"amount0"`
	Amount1        string `json:"amount1"`
	Amount0Min     string `json:"amount0_min"`
	Amount1Min     string `json:"amount1_min"`
}

type liquidityRemoveDetailsJSON struct {
	PoolID     string `json:"pool_id"`
	LPUnits    string `json:"lp_units"`
	Amount0    string `json:"amount0"`
	Amount1    string `json:"amount1"`
	Amount0Min string `json:"amount0_min"`
	Amount1Min string `json:"amount1_min"`
}

// MarshalDetails encodes details for storage.
func MarshalDetails(d Details) ([]byte, error) {
	switch typed := d.(type) {
	case nil:
		return []byte("{}"), nil
	case TransferDetails:
		return json.Marshal(transferDetailsJSON{Recipient: typed.Recipient})
	case SwapDetails:
		return json.Marshal(swapDetailsJSON{
			PoolID:       typed.PoolID,
			TokenIn:      typed.TokenIn,
			TokenOut:     typed.TokenOut,
			AmountIn:     FormatAmount(typed.AmountIn),
			QuotedOut:    FormatAmount(typed.QuotedOut),
			MinAmountOut: FormatAmount(typed.MinAmountOut),
			Fee:          FormatAmount(typed.Fee),
		})
	case LiquidityAddDetails:
		return json.Marshal(liquidityAddDetailsJSON{
			PoolID:         typed.PoolID,
			Amount0Desired: FormatAmount(typed.Amount0Desired),
			Amount1Desired: FormatAmount(typed.Amount1Desired),
			Amount0:        FormatAmount(typed.Amount0),
			Amount1:        FormatAmount(typed.Amount1),
			Amount0Min:     FormatAmount(typed.Amount0Min),
			Amount1Min:     FormatAmount(typed.Amount1Min),
		})
	case LiquidityRemoveDetails:
		return json.Marshal(liquidityRemoveDetailsJSON{
			PoolID:     typed.PoolID,
			LPUnits:    FormatAmount(typed.LPUnits),
			Amount0:    FormatAmount(typed.Amount0),
			Amount1:    FormatAmount(typed.Amount1),
			Amount0Min: FormatAmount(typed.Amount0Min),
			Amount1Min: FormatAmount(typed.Amount1Min),
		})
	default:
		return nil, fmt.Errorf("unsupported details type %T", d)
	}
}

// UnmarshalDetails decodes stored details for the given transaction type.
func UnmarshalDetails(txType TxType, data []byte) (Details, error) {
	switch txType {
	case TxTransfer:
		var raw transferDetailsJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode transfer details: %w", err)
		}
		return TransferDetails{Recipient: raw.Recipient}, nil
	case TxSwap:
		var raw swapDetailsJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode swap details: %w", err)
		}
		amounts, err := ParseAmounts(raw.AmountIn, raw.QuotedOut, raw.MinAmountOut, raw.Fee)
		if err != nil {
			return nil, fmt.Errorf("decode swap details: %w", err)
		}
		return SwapDetails{
			PoolID:       raw.PoolID,
			TokenIn:      raw.TokenIn,
			TokenOut:     raw.TokenOut,
			AmountIn:     amounts[0],
			QuotedOut:    amounts[1],
			MinAmountOut: amounts[2],
			Fee:          amounts[3],
		}, nil
	case TxLiquidityAdd:
		var raw liquidityAddDetailsJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode liquidity add details: %w", err)
		}
		amounts, err := ParseAmounts(raw.Amount0Desired, raw.Amount1Desired, raw.Amount0, raw.Amount1, raw.Amount0Min, raw.Amount1Min)
		if err != nil {
			return nil, fmt.Errorf("decode liquidity add details: %w", err)
		}
		return LiquidityAddDetails{
			PoolID:         raw.PoolID,
			Amount0Desired: amounts[0],
			Amount1Desired: amounts[1],
			Amount0:        amounts[2],
			Amount1:        amounts[3],
			Amount0Min:     amounts[4],
			Amount1Min:     amounts[5],
		}, nil
	case TxLiquidityRemove:
		var raw liquidityRemoveDetailsJSON
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode liquidity remove details: %w", err)
		}
		amounts, err := ParseAmounts(raw.LPUnits, raw.Amount0, raw.Amount1, raw.Amount0Min, raw.Amount1Min)
		if err != nil {
			return nil, fmt.Errorf("decode liquidity remove details: %w", err)
		}
		return LiquidityRemoveDetails{
			PoolID:     raw.PoolID,
			LPUnits:    amounts[0],
			Amount0:    amounts[1],
			Amount1:    amounts[2],
			Amount0Min: amounts[3],
			Amount1Min: amounts[4],
		}, nil
	default:
		return nil, fmt.Errorf("unknown transaction type %q", txType)
	}
}

// FormatAmount renders an integer amount in base units.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ParseAmount parses a base-unit integer amount. Empty input is zero.
func ParseAmount(input string) (*big.Int, error) {
	if input == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(input, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", input)
	}
	return v, nil
}

// ParseAmounts parses several amounts, failing on the first invalid one.
func ParseAmounts(inputs ...string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(inputs))
	for _, input := range inputs {
		v, err := ParseAmount(input)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
