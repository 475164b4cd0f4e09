package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"walletEngine/internal/model"
)

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenMeta is what an ERC20 contract reports about itself.
type TokenMeta struct {
	Address  string
	Symbol   string
	Decimals uint8
}

// FetchTokenMeta loads decimals and symbol via ERC20 calls. Decimals are required; a symbol
// that cannot be read as string or bytes32 is left empty.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (TokenMeta, error) {
	meta := TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20ABIInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABIInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("unpack %s: empty result", method)
		}
		return values, nil
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("unsupported decimals type %T", values[0])
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if raw, ok := values[0].([32]byte); ok {
			meta.Symbol = string(bytes.TrimRight(raw[:], "\x00"))
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta, nil
}

// ResolveTokens checks configured tokens against their contracts. Decimals always come from
// the chain; a missing symbol is filled in. Native tokens are passed through unchanged.
func ResolveTokens(ctx context.Context, caller ContractCaller, tokens []model.Token, logger *zap.Logger) ([]model.Token, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]model.Token, 0, len(tokens))
	for _, token := range tokens {
		if token.IsNative() {
			out = append(out, token)
			continue
		}
		addr, err := ParseAddress(token.Address)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", token.Symbol, err)
		}
		meta, err := FetchTokenMeta(ctx, caller, addr, logger)
		if err != nil {
			return nil, fmt.Errorf("token %s metadata: %w", token.Symbol, err)
		}
		if meta.Decimals != token.Decimals {
			logger.Warn("token decimals differ from config",
				zap.String("token", token.Symbol),
				zap.Uint8("configured", token.Decimals),
				zap.Uint8("onchain", meta.Decimals),
			)
			token.Decimals = meta.Decimals
		}
		if token.Symbol == "" {
			token.Symbol = meta.Symbol
		}
		out = append(out, token)
	}
	return out, nil
}
