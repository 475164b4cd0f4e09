package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"

	"walletEngine/internal/model"
)

type metaCaller struct {
	decimals uint8
	symbol   string
	fail     bool
}

func (m metaCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if m.fail {
		return nil, errors.New("execution reverted")
	}
	parsed, err := erc20ABIInstance()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(m.decimals)
	case "symbol":
		return method.Outputs.Pack(m.symbol)
	default:
		return nil, errors.New("unexpected method " + method.Name)
	}
}

func TestResolveTokensUsesOnchainDecimals(t *testing.T) {
	tokens := []model.Token{
		{Address: model.NativeTokenAddress, Symbol: "ETH", Decimals: 18, Network: "ethereum"},
		{Address: usdcAddr, Decimals: 18, Network: "ethereum"},
	}
	resolved, err := ResolveTokens(context.Background(), metaCaller{decimals: 6, symbol: "USDC"}, tokens, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved[0] != tokens[0] {
		t.Fatalf("native token changed: %+v", resolved[0])
	}
	if resolved[1].Decimals != 6 || resolved[1].Symbol != "USDC" {
		t.Fatalf("unexpected token %+v", resolved[1])
	}
}

func TestResolveTokensFailsWithoutDecimals(t *testing.T) {
	tokens := []model.Token{{Address: usdcAddr, Symbol: "USDC", Decimals: 6, Network: "ethereum"}}
	if _, err := ResolveTokens(context.Background(), metaCaller{fail: true}, tokens, nil); err == nil {
		t.Fatalf("expected error when decimals cannot be read")
	}
	bad := []model.Token{{Address: "0x12", Symbol: "BAD"}}
	if _, err := ResolveTokens(context.Background(), metaCaller{}, bad, nil); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}
