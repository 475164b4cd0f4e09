package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"walletEngine/internal/model"
)

// Networks routes calls to the gateway registered for a wallet's network.
type Networks struct {
	gateways map[string]Gateway
}

func NewNetworks() *Networks {
	return &Networks{gateways: make(map[string]Gateway)}
}

// Register binds gw to network, replacing any previous binding.
func (n *Networks) Register(network string, gw Gateway) {
	n.gateways[strings.ToLower(network)] = gw
}

// Names returns the registered networks in sorted order.
func (n *Networks) Names() []string {
	names := make([]string, 0, len(n.gateways))
	for name := range n.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether a gateway is registered for network.
func (n *Networks) Supports(network string) bool {
	_, ok := n.gateways[strings.ToLower(network)]
	return ok
}

func (n *Networks) lookup(network string) (Gateway, error) {
	gw, ok := n.gateways[strings.ToLower(network)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}
	return gw, nil
}

func (n *Networks) Submit(ctx context.Context, wallet model.Wallet, tx model.Transaction) (string, error) {
	gw, err := n.lookup(wallet.Network)
	if err != nil {
		return "", err
	}
	return gw.Submit(ctx, wallet, tx)
}

func (n *Networks) Status(ctx context.Context, wallet model.Wallet, tx model.Transaction) (Result, error) {
	gw, err := n.lookup(wallet.Network)
	if err != nil {
		return Result{}, err
	}
	return gw.Status(ctx, wallet, tx)
}

func (n *Networks) Balance(ctx context.Context, wallet model.Wallet, token model.Token) (*big.Int, error) {
	gw, err := n.lookup(wallet.Network)
	if err != nil {
		return nil, err
	}
	return gw.Balance(ctx, wallet, token)
}

func (n *Networks) IsContractAddress(ctx context.Context, network, address string) (bool, error) {
	gw, err := n.lookup(network)
	if err != nil {
		return false, err
	}
	return gw.IsContractAddress(ctx, network, address)
}
