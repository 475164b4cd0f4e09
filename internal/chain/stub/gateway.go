// Package stub provides a deterministic in-memory chain gateway. It backs the engine tests
// and the simulate mode of walletd.
package stub

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"walletEngine/internal/chain"
	"walletEngine/internal/model"
)

// Outcome decides the result of the poll-th status call (1-based) for tx.
type Outcome func(tx model.Transaction, poll int) chain.Result

// Gateway simulates a chain. Confirmed transfers and swaps move the simulated balances of the
// submitting wallet once.
type Gateway struct {
	mu             sync.Mutex
	balances       map[string]*big.Int
	defaultBalance *big.Int
	contracts      map[string]bool
	outcome        Outcome
	submitErr      error
	onSubmit       func(ctx context.Context, tx model.Transaction) error
	submitted      []model.Transaction
	polls          map[string]int
	settled        map[string]bool
}

func New() *Gateway {
	return &Gateway{
		balances:  make(map[string]*big.Int),
		contracts: make(map[string]bool),
		polls:     make(map[string]int),
		settled:   make(map[string]bool),
		outcome:   func(model.Transaction, int) chain.Result { return chain.Confirmed() },
	}
}

func balanceKey(walletID string, token model.Token) string {
	return walletID + "|" + token.Key()
}

func contractKey(network, address string) string {
	return strings.ToLower(network) + "|" + strings.ToLower(address)
}

// Hash returns the chain hash the stub assigns to tx.
func Hash(tx model.Transaction) string {
	return crypto.Keccak256Hash([]byte(tx.ID)).Hex()
}

// SetBalance sets the simulated on-chain balance of a wallet.
func (g *Gateway) SetBalance(walletID string, token model.Token, amount *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[balanceKey(walletID, token)] = new(big.Int).Set(amount)
}

// SetDefaultBalance is returned for wallets and tokens never set explicitly.
func (g *Gateway) SetDefaultBalance(amount *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.defaultBalance = new(big.Int).Set(amount)
}

// MarkContract flags address as a deployed contract on network.
func (g *Gateway) MarkContract(network, address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contracts[contractKey(network, address)] = true
}

// FailSubmissions makes every following Submit return err. A nil err restores success.
func (g *Gateway) FailSubmissions(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitErr = err
}

// OnSubmit installs a hook run before each submission. A hook error fails the submission.
func (g *Gateway) OnSubmit(fn func(ctx context.Context, tx model.Transaction) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onSubmit = fn
}

// SetOutcome replaces the status decision function.
func (g *Gateway) SetOutcome(fn Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcome = fn
}

// ConfirmAfter reports pending for polls-1 status calls and confirmed afterwards.
func ConfirmAfter(polls int) Outcome {
	return func(_ model.Transaction, poll int) chain.Result {
		if poll < polls {
			return chain.Result{State: chain.StatePending}
		}
		return chain.Confirmed()
	}
}

// NeverConfirm keeps every transaction pending.
func NeverConfirm() Outcome {
	return func(model.Transaction, int) chain.Result {
		return chain.Result{State: chain.StatePending}
	}
}

// Submitted returns the transactions accepted so far.
func (g *Gateway) Submitted() []model.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.Transaction, 0, len(g.submitted))
	for _, tx := range g.submitted {
		out = append(out, tx.Clone())
	}
	return out
}

// Polls returns how many status calls were made for the transaction id.
func (g *Gateway) Polls(txID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls[txID]
}

func (g *Gateway) Submit(ctx context.Context, _ model.Wallet, tx model.Transaction) (string, error) {
	g.mu.Lock()
	hook := g.onSubmit
	g.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, tx); err != nil {
			return "", err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.submitted = append(g.submitted, tx.Clone())
	return Hash(tx), nil
}

func (g *Gateway) Status(_ context.Context, wallet model.Wallet, tx model.Transaction) (chain.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.polls[tx.ID]++
	result := g.outcome(tx, g.polls[tx.ID])
	if result.State == chain.StateConfirmed && !g.settled[tx.ID] {
		g.settled[tx.ID] = true
		g.settleLocked(wallet, tx, result)
	}
	return result, nil
}

func (g *Gateway) Balance(_ context.Context, wallet model.Wallet, token model.Token) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.balanceLocked(wallet.ID, token)), nil
}

func (g *Gateway) IsContractAddress(_ context.Context, network, address string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contracts[contractKey(network, address)], nil
}

func (g *Gateway) balanceLocked(walletID string, token model.Token) *big.Int {
	key := balanceKey(walletID, token)
	if bal, ok := g.balances[key]; ok {
		return bal
	}
	bal := new(big.Int)
	if g.defaultBalance != nil {
		bal.Set(g.defaultBalance)
	}
	g.balances[key] = bal
	return bal
}

func (g *Gateway) moveLocked(walletID string, token model.Token, delta *big.Int) {
	if delta == nil {
		return
	}
	bal := g.balanceLocked(walletID, token)
	bal.Add(bal, delta)
}

// settleLocked mirrors the on-chain effect of a confirmed transaction on the sender.
func (g *Gateway) settleLocked(wallet model.Wallet, tx model.Transaction, result chain.Result) {
	neg := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		return new(big.Int).Neg(v)
	}
	pick := func(reported, planned *big.Int) *big.Int {
		if reported != nil {
			return reported
		}
		return planned
	}
	switch d := tx.Details.(type) {
	case model.TransferDetails:
		g.moveLocked(wallet.ID, tx.Token, neg(tx.Amount))
	case model.SwapDetails:
		g.moveLocked(wallet.ID, d.TokenIn, neg(d.AmountIn))
		g.moveLocked(wallet.ID, d.TokenOut, pick(result.AmountOut, d.QuotedOut))
	}
}
