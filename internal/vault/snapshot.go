package vault

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// HeaderReader is the block-metadata surface of the chain client.
// *ethclient.Client satisfies it via HeaderByNumber.
type HeaderReader interface {
	LatestBlock(ctx context.Context) (number uint64, timestamp uint64, err error)
}

// ChainReadError marks a snapshot that could not be taken at all (the block
// header read failed). Individual field failures never produce it; they fall
// back to documented defaults instead.
type ChainReadError struct {
	Err error
}

func (e *ChainReadError) Error() string { return fmt.Sprintf("chain read: %v", e.Err) }
func (e *ChainReadError) Unwrap() error { return e.Err }

// Snapshot is a point-in-time view of the vault as of one block. It is
// immutable once fetched and rebuilt every iteration. Two snapshots taken at
// the same block number yield identical downstream decisions.
type Snapshot struct {
	BlockNumber    uint64
	BlockTimestamp uint64

	UserBalance       *big.Int
	AgentSubBalance   *big.Int
	AgentSpent        *big.Int
	VaultTokenBalance *big.Int

	Agent          AgentConfig
	DefaultRouteID [32]byte
	DefaultRoute   RouteConfig
}

// AvailableBalance is the agent's spendable sub-allocation.
func (s *Snapshot) AvailableBalance() *big.Int {
	if s.AgentSubBalance == nil {
		return new(big.Int)
	}
	return s.AgentSubBalance
}

// MaxTradeAmount is the per-trade notional cap from the agent config.
func (s *Snapshot) MaxTradeAmount() *big.Int {
	if s.Agent.MaxNotionalPerTrade == nil {
		return new(big.Int)
	}
	return s.Agent.MaxNotionalPerTrade
}

func (s *Snapshot) AgentEnabled() bool { return s.Agent.Enabled }
func (s *Snapshot) RouteEnabled() bool { return s.DefaultRoute.Enabled }

// Provider reads the vault's current state. Pure read; no retries (the loop
// driver owns retry policy) and no side effects beyond the calls themselves.
type Provider struct {
	binding *Binding
	headers HeaderReader
	user    common.Address
	agent   common.Address
}

func NewProvider(binding *Binding, headers HeaderReader, user, agent common.Address) *Provider {
	return &Provider{binding: binding, headers: headers, user: user, agent: agent}
}

// Fetch takes a snapshot as of the latest block. A failed header read aborts
// with ChainReadError; any single field read that fails substitutes a default
// (zero balance, disabled config, empty route list) with a logged warning so
// one flaky getter does not starve the whole loop.
func (p *Provider) Fetch(ctx context.Context) (*Snapshot, error) {
	number, ts, err := p.headers.LatestBlock(ctx)
	if err != nil {
		return nil, &ChainReadError{Err: err}
	}

	snap := &Snapshot{BlockNumber: number, BlockTimestamp: ts}

	userBal, err := p.binding.UserBalance(ctx, p.user)
	snap.UserBalance = bigOrZero(userBal, err, "user balance")
	subBal, err := p.binding.AgentSubBalance(ctx, p.user, p.agent)
	snap.AgentSubBalance = bigOrZero(subBal, err, "agent sub-balance")
	spent, err := p.binding.AgentSpent(ctx, p.user, p.agent)
	snap.AgentSpent = bigOrZero(spent, err, "agent spent")

	cfg, err := p.binding.AgentConfig(ctx, p.agent)
	if err != nil {
		log.Printf("[warn] snapshot: agent config unavailable, treating agent as disabled: %v", err)
		cfg = AgentConfig{Enabled: false, MaxNotionalPerTrade: new(big.Int)}
	}
	routes, err := p.binding.AllowedRoutes(ctx, p.agent)
	if err != nil {
		log.Printf("[warn] snapshot: allowed routes unavailable, defaulting to none: %v", err)
		routes = nil
	}
	cfg.AllowedRoutes = routes
	snap.Agent = cfg

	routeID, err := p.binding.DefaultRouteID(ctx)
	if err != nil {
		log.Printf("[warn] snapshot: default route id unavailable, route treated as disabled: %v", err)
	} else {
		snap.DefaultRouteID = routeID
		route, err := p.binding.Route(ctx, routeID)
		if err != nil {
			log.Printf("[warn] snapshot: default route unavailable, treated as disabled: %v", err)
		} else {
			snap.DefaultRoute = route
		}
	}

	if (snap.DefaultRoute.Token0 != common.Address{}) {
		bal, err := p.binding.ERC20BalanceOf(ctx, snap.DefaultRoute.Token0, p.binding.Address())
		if err != nil {
			log.Printf("[warn] snapshot: vault token balance unavailable, defaulting to 0: %v", err)
			bal = new(big.Int)
		}
		snap.VaultTokenBalance = bal
	} else {
		snap.VaultTokenBalance = new(big.Int)
	}

	return snap, nil
}

func bigOrZero(v *big.Int, err error, what string) *big.Int {
	if err != nil {
		log.Printf("[warn] snapshot: %s unavailable, defaulting to 0: %v", what, err)
		return new(big.Int)
	}
	if v == nil {
		return new(big.Int)
	}
	return v
}
