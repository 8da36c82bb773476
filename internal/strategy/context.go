package strategy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adjust481/safe-agent-v4/internal/signalfeed"
	"github.com/adjust481/safe-agent-v4/internal/vault"
)

// State is per-policy mutable context (running averages, last-seen signal).
// Owned by the engine for the process lifetime; opaque to the loop driver.
type State map[string]any

// Context enumerates exactly what a policy may look at when deciding. All
// amounts are wei.
type Context struct {
	// Signal is the latest market observation; nil when none is available.
	Signal *signalfeed.Signal

	SubBalance    *big.Int
	MaxPerTrade   *big.Int
	DefaultAmount *big.Int
	Cap           *big.Int
	SlippageBps   int64

	Agent common.Address
	User  common.Address

	Snapshot *vault.Snapshot
	State    State
}

// BoundedAmount is the chain-facing trade size: min(sub-balance, per-trade
// cap, default amount). A strategy's own requested size is advisory only.
// A non-positive per-trade notional means the cap is unset, not zero.
func (c Context) BoundedAmount() *big.Int {
	amount := new(big.Int)
	if c.SubBalance != nil {
		amount.Set(c.SubBalance)
	}
	if c.MaxPerTrade != nil && c.MaxPerTrade.Sign() > 0 {
		amount = minBig(amount, c.MaxPerTrade)
	}
	if c.DefaultAmount != nil && c.DefaultAmount.Sign() > 0 {
		amount = minBig(amount, c.DefaultAmount)
	}
	return amount
}

// MinOutFor applies the slippage tolerance: floor(amountIn × (10000−bps)/10000).
func (c Context) MinOutFor(amountIn *big.Int) *big.Int {
	bps := c.SlippageBps
	if bps < 0 {
		bps = 0
	}
	if bps > 10000 {
		bps = 10000
	}
	out := new(big.Int).Mul(amountIn, big.NewInt(10000-bps))
	return out.Quo(out, big.NewInt(10000))
}

func minBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
