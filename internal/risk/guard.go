package risk

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/adjust481/safe-agent-v4/internal/strategy"
	"github.com/adjust481/safe-agent-v4/internal/vault"
)

// Limits are the strategy-independent risk thresholds. Ratios are basis
// points so all wei arithmetic stays integral.
type Limits struct {
	// MinBalanceReserveBps of the available balance must remain after a trade.
	MinBalanceReserveBps int64
	// TradeSizeBps of the available balance is the largest single trade.
	TradeSizeBps int64
	// MinTradeAmount in wei; smaller proposals become HOLD.
	MinTradeAmount *big.Int
	// SlippageBps sets min-out = floor(amountIn × (10000−bps)/10000).
	SlippageBps int64
	// CooldownBlocks between executed trades.
	CooldownBlocks uint64
}

func DefaultLimits() Limits {
	return Limits{
		MinBalanceReserveBps: 1000, // keep 10%
		TradeSizeBps:         2500, // trade up to 25% of balance
		MinTradeAmount:       tokens(1),
		SlippageBps:          200, // 2%
		CooldownBlocks:       5,
	}
}

func ConservativeLimits() Limits {
	return Limits{
		MinBalanceReserveBps: 2000,
		TradeSizeBps:         1500,
		MinTradeAmount:       tokens(5),
		SlippageBps:          100,
		CooldownBlocks:       10,
	}
}

func AggressiveLimits() Limits {
	return Limits{
		MinBalanceReserveBps: 500,
		TradeSizeBps:         4000,
		MinTradeAmount:       tokens(1),
		SlippageBps:          500,
		CooldownBlocks:       2,
	}
}

// LimitsForPreset resolves a named preset; empty and "default" both yield the
// default limits.
func LimitsForPreset(name string) (Limits, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultLimits(), nil
	case "conservative":
		return ConservativeLimits(), nil
	case "aggressive":
		return AggressiveLimits(), nil
	default:
		return Limits{}, fmt.Errorf("unknown risk preset %q", name)
	}
}

// Guard applies the limit checks to every SWAP intent, whoever produced it.
// It owns the cooldown bookkeeping: MarkTraded advances the cooldown only
// when a trade actually executed.
type Guard struct {
	limits         Limits
	lastTradeBlock uint64
	hasTraded      bool
}

func NewGuard(limits Limits) *Guard {
	if limits.MinTradeAmount == nil {
		limits.MinTradeAmount = new(big.Int)
	}
	return &Guard{limits: limits}
}

func (g *Guard) Limits() Limits { return g.limits }

// MarkTraded records the block of a successfully executed trade. Failed or
// reverted attempts must not call this.
func (g *Guard) MarkTraded(block uint64) {
	g.lastTradeBlock = block
	g.hasTraded = true
}

func (g *Guard) LastTradeBlock() (uint64, bool) {
	return g.lastTradeBlock, g.hasTraded
}

// Apply runs the sequential checks against a snapshot, short-circuiting on
// the first failure. Oversized proposals are clamped to both the per-trade
// notional cap and the trade-size ratio rather than rejected; the minimum out
// is recomputed from the final amount.
func (g *Guard) Apply(intent strategy.Intent, snap *vault.Snapshot) strategy.Intent {
	if !intent.IsSwap() {
		return intent
	}

	if !snap.AgentEnabled() {
		return hold("risk:agent_disabled", intent)
	}
	if !snap.RouteEnabled() {
		return hold("risk:route_disabled", intent)
	}

	available := snap.AvailableBalance()
	if available.Sign() <= 0 {
		return hold("risk:zero_balance", intent)
	}

	if g.hasTraded && g.limits.CooldownBlocks > 0 {
		elapsed := snap.BlockNumber - g.lastTradeBlock
		if snap.BlockNumber < g.lastTradeBlock || elapsed <= g.limits.CooldownBlocks {
			return hold(fmt.Sprintf("risk:cooldown_active (%d/%d blocks)", elapsed, g.limits.CooldownBlocks), intent)
		}
	}

	amountIn := new(big.Int).Set(intent.AmountIn)

	// Clamp, don't reject: the ratio and per-trade cap shrink the proposal.
	clamped := false
	if maxByRatio := mulDivBps(available, g.limits.TradeSizeBps); amountIn.Cmp(maxByRatio) > 0 {
		amountIn.Set(maxByRatio)
		clamped = true
	}
	if maxNotional := snap.MaxTradeAmount(); maxNotional.Sign() > 0 && amountIn.Cmp(maxNotional) > 0 {
		amountIn.Set(maxNotional)
		clamped = true
	}

	if amountIn.Cmp(g.limits.MinTradeAmount) < 0 {
		return hold("risk:below_min_trade_amount", intent)
	}

	remaining := new(big.Int).Sub(available, amountIn)
	minRequired := mulDivBps(available, g.limits.MinBalanceReserveBps)
	if remaining.Cmp(minRequired) < 0 {
		return hold("risk:reserve_breached", intent)
	}

	out := intent
	out.AmountIn = amountIn
	out.MinAmountOut = mulDivBps(amountIn, 10000-g.limits.SlippageBps)
	if clamped {
		if out.Meta == nil {
			out.Meta = map[string]any{}
		}
		out.Meta["risk_clamped"] = true
	}
	return out
}

func hold(reason string, from strategy.Intent) strategy.Intent {
	h := strategy.Hold(reason)
	if from.Meta != nil {
		h.Meta = from.Meta
	}
	return h
}

// mulDivBps computes floor(x × bps / 10000).
func mulDivBps(x *big.Int, bps int64) *big.Int {
	if x == nil || bps <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(x, big.NewInt(bps))
	return out.Quo(out, big.NewInt(10000))
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}
