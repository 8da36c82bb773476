package strategy

import (
	"math/big"
)

// conservativePolicy is the default rule chain: trade a fixed size only when
// the agent and route are enabled and the sub-balance clears a threshold. It
// never looks at market signals.
type conservativePolicy struct {
	minBalance *big.Int // wei threshold below which we hold
	size       *big.Int // fixed trade size in wei; nil = bounded default
}

func newConservativePolicy(params Params) *conservativePolicy {
	p := &conservativePolicy{
		minBalance: tokensToWei(params.Float("min_balance", 1.0)),
	}
	if size := params.Float("size", 0); size > 0 {
		p.size = tokensToWei(size)
	}
	return p
}

func (p *conservativePolicy) Name() string { return "default" }

func (p *conservativePolicy) Decide(ctx Context) (Intent, error) {
	snap := ctx.Snapshot
	if snap == nil {
		return Hold("default:no_snapshot"), nil
	}
	if !snap.AgentEnabled() {
		return Hold("default:agent_disabled"), nil
	}
	if !snap.RouteEnabled() {
		return Hold("default:route_disabled"), nil
	}

	sub := ctx.SubBalance
	if sub == nil || sub.Cmp(p.minBalance) < 0 {
		return Hold("default:balance_below_threshold"), nil
	}

	amount := p.size
	if amount == nil {
		amount = ctx.BoundedAmount()
	}
	if amount.Sign() <= 0 {
		return Hold("default:insufficient_balance"), nil
	}

	return Intent{
		Action:       ActionSwap,
		Reason:       "default:threshold_met",
		ZeroForOne:   true,
		AmountIn:     amount,
		MinAmountOut: ctx.MinOutFor(amount),
	}, nil
}

// tokensToWei converts a token-denominated parameter to wei, truncating
// sub-wei dust.
func tokensToWei(tokens float64) *big.Int {
	if tokens <= 0 {
		return new(big.Int)
	}
	f := new(big.Float).SetFloat64(tokens)
	f.Mul(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	wei, _ := f.Int(nil)
	return wei
}
