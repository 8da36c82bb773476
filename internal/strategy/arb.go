package strategy

import "fmt"

// arbPolicy buys when the bid/ask spread is wide enough to expect mean
// reversion.
type arbPolicy struct {
	threshold float64
	size      float64
}

func newArbPolicy(params Params) *arbPolicy {
	return &arbPolicy{
		threshold: params.Float("threshold", 0.01),
		size:      params.Float("size", 10.0),
	}
}

func (p *arbPolicy) Name() string { return "arb" }

func (p *arbPolicy) Decide(ctx Context) (Intent, error) {
	if ctx.Cap == nil || ctx.Cap.Sign() == 0 {
		return Hold("arb:cap_is_zero"), nil
	}
	sig := ctx.Signal
	if !sig.Complete() {
		return Hold("arb:no_signal"), nil
	}
	if sig.BestBid <= 0 {
		return HoldMeta("arb:no_opportunity", map[string]any{"signal": sig.Extra}), nil
	}

	spread := (sig.BestAsk - sig.BestBid) / sig.BestBid
	if ctx.State != nil {
		ctx.State["last_spread"] = spread
	}

	if spread <= p.threshold {
		return HoldMeta("arb:no_opportunity", map[string]any{"signal": sig.Extra}), nil
	}

	order := Order{
		Side:  SideBuy,
		Size:  p.size,
		Price: sig.BestAsk,
		Meta: map[string]any{
			"reason":    fmt.Sprintf("arb_spread_%.4f", spread),
			"threshold": p.threshold,
			"spread":    spread,
		},
	}
	return adaptOrder("arb", order, ctx), nil
}
