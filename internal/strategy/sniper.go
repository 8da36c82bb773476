package strategy

import "fmt"

// sniperPolicy buys at the observed ask only when it is at or below a target
// price.
type sniperPolicy struct {
	targetPrice float64
	size        float64
}

func newSniperPolicy(params Params) *sniperPolicy {
	return &sniperPolicy{
		targetPrice: params.Float("target_price", 1.0),
		size:        params.Float("size", 10.0),
	}
}

func (p *sniperPolicy) Name() string { return "sniper" }

func (p *sniperPolicy) Decide(ctx Context) (Intent, error) {
	if ctx.Cap == nil || ctx.Cap.Sign() == 0 {
		return Hold("sniper:cap_is_zero"), nil
	}
	sig := ctx.Signal
	if !sig.Complete() {
		return Hold("sniper:no_signal"), nil
	}

	if sig.BestAsk > p.targetPrice {
		return HoldMeta("sniper:no_order", map[string]any{"signal": sig.Extra}), nil
	}

	if ctx.State != nil {
		ctx.State["last_ask"] = sig.BestAsk
	}

	order := Order{
		Side:  SideBuy,
		Size:  p.size,
		Price: sig.BestAsk,
		Meta: map[string]any{
			"reason": fmt.Sprintf("snipe_at_%.4f", sig.BestAsk),
			"target": p.targetPrice,
			"spread": sig.BestAsk - sig.BestBid,
		},
	}
	return adaptOrder("sniper", order, ctx), nil
}
