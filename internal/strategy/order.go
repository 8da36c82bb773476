package strategy

// Side of an abstract order instruction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is the abstract instruction an evaluator emits before adaptation to a
// chain-ready intent. Size and price are advisory; the chain-facing amount is
// always bounded by account state.
type Order struct {
	Side  Side
	Size  float64
	Price float64
	Meta  map[string]any
}

// adaptOrder translates an abstract order into a SWAP intent: BUY maps to
// token0 -> token1, amount-in comes from Context.BoundedAmount, and the
// minimum out applies the slippage tolerance.
func adaptOrder(name string, order Order, ctx Context) Intent {
	amountIn := ctx.BoundedAmount()
	if amountIn.Sign() <= 0 {
		return HoldMeta(name+":insufficient_balance", map[string]any{
			"order": order.Meta,
		})
	}

	reason := name + ":execute"
	if r, ok := order.Meta["reason"].(string); ok && r != "" {
		reason = name + ":" + r
	}

	meta := map[string]any{
		"order": order.Meta,
		"side":  string(order.Side),
		"price": order.Price,
	}
	if ctx.Signal != nil {
		meta["signal"] = ctx.Signal.Extra
	}

	return Intent{
		Action:       ActionSwap,
		Reason:       reason,
		ZeroForOne:   order.Side == SideBuy,
		AmountIn:     amountIn,
		MinAmountOut: ctx.MinOutFor(amountIn),
		Meta:         meta,
	}
}
