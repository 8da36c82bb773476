package strategy

import (
	"fmt"
	"math/big"
)

type Action string

const (
	ActionHold Action = "HOLD"
	ActionSwap Action = "SWAP"
)

// Intent is the normalized decision every policy produces. For SWAP, the
// execution fields are set and positive; for HOLD they are absent. Intents
// are created fresh per decision and consumed immediately.
type Intent struct {
	Action Action
	Reason string

	// ZeroForOne: true = token0 -> token1. Meaningful only for SWAP.
	ZeroForOne   bool
	AmountIn     *big.Int
	MinAmountOut *big.Int

	// Meta carries strategy diagnostics (signal payload, order details).
	Meta map[string]any
}

// Hold builds a HOLD intent with the given reason.
func Hold(reason string) Intent {
	return Intent{Action: ActionHold, Reason: reason}
}

// HoldMeta builds a HOLD intent carrying diagnostic metadata.
func HoldMeta(reason string, meta map[string]any) Intent {
	return Intent{Action: ActionHold, Reason: reason, Meta: meta}
}

// Validate enforces the intent invariant: SWAP requires direction, a positive
// amount-in and a non-negative minimum out; HOLD carries no execution fields.
func (i Intent) Validate() error {
	switch i.Action {
	case ActionHold:
		if i.AmountIn != nil || i.MinAmountOut != nil {
			return fmt.Errorf("HOLD intent must not carry execution fields")
		}
		return nil
	case ActionSwap:
		if i.AmountIn == nil || i.AmountIn.Sign() <= 0 {
			return fmt.Errorf("SWAP intent requires positive amount_in")
		}
		if i.MinAmountOut == nil || i.MinAmountOut.Sign() < 0 {
			return fmt.Errorf("SWAP intent requires non-negative min_amount_out")
		}
		return nil
	default:
		return fmt.Errorf("invalid action %q", i.Action)
	}
}

func (i Intent) IsSwap() bool { return i.Action == ActionSwap }
