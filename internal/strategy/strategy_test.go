package strategy

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/adjust481/safe-agent-v4/internal/signalfeed"
	"github.com/adjust481/safe-agent-v4/internal/vault"
)

func wei(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func signal(bid, ask float64) *signalfeed.Signal {
	return &signalfeed.Signal{
		BestBid: bid, BestAsk: ask,
		HaveBid: true, HaveAsk: true,
		Extra: map[string]any{"best_bid": bid, "best_ask": ask},
	}
}

func enabledSnapshot(subTokens int64) *vault.Snapshot {
	return &vault.Snapshot{
		AgentSubBalance: wei(subTokens),
		Agent:           vault.AgentConfig{Enabled: true, MaxNotionalPerTrade: wei(500)},
		DefaultRoute:    vault.RouteConfig{Enabled: true},
	}
}

func tradeContext(sig *signalfeed.Signal, subTokens int64) Context {
	return Context{
		Signal:      sig,
		SubBalance:  wei(subTokens),
		MaxPerTrade: wei(500),
		Cap:         wei(100),
		SlippageBps: 50,
		Snapshot:    enabledSnapshot(subTokens),
		State:       State{},
	}
}

func TestBuildUnknownStrategyHolds(t *testing.T) {
	p := Build("does-not-exist", nil)
	intent, err := p.Decide(Context{})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if intent.Action != ActionHold || intent.Reason != "no_policy" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
}

func TestKnown(t *testing.T) {
	for _, name := range []string{"default", "sniper", "arb", "arbitrage", " Sniper "} {
		if !Known(name) {
			t.Fatalf("%q should be known", name)
		}
	}
	if Known("momentum") {
		t.Fatalf("momentum should be unknown")
	}
}

type panicPolicy struct{}

func (panicPolicy) Name() string { return "panic" }

func (panicPolicy) Decide(Context) (Intent, error) { panic("boom") }

func TestSafeDecideContainsPanic(t *testing.T) {
	intent, err := SafeDecide(panicPolicy{}, Context{})
	if err == nil {
		t.Fatalf("expected error from panicking policy")
	}
	if intent.Action != ActionHold {
		t.Fatalf("panic did not produce HOLD: %+v", intent)
	}
	if intent.Reason != "strategy_error:boom" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

type invalidPolicy struct{}

func (invalidPolicy) Name() string { return "invalid" }
func (invalidPolicy) Decide(Context) (Intent, error) {
	// SWAP with no amount violates the intent invariant.
	return Intent{Action: ActionSwap, Reason: "bad"}, nil
}

func TestSafeDecideRejectsInvalidIntent(t *testing.T) {
	intent, err := SafeDecide(invalidPolicy{}, Context{})
	if err == nil {
		t.Fatalf("expected error for invalid intent")
	}
	if intent.Action != ActionHold {
		t.Fatalf("invalid intent not converted to HOLD: %+v", intent)
	}
}

type errorPolicy struct{}

func (errorPolicy) Name() string { return "error" }
func (errorPolicy) Decide(Context) (Intent, error) {
	return Intent{}, fmt.Errorf("feed unavailable")
}

func TestSafeDecideWrapsError(t *testing.T) {
	intent, err := SafeDecide(errorPolicy{}, Context{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if intent.Reason != "strategy_error:feed unavailable" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestIntentValidate(t *testing.T) {
	if err := Hold("x").Validate(); err != nil {
		t.Fatalf("valid HOLD rejected: %v", err)
	}
	bad := Hold("x")
	bad.AmountIn = big.NewInt(1)
	if err := bad.Validate(); err == nil {
		t.Fatalf("HOLD with amount accepted")
	}
	swap := Intent{Action: ActionSwap, AmountIn: big.NewInt(1), MinAmountOut: new(big.Int)}
	if err := swap.Validate(); err != nil {
		t.Fatalf("valid SWAP rejected: %v", err)
	}
	swap.AmountIn = new(big.Int)
	if err := swap.Validate(); err == nil {
		t.Fatalf("zero-amount SWAP accepted")
	}
}

func TestBoundedAmount(t *testing.T) {
	ctx := Context{SubBalance: wei(1000), MaxPerTrade: wei(300), DefaultAmount: wei(50)}
	if got := ctx.BoundedAmount(); got.Cmp(wei(50)) != 0 {
		t.Fatalf("bounded = %s, want %s", got, wei(50))
	}

	ctx.DefaultAmount = nil
	if got := ctx.BoundedAmount(); got.Cmp(wei(300)) != 0 {
		t.Fatalf("bounded = %s, want %s", got, wei(300))
	}

	ctx.SubBalance = wei(100)
	if got := ctx.BoundedAmount(); got.Cmp(wei(100)) != 0 {
		t.Fatalf("bounded = %s, want %s", got, wei(100))
	}
}

func TestBoundedAmountZeroMaxPerTradeMeansNoCap(t *testing.T) {
	ctx := Context{SubBalance: wei(100), MaxPerTrade: new(big.Int)}
	if got := ctx.BoundedAmount(); got.Cmp(wei(100)) != 0 {
		t.Fatalf("bounded = %s, want full sub-balance %s", got, wei(100))
	}

	ctx.MaxPerTrade = nil
	if got := ctx.BoundedAmount(); got.Cmp(wei(100)) != 0 {
		t.Fatalf("bounded = %s with nil cap, want %s", got, wei(100))
	}
}

func TestSniperTradesWithoutNotionalCap(t *testing.T) {
	p := Build("sniper", Params{"target_price": 0.50})
	ctx := tradeContext(signal(0.40, 0.45), 100)
	ctx.MaxPerTrade = new(big.Int)
	ctx.Snapshot.Agent.MaxNotionalPerTrade = new(big.Int)

	intent, err := p.Decide(ctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if intent.Action != ActionSwap {
		t.Fatalf("zero notional blocked the trade: %s (%s)", intent.Action, intent.Reason)
	}
	if intent.AmountIn.Cmp(wei(100)) != 0 {
		t.Fatalf("amount_in = %s, want %s", intent.AmountIn, wei(100))
	}
}

func TestMinOutFor(t *testing.T) {
	ctx := Context{SlippageBps: 200}
	got := ctx.MinOutFor(big.NewInt(10000))
	if got.Cmp(big.NewInt(9800)) != 0 {
		t.Fatalf("min_out = %s, want 9800", got)
	}

	ctx.SlippageBps = 0
	got = ctx.MinOutFor(big.NewInt(10000))
	if got.Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("zero slippage min_out = %s", got)
	}
}

func TestConservativeTrades(t *testing.T) {
	p := Build("default", nil)
	ctx := tradeContext(nil, 100)

	intent, err := p.Decide(ctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if intent.Action != ActionSwap || intent.Reason != "default:threshold_met" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if !intent.ZeroForOne {
		t.Fatalf("default policy should buy token1")
	}
	// min(sub 100, per-trade 500)
	if intent.AmountIn.Cmp(wei(100)) != 0 {
		t.Fatalf("amount_in = %s", intent.AmountIn)
	}
}

func TestConservativeBelowThreshold(t *testing.T) {
	p := Build("default", Params{"min_balance": 50.0})
	ctx := tradeContext(nil, 10)

	intent, _ := p.Decide(ctx)
	if intent.Reason != "default:balance_below_threshold" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestConservativeFixedSize(t *testing.T) {
	p := Build("default", Params{"size": 25.0})
	intent, _ := p.Decide(tradeContext(nil, 100))
	if intent.AmountIn.Cmp(wei(25)) != 0 {
		t.Fatalf("amount_in = %s, want %s", intent.AmountIn, wei(25))
	}
}

func TestConservativeDisabledAgent(t *testing.T) {
	p := Build("default", nil)
	ctx := tradeContext(nil, 100)
	ctx.Snapshot.Agent.Enabled = false

	intent, _ := p.Decide(ctx)
	if intent.Reason != "default:agent_disabled" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestSniperNoSignal(t *testing.T) {
	p := Build("sniper", nil)
	intent, _ := p.Decide(tradeContext(nil, 100))
	if intent.Reason != "sniper:no_signal" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestSniperCapZero(t *testing.T) {
	p := Build("sniper", nil)
	ctx := tradeContext(signal(0.40, 0.45), 100)
	ctx.Cap = new(big.Int)

	intent, _ := p.Decide(ctx)
	if intent.Reason != "sniper:cap_is_zero" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestSniperAboveTargetHolds(t *testing.T) {
	p := Build("sniper", Params{"target_price": 0.40})
	intent, _ := p.Decide(tradeContext(signal(0.40, 0.45), 100))
	if intent.Reason != "sniper:no_order" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestSniperBuysAtTarget(t *testing.T) {
	p := Build("sniper", Params{"target_price": 0.50})
	ctx := tradeContext(signal(0.40, 0.45), 100)

	intent, err := p.Decide(ctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if intent.Action != ActionSwap {
		t.Fatalf("expected SWAP, got %s (%s)", intent.Action, intent.Reason)
	}
	if intent.Reason != "sniper:snipe_at_0.4500" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
	if !intent.ZeroForOne {
		t.Fatalf("BUY should map to zeroForOne")
	}
	if ctx.State["last_ask"] != 0.45 {
		t.Fatalf("last_ask not recorded: %v", ctx.State["last_ask"])
	}
}

func TestArbNoOpportunity(t *testing.T) {
	p := Build("arb", Params{"threshold": 0.10})
	intent, _ := p.Decide(tradeContext(signal(0.50, 0.51), 100))
	if intent.Reason != "arb:no_opportunity" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestArbTradesOnWideSpread(t *testing.T) {
	p := Build("arb", Params{"threshold": 0.01})
	ctx := tradeContext(signal(0.50, 0.55), 100)

	intent, err := p.Decide(ctx)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if intent.Action != ActionSwap {
		t.Fatalf("expected SWAP, got %s (%s)", intent.Action, intent.Reason)
	}
	// (0.55 - 0.50) / 0.50 = 0.10
	if intent.Reason != "arb:arb_spread_0.1000" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
	if _, ok := ctx.State["last_spread"]; !ok {
		t.Fatalf("last_spread not recorded")
	}
}

func TestAdaptOrderInsufficientBalance(t *testing.T) {
	ctx := tradeContext(signal(0.50, 0.55), 0)
	ctx.SubBalance = new(big.Int)

	intent := adaptOrder("arb", Order{Side: SideBuy, Meta: map[string]any{}}, ctx)
	if intent.Reason != "arb:insufficient_balance" {
		t.Fatalf("unexpected reason: %q", intent.Reason)
	}
}

func TestAdaptOrderAppliesSlippage(t *testing.T) {
	ctx := tradeContext(nil, 100)
	ctx.SlippageBps = 100

	intent := adaptOrder("sniper", Order{Side: SideBuy, Meta: map[string]any{}}, ctx)
	want := ctx.MinOutFor(intent.AmountIn)
	if intent.MinAmountOut.Cmp(want) != 0 {
		t.Fatalf("min_out = %s, want %s", intent.MinAmountOut, want)
	}
}
