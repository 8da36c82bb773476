package loop

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/adjust481/safe-agent-v4/internal/config"
	"github.com/adjust481/safe-agent-v4/internal/jsonl"
	"github.com/adjust481/safe-agent-v4/internal/risk"
	"github.com/adjust481/safe-agent-v4/internal/signalfeed"
	"github.com/adjust481/safe-agent-v4/internal/state"
	"github.com/adjust481/safe-agent-v4/internal/strategy"
	"github.com/adjust481/safe-agent-v4/internal/trader"
	"github.com/adjust481/safe-agent-v4/internal/vault"
)

// SnapshotProvider abstracts the chain read side so tests can feed canned
// snapshots. *vault.Provider satisfies it.
type SnapshotProvider interface {
	Fetch(ctx context.Context) (*vault.Snapshot, error)
}

// Executor abstracts the execution controller. *trader.Trader satisfies it.
type Executor interface {
	Execute(ctx context.Context, intent strategy.Intent, snap *vault.Snapshot, dryRun bool) trader.Result
}

// Config tunes one run of the loop.
type Config struct {
	Interval time.Duration
	DryRun   bool

	// StopAfterTrades ends the run once this many trades executed; 0 runs
	// until cancelled.
	StopAfterTrades uint64

	// DefaultAmount bounds the trade size when a strategy defers sizing to
	// the loop; nil leaves sizing to the sub-balance and per-trade cap.
	DefaultAmount *big.Int

	Agent common.Address
	User  common.Address
}

// Loop is the agent's main driver: snapshot, decide, guard, execute, persist,
// once per interval. It exclusively owns the status document.
type Loop struct {
	cfg      Config
	provider SnapshotProvider
	signals  signalfeed.Source
	guard    *risk.Guard
	executor Executor
	store    *state.Store
	journal  *jsonl.Writer
	agents   config.AgentsLoader

	doc state.Document

	// The policy persists across iterations so its State survives; it is
	// rebuilt only when the configured strategy name changes.
	policy     strategy.Policy
	policyName string
	policyCtx  strategy.State
}

func New(cfg Config, provider SnapshotProvider, signals signalfeed.Source, guard *risk.Guard,
	executor Executor, store *state.Store, journal *jsonl.Writer, agents config.AgentsLoader) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if signals == nil {
		signals = signalfeed.NoSource{}
	}
	return &Loop{
		cfg:      cfg,
		provider: provider,
		signals:  signals,
		guard:    guard,
		executor: executor,
		store:    store,
		journal:  journal,
		agents:   agents,
	}
}

// Run executes iterations until the context is cancelled, the trade budget is
// spent, or an approval request leaves the run awaiting the owner. It always
// persists a final document before returning.
func (l *Loop) Run(ctx context.Context) error {
	l.doc.Mode = mode(l.cfg.DryRun)
	l.doc.Status = state.StatusRunning
	log.Printf("[info] loop starting: mode=%s interval=%s agent=%s", l.doc.Mode, l.cfg.Interval, l.cfg.Agent.Hex())

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		awaiting := l.runIteration(ctx)
		l.persist()

		if awaiting {
			log.Printf("[info] execution requested, stopping loop until owner approves")
			return nil
		}
		if l.cfg.StopAfterTrades > 0 && l.doc.TotalTrades >= l.cfg.StopAfterTrades {
			log.Printf("[info] trade budget reached (%d), stopping", l.doc.TotalTrades)
			l.finish()
			return nil
		}

		select {
		case <-ctx.Done():
			l.finish()
			return nil
		case <-ticker.C:
		}
	}
}

// runIteration contains one cycle's faults: a panic anywhere inside becomes a
// recorded error on the document, never a dead process. It reports whether the
// run must stop to await approval.
func (l *Loop) runIteration(ctx context.Context) (awaiting bool) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("iteration panic: %v", r)
			log.Printf("[warn] %s", msg)
			l.doc.Status = state.StatusError
			l.doc.SetError(msg)
			l.doc.AppendLog("error", msg)
		}
	}()
	return l.iterate(ctx)
}

func (l *Loop) iterate(ctx context.Context) bool {
	l.doc.LoopCount++
	l.doc.Status = state.StatusRunning
	l.doc.Touch()

	entry := l.agents.Load()
	if !entry.IsEnabled() {
		l.record(strategy.Hold("disabled_in_config"), nil, entry)
		return false
	}

	snap, err := l.provider.Fetch(ctx)
	if err != nil {
		msg := err.Error()
		log.Printf("[warn] snapshot failed: %s", msg)
		l.doc.Status = state.StatusError
		l.doc.SetError(msg)
		l.doc.AppendLog("error", "snapshot failed: "+msg)
		l.journalEvent("error", map[string]any{"loop": l.doc.LoopCount, "error": msg})
		return false
	}

	signal, err := l.signals.Latest()
	if err != nil {
		// Degraded, not fatal: record the error and decide signal-less.
		log.Printf("[warn] signal source: %v", err)
		l.doc.SetError("signal source: " + err.Error())
		l.doc.AppendLog("warn", "signal source: "+err.Error())
		signal = nil
	}

	intent := l.decide(entry, snap, signal)
	final := l.guard.Apply(intent, snap)
	if final.Action != intent.Action {
		log.Printf("[info] guard held %s intent: %s", intent.Action, final.Reason)
	}

	l.record(final, snap, entry)

	res := l.executor.Execute(ctx, final, snap, l.cfg.DryRun)
	return l.settle(res, snap)
}

// decide rebuilds the policy when the configured strategy changed, then runs
// it with fault containment.
func (l *Loop) decide(entry config.AgentEntry, snap *vault.Snapshot, signal *signalfeed.Signal) strategy.Intent {
	if l.policy == nil || l.policyName != entry.Strategy {
		l.policy = strategy.Build(entry.Strategy, strategy.Params(entry.StrategyParams))
		l.policyName = entry.Strategy
		l.policyCtx = strategy.State{}
		if !strategy.Known(entry.Strategy) {
			log.Printf("[warn] unknown strategy %q, holding every iteration", entry.Strategy)
		}
	}

	capWei, err := vault.ParseUnits(entry.Config.Cap)
	if err != nil {
		log.Printf("[warn] agent cap %q invalid: %v", entry.Config.Cap, err)
		capWei = new(big.Int)
	}

	sctx := strategy.Context{
		Signal:        signal,
		SubBalance:    snap.AvailableBalance(),
		MaxPerTrade:   snap.MaxTradeAmount(),
		DefaultAmount: l.cfg.DefaultAmount,
		Cap:           capWei,
		SlippageBps:   entry.SlippageBps(),
		Agent:         l.cfg.Agent,
		User:          l.cfg.User,
		Snapshot:      snap,
		State:         l.policyCtx,
	}

	intent, err := strategy.SafeDecide(l.policy, sctx)
	if err != nil {
		log.Printf("[warn] strategy %s: %v", l.policy.Name(), err)
		l.doc.AppendLog("warn", fmt.Sprintf("strategy %s: %v", l.policy.Name(), err))
	}
	return intent
}

// settle folds the execution result into the document and reports whether the
// run must stop to await approval.
func (l *Loop) settle(res trader.Result, snap *vault.Snapshot) bool {
	switch {
	case res.Failed():
		l.doc.Status = state.StatusError
		l.doc.SetError(res.Err)
		l.doc.AppendLog("error", "trade failed: "+res.Err)
		log.Printf("[warn] trade failed: %s", res.Err)
		l.journalEvent("trade_failed", map[string]any{"tx": res.TxHash.Hex(), "error": res.Err})

	case res.Requested && res.Success:
		l.doc.Status = state.StatusAwaitingApproval
		l.doc.LastTrade = tradeRecord(res)
		l.doc.AppendLog("info", "execution requested, awaiting approval")
		l.journalEvent("execution_requested", map[string]any{"tx": res.TxHash.Hex()})
		return true

	case res.Executed && res.Success:
		l.doc.TotalTrades++
		l.doc.LastTrade = tradeRecord(res)
		l.guard.MarkTraded(snap.BlockNumber)

		delta := pnlDelta(res.AmountIn, res.AmountOut)
		l.doc.AddPnL(delta)
		msg := fmt.Sprintf("trade #%d: in=%s out=%s pnl=%+.4f",
			l.doc.TotalTrades, vault.FormatUnits(res.AmountIn), vault.FormatUnits(res.AmountOut), delta)
		l.doc.AppendLog("info", msg)
		log.Printf("[info] %s", msg)
		l.journalEvent("trade", map[string]any{
			"tx":         res.TxHash.Hex(),
			"block":      res.BlockNumber,
			"amount_in":  bigString(res.AmountIn),
			"amount_out": bigString(res.AmountOut),
			"pnl":        delta,
		})
	}
	return false
}

// record updates the document's decision view and journals the iteration.
// snap is nil when the iteration never reached the chain.
func (l *Loop) record(intent strategy.Intent, snap *vault.Snapshot, entry config.AgentEntry) {
	l.doc.Agent = state.AgentInfo{
		Address:  entry.Address,
		ENSName:  entry.ENSName,
		Strategy: entry.Strategy,
		Enabled:  entry.IsEnabled(),
		Cap:      entry.Config.Cap,
	}
	l.doc.Decision = state.Decision{Action: string(intent.Action), Reason: intent.Reason}
	l.doc.Intent = intentRecord(intent)
	if snap != nil {
		l.doc.Snapshot = state.SnapshotSummary{
			BlockNumber:     snap.BlockNumber,
			UserBalance:     bigString(snap.UserBalance),
			AgentSubBalance: bigString(snap.AgentSubBalance),
			AgentSpent:      bigString(snap.AgentSpent),
			VaultBalance:    bigString(snap.VaultTokenBalance),
		}
	}
	l.doc.AppendLog("info", fmt.Sprintf("decision: %s (%s)", intent.Action, intent.Reason))
	l.journalEvent("decision", map[string]any{
		"loop":   l.doc.LoopCount,
		"action": string(intent.Action),
		"reason": intent.Reason,
	})
}

func (l *Loop) persist() {
	l.doc.Touch()
	if err := l.store.Write(&l.doc); err != nil {
		log.Printf("[warn] persist state: %v", err)
	}
}

func (l *Loop) finish() {
	l.persist()
	log.Printf("[info] loop stopped: loops=%d trades=%d pnl=%+.4f",
		l.doc.LoopCount, l.doc.TotalTrades, l.doc.PnL)
}

func (l *Loop) journalEvent(kind string, v any) {
	if err := l.journal.Event(kind, v); err != nil {
		log.Printf("[warn] journal: %v", err)
	}
}

// Document returns a copy of the current status document for tests and the
// shutdown path.
func (l *Loop) Document() state.Document { return l.doc }

func intentRecord(intent strategy.Intent) *state.IntentRecord {
	rec := &state.IntentRecord{
		Action: string(intent.Action),
		Reason: intent.Reason,
		Meta:   intent.Meta,
	}
	if intent.IsSwap() {
		rec.ZeroForOne = intent.ZeroForOne
		rec.AmountIn = bigString(intent.AmountIn)
		rec.MinOut = bigString(intent.MinAmountOut)
	}
	return rec
}

func tradeRecord(res trader.Result) *state.TradeRecord {
	rec := &state.TradeRecord{
		TxHash:      res.TxHash.Hex(),
		BlockNumber: res.BlockNumber,
		GasUsed:     res.GasUsed,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if res.AmountIn != nil && res.AmountOut != nil {
		rec.Event = &state.TradeEvent{
			AmountIn:  res.AmountIn.String(),
			AmountOut: res.AmountOut.String(),
		}
	}
	return rec
}

// pnlDelta is (out − in) in whole tokens. Zero when either amount is unknown,
// e.g. a confirmed trade whose event could not be parsed.
func pnlDelta(in, out *big.Int) float64 {
	if in == nil || out == nil {
		return 0
	}
	diff := new(big.Int).Sub(out, in)
	f, _ := new(big.Rat).SetFrac(diff, new(big.Int).Exp(big.NewInt(10), big.NewInt(vault.TokenDecimals), nil)).Float64()
	return f
}

func bigString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry_run"
	}
	return "live"
}
