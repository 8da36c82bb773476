package state

import (
	"math"
	"time"
)

// Status values visible to external readers of the state document.
const (
	StatusRunning          = "running"
	StatusError            = "error"
	StatusAwaitingApproval = "awaiting_approval"
)

// Bounded-history capacities. Oldest entries are evicted first.
const (
	MaxLogEntries = 80
	MaxPnLEntries = 200
)

const maxErrorLen = 500

type LogEntry struct {
	TS    string `json:"ts"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

type PnLPoint struct {
	Timestamp string  `json:"timestamp"`
	PnL       float64 `json:"pnl"`
}

type AgentInfo struct {
	Address  string `json:"address"`
	ENSName  string `json:"ensName"`
	Strategy string `json:"strategy"`
	Enabled  bool   `json:"enabled"`
	Cap      string `json:"cap"`
}

type Decision struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// IntentRecord serializes the raw strategy intent for observers. Amounts are
// wei decimal strings.
type IntentRecord struct {
	Action     string         `json:"action"`
	Reason     string         `json:"reason"`
	ZeroForOne bool           `json:"zeroForOne"`
	AmountIn   string         `json:"amountIn,omitempty"`
	MinOut     string         `json:"minOut,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type TradeEvent struct {
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
}

type TradeRecord struct {
	TxHash      string      `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
	Timestamp   string      `json:"timestamp"`
	Event       *TradeEvent `json:"event,omitempty"`
}

type ErrorRecord struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// SnapshotSummary carries the balances of the latest chain snapshot as wei
// decimal strings, the format the frontend expects.
type SnapshotSummary struct {
	BlockNumber     uint64 `json:"block_number"`
	UserBalance     string `json:"user_balance"`
	AgentSubBalance string `json:"agent_sub_balance"`
	AgentSpent      string `json:"agent_spent"`
	VaultBalance    string `json:"vault_balance"`
}

// Document is the persisted status record: the single source of truth for
// external observers. Exclusively owned and mutated by the loop driver.
type Document struct {
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	LastUpdate  string `json:"last_update"`
	LoopCount   uint64 `json:"loop_count"`
	TotalTrades uint64 `json:"total_trades"`

	Agent    AgentInfo       `json:"agent"`
	Decision Decision        `json:"decision"`
	Intent   *IntentRecord   `json:"intent,omitempty"`
	Snapshot SnapshotSummary `json:"snapshot"`

	LastTrade *TradeRecord `json:"last_trade,omitempty"`
	LastError *ErrorRecord `json:"last_error,omitempty"`

	PnL        float64    `json:"pnl"`
	PnLHistory []PnLPoint `json:"pnl_history"`
	Logs       []LogEntry `json:"logs"`
}

// AppendLog records a log entry, evicting the oldest once the cap is reached.
func (d *Document) AppendLog(level, msg string) {
	d.Logs = append(d.Logs, LogEntry{TS: utcNow(), Level: level, Msg: msg})
	if n := len(d.Logs); n > MaxLogEntries {
		d.Logs = append(d.Logs[:0], d.Logs[n-MaxLogEntries:]...)
	}
}

// AddPnL applies a PnL delta and records the running total, evicting the
// oldest point once the cap is reached.
func (d *Document) AddPnL(delta float64) {
	d.PnL += delta
	d.PnLHistory = append(d.PnLHistory, PnLPoint{Timestamp: utcNow(), PnL: round4(d.PnL)})
	if n := len(d.PnLHistory); n > MaxPnLEntries {
		d.PnLHistory = append(d.PnLHistory[:0], d.PnLHistory[n-MaxPnLEntries:]...)
	}
}

// SetError records the iteration's error, truncating oversized messages.
func (d *Document) SetError(msg string) {
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	d.LastError = &ErrorRecord{Message: msg, Timestamp: utcNow()}
}

func (d *Document) Touch() {
	d.LastUpdate = utcNow()
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
