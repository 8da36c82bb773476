package signalfeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Signal is an off-chain market observation. Presence of each side is
// explicit: strategies check HaveBid/HaveAsk instead of probing a map.
type Signal struct {
	BestBid float64
	BestAsk float64
	HaveBid bool
	HaveAsk bool

	// Extra keeps the raw payload for strategy metadata and diagnostics.
	Extra map[string]any
}

func (s *Signal) Complete() bool { return s != nil && s.HaveBid && s.HaveAsk }

// ParseSignal decodes a signal payload. Arbitrage feeds publish the same
// quotes under pm_ask/op_bid; both spellings are accepted.
func ParseSignal(raw []byte) (*Signal, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse signal: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}

	sig := &Signal{Extra: m}
	if v, ok := floatField(m, "best_ask", "pm_ask"); ok {
		sig.BestAsk = v
		sig.HaveAsk = true
	}
	if v, ok := floatField(m, "best_bid", "op_bid"); ok {
		sig.BestBid = v
		sig.HaveBid = true
	}
	return sig, nil
}

func floatField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case float64:
				return t, true
			case json.Number:
				f, err := t.Float64()
				if err == nil {
					return f, true
				}
			}
		}
	}
	return 0, false
}

// Source yields the most recent market signal. A (nil, nil) return means no
// signal is currently available, which is a normal condition, not an error.
type Source interface {
	Latest() (*Signal, error)
}

// FileSource reads a signal document from disk on every call, so operators
// can drop updated quotes without restarting the agent.
type FileSource struct {
	Path string
}

func (f FileSource) Latest() (*Signal, error) {
	if f.Path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read signals file %s: %w", f.Path, err)
	}
	return ParseSignal(raw)
}

// NoSource is a Source that never has a signal.
type NoSource struct{}

func (NoSource) Latest() (*Signal, error) { return nil, nil }
