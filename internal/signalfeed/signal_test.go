package signalfeed

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSignal(t *testing.T) {
	sig, err := ParseSignal([]byte(`{"best_bid": 0.48, "best_ask": 0.52}`))
	if err != nil {
		t.Fatalf("ParseSignal: %v", err)
	}
	if !sig.Complete() {
		t.Fatalf("signal incomplete: %+v", sig)
	}
	if sig.BestBid != 0.48 || sig.BestAsk != 0.52 {
		t.Fatalf("quotes = %v/%v", sig.BestBid, sig.BestAsk)
	}
}

func TestParseSignalAliases(t *testing.T) {
	sig, err := ParseSignal([]byte(`{"op_bid": 0.30, "pm_ask": 0.35}`))
	if err != nil {
		t.Fatalf("ParseSignal: %v", err)
	}
	if !sig.Complete() {
		t.Fatalf("aliased signal incomplete: %+v", sig)
	}
	if sig.BestBid != 0.30 || sig.BestAsk != 0.35 {
		t.Fatalf("quotes = %v/%v", sig.BestBid, sig.BestAsk)
	}
}

func TestParseSignalCanonicalWinsOverAlias(t *testing.T) {
	sig, err := ParseSignal([]byte(`{"best_ask": 0.50, "pm_ask": 0.60}`))
	if err != nil {
		t.Fatalf("ParseSignal: %v", err)
	}
	if sig.BestAsk != 0.50 {
		t.Fatalf("ask = %v, want canonical 0.50", sig.BestAsk)
	}
}

func TestParseSignalPartial(t *testing.T) {
	sig, err := ParseSignal([]byte(`{"best_bid": 0.48}`))
	if err != nil {
		t.Fatalf("ParseSignal: %v", err)
	}
	if sig.Complete() {
		t.Fatalf("one-sided signal reported complete")
	}
	if !sig.HaveBid || sig.HaveAsk {
		t.Fatalf("presence flags wrong: %+v", sig)
	}
}

func TestParseSignalKeepsExtra(t *testing.T) {
	sig, err := ParseSignal([]byte(`{"best_bid": 0.48, "best_ask": 0.52, "market": "abc"}`))
	if err != nil {
		t.Fatalf("ParseSignal: %v", err)
	}
	if sig.Extra["market"] != "abc" {
		t.Fatalf("extra payload lost: %+v", sig.Extra)
	}
}

func TestParseSignalEmptyObject(t *testing.T) {
	sig, err := ParseSignal([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseSignal: %v", err)
	}
	if sig != nil {
		t.Fatalf("empty object should yield no signal")
	}
}

func TestParseSignalMalformed(t *testing.T) {
	if _, err := ParseSignal([]byte(`{not json`)); err == nil {
		t.Fatalf("malformed payload accepted")
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}
	sig, err := src.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if sig != nil {
		t.Fatalf("missing file produced a signal")
	}
}

func TestFileSourceReadsLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.json")
	if err := os.WriteFile(path, []byte(`{"best_bid": 0.41, "best_ask": 0.44}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src := FileSource{Path: path}
	sig, err := src.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !sig.Complete() || sig.BestAsk != 0.44 {
		t.Fatalf("signal = %+v", sig)
	}

	// updated quotes are picked up on the next read
	if err := os.WriteFile(path, []byte(`{"best_bid": 0.45, "best_ask": 0.47}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sig, err = src.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if sig.BestBid != 0.45 {
		t.Fatalf("stale signal: %+v", sig)
	}
}

func TestNoSource(t *testing.T) {
	sig, err := NoSource{}.Latest()
	if sig != nil || err != nil {
		t.Fatalf("NoSource yielded %v, %v", sig, err)
	}
}
