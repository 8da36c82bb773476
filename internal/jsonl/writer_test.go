package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenEmptyPath(t *testing.T) {
	w, err := Open("   ")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if w != nil {
		t.Fatalf("blank path should yield nil writer")
	}
	// nil writer is a no-op, not a crash
	if err := w.Write(map[string]any{"x": 1}); err != nil {
		t.Fatalf("nil writer Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil writer Close: %v", err)
	}
}

func TestWriteAppendsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "decisions.jsonl")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := w.Write(map[string]any{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Event("decision", map[string]any{"action": "HOLD"}); err != nil {
		t.Fatalf("Event: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open written file: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[1]["type"] != "decision" {
		t.Fatalf("event type lost: %+v", lines[1])
	}
	if lines[1]["ts"] == nil {
		t.Fatalf("event timestamp missing")
	}
}

func TestWriteRejectsNilRecord(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "x.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	if err := w.Write(nil); err == nil {
		t.Fatalf("nil record accepted")
	}
}

func TestOpenAppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")

	w1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w1.Write(map[string]any{"run": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w1.Close()

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w2.Write(map[string]any{"run": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w2.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got := len(splitLines(b)); got != 2 {
		t.Fatalf("got %d lines, want 2", got)
	}
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				out = append(out, b[start:i])
			}
			start = i + 1
		}
	}
	return out
}
