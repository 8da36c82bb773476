package jsonl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Writer appends newline-delimited JSON records to a file. The loop driver
// uses it as the per-iteration decision journal. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates or appends to the journal at path. An empty path yields a nil
// writer, on which all methods are no-ops.
func Open(path string) (*Writer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: f}, nil
}

// Write appends v as one JSON object followed by '\n'. Records are written
// unbuffered so tailers see each one as soon as the iteration ends.
func (w *Writer) Write(v any) error {
	if w == nil {
		return nil
	}
	if v == nil {
		return fmt.Errorf("jsonl: nil record")
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(b)
	return err
}

// Event wraps a record with its type and a UTC timestamp.
func (w *Writer) Event(kind string, v any) error {
	if w == nil {
		return nil
	}
	return w.Write(map[string]any{
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"type": kind,
		"data": v,
	})
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
