package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the status document with write-then-atomic-rename semantics:
// a reader never observes a partially written record.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the document back, e.g. on the error path after a restart. The
// second return is false when no document exists yet.
func (s *Store) Load() (Document, bool, error) {
	if s == nil || s.path == "" {
		return Document{}, false, nil
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, false, nil
		}
		return Document{}, false, err
	}

	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, false, fmt.Errorf("parse state %s: %w", s.path, err)
	}
	return doc, true, nil
}

// Write serializes the document to a temp file and atomically replaces the
// destination.
func (s *Store) Write(doc *Document) error {
	if s == nil || s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
