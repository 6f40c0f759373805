package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store persists one JSON document per character. Every save is a full
// overwrite through a temp file and rename so a crash never leaves a
// half-written history behind.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the file used for a character.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+"_history.json")
}

// Save overwrites the character's document with msgs.
func (s *Store) Save(name string, msgs []Message) error {
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("history: rename %s: %w", name, err)
	}
	return nil
}

// Load reads a saved document. ok is false when no document exists.
func (s *Store) Load(name string) (msgs []Message, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("history: read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, false, fmt.Errorf("history: parse %s: %w", name, err)
	}
	return msgs, true, nil
}

// Reset truncates the character's document to empty.
func (s *Store) Reset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.Path(name), nil, 0o644); err != nil {
		return fmt.Errorf("history: reset %s: %w", name, err)
	}
	return nil
}

// Restore prepares h for a new session. When restore is set and a saved
// document exists it is loaded; otherwise the document is reset and h is
// seeded with the system message. An unreadable document is replaced by a
// fresh history and its error returned alongside. It reports whether a
// document was loaded.
func (s *Store) Restore(name string, h *History, system string, restore bool) (bool, error) {
	var loadErr error
	if restore {
		msgs, ok, err := s.Load(name)
		if err == nil && ok && len(msgs) > 0 {
			h.Replace(msgs)
			return true, nil
		}
		loadErr = err
	}
	h.Seed(system)
	return false, errors.Join(loadErr, s.Reset(name))
}
