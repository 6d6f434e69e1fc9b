package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jaa/game-acquire/internal/fileops"
)

type HistoryEntry struct {
	Game      string    `json:"game"`
	Timestamp time.Time `json:"timestamp"`
}

// History is the append-only launch log kept in the state dir.
type History struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewHistory(path string) *History {
	return &History{path: path, now: time.Now}
}

func (h *History) Append(item string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.readLocked()
	if err != nil {
		return err
	}
	entries = append(entries, HistoryEntry{Game: item, Timestamp: h.now().UTC()})

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	return fileops.WriteFileAtomic(h.path, payload, 0o644)
}

func (h *History) List() ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readLocked()
}

func (h *History) readLocked() ([]HistoryEntry, error) {
	payload, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("read history %s: %w", h.path, err)
	}
	entries := []HistoryEntry{}
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", h.path, err)
	}
	return entries, nil
}
