// Package cursor tracks the last fully-processed block height on disk.
//
// The persisted value may lag the in-memory value by up to the save stride;
// after a crash the pump re-processes those blocks rather than skipping any.
package cursor

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"acctforge/internal/atomicfile"
)

type state struct {
	LastProcessedHeight uint32    `json:"last_processed_height"`
	SavedAt             time.Time `json:"saved_at"`
}

// Store is the durable block cursor.
type Store struct {
	path   string
	logger *log.Logger

	mu     sync.Mutex
	height uint32
}

// New loads the cursor from path, or starts at startHeight when no cursor
// file exists yet.
func New(path string, startHeight uint32, logger *log.Logger) (*Store, error) {
	s := &Store{path: path, logger: logger, height: startHeight}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Printf("Cursor file %s not found, starting at height %d", path, startHeight)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor file %s: %w", path, err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse cursor file %s: %w", path, err)
	}
	s.height = st.LastProcessedHeight
	logger.Printf("Cursor loaded: last processed height %d (saved at %s)", st.LastProcessedHeight, st.SavedAt.Format(time.RFC3339))
	return s, nil
}

// Height returns the in-memory last processed height.
func (s *Store) Height() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// Advance records a newly processed height in memory only.
func (s *Store) Advance(height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height = height
}

// Save persists the current in-memory height.
func (s *Store) Save() error {
	s.mu.Lock()
	st := state{LastProcessedHeight: s.height, SavedAt: time.Now().UTC()}
	s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cursor state: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	return nil
}
