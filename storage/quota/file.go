package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"acctforge/internal/atomicfile"
)

type ledgerFile struct {
	Requesters map[string]*Requester `json:"requesters"`
	Metadata   Stats                 `json:"metadata"`
}

// FileStore is the flat-file quota ledger. Every mutation rewrites the whole
// file, recomputing the aggregate metadata in the same write. Last write
// wins; the single-writer invariant of the service must hold.
type FileStore struct {
	path   string
	logger *log.Logger

	mu         sync.Mutex
	requesters map[string]*Requester
}

// NewFileStore loads the ledger from path, tolerating a missing file.
func NewFileStore(path string, logger *log.Logger) (*FileStore, error) {
	s := &FileStore{path: path, logger: logger, requesters: make(map[string]*Requester)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Printf("Quota ledger %s not found, starting empty", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota ledger %s: %w", path, err)
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse quota ledger %s: %w", path, err)
	}
	if f.Requesters != nil {
		s.requesters = f.Requesters
	}
	logger.Printf("Quota ledger loaded: %d requester(s)", len(s.requesters))
	return s, nil
}

// Authorize implements the read-only authorization gate.
func (s *FileStore) Authorize(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requesters[id]
	if !ok {
		return 0, ErrUnknownRequester
	}
	if !r.IsActive {
		return 0, ErrInactive
	}
	if r.TokensRemaining() <= 0 {
		return 0, ErrExhausted
	}
	return r.TokensRemaining(), nil
}

// Commit consumes one token; false for unknown or exhausted requesters.
func (s *FileStore) Commit(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requesters[id]
	if !ok || r.TokensRemaining() <= 0 {
		return false
	}
	now := time.Now().UTC()
	r.TokensUsed++
	r.LastUsedAt = &now
	if err := s.persistLocked(); err != nil {
		// The decrement stands in memory; surface the write failure loudly.
		s.logger.Printf("CRITICAL: failed to persist quota commit for %s: %v", id, err)
	}
	return true
}

func (s *FileStore) List(_ context.Context) ([]Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Requester, 0, len(s.requesters))
	for _, r := range s.requesters {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) Get(_ context.Context, id string) (*Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requesters[id]
	if !ok {
		return nil, ErrUnknownRequester
	}
	cp := *r
	return &cp, nil
}

func (s *FileStore) Add(_ context.Context, id string, tokens int, email string) error {
	if tokens < 0 {
		return fmt.Errorf("token allocation cannot be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requesters[id]; ok {
		return ErrExists
	}
	s.requesters[id] = &Requester{
		ID:              id,
		TokensAllocated: tokens,
		Email:           email,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
	return s.persistLocked()
}

func (s *FileStore) GrantTokens(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requesters[id]
	if !ok {
		return ErrUnknownRequester
	}
	if r.TokensAllocated+delta < r.TokensUsed {
		return fmt.Errorf("grant of %d would drop allocation below %d tokens already used", delta, r.TokensUsed)
	}
	r.TokensAllocated += delta
	return s.persistLocked()
}

func (s *FileStore) SetTokens(_ context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requesters[id]
	if !ok {
		return ErrUnknownRequester
	}
	if total < r.TokensUsed {
		return fmt.Errorf("total %d is below %d tokens already used", total, r.TokensUsed)
	}
	r.TokensAllocated = total
	return s.persistLocked()
}

func (s *FileStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requesters[id]
	if !ok {
		return ErrUnknownRequester
	}
	r.IsActive = active
	return s.persistLocked()
}

func (s *FileStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsLocked()
	return &st, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) statsLocked() Stats {
	st := Stats{UpdatedAt: time.Now().UTC()}
	for _, r := range s.requesters {
		st.TotalRequesters++
		if r.IsActive {
			st.ActiveRequesters++
		}
		st.TokensAllocated += r.TokensAllocated
		st.TokensUsed += r.TokensUsed
	}
	return st
}

// persistLocked writes records and recomputed metadata in a single atomic
// rewrite so the two can never diverge on disk.
func (s *FileStore) persistLocked() error {
	f := ledgerFile{Requesters: s.requesters, Metadata: s.statsLocked()}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal quota ledger: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to persist quota ledger: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil) // Compile-time interface check
