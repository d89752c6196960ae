// Package pending is the durable ledger of generated-but-not-yet-delivered
// credentials. A record exists from the moment an account is created on
// chain until at least one qualifying delivery succeeded; its presence is
// the recovery signal that a secret may still be un-retrieved by its owner.
package pending

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"acctforge/internal/atomicfile"
	"acctforge/internal/keys"
)

// Record is the durable copy of a generated credential, keyed by account name.
type Record struct {
	AccountName  string                  `json:"account_name"`
	Seed         string                  `json:"seed"`
	Keys         map[string]keys.KeyPair `json:"keys"` // role -> pair
	CreationTxID string                  `json:"creation_tx_id"`
	RequesterID  string                  `json:"requester_id"`
	CreatedAt    time.Time               `json:"created_at"`
}

type ledgerFile struct {
	Pending []Record `json:"pending"`
}

// Ledger is the file-backed pending-credentials store. The whole file is
// rewritten atomically on every mutation.
type Ledger struct {
	path   string
	logger *log.Logger

	mu      sync.Mutex
	records map[string]Record
}

// New loads the ledger from path, tolerating a missing file on first boot.
func New(path string, logger *log.Logger) (*Ledger, error) {
	l := &Ledger{path: path, logger: logger, records: make(map[string]Record)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending-credentials file %s: %w", path, err)
	}

	var f ledgerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse pending-credentials file %s: %w", path, err)
	}
	for _, rec := range f.Pending {
		l.records[rec.AccountName] = rec
	}
	if len(l.records) > 0 {
		logger.Printf("WARNING: %d pending credential(s) loaded from %s awaiting manual recovery", len(l.records), path)
	}
	return l, nil
}

// Add durably persists a record before any delivery attempt. Adding a record
// for an existing account name replaces it.
func (l *Ledger) Add(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.AccountName] = rec
	return l.persistLocked()
}

// Remove deletes the record after a qualifying delivery succeeded. Removing
// an absent name is a no-op.
func (l *Ledger) Remove(accountName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[accountName]; !ok {
		return nil
	}
	delete(l.records, accountName)
	return l.persistLocked()
}

// Get returns the record for an account name, if present.
func (l *Ledger) Get(accountName string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[accountName]
	return rec, ok
}

// ListAll returns all pending records sorted by account name.
func (l *Ledger) ListAll() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountName < out[j].AccountName })
	return out
}

func (l *Ledger) persistLocked() error {
	f := ledgerFile{Pending: make([]Record, 0, len(l.records))}
	for _, rec := range l.records {
		f.Pending = append(f.Pending, rec)
	}
	sort.Slice(f.Pending, func(i, j int) bool { return f.Pending[i].AccountName < f.Pending[j].AccountName })

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending-credentials ledger: %w", err)
	}
	// 0600: the file holds secrets.
	if err := atomicfile.WriteFile(l.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to persist pending-credentials ledger: %w", err)
	}
	return nil
}
