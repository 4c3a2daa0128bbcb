package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jalakoo/neo4j-transfer/internal/core/model"
)

// ErrTransferNotFound reports a ledger lookup miss. Callers distinguish it
// from write failures with errors.Is.
var ErrTransferNotFound = errors.New("transfer not found")

// Ledger is the append-only, in-session record of transfers. There is no
// update or delete: revert acts on the target database, never on the ledger.
// Scoped to the owning session, not persisted.
type Ledger struct {
	mu      sync.RWMutex
	records []model.TransferRecord
	byID    map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{byID: map[string]int{}}
}

// Append adds a record. Fails only on an internal invariant violation
// (duplicate id or timestamp).
func (l *Ledger) Append(rec model.TransferRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[rec.ID]; ok {
		return fmt.Errorf("duplicate transfer id %q", rec.ID)
	}
	for _, existing := range l.records {
		if existing.Timestamp.Equal(rec.Timestamp) {
			return fmt.Errorf("transfer timestamp %s already used by %s", rec.TagValue(), existing.ID)
		}
	}

	l.byID[rec.ID] = len(l.records)
	l.records = append(l.records, rec)
	return nil
}

// List returns all records, most recent first.
func (l *Ledger) List() []model.TransferRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.TransferRecord, len(l.records))
	for i, rec := range l.records {
		out[len(l.records)-1-i] = rec
	}
	return out
}

// Get looks up one record by id.
func (l *Ledger) Get(id string) (model.TransferRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.byID[id]
	if !ok {
		return model.TransferRecord{}, fmt.Errorf("transfer %q: %w", id, ErrTransferNotFound)
	}
	return l.records[idx], nil
}

// Last returns the most recent record, if any.
func (l *Ledger) Last() (model.TransferRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return model.TransferRecord{}, false
	}
	return l.records[len(l.records)-1], true
}
