// Package history is the append-only log of resolved turns.
package history

import (
	"sync"

	"github.com/tatianab/hustle/internal/models"
)

// History records ledger entries in turn order, index 0 being the first turn.
// Entries are never mutated or removed once appended.
type History struct {
	mu      sync.RWMutex
	entries []models.LedgerEntry
}

// New seeds a history from persisted entries.
func New(entries []models.LedgerEntry) *History {
	h := &History{}
	for _, e := range entries {
		h.entries = append(h.entries, cloneEntry(e))
	}
	return h
}

func (h *History) Append(e models.LedgerEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, cloneEntry(e))
}

// RecentTitles returns the scenario titles of the last n entries, oldest first.
func (h *History) RecentTitles(n int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := len(h.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(h.entries)-start)
	for _, e := range h.entries[start:] {
		out = append(out, e.Title)
	}
	return out
}

// Recent returns copies of the last n entries.
func (h *History) Recent(n int) []models.LedgerEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	start := len(h.entries) - n
	if start < 0 {
		start = 0
	}
	return cloneEntries(h.entries[start:])
}

// All returns a copy of every entry.
func (h *History) All() []models.LedgerEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneEntries(h.entries)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func cloneEntries(in []models.LedgerEntry) []models.LedgerEntry {
	out := make([]models.LedgerEntry, len(in))
	for i, e := range in {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e models.LedgerEntry) models.LedgerEntry {
	e.Events = append([]models.Event(nil), e.Events...)
	return e
}
