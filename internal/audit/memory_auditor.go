package audit

import (
	"sync"

	"github.com/google/magic-github-proxy/internal/core"
)

var _ core.Auditor = (*InMemoryAuditor)(nil)

// InMemoryAuditor keeps the most recent audit entries in memory.
type InMemoryAuditor struct {
	mu         sync.Mutex
	entries    []core.AuditEntry
	maxEntries int
}

// NewInMemoryAuditor keeps at most maxEntries entries, zero means unbounded.
func NewInMemoryAuditor(maxEntries int) *InMemoryAuditor {
	return &InMemoryAuditor{
		entries:    make([]core.AuditEntry, 0),
		maxEntries: maxEntries,
	}
}

func (i *InMemoryAuditor) Log(entry core.AuditEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.entries = append(i.entries, entry)
	if i.maxEntries > 0 && len(i.entries) > i.maxEntries {
		i.entries = i.entries[len(i.entries)-i.maxEntries:]
	}
	return nil
}

func (i *InMemoryAuditor) GetRecent(limit int) []core.AuditEntry {
	i.mu.Lock()
	defer i.mu.Unlock()

	if limit <= 0 || limit > len(i.entries) {
		limit = len(i.entries)
	}
	start := len(i.entries) - limit
	entries := make([]core.AuditEntry, limit)
	copy(entries, i.entries[start:])

	return entries
}

func (i *InMemoryAuditor) Find(filter func(entry core.AuditEntry) bool, limit int) []core.AuditEntry {
	i.mu.Lock()
	defer i.mu.Unlock()

	var matches []core.AuditEntry
	for _, entry := range i.entries {
		if filter(entry) {
			matches = append(matches, entry)
		}
	}

	if limit > 0 && len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}

	return matches
}

func (i *InMemoryAuditor) Close() error {
	return nil // nothing to close :)
}
