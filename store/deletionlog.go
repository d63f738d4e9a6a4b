package store

import (
	"sync"

	"udl-core/domain/graph"
)

// DeletionEntry is one append-only record of a deleted node (spec.md §4.2).
type DeletionEntry struct {
	NodeID    string `json:"nodeId"`
	NodeType  string `json:"nodeType"`
	Owner     string `json:"owner"`
	DeletedAt int64  `json:"deletedAt"`
}

// DeletionLog is an append-only list bounded by plugin-scoped truncation.
// Grounded on pattern of a mutex-guarded slice behind narrow
// accessors (infrastructure/persistence/memory.InMemoryOperationStore).
type DeletionLog struct {
	mu      sync.RWMutex
	entries []DeletionEntry
}

// NewDeletionLog creates an empty deletion log.
func NewDeletionLog() *DeletionLog {
	return &DeletionLog{}
}

// Record appends a deletion entry for n.
func (l *DeletionLog) Record(n graph.Node) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, DeletionEntry{
		NodeID:    n.Internal.ID,
		NodeType:  n.Internal.Type,
		Owner:     n.Internal.Owner,
		DeletedAt: graph.Now(),
	})
}

// RecordEntry appends a pre-built entry, used when replaying a cache
// envelope's deletion log on plugin hydrate (spec.md §4.5 step 1).
func (l *DeletionLog) RecordEntry(e DeletionEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Since returns entries newer than timestamp, optionally filtered by owner.
// The returned slice is a fresh copy; consumers never mutate the log.
func (l *DeletionLog) Since(timestamp int64, owner string) []DeletionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []DeletionEntry
	for _, e := range l.entries {
		if e.DeletedAt <= timestamp {
			continue
		}
		if owner != "" && e.Owner != owner {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Compact removes entries belonging to owner, called after that plugin's
// successful full re-source makes the deletions implicit in the fresh set
// (spec.md §4.2).
func (l *DeletionLog) Compact(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0:0]
	for _, e := range l.entries {
		if e.Owner != owner {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// Snapshot returns every entry, used when persisting a refetch plugin's
// compacted deletion log into its cache envelope.
func (l *DeletionLog) Snapshot() []DeletionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]DeletionEntry(nil), l.entries...)
}
