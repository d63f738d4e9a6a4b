// Package cache implements the Cache Store (spec.md §4.3): a per-owner
// persistent snapshot of a plugin's partition of the graph. The
// CacheStorage abstraction is grounded on the prior implementation's
// infrastructure/persistence/abstractions pattern of separating a
// repository interface from its concrete backend, so plugins may swap the
// default file-backed implementation for an object store or key-value
// store without touching the pipeline.
package cache

import (
	"context"

	"udl-core/domain/graph"
	"udl-core/store"
)

// Meta is the versioned bookkeeping block of a cache envelope.
type Meta struct {
	Version   int   `json:"version"`
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// DeletionLogEnvelope is the deletion-log portion of a cache envelope.
type DeletionLogEnvelope struct {
	Entries     []store.DeletionEntry `json:"entries"`
	LastCleanup int64                 `json:"lastCleanup"`
}

// Envelope is the on-disk persisted form of one plugin's partition of the
// store (spec.md §3 "Cache envelope").
type Envelope struct {
	Nodes       []graph.Node           `json:"nodes"`
	Indexes     map[string][]string    `json:"indexes"` // type -> field names
	DeletionLog *DeletionLogEnvelope   `json:"deletionLog,omitempty"`
	Meta        Meta                   `json:"meta"`
}

// CurrentVersion is the envelope schema version this build writes and
// accepts. A version mismatch on Load is a silent discard per spec.md §3
// ("Non-goals: schema evolution across incompatible cache versions").
const CurrentVersion = 1

// Storage is the per-owner persistence abstraction (spec.md §4.3). Load
// returning a zero-value, ok=false Envelope means "empty" — file absent,
// unparseable, or version-mismatched; all three are advisory, never fatal.
type Storage interface {
	Load(ctx context.Context, owner string) (Envelope, bool, error)
	Save(ctx context.Context, owner string, env Envelope) error
}

// Empty returns the zero-state envelope Load should report for any owner
// with no usable cache yet.
func Empty() Envelope {
	return Envelope{Meta: Meta{Version: CurrentVersion}}
}
