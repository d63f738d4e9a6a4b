// Package actions implements Node Actions (spec.md §4.4): the owner-bound
// mutation façade that every plugin, webhook handler, and cache-hydrate
// step mediates its writes through. Grounded on the prior implementation's
// CreateNodeOrchestrator (application/commands/handlers), generalized from
// a single create-orchestration flow to the full create/extend/delete
// facade of spec.md §4.4, bound to a (store, owner) pair instead of a
// unit-of-work across multiple repositories.
package actions

import (
	"udl-core/domain/graph"
	"udl-core/store"
	"udl-core/udlerrors"
)

// protectedFields are patch keys ExtendNode refuses to touch (spec.md §4.4).
var protectedFields = map[string]bool{
	"id": true, "internal": true, "parent": true, "children": true,
}

// Actions is a façade bound to a single (store, owner) pair. A plugin or
// webhook handler receives exactly one Actions value, scoped to its own
// name, and cannot forge another owner onto a node it creates (I2).
type Actions struct {
	store *store.Store
	owner string
}

// New binds an Actions façade to owner.
func New(s *store.Store, owner string) *Actions {
	return &Actions{store: s, owner: owner}
}

// Owner returns the owner this façade is bound to.
func (a *Actions) Owner() string { return a.owner }

// CreateInput is the caller-supplied shape for CreateNode. Owner is
// deliberately absent: it is always taken from the façade's binding.
type CreateInput struct {
	ID       string
	Type     string
	Parent   *string
	Fields   map[string]interface{}
	// ContentDigest, if non-empty, is trusted as-is (cache hydrate path);
	// otherwise it is computed over Fields.
	ContentDigest string
}

// CreateNode validates id/type, stamps owner from the action context
// (ignoring any owner the caller attempted to supply), computes a content
// digest if absent, reconciles createdAt/modifiedAt, and delegates to
// Store.Put (spec.md §4.4).
func (a *Actions) CreateNode(in CreateInput) (graph.Node, error) {
	if in.ID == "" {
		return graph.Node{}, udlerrors.Validation("id is required").WithResource("node")
	}
	if in.Type == "" {
		return graph.Node{}, udlerrors.Validation("type is required").WithResource("node")
	}

	digest := in.ContentDigest
	if digest == "" {
		digest = graph.ContentDigest(in.Fields)
	}

	now := graph.Now()
	createdAt := now
	if existing, ok := a.store.Get(in.ID); ok {
		createdAt = existing.Internal.CreatedAt
	}

	n := graph.Node{
		Internal: graph.Internal{
			ID:            in.ID,
			Type:          in.Type,
			Owner:         a.owner,
			ContentDigest: digest,
			CreatedAt:     createdAt,
			ModifiedAt:    now,
		},
		Parent: in.Parent,
		Fields: in.Fields,
	}
	if err := a.store.Put(n); err != nil {
		return graph.Node{}, err
	}
	out, _ := a.store.Get(in.ID)
	return out, nil
}

// ExtendNode performs a shallow merge of patch's top-level keys onto an
// existing node's Fields (nested objects are replaced, not deep-merged),
// refreshes modifiedAt and contentDigest, and rejects any patch key that
// touches a protected field (spec.md §4.4). Used by a plugin other than
// the owner to add computed fields or cross-plugin enrichments.
func (a *Actions) ExtendNode(id string, patch map[string]interface{}) (graph.Node, error) {
	for key := range patch {
		if protectedFields[key] {
			return graph.Node{}, udlerrors.Validation("patch may not touch protected field: " + key).WithResource("node")
		}
	}

	existing, ok := a.store.Get(id)
	if !ok {
		return graph.Node{}, udlerrors.NotFound("node not found: " + id).WithResource("node")
	}

	merged := make(map[string]interface{}, len(existing.Fields)+len(patch))
	for k, v := range existing.Fields {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	existing.Fields = merged
	existing.Internal.ModifiedAt = graph.Now()
	existing.Internal.ContentDigest = graph.ContentDigest(merged)

	if err := a.store.Put(existing); err != nil {
		return graph.Node{}, err
	}
	out, _ := a.store.Get(id)
	return out, nil
}

// DeleteInput accepts the three input shapes spec.md §4.4 names: a bare
// id, a full node, or a thin {internal:{id}} wrapper.
type DeleteInput struct {
	ID string
}

// NodeDeleteInput builds a DeleteInput from a full node.
func NodeDeleteInput(n graph.Node) DeleteInput { return DeleteInput{ID: n.Internal.ID} }

// DeleteNode removes a node, cascading to children when requested. The
// deletion log write happens inside Store.Delete, which also emits
// node:deleted (spec.md §4.4, §4.1).
func (a *Actions) DeleteNode(in DeleteInput, cascade bool) bool {
	return a.store.Delete(in.ID, store.DeleteOptions{Cascade: cascade})
}

// GetNode is a read-only passthrough to the store.
func (a *Actions) GetNode(id string) (graph.Node, bool) {
	return a.store.Get(id)
}

// Predicate filters nodes client-side over a snapshot.
type Predicate func(graph.Node) bool

// GetNodes returns every node in the store matching an optional predicate
// (spec.md §4.4), regardless of type; callers needing a single type should
// use GetNodesByType instead, which can use the store's type index.
func (a *Actions) GetNodes(pred Predicate) []graph.Node {
	all := a.store.All()
	if pred == nil {
		return all
	}
	out := all[:0:0]
	for _, n := range all {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

// GetNodesByType returns nodes of typ matching an optional predicate.
func (a *Actions) GetNodesByType(typ string, pred Predicate) []graph.Node {
	all := a.store.GetByType(typ)
	if pred == nil {
		return all
	}
	out := all[:0:0]
	for _, n := range all {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}
