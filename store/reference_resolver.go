package store

import "udl-core/domain/graph"

// ReferenceResolver describes how the GraphQL collaborator recognizes and
// dereferences a cross-node link embedded in a node's payload (spec.md
// §3 "Reference marker", §4.9). The store itself never inspects payloads
// for references — resolvers are consulted only at query time, by whatever
// component builds the read API (out of scope per spec.md §1).
type ReferenceResolver struct {
	MarkerField string
	LookupField string

	// IsReference reports whether value looks like a reference marker this
	// resolver should handle.
	IsReference func(value map[string]interface{}) bool

	// GetLookupValue extracts the foreign-key value from a marker.
	GetLookupValue func(value map[string]interface{}) interface{}

	// GetPossibleTypes lists candidate target node types to try, in order.
	GetPossibleTypes func(value map[string]interface{}) []string

	Priority int
}

// ResolverSet holds every registered resolver, tried in descending
// Priority order.
type ResolverSet struct {
	resolvers []ReferenceResolver
}

// NewResolverSet builds a resolver set and sorts by priority (highest
// first), so a more specific resolver can shadow a generic one.
func NewResolverSet(resolvers ...ReferenceResolver) *ResolverSet {
	rs := &ResolverSet{resolvers: append([]ReferenceResolver(nil), resolvers...)}
	rs.sortByPriority()
	return rs
}

func (rs *ResolverSet) sortByPriority() {
	for i := 1; i < len(rs.resolvers); i++ {
		for j := i; j > 0 && rs.resolvers[j].Priority > rs.resolvers[j-1].Priority; j-- {
			rs.resolvers[j], rs.resolvers[j-1] = rs.resolvers[j-1], rs.resolvers[j]
		}
	}
}

// Resolve walks value against every resolver in priority order and, for the
// first one that claims it, asks the store for a node whose
// (type, lookupField, value) index matches — trying each candidate type
// until one hits, per spec.md §4.9. visited prevents infinite recursion on
// circular/self-referential graphs; Resolve does not recurse itself, but
// callers walking a nested payload should thread the same set through.
func (rs *ResolverSet) Resolve(s *Store, value map[string]interface{}, visited map[string]bool) (graph.Node, bool) {
	for _, r := range rs.resolvers {
		if !r.IsReference(value) {
			continue
		}
		lookupVal := r.GetLookupValue(value)
		for _, candidateType := range r.GetPossibleTypes(value) {
			matches := s.GetByField(candidateType, r.LookupField, lookupVal)
			for _, n := range matches {
				if visited[n.Internal.ID] {
					continue
				}
				return n, true
			}
		}
		return graph.Node{}, false
	}
	return graph.Node{}, false
}
