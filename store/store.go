// Package store implements the Node Store (spec.md §4.1): an in-memory,
// indexed, multi-owner graph with parent/child bookkeeping and deletion
// logging. It is grounded on the prior implementation's
// infrastructure/persistence/memory.InMemoryOperationStore for the
// single-writer-mutex discipline, generalized from a flat operation map to
// the primary/type-bucket/index three-structure model spec.md §4.1
// requires.
package store

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"udl-core/domain/events"
	"udl-core/domain/graph"
)

// indexKey identifies one registered (type, field) index.
type indexKey struct {
	Type  string
	Field string
}

// Store is the Node Store. All exported methods are safe for concurrent
// use; the zero value is not usable, use New.
type Store struct {
	mu sync.RWMutex

	primary map[string]graph.Node   // id -> node
	byType  map[string][]string     // type -> ordered ids (insertion order)
	typePos map[string]map[string]int // type -> id -> index into byType[type], for O(1) removal

	indexes       map[indexKey]map[string]map[string]struct{} // (type,field) -> value -> set of ids
	registered    map[indexKey]bool

	// pendingChildren holds, per absent parent id, the ids of nodes already
	// in the store that name it as their Parent (I4). It is consumed the
	// moment that parent id is Put, so a child arriving before its parent
	// is not lost.
	pendingChildren map[string]map[string]struct{}

	deletionLog *DeletionLog
	bus         *events.Bus
	logger      *zap.Logger
}

// New creates an empty Node Store.
func New(bus *events.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.New(logger)
	}
	return &Store{
		primary:         make(map[string]graph.Node),
		byType:          make(map[string][]string),
		typePos:         make(map[string]map[string]int),
		indexes:         make(map[indexKey]map[string]map[string]struct{}),
		registered:      make(map[indexKey]bool),
		pendingChildren: make(map[string]map[string]struct{}),
		deletionLog:     NewDeletionLog(),
		bus:             bus,
		logger:          logger,
	}
}

// EventBus exposes the store's bus so other components (pipeline, webhooks)
// can subscribe without a second global singleton.
func (s *Store) EventBus() *events.Bus { return s.bus }

// DeletionLog exposes the store's append-only deletion log (spec.md §4.2).
func (s *Store) DeletionLog() *DeletionLog { return s.deletionLog }

// Put inserts or replaces a node (spec.md §4.1 "Put"). Fatal on malformed
// input per §4.1's failure semantics. Digest-equal replacement of an
// existing node is a no-op save for bookkeeping: no event fires.
func (s *Store) Put(n graph.Node) error {
	if err := graph.Validate(n); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.primary[n.Internal.ID]

	s.reconcileParentLocked(n, prev, existed)

	// Children is store-maintained bookkeeping (I4), never caller-supplied:
	// carry forward whatever this node already had, then fold in any
	// orphans that registered this id as their parent while it was absent.
	if existed {
		n.Children = prev.Children
	} else {
		n.Children = nil
	}
	s.resolvePendingChildrenLocked(&n)

	s.primary[n.Internal.ID] = n
	s.addToTypeBucketLocked(n, existed)
	s.reindexLocked(n, prev, existed)

	kind := events.NodeCreated
	if existed {
		if prev.Internal.ContentDigest == n.Internal.ContentDigest {
			return nil // idempotent no-op put
		}
		kind = events.NodeUpdated
	}
	s.bus.Publish(events.Event{Kind: kind, Payload: n.Clone()})
	return nil
}

// reconcileParentLocked maintains bidirectional parent/child edges (I4).
// A parent that hasn't arrived yet is not an error — the child's Parent
// field is retained unchanged and registered in pendingChildren, resolved
// lazily the next time that parent is Put.
func (s *Store) reconcileParentLocked(n graph.Node, prev graph.Node, existed bool) {
	oldParent := (*string)(nil)
	if existed {
		oldParent = prev.Parent
	}

	if samePointerValue(oldParent, n.Parent) {
		return
	}

	if oldParent != nil {
		if p, ok := s.primary[*oldParent]; ok {
			p.Children = removeString(p.Children, n.Internal.ID)
			s.primary[*oldParent] = p
		} else {
			s.removePendingChildLocked(*oldParent, n.Internal.ID)
		}
	}
	if n.Parent != nil {
		if p, ok := s.primary[*n.Parent]; ok {
			if !containsString(p.Children, n.Internal.ID) {
				p.Children = append(p.Children, n.Internal.ID)
				s.primary[*n.Parent] = p
			}
		} else {
			s.addPendingChildLocked(*n.Parent, n.Internal.ID)
		}
	}
}

// resolvePendingChildrenLocked folds any orphans waiting on n's id into
// n.Children the moment n is Put, satisfying I4 for children that arrived
// before their parent did.
func (s *Store) resolvePendingChildrenLocked(n *graph.Node) {
	waiting, ok := s.pendingChildren[n.Internal.ID]
	if !ok {
		return
	}
	delete(s.pendingChildren, n.Internal.ID)
	for childID := range waiting {
		child, ok := s.primary[childID]
		if !ok || child.Parent == nil || *child.Parent != n.Internal.ID {
			continue
		}
		if !containsString(n.Children, childID) {
			n.Children = append(n.Children, childID)
		}
	}
}

func (s *Store) addPendingChildLocked(parentID, childID string) {
	set := s.pendingChildren[parentID]
	if set == nil {
		set = make(map[string]struct{})
		s.pendingChildren[parentID] = set
	}
	set[childID] = struct{}{}
}

func (s *Store) removePendingChildLocked(parentID, childID string) {
	set := s.pendingChildren[parentID]
	if set == nil {
		return
	}
	delete(set, childID)
	if len(set) == 0 {
		delete(s.pendingChildren, parentID)
	}
}

func samePointerValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Store) addToTypeBucketLocked(n graph.Node, existed bool) {
	t := n.Internal.Type
	if existed {
		// type never changes across an update in this model; nothing to move.
		return
	}
	if s.typePos[t] == nil {
		s.typePos[t] = make(map[string]int)
	}
	s.typePos[t][n.Internal.ID] = len(s.byType[t])
	s.byType[t] = append(s.byType[t], n.Internal.ID)
}

// reindexLocked removes stale index entries from prev's revision and adds
// fresh ones from n's revision, for every index registered on n's type
// (I5: indexes are strictly a materialized projection).
func (s *Store) reindexLocked(n graph.Node, prev graph.Node, existed bool) {
	for key := range s.registered {
		if key.Type != n.Internal.Type {
			continue
		}
		if existed {
			if oldVal, ok := fieldAsIndexValue(prev.Fields, key.Field); ok {
				s.removeIndexEntryLocked(key, oldVal, n.Internal.ID)
			}
		}
		if newVal, ok := fieldAsIndexValue(n.Fields, key.Field); ok {
			s.addIndexEntryLocked(key, newVal, n.Internal.ID)
		}
	}
}

func (s *Store) addIndexEntryLocked(key indexKey, value, id string) {
	byVal := s.indexes[key]
	if byVal == nil {
		byVal = make(map[string]map[string]struct{})
		s.indexes[key] = byVal
	}
	set := byVal[value]
	if set == nil {
		set = make(map[string]struct{})
		byVal[value] = set
	}
	set[id] = struct{}{}
}

func (s *Store) removeIndexEntryLocked(key indexKey, value, id string) {
	if byVal := s.indexes[key]; byVal != nil {
		if set := byVal[value]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(byVal, value)
			}
		}
	}
}

// fieldAsIndexValue renders a payload field to the string form indexes key
// on. Numeric/string coercion matches the default webhook handler's JSON
// numeric-id tolerance (spec.md §4.7).
func fieldAsIndexValue(fields map[string]interface{}, field string) (string, bool) {
	v, ok := fields[field]
	if !ok {
		return "", false
	}
	return coerceToString(v), true
}

// Get is an O(1) primary lookup.
func (s *Store) Get(id string) (graph.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.primary[id]
	if !ok {
		return graph.Node{}, false
	}
	return n.Clone(), true
}

// GetByType materializes the type bucket into a deterministic ordered
// snapshot (insertion order, per spec.md §4.1).
func (s *Store) GetByType(typ string) []graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byType[typ]
	out := make([]graph.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.primary[id]; ok {
			out = append(out, n.Clone())
		}
	}
	return out
}

// GetByField looks nodes up by a registered index in O(1), or falls back to
// a linear scan over the type bucket when the index isn't registered.
func (s *Store) GetByField(typ, field string, value interface{}) []graph.Node {
	key := indexKey{Type: typ, Field: field}
	strVal := coerceToString(value)

	s.mu.RLock()
	registered := s.registered[key]
	s.mu.RUnlock()

	if !registered {
		return s.linearScan(typ, field, strVal)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.indexes[key][strVal]
	out := make([]graph.Node, 0, len(set))
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	// Deterministic ordering for callers even though map iteration isn't.
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, s.primary[id].Clone())
	}
	return out
}

func (s *Store) linearScan(typ, field, value string) []graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.Node
	for _, id := range s.byType[typ] {
		n := s.primary[id]
		if v, ok := fieldAsIndexValue(n.Fields, field); ok && v == value {
			out = append(out, n.Clone())
		}
	}
	return out
}

// RegisterIndex declares a (type, field) index and backfills it from the
// current type bucket (spec.md §4.1 "one-shot catch-up").
func (s *Store) RegisterIndex(typ, field string) {
	key := indexKey{Type: typ, Field: field}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registered[key] {
		return
	}
	s.registered[key] = true
	for _, id := range s.byType[typ] {
		n := s.primary[id]
		if v, ok := fieldAsIndexValue(n.Fields, field); ok {
			s.addIndexEntryLocked(key, v, id)
		}
	}
}

// DeleteOptions controls Delete's cascade behavior.
type DeleteOptions struct {
	Cascade bool
}

// Delete removes a node (spec.md §4.1 "Delete"). Idempotent: deleting an
// unknown id returns false without side effects.
func (s *Store) Delete(id string, opts DeleteOptions) bool {
	s.mu.Lock()
	n, ok := s.primary[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	var cascadeDeleted []graph.Node
	if opts.Cascade {
		cascadeDeleted = s.deleteSubtreeLocked(id, make(map[string]bool))
	} else {
		s.deleteOneLocked(n)
		for _, childID := range n.Children {
			if child, ok := s.primary[childID]; ok {
				child.Parent = nil
				s.primary[childID] = child
			}
		}
	}
	s.mu.Unlock()

	s.deletionLog.Record(n)
	s.bus.Publish(events.Event{Kind: events.NodeDeleted, Payload: n.Clone()})
	for _, c := range cascadeDeleted {
		if c.Internal.ID == id {
			continue // the root was recorded and published above
		}
		s.deletionLog.Record(c)
		s.bus.Publish(events.Event{Kind: events.NodeDeleted, Payload: c})
	}
	return true
}

// deleteSubtreeLocked removes id and every descendant depth-first,
// cycle-safe via the visited set (spec.md §4.1 "cycle-safe").
func (s *Store) deleteSubtreeLocked(id string, visited map[string]bool) []graph.Node {
	if visited[id] {
		return nil
	}
	visited[id] = true

	n, ok := s.primary[id]
	if !ok {
		return nil
	}
	var removed []graph.Node
	for _, childID := range n.Children {
		removed = append(removed, s.deleteSubtreeLocked(childID, visited)...)
	}
	s.deleteOneLocked(n)
	return append(removed, n)
}

func (s *Store) deleteOneLocked(n graph.Node) {
	delete(s.primary, n.Internal.ID)

	t := n.Internal.Type
	if idx, ok := s.typePos[t][n.Internal.ID]; ok {
		s.byType[t] = append(s.byType[t][:idx], s.byType[t][idx+1:]...)
		delete(s.typePos[t], n.Internal.ID)
		for id, pos := range s.typePos[t] {
			if pos > idx {
				s.typePos[t][id] = pos - 1
			}
		}
	}

	for key := range s.registered {
		if key.Type != t {
			continue
		}
		if v, ok := fieldAsIndexValue(n.Fields, key.Field); ok {
			s.removeIndexEntryLocked(key, v, n.Internal.ID)
		}
	}

	if n.Parent != nil {
		if p, ok := s.primary[*n.Parent]; ok {
			p.Children = removeString(p.Children, n.Internal.ID)
			s.primary[*n.Parent] = p
		} else {
			s.removePendingChildLocked(*n.Parent, n.Internal.ID)
		}
	}
}

func removeString(ss []string, target string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func containsString(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}

// All returns every node in the store regardless of type, deterministically
// ordered by id, for callers that need a whole-store scan (spec.md §4.4
// "every node matching an optional predicate").
func (s *Store) All() []graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]graph.Node, 0, len(s.primary))
	for _, n := range s.primary {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Internal.ID < out[j].Internal.ID })
	return out
}

// Owned returns every node currently owned by owner, used by the source
// pipeline's refetch-vs-live diff (spec.md §4.5 "Reconcile").
func (s *Store) Owned(owner string) []graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.Node
	for _, n := range s.primary {
		if n.Internal.Owner == owner {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Internal.ID < out[j].Internal.ID })
	return out
}

// ModifiedSince returns every node whose ModifiedAt is strictly greater
// than sinceMillis, for the remote sync boundary's GET /_sync endpoint
// (spec.md §4.8, §6).
func (s *Store) ModifiedSince(sinceMillis int64) []graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graph.Node
	for _, n := range s.primary {
		if n.Internal.ModifiedAt > sinceMillis {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Internal.ID < out[j].Internal.ID })
	return out
}
