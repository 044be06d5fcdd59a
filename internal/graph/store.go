package graph

// LabelRef is a read-only snapshot entry handed to parallel workers.
type LabelRef struct {
	Key       string
	Label     string
	Kind      Kind
	Namespace string
}

// Store is a content-addressed, deduplicating container of resources keyed
// by identity hash.
//
// Values are returned in insertion order so that serialization is
// deterministic. A secondary index by kind keeps kind lookups O(result).
//
// Store is not safe for concurrent mutation. Parallel stages work on
// Snapshot() and hand their results back for single-threaded application.
type Store struct {
	resources map[string]*Resource
	order     []string
	byKind    map[Kind][]string
}

// NewStore creates a store pre-populated with the given resources.
// Duplicates in seed are collapsed, first one wins.
func NewStore(seed ...*Resource) *Store {
	s := &Store{
		resources: make(map[string]*Resource, len(seed)),
		byKind:    make(map[Kind][]string),
	}
	for _, r := range seed {
		s.GetOrAdd(r)
	}
	return s
}

// GetOrCreate returns the resource stored under key, or calls build and
// stores its result. The boolean is true when build was called.
// A nil resource or error from build leaves the store untouched.
func (s *Store) GetOrCreate(key string, build func() (*Resource, error)) (*Resource, bool, error) {
	if r, ok := s.resources[key]; ok {
		return r, false, nil
	}
	r, err := build()
	if err != nil || r == nil {
		return nil, false, err
	}
	s.insert(key, r)
	return r, true, nil
}

// GetOrAdd returns the canonical resource sharing r's identity, adding r if
// no such resource exists yet.
func (s *Store) GetOrAdd(r *Resource) *Resource {
	if existing, ok := s.resources[r.Key()]; ok {
		return existing
	}
	s.insert(r.Key(), r)
	return r
}

func (s *Store) insert(key string, r *Resource) {
	s.resources[key] = r
	s.order = append(s.order, key)
	s.byKind[r.Kind] = append(s.byKind[r.Kind], key)
}

// Get returns the resource with the given key, or nil if it does not exist.
func (s *Store) Get(key string) *Resource {
	return s.resources[key]
}

// Resolve returns the resource a reference points to, or nil.
func (s *Store) Resolve(ref Ref) *Resource {
	return s.resources[ref.Key]
}

// Contains reports whether a resource is stored under key.
func (s *Store) Contains(key string) bool {
	_, ok := s.resources[key]
	return ok
}

// Len returns the number of stored resources.
func (s *Store) Len() int {
	return len(s.resources)
}

// Values returns every resource in insertion order.
func (s *Store) Values() []*Resource {
	result := make([]*Resource, 0, len(s.order))
	for _, key := range s.order {
		result = append(result, s.resources[key])
	}
	return result
}

// ByKind returns the resources of the given kind in insertion order.
func (s *Store) ByKind(kind Kind) []*Resource {
	keys := s.byKind[kind]
	if len(keys) == 0 {
		return nil
	}
	result := make([]*Resource, 0, len(keys))
	for _, key := range keys {
		result = append(result, s.resources[key])
	}
	return result
}

// CountByKind returns the number of resources of the given kind.
func (s *Store) CountByKind(kind Kind) int {
	return len(s.byKind[kind])
}

// Union returns a new store holding the resources of s followed by those of
// others. On key collision the first writer wins.
func (s *Store) Union(others ...*Store) *Store {
	merged := NewStore()
	for _, store := range append([]*Store{s}, others...) {
		if store == nil {
			continue
		}
		for _, key := range store.order {
			if !merged.Contains(key) {
				merged.insert(key, store.resources[key])
			}
		}
	}
	return merged
}

// Snapshot returns the (key, label) pairs of every resource in insertion order.
func (s *Store) Snapshot() []LabelRef {
	snap := make([]LabelRef, 0, len(s.order))
	for _, key := range s.order {
		r := s.resources[key]
		snap = append(snap, LabelRef{Key: key, Label: r.FormattedLabel, Kind: r.Kind, Namespace: r.Namespace})
	}
	return snap
}

// Quads returns the statements of every resource without changing their state.
func (s *Store) Quads() []Quad {
	var quads []Quad
	for _, key := range s.order {
		quads = append(quads, s.resources[key].Quads()...)
	}
	return quads
}

// Flush returns the statements of every resource and marks them flushed.
func (s *Store) Flush() []Quad {
	var quads []Quad
	for _, key := range s.order {
		quads = append(quads, s.resources[key].Flush()...)
	}
	return quads
}

// Stats returns a summary of store size by kind.
func (s *Store) Stats() map[string]int {
	stats := map[string]int{"resources": len(s.resources)}
	for kind, keys := range s.byKind {
		stats[string(kind)] = len(keys)
	}
	return stats
}
