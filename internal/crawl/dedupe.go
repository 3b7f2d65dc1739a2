package crawl

import "sync"

// SeenSet is the per-run set of product identity keys. Keys are never
// removed: a product is emitted at most once per run no matter how many
// discovery paths reach it.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[string]struct{})}
}

// Offer inserts key if absent. It returns true exactly once per key: the
// caller that wins the insert emits the record, everyone else discards.
func (s *SeenSet) Offer(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

// contains reports whether key has been offered before, without inserting.
func (s *SeenSet) contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]
	return ok
}

// FilterUnseen returns the ids not yet offered, preserving order. It does
// not insert: an id only becomes seen when its record is actually emitted,
// so a failed enrichment chunk does not swallow its ids forever.
func (s *SeenSet) FilterUnseen(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(ids))
	dup := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.keys[id]; ok {
			continue
		}
		if _, ok := dup[id]; ok {
			continue
		}
		dup[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
