// Package selection tracks which cluster ids of the active session are
// marked for a batch merge. Membership is only meaningful against the
// session's current cluster collection: structural mutations reissue ids,
// so the set is pruned against the fresh cluster list after every
// reconciliation instead of being patched incrementally.
package selection

import (
	"sort"
	"sync"

	"github.com/klasterhq/klaster/internal/models"
)

// Set is a selection of cluster ids belonging to exactly one session.
type Set struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// New returns an empty selection set.
func New() *Set {
	return &Set{ids: make(map[string]struct{})}
}

// Toggle adds id when absent and removes it when present. Returns whether
// the id is selected afterwards.
func (s *Set) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Contains reports whether id is selected.
func (s *Set) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Remove drops id if present.
func (s *Set) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Clear empties the set. Called on session switch and after a successful
// merge.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

// Len returns the number of selected ids.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the selected ids in sorted order.
func (s *Set) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Replace resets the set to exactly the given ids (hydration from
// persisted state).
func (s *Set) Replace(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Prune removes every id not present in the given cluster collection and
// returns how many were dropped.
func (s *Set) Prune(clusters []models.Cluster) int {
	valid := make(map[string]struct{}, len(clusters))
	for _, c := range clusters {
		valid[c.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id := range s.ids {
		if _, ok := valid[id]; !ok {
			delete(s.ids, id)
			dropped++
		}
	}
	return dropped
}
