// Package registry holds the canonical local view of clustering sessions:
// the summary list, the identifier of the active session, and the active
// session's full detail. It is the only mutable shared state in the
// client; every write is a wholesale replacement of the affected object,
// so there is no field-level locking anywhere else.
package registry

import (
	"sync"

	"github.com/klasterhq/klaster/internal/models"
)

// Registry owns the session summaries and the active session detail.
// Other components hold only session ids and read through here.
type Registry struct {
	mu        sync.RWMutex
	summaries []models.SessionSummary
	activeID  string
	active    *models.Session
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// SetSummaries replaces the whole summary list.
func (r *Registry) SetSummaries(summaries []models.SessionSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = summaries
}

// Summaries returns a copy of the summary list.
func (r *Registry) Summaries() []models.SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SessionSummary, len(r.summaries))
	copy(out, r.summaries)
	return out
}

// UpsertSummary replaces the summary with a matching session id, or
// prepends it when unknown (new sessions list newest-first).
func (r *Registry) UpsertSummary(s models.SessionSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.summaries {
		if r.summaries[i].SessionID == s.SessionID {
			r.summaries[i] = s
			return
		}
	}
	r.summaries = append([]models.SessionSummary{s}, r.summaries...)
}

// SetActive marks a session as the active one and drops the previous
// detail. The detail arrives later via ReplaceActive.
func (r *Registry) SetActive(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID != id {
		r.active = nil
	}
	r.activeID = id
}

// ActiveID returns the active session id, or "".
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// Active returns the active session detail, or nil when none is loaded.
func (r *Registry) Active() *models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// ReplaceActive installs a freshly fetched session detail. The response is
// checked against the currently active id: a fetch that completed after
// the user switched sessions is discarded. Returns whether it was applied.
func (r *Registry) ReplaceActive(s *models.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == nil || s.SessionID != r.activeID {
		return false
	}
	r.active = s
	for i := range r.summaries {
		if r.summaries[i].SessionID == s.SessionID {
			sum := s.Summary()
			sum.CreatedAt = r.summaries[i].CreatedAt
			r.summaries[i] = sum
			break
		}
	}
	return true
}

// Evict removes a session that no longer exists server-side. If it was
// active, the active selection is cleared too. Returns whether the active
// session was cleared.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.summaries {
		if r.summaries[i].SessionID == id {
			r.summaries = append(r.summaries[:i], r.summaries[i+1:]...)
			break
		}
	}
	if r.activeID == id {
		r.activeID = ""
		r.active = nil
		return true
	}
	return false
}
