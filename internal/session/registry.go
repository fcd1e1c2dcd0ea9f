package session

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// entry is one registry slot. Its mutex serializes every change to the session.
type entry struct {
	mu      sync.Mutex
	session *UploadSession
	removed bool
}

// Registry is the process-wide store of upload sessions.
//
// The registry lock only guards the id and owner maps. Session state is
// guarded by the per-entry lock, so work on one session never waits on
// another session's events.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	byOwner  map[string]map[string]struct{}
	closed   bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		byOwner:  make(map[string]map[string]struct{}),
	}
}

// Create stores a new session and indexes it under its owner
func (r *Registry) Create(s *UploadSession) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Snapshot{}, ErrRegistryClosed
	}
	if _, exists := r.sessions[s.ID]; exists {
		return Snapshot{}, ErrSessionExists
	}

	r.sessions[s.ID] = &entry{session: s}
	if !s.Status.IsTerminal() {
		r.indexOwnerLocked(s.OwnerID, s.ID)
	}

	return s.snapshot(), nil
}

func (r *Registry) indexOwnerLocked(ownerID, sessionID string) {
	ids, ok := r.byOwner[ownerID]
	if !ok {
		ids = make(map[string]struct{})
		r.byOwner[ownerID] = ids
	}
	ids[sessionID] = struct{}{}
}

func (r *Registry) unindexOwnerLocked(ownerID, sessionID string) {
	ids, ok := r.byOwner[ownerID]
	if !ok {
		return
	}
	delete(ids, sessionID)
	if len(ids) == 0 {
		delete(r.byOwner, ownerID)
	}
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// Get returns a snapshot of the session
func (r *Registry) Get(id string) (Snapshot, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Snapshot{}, ErrSessionNotFound
	}
	return e.session.snapshot(), nil
}

// Update runs fn with exclusive access to the session and returns the
// resulting snapshot, taken before the entry lock is released.
func (r *Registry) Update(id string, fn func(s *UploadSession)) (Snapshot, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return Snapshot{}, ErrSessionNotFound
	}
	wasTerminal := e.session.Status.IsTerminal()
	fn(e.session)
	snap := e.session.snapshot()
	e.mu.Unlock()

	if !wasTerminal && snap.Status.IsTerminal() {
		r.mu.Lock()
		r.unindexOwnerLocked(snap.OwnerID, snap.ID)
		r.mu.Unlock()
	}

	return snap, nil
}

// ListActiveForUser returns the owner's active sessions, newest first
func (r *Registry) ListActiveForUser(ownerID string) []Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.byOwner[ownerID]))
	for id := range r.byOwner[ownerID] {
		if e, ok := r.sessions[id]; ok {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed && e.session.Status == StatusActive {
			snapshots = append(snapshots, e.session.snapshot())
		}
		e.mu.Unlock()
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if !snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
		}
		return snapshots[i].ID < snapshots[j].ID
	})
	return snapshots
}

// Remove drops the session; removing an unknown id is a no-op
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		r.unindexOwnerLocked(e.session.OwnerID, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// Len returns the number of stored sessions, terminal ones included
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepResult lists what a sweep found
type SweepResult struct {
	// Idle holds active sessions whose last activity is older than the idle timeout
	Idle []string
	// Removed counts terminal sessions dropped after their retention window
	Removed int
}

// Sweep removes terminal sessions older than the retention window and reports
// idle active sessions. Expiring those is left to the caller so that the
// transition goes through the state machine.
func (r *Registry) Sweep(now time.Time, policy ExpiryPolicy) SweepResult {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var result SweepResult
	var stale []string
	for _, e := range entries {
		e.mu.Lock()
		s := e.session
		if !e.removed {
			if at, terminal := s.terminatedAt(); terminal {
				if now.Sub(at) >= policy.Retention {
					stale = append(stale, s.ID)
				}
			} else if policy.IdleTimeout > 0 && now.Sub(s.LastActivityAt) >= policy.IdleTimeout {
				result.Idle = append(result.Idle, s.ID)
			}
		}
		e.mu.Unlock()
	}

	for _, id := range stale {
		r.Remove(id)
	}
	result.Removed = len(stale)
	sort.Strings(result.Idle)

	return result
}

// Close drops every session and rejects further creates
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[string]*entry)
	r.byOwner = make(map[string]map[string]struct{})
	r.closed = true
	r.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}

	log.Info().Int("sessions", len(entries)).Msg("Session registry closed")
}
