// Package fleet maps each authenticated UserID to its single active
// session handle, atomically displacing whatever session previously held
// that identity.
package fleet

import (
	"sync"

	"github.com/hollowcrest/pixelwire/auth"
)

// Registry holds at most one *T per auth.UserID. T is the session type;
// callers compare handles by pointer identity, never by value, so a
// Registry never mistakes two distinct sessions for the same UserId's
// entry even if their contents happen to match.
//
// Lock discipline: acquire the Registry's lock before locking any
// individual session. Never the reverse — see package session.
type Registry[T any] struct {
	mu       sync.Mutex
	sessions map[auth.UserID]*T
}

// NewRegistry returns an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{sessions: make(map[auth.UserID]*T)}
}

// InsertOrReplace installs session as the active handle for id, returning
// whatever handle was previously registered (if any). The caller is
// responsible for marking the previous handle replaced and closing it;
// this keeps that side effect outside the registry's lock.
func (r *Registry[T]) InsertOrReplace(id auth.UserID, session *T) (prev *T, hadPrev bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, hadPrev = r.sessions[id]
	r.sessions[id] = session
	return prev, hadPrev
}

// RemoveIfSame deletes the entry for id, but only if it still points at
// session — a newer session may already have replaced it.
func (r *Registry[T]) RemoveIfSame(id auth.UserID, session *T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[id]; ok && current == session {
		delete(r.sessions, id)
	}
}

// Snapshot returns every currently registered handle. The slice is a copy;
// mutation of the registry after Snapshot returns does not affect it.
// Concurrent mutation during iteration is safe because each session's own
// lock is the source of truth for send validity, not registry membership.
func (r *Registry[T]) Snapshot() []*T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*T, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered handles.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
