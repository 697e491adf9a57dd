// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/agentdeck/internal/model"
)

// ErrSessionNotFound is returned for operations that name a session the
// store no longer holds. A turn that finishes after its session was
// deleted lands here, which is how late writes are dropped.
var ErrSessionNotFound = errors.New("session not in store")

// =============================================================================
// STORE
// =============================================================================

// Store is the in-memory session set.
//
// All mutation happens through its methods under one mutex, so callers may
// invoke them from any goroutine, but the intended shape is a single
// writer: the UI update loop applies refreshes, loads, and turn results in
// the order it receives them.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	loaded   map[string]bool
	activeID string

	// pending holds locally-created sessions whose backend registration
	// has not completed yet. A list refresh must not remove them: the
	// listing was taken before the server learned the session exists.
	pending map[string]bool

	// synced flips once the first server refresh has been applied.
	synced bool

	// gen issues refresh generations; appliedGen tracks the newest one
	// applied so an older in-flight refresh cannot clobber a newer one.
	gen        atomic.Uint64
	appliedGen uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		loaded:   make(map[string]bool),
		pending:  make(map[string]bool),
	}
}

// Count returns the number of sessions held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Synced reports whether at least one server refresh has been applied.
func (s *Store) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Get returns the session with the given ID.
func (s *Store) Get(id string) (*model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Sessions returns all sessions ordered most recently updated first, ties
// broken by ID for stable output.
func (s *Store) Sessions() []*model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Metas returns metadata for all sessions in the same order as Sessions.
func (s *Store) Metas() []model.Meta {
	sessions := s.Sessions()
	metas := make([]model.Meta, 0, len(sessions))
	for _, sess := range sessions {
		metas = append(metas, sess.GetMeta())
	}
	return metas
}

// =============================================================================
// ACTIVE SESSION
// =============================================================================

// Active returns the active session, or nil if there is none.
func (s *Store) Active() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return nil
	}
	return s.sessions[s.activeID]
}

// ActiveID returns the active session's ID, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetActive marks the given session as active.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	s.activeID = id
	return nil
}

// EnsureActive returns the active session, creating and activating a fresh
// one when none exists. The created session is local-only until the
// caller registers it with the backend.
func (s *Store) EnsureActive() (*model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		if sess, ok := s.sessions[s.activeID]; ok {
			return sess, false
		}
	}

	sess := model.NewSession(model.DefaultTitle)
	s.sessions[sess.ID] = sess
	// A locally-created session has nothing to load.
	s.loaded[sess.ID] = true
	s.pending[sess.ID] = true
	s.activeID = sess.ID
	return sess, true
}

// =============================================================================
// MUTATION
// =============================================================================

// Add inserts a locally-created session. It is considered loaded, and
// pending until MarkRegistered or a server listing that includes it.
func (s *Store) Add(sess *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.loaded[sess.ID] = true
	s.pending[sess.ID] = true
}

// MarkRegistered records that the backend now knows the session, ending
// its exemption from refresh removal.
func (s *Store) MarkRegistered(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// IsPending reports whether the session was created locally and has not
// been registered with the backend yet.
func (s *Store) IsPending(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[id]
}

// AppendMessage appends a message to the named session's transcript.
// Returns ErrSessionNotFound when the session has been removed, so a turn
// finishing after a delete discards its result instead of resurrecting
// the session.
func (s *Store) AppendMessage(sessionID string, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Append(msg)
	return nil
}

// SetMessages replaces the named session's transcript with a server-loaded
// one and marks it loaded.
func (s *Store) SetMessages(sessionID string, msgs []*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.ReplaceMessages(msgs)
	s.loaded[sessionID] = true
	return nil
}

// IsLoaded reports whether the named session's transcript has been loaded
// (or was created locally and never needed loading).
func (s *Store) IsLoaded(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[sessionID]
}

// Delete removes a session. When the active session is deleted the most
// recently updated survivor becomes active, or none if the store is empty.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.loaded, id)
	delete(s.pending, id)

	if s.activeID == id {
		s.activeID = s.newestLocked()
	}
	return nil
}

// newestLocked returns the ID of the most recently updated session, or "".
// Caller holds mu.
func (s *Store) newestLocked() string {
	var newest *model.Session
	for _, sess := range s.sessions {
		if newest == nil || sess.UpdatedAt.After(newest.UpdatedAt) {
			newest = sess
		}
	}
	if newest == nil {
		return ""
	}
	return newest.ID
}

// =============================================================================
// REFRESH RECONCILIATION
// =============================================================================

// NextGeneration issues a generation number for a refresh about to be
// started. Generations order concurrent refreshes: only results from the
// newest one applied so far are accepted.
func (s *Store) NextGeneration() uint64 {
	return s.gen.Add(1)
}

// ApplyRefresh reconciles the store against a server session listing.
// Returns false without touching state when gen is older than one already
// applied.
//
// The merge is metadata-only: sessions already held keep their loaded
// transcripts (in particular the active one mid-conversation), new
// sessions appear as unloaded shells, and sessions the server no longer
// reports are removed. Pending sessions are exempt from removal: their
// registration may still be in flight, so a listing that predates it says
// nothing about them. A listing that does include a pending session ends
// its pending state.
func (s *Store) ApplyRefresh(gen uint64, metas []model.Meta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen <= s.appliedGen {
		return false
	}
	s.appliedGen = gen
	s.synced = true

	seen := make(map[string]bool, len(metas))
	for _, meta := range metas {
		seen[meta.ID] = true
		delete(s.pending, meta.ID)
		if sess, ok := s.sessions[meta.ID]; ok {
			sess.Title = meta.Title
			sess.CreatedAt = meta.CreatedAt
			sess.UpdatedAt = meta.UpdatedAt
			continue
		}
		s.sessions[meta.ID] = &model.Session{
			ID:        meta.ID,
			Title:     meta.Title,
			CreatedAt: meta.CreatedAt,
			UpdatedAt: meta.UpdatedAt,
			Messages:  make([]*model.Message, 0),
		}
	}

	for id := range s.sessions {
		if !seen[id] && !s.pending[id] {
			delete(s.sessions, id)
			delete(s.loaded, id)
		}
	}

	if s.activeID != "" {
		if _, ok := s.sessions[s.activeID]; !ok {
			s.activeID = s.newestLocked()
		}
	}
	return true
}
