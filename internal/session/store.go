package session

import (
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/tinytree/internal/errors"
)

// Store holds sessions keyed by user ID. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new session in StatusPlanning. It fails with a
// *errors.BusyError if the user already holds a non-terminal session;
// a terminal session for the same user is replaced.
func (s *Store) Create(requestID, userID, channelID string, mode Mode, idea string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[userID]; ok && !existing.Status.IsTerminal() {
		return Session{}, errors.NewBusyError(userID, existing.Status.String())
	}

	sess := &Session{
		RequestID: requestID,
		UserID:    userID,
		ChannelID: channelID,
		Mode:      mode,
		Idea:      idea,
		Status:    StatusPlanning,
		StartedAt: s.now(),
	}
	s.sessions[userID] = sess
	return *sess, nil
}

// IsUserBusy reports whether the user holds a non-terminal session.
func (s *Store) IsUserBusy(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	return ok && !sess.Status.IsTerminal()
}

// UpdateStatus sets the user's session status. Any transition is accepted.
// It returns false when the user has no session.
func (s *Store) UpdateStatus(userID string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	sess.Status = status
	return true
}

// Advance sets the status of the session for requestID only while that
// session is still held and non-terminal. The check and the write happen
// under one lock, so a run cannot overwrite a cancellation that raced it.
func (s *Store) Advance(userID, requestID string, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok || sess.RequestID != requestID || sess.Status.IsTerminal() {
		return false
	}
	sess.Status = status
	return true
}

// SetPhase records the label of the phase currently running.
func (s *Store) SetPhase(userID, phase string) bool {
	return s.mutate(userID, func(sess *Session) { sess.Phase = phase })
}

// Rename sets the display name used in completion messages.
func (s *Store) Rename(userID, name string) bool {
	return s.mutate(userID, func(sess *Session) { sess.DisplayName = name })
}

// AttachProcess records the running child process so it can be cancelled.
func (s *Store) AttachProcess(userID string, p ProcessHandle) bool {
	return s.mutate(userID, func(sess *Session) { sess.Process = p })
}

// DetachProcess clears the process handle once its phase has finished.
func (s *Store) DetachProcess(userID string) {
	s.mutate(userID, func(sess *Session) { sess.Process = nil })
}

// Process returns the user's running child process, if any.
func (s *Store) Process(userID string) (ProcessHandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok || sess.Process == nil {
		return nil, false
	}
	return sess.Process, true
}

// UpdateRequest runs fn on the session for requestID while that session is
// still held and non-terminal. fn runs under the store lock and must not
// keep the pointer.
func (s *Store) UpdateRequest(userID, requestID string, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok || sess.RequestID != requestID || sess.Status.IsTerminal() {
		return false
	}
	fn(sess)
	return true
}

func (s *Store) mutate(userID string, fn func(*Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	fn(sess)
	return true
}

// FindByUserID returns a snapshot of the user's session.
func (s *Store) FindByUserID(userID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// FindByRequestID returns a snapshot of the session with the given request
// ID. It scans every session.
func (s *Store) FindByRequestID(requestID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.RequestID == requestID {
			return *sess, true
		}
	}
	return Session{}, false
}

// DeleteByUserID removes the user's session, whatever its state.
func (s *Store) DeleteByUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// DeleteRequest removes the user's session only if it still belongs to
// requestID. A finished run uses it so it cannot remove a newer session the
// user started after cancelling.
func (s *Store) DeleteRequest(userID, requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok || sess.RequestID != requestID {
		return false
	}
	delete(s.sessions, userID)
	return true
}

// List returns snapshots of all sessions, oldest first.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// ActiveCount returns the number of non-terminal sessions.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sess := range s.sessions {
		if !sess.Status.IsTerminal() {
			n++
		}
	}
	return n
}
