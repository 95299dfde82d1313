// Package thread maps pipeline request IDs to chat thread handles so every
// message about one run lands in the same conversation thread.
package thread

import "sync"

// Store is a concurrency-safe requestID → thread handle map. Handles are
// opaque strings minted by the chat platform (a Slack message ts, for
// example).
type Store struct {
	mu      sync.RWMutex
	threads map[string]string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{threads: make(map[string]string)}
}

// Set records the thread handle for requestID, replacing any previous one.
func (s *Store) Set(requestID, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[requestID] = handle
}

// Get returns the handle for requestID and whether one was recorded.
func (s *Store) Get(requestID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handle, ok := s.threads[requestID]
	return handle, ok
}

// Delete forgets requestID. Deleting an unknown ID is a no-op.
func (s *Store) Delete(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, requestID)
}

// Len returns the number of tracked threads.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
