package transcript

import (
	"context"
	"sync"
)

// MemoryStore is an in-process transcript store used in tests and in
// redis-less deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string][]Segment
}

// NewMemoryStore creates an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]Segment)}
}

// Append adds a segment to the call's window.
func (s *MemoryStore) Append(_ context.Context, callID string, segment Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[callID] = append(s.windows[callID], segment)
	return nil
}

// Window returns the call's accumulated window.
func (s *MemoryStore) Window(_ context.Context, callID string) (Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	segments := s.windows[callID]
	window := Window{CallID: callID, Segments: make([]Segment, len(segments))}
	copy(window.Segments, segments)
	return window, nil
}

// Clear removes the call's window.
func (s *MemoryStore) Clear(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, callID)
	return nil
}
