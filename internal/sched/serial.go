package sched

import "sync"

// Serial is a per-key single-flight gate. It admits one holder per key
// at a time; a second acquire for the same key fails until release.
type Serial struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewSerial creates an empty gate.
func NewSerial() *Serial {
	return &Serial{inflight: make(map[string]struct{})}
}

// TryAcquire attempts to take the gate for key.
func (s *Serial) TryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

// Release frees the gate for key.
func (s *Serial) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// InFlight reports whether key is currently held.
func (s *Serial) InFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[key]
	return busy
}
