package runlog

import "sync"

// MemoryStore keeps the run history in process memory. Useful for tests and
// for runs where persistence was not configured.
type MemoryStore struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = capHistory(append([]Outcome{outcome}, s.outcomes...))
	return nil
}

func (s *MemoryStore) Recent() ([]Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
