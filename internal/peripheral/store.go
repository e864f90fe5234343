package peripheral

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the local attribute store: the current value of each published
// characteristic. Writes come from the engine loop; reads from anywhere.
type Store struct {
	mu     sync.RWMutex
	values map[uuid.UUID][]byte
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[uuid.UUID][]byte)}
}

// Get returns a copy of the value for char. Unset characteristics read as
// empty.
func (s *Store) Get(char uuid.UUID) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.values[char]
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Set replaces the value for char with a copy of value.
func (s *Store) Set(char uuid.UUID, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.values[char] = cp
	s.mu.Unlock()
}

// Values returns a copy of every stored value.
func (s *Store) Values() map[uuid.UUID][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID][]byte, len(s.values))
	for k, v := range s.values {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
