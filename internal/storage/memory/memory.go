package memory

import (
	"context"
	"sync"

	"household/internal/storage"
)

// Store keeps the document in memory. Saves counts writes so tests can
// assert on persistence.
type Store struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func New() *Store {
	return &Store{}
}

// NewWithData returns a store that already holds data, e.g. a malformed
// document for degraded-mode tests.
func NewWithData(data []byte) *Store {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Store{data: cp}
}

func (s *Store) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *Store) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.saves++
	return nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Bytes returns a copy of the stored document.
func (s *Store) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.data...)
}

func (s *Store) Describe() string {
	return "memory"
}
