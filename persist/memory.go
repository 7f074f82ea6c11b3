package persist

import (
	"context"
	"slices"
	"sync"
)

type memoryStorage struct {
	mutex  sync.Mutex
	values map[string][]byte
	closed bool
}

var _ Storage = (*memoryStorage)(nil)

// NewMemory returns a Storage that lives only as long as the process. Values
// are copied on the way in and out.
func NewMemory() Storage {
	return &memoryStorage{values: make(map[string][]byte)}
}

func (s *memoryStorage) Get(_ context.Context, key string) (bool, []byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return false, nil, ErrClosed
	}
	val, ok := s.values[key]
	if !ok {
		return false, nil, nil
	}
	return true, slices.Clone(val), nil
}

func (s *memoryStorage) Set(_ context.Context, key string, val []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrClosed
	}
	if val == nil {
		val = []byte{}
	}
	s.values[key] = slices.Clone(val)
	return nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.values[key]
	delete(s.values, key)
	return ok, nil
}

func (s *memoryStorage) Close(_ context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	s.values = nil
	return nil
}
