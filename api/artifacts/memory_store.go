package artifacts

import (
	"context"
	"fmt"
	"sync"
)

type memoryObject struct {
	ref  Ref
	data []byte
}

// MemoryStore Keeps artifacts for the lifetime of the process
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (Ref, error) {
	if err := validateKey(key); err != nil {
		return Ref{}, err
	}
	ref, err := newRef(key, contentType, data)
	if err != nil {
		return Ref{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; ok {
		return Ref{}, fmt.Errorf("%s: %w", key, ErrArtifactExists)
	}
	s.objects[key] = memoryObject{ref: ref, data: append([]byte(nil), data...)}
	return ref, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, Ref{}, fmt.Errorf("%s: %w", key, ErrArtifactNotFound)
	}
	return append([]byte(nil), obj.data...), obj.ref, nil
}
