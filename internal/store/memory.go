// Package store holds the state stores available to extension modules.
package store

import (
	"context"
	"sync"

	"github.com/google/magic-github-proxy/internal/core"
)

var _ core.StateStore = (*InMemoryStateStore)(nil)

// InMemoryStateStore keeps state for the lifetime of the process.
type InMemoryStateStore struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{
		values: make(map[string]map[string]string),
	}
}

func (s *InMemoryStateStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[namespace][key]
	return value, ok, nil
}

func (s *InMemoryStateStore) Set(_ context.Context, namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.values[namespace]
	if !ok {
		ns = make(map[string]string)
		s.values[namespace] = ns
	}
	ns[key] = value
	return nil
}

func (s *InMemoryStateStore) Delete(_ context.Context, namespace, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.values[namespace]
	if !ok {
		return false, nil
	}
	if _, ok := ns[key]; !ok {
		return false, nil
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(s.values, namespace)
	}
	return true, nil
}

func (s *InMemoryStateStore) Close() error {
	return nil
}
