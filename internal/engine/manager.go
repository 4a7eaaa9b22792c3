package engine

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Manager hands out the current Engine and swaps it atomically when the scope
// table is reloaded. A single Engine and its Registry are never mutated.
type Manager struct {
	current atomic.Pointer[Engine]
	mu      sync.Mutex
	opts    []Option
}

func NewManager(registry *Registry, opts ...Option) *Manager {
	m := &Manager{opts: opts}
	m.current.Store(New(registry, opts...))
	return m
}

func (m *Manager) GetEngine() *Engine {
	return m.current.Load()
}

// Update replaces the engine with one built on registry.
// Requests already holding the previous engine finish with it.
func (m *Manager) Update(registry *Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.current.Load().Registry().Len()
	m.current.Store(New(registry, m.opts...))

	log.Info().
		Int("previous_scopes", previous).
		Int("scopes", registry.Len()).
		Msg("scope registry reloaded")
}
