package store

import (
	"errors"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrStoreRegistered = errors.New("store id already registered")
	ErrStoreUnknown    = errors.New("store id not registered")
)

// Registry maps store ids to store handles. The application's composition
// root owns one registry and hands it to components that look stores up by
// id; there is no ambient global instance.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// Register adds a store under the given id.
func (r *Registry) Register(id string, s *Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[id]; ok {
		return ErrStoreRegistered
	}
	r.stores[id] = s
	return nil
}

// Lookup returns the store registered under id.
func (r *Registry) Lookup(id string) (*Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, ErrStoreUnknown
	}
	return s, nil
}

// Unregister removes the id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, id)
}

// IDs returns the registered store ids in ascending order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
