// Package registry implements the logical-id -> entity mapping: a single
// read-write lock guarding a plain map, many readers and one writer, no
// secondary indexes.
package registry

import (
	"sync"
	"time"

	"github.com/logline-motor/motor/internal/domain"
)

// Registry maps logical entity ids to their type and creation time. The
// zero value is not usable; construct with New.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]domain.Entity
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entities: make(map[string]domain.Entity)}
}

// RegisterEntity inserts or overwrites the entity for logicalID. A
// re-registration replaces the prior entity; its CreatedAt becomes now
// (last-writer-wins).
func (r *Registry) RegisterEntity(logicalID, entityType string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[logicalID] = domain.Entity{
		LogicalID: logicalID,
		Type:      entityType,
		CreatedAt: time.Now(),
	}
	return logicalID
}

// FetchEntity returns the entity for id, if any.
func (r *Registry) FetchEntity(id string) (domain.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	return e, ok
}

// ListEntitiesByType returns the logical ids whose stored type exactly
// matches entityType. No ordering is guaranteed.
func (r *Registry) ListEntitiesByType(entityType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, e := range r.entities {
		if e.Type == entityType {
			ids = append(ids, id)
		}
	}
	return ids
}

// RemoveEntity deletes id from the registry. It returns true if an entity
// was present and removed, false if id was absent. No tombstone is kept.
func (r *Registry) RemoveEntity(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[id]; !ok {
		return false
	}
	delete(r.entities, id)
	return true
}

// Len reports the number of live entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
