// Package lobby keeps the roster of players available to challenge.
package lobby

import (
	"encoding/json"
	"errors"

	"github.com/samber/lo"
)

var ErrNotFound = errors.New("lobby entry not found")

// Entry is one player's availability record. Stats is kept verbatim.
type Entry struct {
	ConnectionID string          `json:"socketId"`
	EntityID     string          `json:"entityId"`
	Name         string          `json:"name"`
	Stats        json.RawMessage `json:"stats,omitempty"`
}

// Registry maps connection id -> entry in insertion order. Several
// connections may register the same entity id.
//
// Registry is not safe for concurrent use; the coordinator serialises access.
type Registry struct {
	order   []string
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Join inserts the entry for connID, or replaces it in place on re-join.
func (r *Registry) Join(connID string, entry Entry) {
	entry.ConnectionID = connID
	if _, exists := r.entries[connID]; !exists {
		r.order = append(r.order, connID)
	}
	r.entries[connID] = entry
}

// Leave removes the entry for connID and reports whether one existed.
func (r *Registry) Leave(connID string) (Entry, bool) {
	entry, exists := r.entries[connID]
	if !exists {
		return Entry{}, false
	}
	delete(r.entries, connID)
	r.order = lo.Without(r.order, connID)
	return entry, true
}

// Get returns the entry held by connID.
func (r *Registry) Get(connID string) (Entry, bool) {
	entry, ok := r.entries[connID]
	return entry, ok
}

// FindByEntityID returns the first entry, in insertion order, registered for
// entityID whose connection is not excluded.
func (r *Registry) FindByEntityID(entityID string, exclude ...string) (Entry, error) {
	connID, ok := lo.Find(r.order, func(id string) bool {
		return r.entries[id].EntityID == entityID && !lo.Contains(exclude, id)
	})
	if !ok {
		return Entry{}, ErrNotFound
	}
	return r.entries[connID], nil
}

// Snapshot returns every entry in insertion order.
func (r *Registry) Snapshot() []Entry {
	return lo.Map(r.order, func(id string, _ int) Entry {
		return r.entries[id]
	})
}

func (r *Registry) Len() int {
	return len(r.order)
}
