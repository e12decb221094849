package room

import (
	"log"
	"sync"
	"time"
)

// Registry maps diagram ids to their rooms. Rooms are created lazily on
// first join and reclaimed by Sweep once they sit empty long enough.
type Registry struct {
	store Store
	authz Authorizer

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry(store Store, authz Authorizer) *Registry {
	return &Registry{
		store: store,
		authz: authz,
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate returns the room for a diagram, creating it on first use.
// Concurrent first joins for the same diagram yield exactly one room.
func (g *Registry) GetOrCreate(diagramID string) *Room {
	g.mu.RLock()
	r, ok := g.rooms[diagramID]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[diagramID]; ok {
		return r
	}
	r = newRoom(diagramID, g.store, g.authz)
	g.rooms[diagramID] = r
	return r
}

// Join adds a client to the room for a diagram, creating the room on first
// use. Lookup and membership happen under the registry lock so a sweep can
// never reclaim the room between the two: the room a client joins is always
// the one the registry serves.
func (g *Registry) Join(diagramID string, c Client) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[diagramID]
	if !ok {
		r = newRoom(diagramID, g.store, g.authz)
		g.rooms[diagramID] = r
	}
	r.Join(c)
	return r
}

// Get returns the room for a diagram if one exists.
func (g *Registry) Get(diagramID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[diagramID]
	return r, ok
}

// RemoveSessionEverywhere drops a session from every room that still holds
// it. Used on disconnect cleanup; idempotent like Room.Leave.
func (g *Registry) RemoveSessionEverywhere(sessionID string) {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.dropLocked(sessionID)
		r.mu.Unlock()
	}
}

// Sweep removes rooms that have been empty for longer than maxIdle and
// returns how many were removed. An empty room holds no members and only a
// structure cache that reloads from the store on the next join.
func (g *Registry) Sweep(maxIdle time.Duration) int {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for id, r := range g.rooms {
		if r.emptyFor(now) > maxIdle {
			delete(g.rooms, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("Swept %d idle room(s), %d remaining", removed, len(g.rooms))
	}
	return removed
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
