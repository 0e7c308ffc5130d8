// room/room.go
package room

import (
	"sync"

	"github.com/samber/lo"
)

// Manager 维护房间成员索引: room name -> connection ids, plus the reverse
// index used to drop a connection from every room at once. Rooms exist only
// while they have members.
type Manager struct {
	rooms       map[string]map[string]struct{}
	memberships map[string]map[string]struct{}
	mutex       sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Join adds the connection to the room. It reports whether the connection was
// not already a member.
func (m *Manager) Join(connID, room string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}

	joined, ok := m.memberships[connID]
	if !ok {
		joined = make(map[string]struct{})
		m.memberships[connID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave removes the connection from the room. It reports whether the
// connection was a member.
func (m *Manager) Leave(connID, room string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.leave(connID, room)
}

func (m *Manager) leave(connID, room string) bool {
	members, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}

	if joined, ok := m.memberships[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.memberships, connID)
		}
	}
	return true
}

// DropConnection removes the connection from every room it belongs to and
// returns those rooms.
func (m *Manager) DropConnection(connID string) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	left := lo.Keys(m.memberships[connID])
	for _, room := range left {
		m.leave(connID, room)
	}
	return left
}

// Disband removes every member from the room and returns them.
func (m *Manager) Disband(room string) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members := lo.Keys(m.rooms[room])
	for _, connID := range members {
		m.leave(connID, room)
	}
	return members
}

// Members returns a snapshot of the room's members.
func (m *Manager) Members(room string) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return lo.Keys(m.rooms[room])
}

// ForEachMember calls fn for every member while holding the read lock, so no
// membership change can interleave with the iteration. fn must not call back
// into the Manager.
func (m *Manager) ForEachMember(room string, fn func(connID string)) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for connID := range m.rooms[room] {
		fn(connID)
	}
}

// IsMember reports whether the connection is in the room.
func (m *Manager) IsMember(connID, room string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.rooms[room][connID]
	return ok
}

// RoomsOf returns the rooms the connection belongs to.
func (m *Manager) RoomsOf(connID string) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return lo.Keys(m.memberships[connID])
}

// Count returns the number of non-empty rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}
