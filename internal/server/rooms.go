package server

import (
	"sort"
	"sync"
)

// RoomIndex is the transport's room primitive: named groups of connections.
// Empty rooms and connections without rooms are dropped from the index.
type RoomIndex struct {
	mu      sync.RWMutex
	members map[string]map[ConnID]struct{}
	joined  map[ConnID]map[string]struct{}
}

// NewRoomIndex returns an empty RoomIndex.
func NewRoomIndex() *RoomIndex {
	return &RoomIndex{
		members: make(map[string]map[ConnID]struct{}),
		joined:  make(map[ConnID]map[string]struct{}),
	}
}

// Join adds conn to room. It returns false if conn was already a member.
func (ri *RoomIndex) Join(conn ConnID, room string) bool {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	conns, ok := ri.members[room]
	if !ok {
		conns = make(map[ConnID]struct{})
		ri.members[room] = conns
	}
	if _, exists := conns[conn]; exists {
		return false
	}
	conns[conn] = struct{}{}

	rooms, ok := ri.joined[conn]
	if !ok {
		rooms = make(map[string]struct{})
		ri.joined[conn] = rooms
	}
	rooms[room] = struct{}{}
	return true
}

// Leave removes conn from room.
func (ri *RoomIndex) Leave(conn ConnID, room string) bool {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.leaveLocked(conn, room)
}

// LeaveAll removes conn from every room and returns the rooms it left.
func (ri *RoomIndex) LeaveAll(conn ConnID) []string {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	rooms := ri.joined[conn]
	left := make([]string, 0, len(rooms))
	for room := range rooms {
		left = append(left, room)
	}
	for _, room := range left {
		ri.leaveLocked(conn, room)
	}
	sort.Strings(left)
	return left
}

func (ri *RoomIndex) leaveLocked(conn ConnID, room string) bool {
	conns, ok := ri.members[room]
	if !ok {
		return false
	}
	if _, ok := conns[conn]; !ok {
		return false
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(ri.members, room)
	}
	rooms := ri.joined[conn]
	delete(rooms, room)
	if len(rooms) == 0 {
		delete(ri.joined, conn)
	}
	return true
}

// Members returns a sorted snapshot of the connections in room.
func (ri *RoomIndex) Members(room string) []ConnID {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	conns := ri.members[room]
	out := make([]ConnID, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsMember reports whether conn has joined room.
func (ri *RoomIndex) IsMember(conn ConnID, room string) bool {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	_, ok := ri.members[room][conn]
	return ok
}

// RoomsOf returns the sorted rooms conn has joined.
func (ri *RoomIndex) RoomsOf(conn ConnID) []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	rooms := ri.joined[conn]
	out := make([]string, 0, len(rooms))
	for room := range rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of non-empty rooms.
func (ri *RoomIndex) RoomCount() int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return len(ri.members)
}
