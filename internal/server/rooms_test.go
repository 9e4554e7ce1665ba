package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomIndexJoinAndLeave(t *testing.T) {
	ri := NewRoomIndex()

	assert.True(t, ri.Join("c1", "project_1"))
	assert.False(t, ri.Join("c1", "project_1"), "second join is a no-op")
	assert.True(t, ri.Join("c2", "project_1"))
	assert.True(t, ri.Join("c1", "user_u1"))

	assert.Equal(t, []ConnID{"c1", "c2"}, ri.Members("project_1"))
	assert.Equal(t, []string{"project_1", "user_u1"}, ri.RoomsOf("c1"))
	assert.True(t, ri.IsMember("c2", "project_1"))

	assert.True(t, ri.Leave("c2", "project_1"))
	assert.False(t, ri.Leave("c2", "project_1"))
	assert.Equal(t, []ConnID{"c1"}, ri.Members("project_1"))
}

// TestRoomIndexLeaveAllDropsEmptyRooms verifies that a disconnecting
// connection leaves no trace in the index.
func TestRoomIndexLeaveAllDropsEmptyRooms(t *testing.T) {
	ri := NewRoomIndex()
	ri.Join("c1", "user_u1")
	ri.Join("c1", "project_1")
	ri.Join("c2", "project_1")

	assert.Equal(t, []string{"project_1", "user_u1"}, ri.LeaveAll("c1"))
	assert.Empty(t, ri.RoomsOf("c1"))
	assert.Equal(t, 1, ri.RoomCount())
	assert.Empty(t, ri.LeaveAll("c1"))

	ri.LeaveAll("c2")
	assert.Zero(t, ri.RoomCount())

	ri.mu.RLock()
	defer ri.mu.RUnlock()
	assert.Empty(t, ri.members)
	assert.Empty(t, ri.joined)
}
