package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/events"
)

// notification is a queued fanout request. Exactly one of workspaceID and
// identity is set.
type notification struct {
	workspaceID string
	identity    auth.Identity
	event       events.Event
	exclude     auth.Identity
}

// NotifyRoom queues event for every member of workspaceID except the
// connections of exclude. It never blocks; a full queue drops the event.
func (h *Hub) NotifyRoom(workspaceID string, event events.Event, exclude auth.Identity) {
	h.enqueue(notification{workspaceID: workspaceID, event: event, exclude: exclude})
}

// NotifyIdentity queues event for every live connection of identity.
func (h *Hub) NotifyIdentity(identity auth.Identity, event events.Event) {
	h.enqueue(notification{identity: identity, event: event})
}

func (h *Hub) enqueue(n notification) {
	if h.ctx.Err() != nil {
		h.logger.Debug("hub closed; dropping notification", zap.String("event", eventName(n.event)))
		return
	}
	select {
	case h.notify <- n:
	default:
		h.logger.Warn("notification queue full; dropping event",
			zap.String("event", eventName(n.event)),
			zap.String("workspace", n.workspaceID),
			zap.String("identity", string(n.identity)))
	}
}

func (h *Hub) dispatch(n notification) {
	if n.workspaceID != "" {
		h.emitToWorkspace(n.workspaceID, n.event, n.exclude)
		return
	}
	h.EmitToIdentity(n.identity, n.event)
}

// emitToWorkspace resolves recipients according to the configured fanout mode.
// Membership mode falls back to the room index when the lookup fails.
func (h *Hub) emitToWorkspace(workspaceID string, event events.Event, exclude auth.Identity) int {
	if h.cfg.Fanout.Mode == FanoutModeMembership && h.membership != nil {
		ctx, cancel := context.WithTimeout(h.ctx, h.cfg.Fanout.LookupTimeout)
		members, err := h.membership.ListMembers(ctx, workspaceID)
		cancel()
		if err == nil {
			return h.emitToIdentities(members, event, exclude)
		}
		h.logger.Warn("member lookup failed; using room snapshot",
			zap.String("workspace", workspaceID), zap.Error(err))
	}
	return h.EmitToRoom(WorkspaceRoom(workspaceID), event, exclude)
}

// EmitToRoom delivers event to every connection in room whose identity is not
// exclude, and returns the number of deliveries.
func (h *Hub) EmitToRoom(room string, event events.Event, exclude auth.Identity) int {
	return h.deliver(h.rooms.Members(room), event, exclude)
}

// EmitToIdentity delivers event to every live connection of identity. An
// offline identity yields zero deliveries.
func (h *Hub) EmitToIdentity(identity auth.Identity, event events.Event) int {
	return h.deliver(h.registry.ConnectionsFor(identity), event, "")
}

func (h *Hub) emitToIdentities(identities []auth.Identity, event events.Event, exclude auth.Identity) int {
	seen := make(map[auth.Identity]struct{}, len(identities))
	var conns []ConnID
	for _, identity := range identities {
		if identity == exclude {
			continue
		}
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}
		conns = append(conns, h.registry.ConnectionsFor(identity)...)
	}
	return h.deliver(conns, event, exclude)
}

// deliver encodes event once and queues it on each connection. A connection
// whose queue is full is dropped; the rest of the fanout continues.
func (h *Hub) deliver(conns []ConnID, event events.Event, exclude auth.Identity) int {
	if len(conns) == 0 {
		return 0
	}
	msg, err := events.Encode(event)
	if err != nil {
		h.logger.Error("encode event", zap.String("event", eventName(event)), zap.Error(err))
		return 0
	}

	delivered := 0
	var slow []*Client
	for _, id := range conns {
		owner, live := h.registry.IdentityOf(id)
		if !live || (exclude != "" && owner == exclude) {
			continue
		}
		c := h.client(id)
		if c == nil {
			continue
		}
		if err := c.enqueue(msg); err != nil {
			c.logger.Warn("delivery failed", zap.String("event", event.EventName()), zap.Error(err))
			if errors.Is(err, ErrSendBufferFull) {
				slow = append(slow, c)
			}
			continue
		}
		delivered++
	}

	for _, c := range slow {
		c.logger.Info("removing slow consumer")
		h.Disconnect(c)
	}

	h.logger.Debug("event delivered",
		zap.String("event", event.EventName()),
		zap.Int("deliveries", delivered),
		zap.Int("candidates", len(conns)))
	return delivered
}

// JoinWorkspace joins every live connection of identity to the workspace room.
// Callers use it after adding identity to a workspace so open sessions start
// receiving that room's events without reconnecting.
func (h *Hub) JoinWorkspace(identity auth.Identity, workspaceID string) int {
	room := WorkspaceRoom(workspaceID)
	joined := 0
	for _, id := range h.registry.ConnectionsFor(identity) {
		if h.joinLive(id, room) {
			joined++
		}
	}
	return joined
}

// LeaveWorkspace removes every live connection of identity from the room.
func (h *Hub) LeaveWorkspace(identity auth.Identity, workspaceID string) int {
	room := WorkspaceRoom(workspaceID)
	left := 0
	for _, id := range h.registry.ConnectionsFor(identity) {
		if h.rooms.Leave(id, room) {
			left++
		}
	}
	return left
}

// relayTyping forwards a typing indicator to the other members of the project
// room the sender has joined.
func (h *Hub) relayTyping(c *Client, frame events.ClientFrame) bool {
	room := WorkspaceRoom(frame.ProjectID)
	if !h.rooms.IsMember(c.id, room) {
		c.logger.Debug("typing frame for a room the connection has not joined", zap.String("room", room))
		return false
	}

	user := events.ActorRef{ID: string(c.Identity()), Username: c.principal.DisplayName}
	var event events.Event = events.UserTyping{ProjectID: frame.ProjectID, TaskID: frame.TaskID, User: user}
	if frame.Type == events.FrameStopTyping {
		event = events.UserStoppedTyping{ProjectID: frame.ProjectID, TaskID: frame.TaskID, User: user}
	}
	h.EmitToRoom(room, event, c.Identity())
	return true
}

func eventName(e events.Event) string {
	if e == nil {
		return ""
	}
	return e.EventName()
}
