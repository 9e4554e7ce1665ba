// Package server coordinates connection admission, room membership, event
// fanout and connection teardown for the realtime layer via the Hub type.
package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/auth"
)

// Hub owns the connection registry and room index for one server process.
// Request handlers reach it through NotifyRoom and NotifyIdentity; nothing
// else mutates its state.
type Hub struct {
	cfg        Config
	membership Membership
	logger     *zap.Logger
	origins    *originPolicy

	registry *Registry
	rooms    *RoomIndex

	mu      sync.RWMutex
	clients map[ConnID]*Client

	notify  chan notification
	started atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHub creates a Hub. membership may be nil, in which case connections only
// join their personal room.
func NewHub(cfg Config, membership Membership, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = sanitizeConfig(cfg)
	logger = logger.With(zap.String("component", "hub"))
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		cfg:        cfg,
		membership: membership,
		logger:     logger,
		origins:    newOriginPolicy(cfg.AllowedOrigins, logger),
		registry:   NewRegistry(),
		rooms:      NewRoomIndex(),
		clients:    make(map[ConnID]*Client),
		notify:     make(chan notification, cfg.Fanout.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry exposes the identity/connection registry for read access.
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms exposes the room index for read access.
func (h *Hub) Rooms() *RoomIndex { return h.rooms }

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config { return h.cfg }

// ConnectionCount returns the number of admitted connections.
func (h *Hub) ConnectionCount() int { return h.registry.ConnectionCount() }

// Admit registers c, joins it to its personal room and to one room per
// workspace its identity belongs to. A failed membership fetch leaves the
// connection admitted with its personal room only. The returned rooms are
// the ones c joined.
func (h *Hub) Admit(ctx context.Context, c *Client) ([]string, error) {
	if h.ctx.Err() != nil {
		return nil, ErrHubClosed
	}

	identity := c.Identity()

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.registry.Register(identity, c.id)

	personal := PersonalRoom(identity)
	h.joinLive(c.id, personal)
	joined := []string{personal}

	workspaces, err := h.fetchWorkspaces(ctx, identity)
	if err != nil {
		c.logger.Warn("connection admitted with personal room only", zap.Error(err))
		return joined, nil
	}
	for _, ws := range workspaces {
		room := WorkspaceRoom(ws)
		if h.joinLive(c.id, room) {
			joined = append(joined, room)
		}
	}

	c.logger.Info("connection admitted",
		zap.Strings("rooms", joined),
		zap.Int("identityConnections", len(h.registry.ConnectionsFor(identity))))
	return joined, nil
}

func (h *Hub) fetchWorkspaces(ctx context.Context, identity auth.Identity) ([]string, error) {
	if h.membership == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Fanout.LookupTimeout)
	defer cancel()

	workspaces, err := h.membership.ListWorkspacesFor(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMembershipFetchFailed, err)
	}
	return workspaces, nil
}

// joinLive joins conn to room and undoes the join if conn was disconnected
// meanwhile. Disconnect unregisters before it leaves rooms, so a join that
// lands after LeaveAll is caught by the registry check.
func (h *Hub) joinLive(conn ConnID, room string) bool {
	if !h.rooms.Join(conn, room) {
		return false
	}
	if _, live := h.registry.IdentityOf(conn); !live {
		h.rooms.Leave(conn, room)
		return false
	}
	return true
}

// startPumps launches the read and write pumps of an admitted client. It
// refuses once Shutdown has begun so no pump outlives the wait group.
func (h *Hub) startPumps(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
	return nil
}

// Disconnect removes c from the registry and every room and closes its send
// queue. Repeated calls, or calls for a client never admitted, are no-ops.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	identity, offline := h.registry.Unregister(c.id)
	left := h.rooms.LeaveAll(c.id)
	c.closeSend()

	if identity == "" {
		return
	}
	c.logger.Info("connection removed",
		zap.Bool("identityOffline", offline),
		zap.Int("roomsLeft", len(left)),
		zap.Int("totalConnections", h.registry.ConnectionCount()))
}

func (h *Hub) client(id ConnID) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Run drains the notification queue until Shutdown is called. It should be
// started in its own goroutine before the HTTP server accepts traffic.
func (h *Hub) Run() {
	h.started.Store(true)
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			return
		case n := <-h.notify:
			h.dispatch(n)
		}
	}
}

// shutdownClients closes every admitted connection; each then runs through
// the normal disconnect path.
func (h *Hub) shutdownClients() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.conn == nil {
			h.Disconnect(c)
			continue
		}
		c.closeConnection()
	}
	return len(clients)
}

// Shutdown stops Run, closes all connections and waits for their pumps to
// exit, or until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")
	h.cancel()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if h.started.Load() {
		select {
		case <-h.done:
		case <-deadline.C:
			return context.DeadlineExceeded
		}
	}

	// cancel above happens before shutdownClients takes h.mu, so any
	// startPumps that won the lock has already called wg.Add.
	closed := h.shutdownClients()
	h.logger.Info("closed client connections", zap.Int("count", closed))

	pumpsDone := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(pumpsDone)
	}()

	select {
	case <-pumpsDone:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-deadline.C:
		h.logger.Warn("hub shutdown timed out; some connections may still be closing")
		return context.DeadlineExceeded
	}
}
