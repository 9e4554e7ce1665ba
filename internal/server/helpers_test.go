package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/events"
)

// fakeMembership is an in-memory Membership whose answers and failures the
// test controls.
type fakeMembership struct {
	mu         sync.Mutex
	workspaces map[auth.Identity][]string
	members    map[string][]auth.Identity
	listErr    error
	membersErr error
	calls      int
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{
		workspaces: make(map[auth.Identity][]string),
		members:    make(map[string][]auth.Identity),
	}
}

func (m *fakeMembership) add(identity auth.Identity, workspaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[identity] = append(m.workspaces[identity], workspaceID)
	m.members[workspaceID] = append(m.members[workspaceID], identity)
}

func (m *fakeMembership) ListWorkspacesFor(_ context.Context, identity auth.Identity) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]string(nil), m.workspaces[identity]...), nil
}

func (m *fakeMembership) ListMembers(_ context.Context, workspaceID string) ([]auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.membersErr != nil {
		return nil, m.membersErr
	}
	return append([]auth.Identity(nil), m.members[workspaceID]...), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func newTestHub(t *testing.T, membership Membership, mutate ...func(*Config)) *Hub {
	t.Helper()
	return newTestHubWithLogger(t, membership, zaptest.NewLogger(t), mutate...)
}

func newTestHubWithLogger(t *testing.T, membership Membership, logger *zap.Logger, mutate ...func(*Config)) *Hub {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	h := NewHub(cfg, membership, logger)
	t.Cleanup(func() { _ = h.Shutdown(time.Second) })
	return h
}

// admit creates a connection-less client for identity and admits it.
func admit(t *testing.T, h *Hub, identity auth.Identity) *Client {
	t.Helper()
	c := NewClient(nil, h, "test", &auth.Principal{Identity: identity, DisplayName: string(identity) + "-name"})
	_, err := h.Admit(context.Background(), c)
	require.NoError(t, err)
	return c
}

// drain returns every event queued on c without blocking.
func drain(t *testing.T, c *Client) []events.Event {
	t.Helper()
	var out []events.Event
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			ev, err := events.Decode(msg)
			require.NoError(t, err)
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventNames(evs []events.Event) []string {
	names := make([]string, len(evs))
	for i, e := range evs {
		names[i] = e.EventName()
	}
	return names
}

// assertConsistent checks that the registry maps are exact inverses and that
// no identity maps to an empty set.
func assertConsistent(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for identity, conns := range r.byIdentity {
		require.NotEmpty(t, conns, "identity %s maps to an empty set", identity)
		for conn := range conns {
			require.Equal(t, identity, r.byConn[conn], "inverse of %s", conn)
			total++
		}
	}
	require.Len(t, r.byConn, total)
}
