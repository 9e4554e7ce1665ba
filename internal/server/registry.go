package server

import (
	"sort"
	"sync"

	"github.com/Tyrowin/teamsync/internal/auth"
)

// Registry maps identities to their live connections and back. The two maps
// are exact inverses and an identity never maps to an empty set.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[auth.Identity]map[ConnID]struct{}
	byConn     map[ConnID]auth.Identity
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[auth.Identity]map[ConnID]struct{}),
		byConn:     make(map[ConnID]auth.Identity),
	}
}

// Register associates conn with identity. Registering the same pair twice is
// a no-op; registering conn under a different identity moves it.
func (r *Registry) Register(identity auth.Identity, conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[conn]; ok {
		if owner == identity {
			return
		}
		r.removeLocked(owner, conn)
	}

	conns, ok := r.byIdentity[identity]
	if !ok {
		conns = make(map[ConnID]struct{})
		r.byIdentity[identity] = conns
	}
	conns[conn] = struct{}{}
	r.byConn[conn] = identity
}

// Unregister removes conn and returns the identity that owned it. offline is
// true when conn was that identity's last connection. Unknown connections are
// ignored.
func (r *Registry) Unregister(conn ConnID) (identity auth.Identity, offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.byConn[conn]
	if !ok {
		return "", false
	}
	return owner, r.removeLocked(owner, conn)
}

func (r *Registry) removeLocked(identity auth.Identity, conn ConnID) bool {
	delete(r.byConn, conn)
	conns := r.byIdentity[identity]
	delete(conns, conn)
	if len(conns) == 0 {
		delete(r.byIdentity, identity)
		return true
	}
	return false
}

// IsOnline reports whether identity has at least one live connection.
func (r *Registry) IsOnline(identity auth.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identity]) > 0
}

// ConnectionsFor returns a sorted snapshot of identity's connections.
func (r *Registry) ConnectionsFor(identity auth.Identity) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byIdentity[identity]
	out := make([]ConnID, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IdentityOf returns the identity owning conn.
func (r *Registry) IdentityOf(conn ConnID) (auth.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.byConn[conn]
	return identity, ok
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// OnlineCount returns the number of identities with a live connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
