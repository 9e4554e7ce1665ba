package workspace_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/workspace"
)

// countingSource counts lookups that reach the authoritative store.
type countingSource struct {
	*workspace.MemoryStore
	lookups atomic.Int32
}

func (s *countingSource) ListWorkspacesFor(ctx context.Context, identity auth.Identity) ([]string, error) {
	s.lookups.Add(1)
	return s.MemoryStore.ListWorkspacesFor(ctx, identity)
}

func newCache(t *testing.T) (*workspace.CachedMembership, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := workspace.NewMemoryStore()
	_, err := store.PutProject(workspace.Project{ID: "42", OwnerID: "u1"})
	require.NoError(t, err)

	src := &countingSource{MemoryStore: store}
	return workspace.NewCachedMembership(src, rdb, time.Minute, zaptest.NewLogger(t)), src, mr
}

func TestCachedMembershipServesFromRedis(t *testing.T) {
	cache, src, mr := newCache(t)
	ctx := context.Background()

	ids, err := cache.ListWorkspacesFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)

	ids, err = cache.ListWorkspacesFor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)
	assert.Equal(t, int32(1), src.lookups.Load())

	assert.True(t, mr.Exists("teamsync:workspaces:u1"))
	assert.Equal(t, time.Minute, mr.TTL("teamsync:workspaces:u1"))
}

// TestCachedMembershipInvalidate verifies that a membership change is seen on
// the next lookup.
func TestCachedMembershipInvalidate(t *testing.T) {
	cache, src, _ := newCache(t)
	ctx := context.Background()

	ids, err := cache.ListWorkspacesFor(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, ids)

	p, err := src.Project("42")
	require.NoError(t, err)
	_, err = src.JoinProject(p.InviteCode, "u2")
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, "u2"))
	ids, err = cache.ListWorkspacesFor(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)
	assert.Equal(t, int32(2), src.lookups.Load())
}

// TestCachedMembershipFallsBackWhenRedisIsDown verifies that a cache outage
// does not fail admission lookups.
func TestCachedMembershipFallsBackWhenRedisIsDown(t *testing.T) {
	cache, src, mr := newCache(t)
	mr.Close()

	ids, err := cache.ListWorkspacesFor(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)
	assert.Equal(t, int32(1), src.lookups.Load())

	assert.Error(t, cache.Invalidate(context.Background(), "u1"))
}

func TestCachedMembershipDiscardsCorruptEntries(t *testing.T) {
	cache, src, mr := newCache(t)
	require.NoError(t, mr.Set("teamsync:workspaces:u1", "{not json"))

	ids, err := cache.ListWorkspacesFor(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)
	assert.Equal(t, int32(1), src.lookups.Load())
}
