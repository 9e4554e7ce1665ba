package workspace_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/events"
	"github.com/Tyrowin/teamsync/internal/workspace"
)

type roomCall struct {
	workspaceID string
	event       events.Event
	exclude     auth.Identity
}

type identityCall struct {
	identity auth.Identity
	event    events.Event
}

type joinCall struct {
	identity    auth.Identity
	workspaceID string
}

// recordingNotifier captures every announcement the service makes.
type recordingNotifier struct {
	mu    sync.Mutex
	rooms []roomCall
	ids   []identityCall
	joins []joinCall
}

func (n *recordingNotifier) NotifyRoom(workspaceID string, event events.Event, exclude auth.Identity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rooms = append(n.rooms, roomCall{workspaceID, event, exclude})
}

func (n *recordingNotifier) NotifyIdentity(identity auth.Identity, event events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, identityCall{identity, event})
}

func (n *recordingNotifier) JoinWorkspace(identity auth.Identity, workspaceID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.joins = append(n.joins, joinCall{identity, workspaceID})
	return 1
}

type fakeInvalidator struct {
	invalidated []auth.Identity
	err         error
}

func (f *fakeInvalidator) Invalidate(_ context.Context, identities ...auth.Identity) error {
	f.invalidated = append(f.invalidated, identities...)
	return f.err
}

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

var (
	alice = &auth.Principal{Identity: "u1", DisplayName: "alice"}
	bob   = &auth.Principal{Identity: "u2", DisplayName: "bob"}
	carol = &auth.Principal{Identity: "u3", DisplayName: "carol"}
	dave  = &auth.Principal{Identity: "u4", DisplayName: "dave"}
)

// newService builds a store where bob owns project 42 with alice and dave as
// members; task t1 is assigned to alice and was created by bob.
func newService(t *testing.T, opts ...workspace.Option) (*workspace.Service, *workspace.MemoryStore, *recordingNotifier) {
	t.Helper()
	store := workspace.NewMemoryStore()
	for _, p := range []*auth.Principal{alice, bob, carol, dave} {
		require.NoError(t, store.AddUser(auth.Account{ID: p.Identity, Username: p.DisplayName}))
	}
	_, err := store.PutProject(workspace.Project{ID: "42", Name: "Launch", OwnerID: "u2", Members: []auth.Identity{"u1", "u4"}, InviteCode: "CODE42"})
	require.NoError(t, err)
	_, err = store.PutTask(workspace.Task{ID: "t1", ProjectID: "42", Title: "Ship it", AssigneeID: "u1", CreatorID: "u2"})
	require.NoError(t, err)

	n := &recordingNotifier{}
	opts = append([]workspace.Option{workspace.WithClock(func() time.Time { return fixedNow })}, opts...)
	return workspace.NewService(store, n, zaptest.NewLogger(t), opts...), store, n
}

// TestAddCommentNotifiesRoomAndAssignee verifies the two announcements of a
// new comment and that the author is excluded from the room event.
func TestAddCommentNotifiesRoomAndAssignee(t *testing.T) {
	svc, _, n := newService(t)

	c, err := svc.AddComment(context.Background(), bob, "t1", "  Looks good  ")
	require.NoError(t, err)
	assert.Equal(t, "Looks good", c.Content)

	require.Len(t, n.rooms, 1)
	assert.Equal(t, "42", n.rooms[0].workspaceID)
	assert.Equal(t, auth.Identity("u2"), n.rooms[0].exclude)
	added, ok := n.rooms[0].event.(events.CommentAdded)
	require.True(t, ok)
	assert.Equal(t, events.TaskRef{ID: "t1", Title: "Ship it"}, added.Task)
	assert.Equal(t, events.ActorRef{ID: "u2", Username: "bob"}, added.Author)
	assert.Equal(t, "bob", added.Comment.Author.Username)
	assert.Equal(t, fixedNow, added.Timestamp)

	require.Len(t, n.ids, 1)
	assert.Equal(t, auth.Identity("u1"), n.ids[0].identity)
	assert.Equal(t, events.NameCommentOnYourTask, n.ids[0].event.EventName())
}

func TestAddCommentByAssigneeSkipsPersonalNotification(t *testing.T) {
	svc, _, n := newService(t)

	_, err := svc.AddComment(context.Background(), alice, "t1", "on it")
	require.NoError(t, err)
	assert.Len(t, n.rooms, 1)
	assert.Empty(t, n.ids)
}

func TestAddCommentRejections(t *testing.T) {
	svc, _, n := newService(t)
	ctx := context.Background()

	_, err := svc.AddComment(ctx, carol, "t1", "let me in")
	assert.ErrorIs(t, err, workspace.ErrForbidden)

	_, err = svc.AddComment(ctx, bob, "t1", "   ")
	assert.ErrorIs(t, err, workspace.ErrInvalid)

	_, err = svc.AddComment(ctx, bob, "t1", strings.Repeat("x", workspace.MaxCommentLength+1))
	assert.ErrorIs(t, err, workspace.ErrInvalid)

	_, err = svc.AddComment(ctx, bob, "missing", "hello")
	assert.ErrorIs(t, err, workspace.ErrNotFound)

	assert.Empty(t, n.rooms, "failed mutations announce nothing")
}

func TestUpdateCommentOnlyByAuthor(t *testing.T) {
	svc, _, n := newService(t)
	ctx := context.Background()

	c, err := svc.AddComment(ctx, alice, "t1", "draft")
	require.NoError(t, err)

	_, err = svc.UpdateComment(ctx, bob, c.ID, "hijacked")
	assert.ErrorIs(t, err, workspace.ErrForbidden)

	updated, err := svc.UpdateComment(ctx, alice, c.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)

	require.Len(t, n.rooms, 2)
	ev, ok := n.rooms[1].event.(events.CommentUpdated)
	require.True(t, ok)
	assert.Equal(t, "draft", ev.OldContent)
	assert.Equal(t, "final", ev.Comment.Content)
	assert.Equal(t, auth.Identity("u1"), n.rooms[1].exclude)
}

// TestDeleteCommentByOwner verifies that the project owner may delete any
// comment and that other members may not.
func TestDeleteCommentByOwner(t *testing.T) {
	svc, _, n := newService(t)
	ctx := context.Background()

	c, err := svc.AddComment(ctx, alice, "t1", "remove me")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteComment(ctx, dave, c.ID), workspace.ErrForbidden)
	require.NoError(t, svc.DeleteComment(ctx, bob, c.ID))
	assert.ErrorIs(t, svc.DeleteComment(ctx, bob, c.ID), workspace.ErrNotFound)

	require.Len(t, n.rooms, 2)
	ev, ok := n.rooms[1].event.(events.CommentDeleted)
	require.True(t, ok)
	assert.Equal(t, c.ID, ev.CommentID)
	assert.Equal(t, events.ActorRef{ID: "u2", Username: "bob"}, ev.DeletedBy)
	assert.Equal(t, events.ActorRef{ID: "u1", Username: "alice"}, ev.OriginalAuthor)
}

func TestUpdateTaskStatus(t *testing.T) {
	svc, _, n := newService(t)
	ctx := context.Background()

	_, err := svc.UpdateTaskStatus(ctx, dave, "t1", workspace.StatusDone)
	assert.ErrorIs(t, err, workspace.ErrForbidden, "members unrelated to the task may not change it")

	_, err = svc.UpdateTaskStatus(ctx, alice, "t1", "blocked")
	assert.ErrorIs(t, err, workspace.ErrInvalid)

	task, err := svc.UpdateTaskStatus(ctx, alice, "t1", workspace.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, workspace.StatusInProgress, task.Status)

	require.Len(t, n.rooms, 1)
	ev, ok := n.rooms[0].event.(events.TaskStatusChanged)
	require.True(t, ok)
	assert.Equal(t, "todo", ev.OldStatus)
	assert.Equal(t, "in-progress", ev.NewStatus)
	assert.Equal(t, "42", ev.ProjectID)

	_, err = svc.UpdateTaskStatus(ctx, bob, "t1", workspace.StatusInProgress)
	require.NoError(t, err)
	assert.Len(t, n.rooms, 1, "unchanged status announces nothing")
}

// TestJoinProjectSyncsMembership verifies that joining invalidates cached
// membership and joins the identity's live connections.
func TestJoinProjectSyncsMembership(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	svc, store, n := newService(t, workspace.WithCache(inv))
	ctx := context.Background()

	p, err := svc.JoinProject(ctx, carol, "code42")
	require.NoError(t, err)
	assert.True(t, p.HasMember("u3"))

	assert.Equal(t, []auth.Identity{"u3"}, inv.invalidated)
	assert.Equal(t, []joinCall{{"u3", "42"}}, n.joins)

	ids, err := store.ListWorkspacesFor(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)

	_, err = svc.JoinProject(ctx, carol, "code42")
	assert.ErrorIs(t, err, workspace.ErrAlreadyMember)
	_, err = svc.JoinProject(ctx, carol, "")
	assert.ErrorIs(t, err, workspace.ErrInvalid)
}

func TestCreateProjectJoinsOwner(t *testing.T) {
	svc, _, n := newService(t)

	p, err := svc.CreateProject(context.Background(), carol, "Side quest")
	require.NoError(t, err)
	assert.Equal(t, auth.Identity("u3"), p.OwnerID)
	assert.Equal(t, []joinCall{{"u3", p.ID}}, n.joins)
}
