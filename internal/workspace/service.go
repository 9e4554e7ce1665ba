package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/events"
)

// Notifier is the realtime layer as seen by mutation handlers. Notify calls
// never block and never fail the mutation that triggered them.
type Notifier interface {
	NotifyRoom(workspaceID string, event events.Event, exclude auth.Identity)
	NotifyIdentity(identity auth.Identity, event events.Event)
	JoinWorkspace(identity auth.Identity, workspaceID string) int
}

// Invalidator drops cached membership for identities whose workspaces changed.
type Invalidator interface {
	Invalidate(ctx context.Context, identities ...auth.Identity) error
}

// Service commits workspace mutations and then announces them.
type Service struct {
	store    *MemoryStore
	notifier Notifier
	cache    Invalidator
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache invalidates cached membership whenever a membership changes.
func WithCache(cache Invalidator) Option {
	return func(s *Service) { s.cache = cache }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service that commits to store and announces through
// notifier.
func NewService(store *MemoryStore, notifier Notifier, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "workspace")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func actorRef(p *auth.Principal) events.ActorRef {
	return events.ActorRef{ID: string(p.Identity), Username: p.DisplayName}
}

func taskRef(t Task) events.TaskRef {
	return events.TaskRef{ID: t.ID, Title: t.Title}
}

func (s *Service) commentPayload(c Comment) events.Comment {
	return events.Comment{
		ID:        c.ID,
		TaskID:    c.TaskID,
		Author:    events.ActorRef{ID: string(c.AuthorID), Username: s.store.Username(c.AuthorID)},
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > MaxCommentLength {
		return "", fmt.Errorf("%w: content must be between 1 and %d characters", ErrInvalid, MaxCommentLength)
	}
	return content, nil
}

// taskForMember loads a task and its project and checks that identity is a
// member of that project.
func (s *Service) taskForMember(taskID string, identity auth.Identity) (Task, Project, error) {
	task, err := s.store.Task(taskID)
	if err != nil {
		return Task{}, Project{}, err
	}
	project, err := s.store.Project(task.ProjectID)
	if err != nil {
		return Task{}, Project{}, err
	}
	if !project.HasMember(identity) {
		return Task{}, Project{}, fmt.Errorf("%w: not a member of project %q", ErrForbidden, project.ID)
	}
	return task, project, nil
}

// AddComment stores a comment and announces it to the task's project,
// excluding the author. The task's assignee also gets a personal
// notification unless they wrote the comment.
func (s *Service) AddComment(_ context.Context, actor *auth.Principal, taskID, content string) (Comment, error) {
	content, err := validateContent(content)
	if err != nil {
		return Comment{}, err
	}
	task, _, err := s.taskForMember(taskID, actor.Identity)
	if err != nil {
		return Comment{}, err
	}
	comment, err := s.store.AddComment(task.ID, actor.Identity, content)
	if err != nil {
		return Comment{}, err
	}

	now := s.now().UTC()
	payload := s.commentPayload(comment)
	s.notifier.NotifyRoom(task.ProjectID, events.CommentAdded{
		Comment:   payload,
		Task:      taskRef(task),
		Author:    actorRef(actor),
		Timestamp: now,
	}, actor.Identity)

	if task.AssigneeID != "" && task.AssigneeID != actor.Identity {
		s.notifier.NotifyIdentity(task.AssigneeID, events.CommentOnYourTask{
			Comment:   payload,
			Task:      taskRef(task),
			Author:    actorRef(actor),
			Timestamp: now,
		})
	}

	s.logger.Info("comment added",
		zap.String("comment", comment.ID),
		zap.String("task", task.ID),
		zap.String("author", string(actor.Identity)))
	return comment, nil
}

// UpdateComment lets the author change a comment's content.
func (s *Service) UpdateComment(_ context.Context, actor *auth.Principal, commentID, content string) (Comment, error) {
	content, err := validateContent(content)
	if err != nil {
		return Comment{}, err
	}
	existing, err := s.store.Comment(commentID)
	if err != nil {
		return Comment{}, err
	}
	if existing.AuthorID != actor.Identity {
		return Comment{}, fmt.Errorf("%w: only the author can edit a comment", ErrForbidden)
	}
	task, err := s.store.Task(existing.TaskID)
	if err != nil {
		return Comment{}, err
	}

	old, updated, err := s.store.UpdateComment(commentID, content)
	if err != nil {
		return Comment{}, err
	}

	s.notifier.NotifyRoom(task.ProjectID, events.CommentUpdated{
		Comment:    s.commentPayload(updated),
		Task:       taskRef(task),
		UpdatedBy:  actorRef(actor),
		OldContent: old,
		Timestamp:  s.now().UTC(),
	}, actor.Identity)
	return updated, nil
}

// DeleteComment removes a comment. The author and the project owner may
// delete it.
func (s *Service) DeleteComment(_ context.Context, actor *auth.Principal, commentID string) error {
	existing, err := s.store.Comment(commentID)
	if err != nil {
		return err
	}
	task, err := s.store.Task(existing.TaskID)
	if err != nil {
		return err
	}
	project, err := s.store.Project(task.ProjectID)
	if err != nil {
		return err
	}
	if existing.AuthorID != actor.Identity && project.OwnerID != actor.Identity {
		return fmt.Errorf("%w: only the author or project owner can delete a comment", ErrForbidden)
	}

	if _, err := s.store.DeleteComment(commentID); err != nil {
		return err
	}

	s.notifier.NotifyRoom(task.ProjectID, events.CommentDeleted{
		CommentID: commentID,
		Task:      taskRef(task),
		DeletedBy: actorRef(actor),
		OriginalAuthor: events.ActorRef{
			ID:       string(existing.AuthorID),
			Username: s.store.Username(existing.AuthorID),
		},
		Timestamp: s.now().UTC(),
	}, actor.Identity)
	return nil
}

// UpdateTaskStatus moves a task to status. The project owner, the assignee
// and the creator may do so. Setting the current status again is a no-op
// and announces nothing.
func (s *Service) UpdateTaskStatus(_ context.Context, actor *auth.Principal, taskID string, status TaskStatus) (Task, error) {
	if !status.Valid() {
		return Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	task, project, err := s.taskForMember(taskID, actor.Identity)
	if err != nil {
		return Task{}, err
	}
	if actor.Identity != project.OwnerID && actor.Identity != task.AssigneeID && actor.Identity != task.CreatorID {
		return Task{}, fmt.Errorf("%w: not allowed to change this task", ErrForbidden)
	}

	old, updated, err := s.store.SetTaskStatus(task.ID, status)
	if err != nil {
		return Task{}, err
	}
	if old == status {
		return updated, nil
	}

	s.notifier.NotifyRoom(updated.ProjectID, events.TaskStatusChanged{
		Task:      taskRef(updated),
		ProjectID: updated.ProjectID,
		OldStatus: string(old),
		NewStatus: string(status),
		ChangedBy: actorRef(actor),
		Timestamp: s.now().UTC(),
	}, actor.Identity)
	return updated, nil
}

// CreateProject creates a project owned by actor and joins the actor's open
// connections to its room.
func (s *Service) CreateProject(ctx context.Context, actor *auth.Principal, name string) (Project, error) {
	project, err := s.store.CreateProject(name, actor.Identity)
	if err != nil {
		return Project{}, err
	}
	s.membershipChanged(ctx, actor.Identity, project.ID)
	return project, nil
}

// JoinProject adds actor to the project holding inviteCode.
func (s *Service) JoinProject(ctx context.Context, actor *auth.Principal, inviteCode string) (Project, error) {
	if strings.TrimSpace(inviteCode) == "" {
		return Project{}, fmt.Errorf("%w: invite code is required", ErrInvalid)
	}
	project, err := s.store.JoinProject(inviteCode, actor.Identity)
	if err != nil {
		return Project{}, err
	}
	s.membershipChanged(ctx, actor.Identity, project.ID)
	return project, nil
}

func (s *Service) membershipChanged(ctx context.Context, identity auth.Identity, projectID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, identity); err != nil {
			s.logger.Warn("membership cache invalidation failed",
				zap.String("identity", string(identity)), zap.Error(err))
		}
	}
	joined := s.notifier.JoinWorkspace(identity, projectID)
	s.logger.Info("membership changed",
		zap.String("identity", string(identity)),
		zap.String("project", projectID),
		zap.Int("connectionsJoined", joined))
}
