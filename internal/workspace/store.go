package workspace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/teamsync/internal/auth"
)

// MemoryStore keeps accounts and workspace data in process memory. It
// resolves token subjects for the auth gate and answers membership queries
// for the hub. Accessors return copies.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[auth.Identity]auth.Account
	projects map[string]*Project
	invites  map[string]string
	tasks    map[string]*Task
	comments map[string]*Comment
	now      func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[auth.Identity]auth.Account),
		projects: make(map[string]*Project),
		invites:  make(map[string]string),
		tasks:    make(map[string]*Task),
		comments: make(map[string]*Comment),
		now:      time.Now,
	}
}

// AddUser inserts or replaces an account.
func (s *MemoryStore) AddUser(account auth.Account) error {
	if account.ID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[account.ID] = account
	return nil
}

// FindByID implements auth.IdentityStore.
func (s *MemoryStore) FindByID(ctx context.Context, subject string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.users[auth.Identity(subject)]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	return &account, nil
}

// PasswordChangedAfter reports whether the password changed after a token
// issued at issuedAt. Token timestamps have second precision.
func (s *MemoryStore) PasswordChangedAfter(account *auth.Account, issuedAt time.Time) bool {
	if account == nil || account.PasswordChangedAt.IsZero() {
		return false
	}
	return issuedAt.Unix() < account.PasswordChangedAt.Unix()
}

// Username returns the display name of identity, or the identity itself when
// the account is unknown.
func (s *MemoryStore) Username(identity auth.Identity) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if account, ok := s.users[identity]; ok && account.Username != "" {
		return account.Username
	}
	return string(identity)
}

// PutProject inserts or replaces a project, adding the owner to its members
// and generating an invite code when none is set.
func (s *MemoryStore) PutProject(p Project) (Project, error) {
	if p.ID == "" || p.OwnerID == "" {
		return Project{}, fmt.Errorf("%w: project id and owner are required", ErrInvalid)
	}
	p = p.clone()
	if !p.HasMember(p.OwnerID) {
		p.Members = append(p.Members, p.OwnerID)
	}
	p.InviteCode = strings.ToUpper(strings.TrimSpace(p.InviteCode))
	if p.InviteCode == "" {
		p.InviteCode = newInviteCode()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if other, taken := s.invites[p.InviteCode]; taken && other != p.ID {
		return Project{}, fmt.Errorf("%w: invite code already in use", ErrInvalid)
	}
	if prev, ok := s.projects[p.ID]; ok {
		delete(s.invites, prev.InviteCode)
	}
	s.projects[p.ID] = &p
	s.invites[p.InviteCode] = p.ID
	return p.clone(), nil
}

// CreateProject creates a project owned by owner with a generated id.
func (s *MemoryStore) CreateProject(name string, owner auth.Identity) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return Project{}, fmt.Errorf("%w: project name must be 1-100 characters", ErrInvalid)
	}
	return s.PutProject(Project{ID: uuid.NewString(), Name: name, OwnerID: owner})
}

// Project returns the project with the given id.
func (s *MemoryStore) Project(id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %q: %w", id, ErrNotFound)
	}
	return p.clone(), nil
}

// JoinProject adds identity to the project with the given invite code.
func (s *MemoryStore) JoinProject(inviteCode string, identity auth.Identity) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.invites[strings.ToUpper(strings.TrimSpace(inviteCode))]
	if !ok {
		return Project{}, fmt.Errorf("invalid invite code: %w", ErrNotFound)
	}
	p := s.projects[id]
	if p.HasMember(identity) {
		return Project{}, ErrAlreadyMember
	}
	p.Members = append(p.Members, identity)
	return p.clone(), nil
}

// ListWorkspacesFor implements the hub's membership collaborator.
func (s *MemoryStore) ListWorkspacesFor(ctx context.Context, identity auth.Identity) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, p := range s.projects {
		if p.HasMember(identity) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListMembers returns the members of a project.
func (s *MemoryStore) ListMembers(ctx context.Context, workspaceID string) ([]auth.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.Project(workspaceID)
	if err != nil {
		return nil, err
	}
	return p.Members, nil
}

// PutTask inserts or replaces a task. Its project must exist.
func (s *MemoryStore) PutTask(t Task) (Task, error) {
	if t.ID == "" {
		return Task{}, fmt.Errorf("%w: task id is required", ErrInvalid)
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if !t.Status.Valid() {
		return Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, t.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[t.ProjectID]; !ok {
		return Task{}, fmt.Errorf("project %q: %w", t.ProjectID, ErrNotFound)
	}
	s.tasks[t.ID] = &t
	return t, nil
}

// Task returns the task with the given id.
func (s *MemoryStore) Task(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return *t, nil
}

// SetTaskStatus updates a task's status and returns the previous one.
func (s *MemoryStore) SetTaskStatus(id string, status TaskStatus) (TaskStatus, Task, error) {
	if !status.Valid() {
		return "", Task{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return "", Task{}, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	old := t.Status
	t.Status = status
	return old, *t, nil
}

// AddComment stores a new comment on a task.
func (s *MemoryStore) AddComment(taskID string, author auth.Identity, content string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return Comment{}, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	now := s.now().UTC()
	c := &Comment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AuthorID:  author,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.comments[c.ID] = c
	return *c, nil
}

// Comment returns the comment with the given id.
func (s *MemoryStore) Comment(id string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.comments[id]
	if !ok {
		return Comment{}, fmt.Errorf("comment %q: %w", id, ErrNotFound)
	}
	return *c, nil
}

// UpdateComment replaces a comment's content and returns the old content.
func (s *MemoryStore) UpdateComment(id, content string) (string, Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return "", Comment{}, fmt.Errorf("comment %q: %w", id, ErrNotFound)
	}
	old := c.Content
	c.Content = content
	c.UpdatedAt = s.now().UTC()
	return old, *c, nil
}

// DeleteComment removes a comment and returns it.
func (s *MemoryStore) DeleteComment(id string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return Comment{}, fmt.Errorf("comment %q: %w", id, ErrNotFound)
	}
	delete(s.comments, id)
	return *c, nil
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
