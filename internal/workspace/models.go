// Package workspace holds the projects, tasks and comments collaborators
// share, answers membership questions for the realtime layer, and commits
// mutations before announcing them.
package workspace

import (
	"errors"
	"slices"
	"time"

	"github.com/Tyrowin/teamsync/internal/auth"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalid       = errors.New("invalid input")
	ErrAlreadyMember = errors.New("already a member of this project")
)

// MaxCommentLength bounds comment content, in characters.
const MaxCommentLength = 1000

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusDone       TaskStatus = "done"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Project is a workspace. The owner is always a member.
type Project struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	OwnerID    auth.Identity   `yaml:"owner"`
	Members    []auth.Identity `yaml:"members"`
	InviteCode string          `yaml:"inviteCode"`
}

// HasMember reports whether identity belongs to the project.
func (p Project) HasMember(identity auth.Identity) bool {
	return slices.Contains(p.Members, identity)
}

func (p Project) clone() Project {
	p.Members = slices.Clone(p.Members)
	return p
}

// Task is a unit of work inside a project.
type Task struct {
	ID         string        `yaml:"id"`
	ProjectID  string        `yaml:"project"`
	Title      string        `yaml:"title"`
	Status     TaskStatus    `yaml:"status"`
	AssigneeID auth.Identity `yaml:"assignee"`
	CreatorID  auth.Identity `yaml:"creator"`
}

// Comment is a note left on a task.
type Comment struct {
	ID        string
	TaskID    string
	AuthorID  auth.Identity
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
