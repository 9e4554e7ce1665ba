// Package events defines the named payloads pushed to realtime clients, the
// envelope they travel in, and the frames clients send back.
//
// Every outbound event is a concrete type implementing Event; the event name
// is part of the type, so an envelope can be decoded back into the matching
// schema and validated.
package events

import "time"

// Outbound event names.
const (
	NameConnected         = "connected"
	NameConnectError      = "connect_error"
	NameCommentAdded      = "commentAdded"
	NameCommentUpdated    = "commentUpdated"
	NameCommentDeleted    = "commentDeleted"
	NameCommentOnYourTask = "commentOnYourTask"
	NameTaskStatusChanged = "taskStatusChanged"
	NameUserTyping        = "userTyping"
	NameUserStoppedTyping = "userStoppedTyping"
)

// Event is an outbound payload with a fixed name.
type Event interface {
	EventName() string
}

// TaskRef identifies the task an event is about.
type TaskRef struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
}

// ActorRef identifies the user who caused an event.
type ActorRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Comment is the comment body carried by comment events.
type Comment struct {
	ID        string    `json:"_id"`
	TaskID    string    `json:"task"`
	Author    ActorRef  `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Connected acknowledges a completed admission.
type Connected struct {
	ConnectionID string   `json:"connectionId"`
	Identity     string   `json:"identity"`
	Username     string   `json:"username"`
	Rooms        []string `json:"rooms"`
}

// ConnectError is sent before the server closes a rejected handshake.
type ConnectError struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type CommentAdded struct {
	Comment   Comment   `json:"comment"`
	Task      TaskRef   `json:"task"`
	Author    ActorRef  `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

type CommentUpdated struct {
	Comment    Comment   `json:"comment"`
	Task       TaskRef   `json:"task"`
	UpdatedBy  ActorRef  `json:"updatedBy"`
	OldContent string    `json:"oldContent"`
	Timestamp  time.Time `json:"timestamp"`
}

type CommentDeleted struct {
	CommentID      string    `json:"commentId"`
	Task           TaskRef   `json:"task"`
	DeletedBy      ActorRef  `json:"deletedBy"`
	OriginalAuthor ActorRef  `json:"originalAuthor"`
	Timestamp      time.Time `json:"timestamp"`
}

// CommentOnYourTask is sent only to the assignee of the commented task.
type CommentOnYourTask struct {
	Comment   Comment   `json:"comment"`
	Task      TaskRef   `json:"task"`
	Author    ActorRef  `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

type TaskStatusChanged struct {
	Task      TaskRef   `json:"task"`
	ProjectID string    `json:"projectId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	ChangedBy ActorRef  `json:"changedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTyping struct {
	ProjectID string   `json:"projectId"`
	TaskID    string   `json:"taskId,omitempty"`
	User      ActorRef `json:"user"`
}

type UserStoppedTyping struct {
	ProjectID string   `json:"projectId"`
	TaskID    string   `json:"taskId,omitempty"`
	User      ActorRef `json:"user"`
}

func (Connected) EventName() string         { return NameConnected }
func (ConnectError) EventName() string      { return NameConnectError }
func (CommentAdded) EventName() string      { return NameCommentAdded }
func (CommentUpdated) EventName() string    { return NameCommentUpdated }
func (CommentDeleted) EventName() string    { return NameCommentDeleted }
func (CommentOnYourTask) EventName() string { return NameCommentOnYourTask }
func (TaskStatusChanged) EventName() string { return NameTaskStatusChanged }
func (UserTyping) EventName() string        { return NameUserTyping }
func (UserStoppedTyping) EventName() string { return NameUserStoppedTyping }
