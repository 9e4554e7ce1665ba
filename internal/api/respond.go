package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/workspace"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// fail maps workspace errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workspace.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, workspace.ErrInvalid), errors.Is(err, workspace.ErrAlreadyMember):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorBody{Status: false, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("write response", zap.Error(err))
	}
}

type projectJSON struct {
	ID         string   `json:"_id"`
	Name       string   `json:"name"`
	Owner      string   `json:"owner"`
	Members    []string `json:"members"`
	InviteCode string   `json:"inviteCode"`
}

func projectResponse(p workspace.Project) projectJSON {
	members := make([]string, len(p.Members))
	for i, m := range p.Members {
		members[i] = string(m)
	}
	return projectJSON{ID: p.ID, Name: p.Name, Owner: string(p.OwnerID), Members: members, InviteCode: p.InviteCode}
}

type taskJSON struct {
	ID        string `json:"_id"`
	Project   string `json:"project"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Assignee  string `json:"assignee,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
}

func taskResponse(t workspace.Task) taskJSON {
	return taskJSON{
		ID:        t.ID,
		Project:   t.ProjectID,
		Title:     t.Title,
		Status:    string(t.Status),
		Assignee:  string(t.AssigneeID),
		CreatedBy: string(t.CreatorID),
	}
}

type commentJSON struct {
	ID        string    `json:"_id"`
	Task      string    `json:"task"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func commentResponse(c workspace.Comment) commentJSON {
	return commentJSON{
		ID:        c.ID,
		Task:      c.TaskID,
		Author:    string(c.AuthorID),
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
