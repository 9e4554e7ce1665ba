// Package api exposes workspace mutations over HTTP. Every route
// authenticates its bearer token through the same gate as the realtime
// handshake, and every successful mutation is announced to collaborators.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/workspace"
)

// Authenticator resolves a bearer token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

// Handler routes REST requests to the workspace service.
type Handler struct {
	gate   Authenticator
	svc    *workspace.Service
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewHandler registers the REST routes on a fresh mux.
func NewHandler(gate Authenticator, svc *workspace.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		gate:   gate,
		svc:    svc,
		logger: logger.With(zap.String("component", "api")),
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /api/projects", h.authenticated(h.createProject))
	h.mux.HandleFunc("POST /api/projects/join", h.authenticated(h.joinProject))
	h.mux.HandleFunc("POST /api/tasks/{taskID}/comments", h.authenticated(h.addComment))
	h.mux.HandleFunc("PATCH /api/tasks/{taskID}/status", h.authenticated(h.updateTaskStatus))
	h.mux.HandleFunc("PUT /api/comments/{commentID}", h.authenticated(h.updateComment))
	h.mux.HandleFunc("DELETE /api/comments/{commentID}", h.authenticated(h.deleteComment))
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, actor *auth.Principal)

func (h *Handler) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			token = ""
		}
		actor, err := h.gate.Authenticate(r.Context(), token)
		if err != nil {
			var rej *auth.RejectError
			if errors.As(err, &rej) {
				h.writeError(w, http.StatusUnauthorized, rej.Message())
				return
			}
			h.logger.Error("authenticate request", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "Something went wrong")
			return
		}
		next(w, r, actor)
	}
}

type contentRequest struct {
	Content string `json:"content"`
}

type statusRequest struct {
	Status workspace.TaskStatus `json:"status"`
}

type joinRequest struct {
	InviteCode string `json:"inviteCode"`
}

type projectRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req projectRequest
	if !h.decode(w, r, &req) {
		return
	}
	project, err := h.svc.CreateProject(r.Context(), actor, req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, projectResponse(project))
}

func (h *Handler) joinProject(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req joinRequest
	if !h.decode(w, r, &req) {
		return
	}
	project, err := h.svc.JoinProject(r.Context(), actor, req.InviteCode)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, projectResponse(project))
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req contentRequest
	if !h.decode(w, r, &req) {
		return
	}
	comment, err := h.svc.AddComment(r.Context(), actor, r.PathValue("taskID"), req.Content)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, commentResponse(comment))
}

func (h *Handler) updateComment(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req contentRequest
	if !h.decode(w, r, &req) {
		return
	}
	comment, err := h.svc.UpdateComment(r.Context(), actor, r.PathValue("commentID"), req.Content)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, commentResponse(comment))
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	if err := h.svc.DeleteComment(r.Context(), actor, r.PathValue("commentID")); err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": "Comment deleted"})
}

func (h *Handler) updateTaskStatus(w http.ResponseWriter, r *http.Request, actor *auth.Principal) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	task, err := h.svc.UpdateTaskStatus(r.Context(), actor, r.PathValue("taskID"), req.Status)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, taskResponse(task))
}
