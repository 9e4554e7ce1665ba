// Package server defines shared identifiers, collaborator interfaces and error
// values used across the registry, hub and client code.
package server

import (
	"context"
	"errors"
	"strings"

	"github.com/Tyrowin/teamsync/internal/auth"
)

// ConnID is the transport-assigned identifier of one live connection. It is
// never reused for, or overwritten by, an identity.
type ConnID string

// Membership is the external collaborator that owns workspace membership.
type Membership interface {
	ListWorkspacesFor(ctx context.Context, identity auth.Identity) ([]string, error)
	ListMembers(ctx context.Context, workspaceID string) ([]auth.Identity, error)
}

// Authenticator admits or rejects the credential presented at handshake.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
}

var (
	ErrMembershipFetchFailed = errors.New("membership fetch failed")
	ErrSendBufferFull        = errors.New("send buffer full")
	ErrConnectionClosed      = errors.New("connection closed")
	ErrHubClosed             = errors.New("hub is shutting down")
)

const (
	personalRoomPrefix  = "user_"
	workspaceRoomPrefix = "project_"
)

// PersonalRoom names the room used for one-to-one delivery to identity.
func PersonalRoom(identity auth.Identity) string {
	return personalRoomPrefix + string(identity)
}

// WorkspaceRoom names the room shared by the members of a workspace.
func WorkspaceRoom(workspaceID string) string {
	return workspaceRoomPrefix + workspaceID
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
