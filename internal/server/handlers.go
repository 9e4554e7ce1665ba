// Package server exposes HTTP handlers, including the authenticated WebSocket
// handshake and the health check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/events"
)

// CloseAuthFailed is the close code sent after a rejected handshake.
const CloseAuthFailed = 4401

// NewWebSocketHandler upgrades GET /ws requests, authenticates the first frame
// the client sends, admits the connection and starts its pumps. Nothing is
// registered for a connection that fails authentication.
func NewWebSocketHandler(hub *Hub, gate Authenticator) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     hub.origins.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Debug("websocket upgrade failed", zap.String("addr", r.RemoteAddr), zap.Error(err))
			return
		}

		principal, err := hub.authenticate(r.Context(), conn, gate)
		if err != nil {
			hub.rejectHandshake(conn, r.RemoteAddr, err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, principal)
		rooms, err := hub.Admit(r.Context(), client)
		if err != nil {
			client.logger.Info("admission refused", zap.Error(err))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(hub.cfg.Heartbeat.WriteWait))
			client.closeConnection()
			return
		}

		ack := events.Connected{
			ConnectionID: string(client.id),
			Identity:     string(principal.Identity),
			Username:     principal.DisplayName,
			Rooms:        rooms,
		}
		if err := hub.sendDirect(client, ack); err != nil {
			client.logger.Info("could not acknowledge admission", zap.Error(err))
			hub.Disconnect(client)
			client.closeConnection()
			return
		}

		if err := hub.startPumps(client); err != nil {
			client.logger.Info("pumps not started", zap.Error(err))
			hub.Disconnect(client)
			client.closeConnection()
		}
	}
}

// authenticate reads the auth frame within the handshake timeout and passes
// its token to the gate.
func (h *Hub) authenticate(ctx context.Context, conn *websocket.Conn, gate Authenticator) (*auth.Principal, error) {
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(h.cfg.Auth.HandshakeTimeout)); err != nil {
		return nil, err
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, auth.Reject(auth.NoCredential, fmt.Errorf("read auth frame: %w", err))
	}
	frame, err := events.ParseFrame(raw)
	if err != nil {
		return nil, auth.Reject(auth.NoCredential, err)
	}
	if frame.Type != events.FrameAuth {
		return nil, auth.Reject(auth.NoCredential, fmt.Errorf("expected %q frame, got %q", events.FrameAuth, frame.Type))
	}

	principal, err := gate.Authenticate(ctx, frame.Token)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	return principal, nil
}

// rejectHandshake tells the client why it was rejected and closes the socket.
func (h *Hub) rejectHandshake(conn *websocket.Conn, addr string, err error) {
	payload := events.ConnectError{Message: "Authentication error: Something went wrong", Kind: "Internal"}

	var rej *auth.RejectError
	if errors.As(err, &rej) {
		payload = events.ConnectError{Message: rej.Message(), Kind: rej.Kind.String()}
		h.logger.Info("handshake rejected", zap.String("addr", addr), zap.Stringer("kind", rej.Kind), zap.Error(err))
	} else {
		h.logger.Error("handshake failed", zap.String("addr", addr), zap.Error(err))
	}

	deadline := time.Now().Add(h.cfg.Heartbeat.WriteWait)
	if msg, encErr := events.Encode(payload); encErr == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, msg)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseAuthFailed, "authentication failed"), deadline)
	if cerr := conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
		h.logger.Debug("close rejected connection", zap.Error(cerr))
	}
}

// sendDirect writes e on a connection whose pumps have not started yet.
func (h *Hub) sendDirect(c *Client, e events.Event) error {
	msg, err := events.Encode(e)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.cfg.Heartbeat.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// HealthStatus is the body served by the health check.
type HealthStatus struct {
	Status            bool      `json:"status"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
	SocketConnections int       `json:"socketConnections"`
}

// NewHealthHandler reports liveness and the number of admitted connections.
func NewHealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := HealthStatus{
			Status:            true,
			Message:           "Health is OK",
			Timestamp:         time.Now().UTC(),
			SocketConnections: hub.ConnectionCount(),
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			hub.logger.Warn("write health response", zap.Error(err))
		}
	}
}
