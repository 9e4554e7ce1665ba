// Package testutil provides common utilities and helper functions for testing
// the realtime server.
//
// It contains helpers shared across package tests for issuing credentials,
// dialing authenticated WebSocket connections, reading typed events and
// making HTTP requests, to reduce code duplication in test files.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/events"
)

const (
	// Secret signs every token issued by IssueToken.
	Secret = "test-secret"
	// Origin is sent on every dial and is in the default allow-list.
	Origin = "http://localhost:8080"
	// Wait bounds how long helpers block for an expected event.
	Wait = 2 * time.Second
)

// IssueToken returns a valid token for subject signed with Secret.
func IssueToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := auth.NewHMACVerifier(Secret).Issue(subject, time.Hour)
	require.NoError(t, err)
	return token
}

// WebSocketURL converts an httptest server URL into its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// Dial opens a WebSocket connection with the test origin. The connection is
// closed when the test ends.
func Dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", Origin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendAuth writes the handshake frame carrying token.
func SendAuth(conn *websocket.Conn, token string) error {
	return conn.WriteJSON(events.ClientFrame{Type: events.FrameAuth, Token: token})
}

// Connect dials url, authenticates as subject and waits for the connected
// acknowledgement.
func Connect(t *testing.T, url, subject string) (*websocket.Conn, *events.Connected) {
	t.Helper()
	conn := Dial(t, url)
	require.NoError(t, SendAuth(conn, IssueToken(t, subject)))

	ev := ExpectEvent(t, conn, events.NameConnected)
	ack, ok := ev.(*events.Connected)
	require.True(t, ok, "unexpected ack type %T", ev)
	return conn, ack
}

// ReadEvent reads and decodes the next event within Wait.
func ReadEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(Wait)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	ev, err := events.Decode(raw)
	require.NoError(t, err, "decode %s", raw)
	return ev
}

// ExpectEvent reads the next event and requires it to be called name.
func ExpectEvent(t *testing.T, conn *websocket.Conn, name string) events.Event {
	t.Helper()
	ev := ReadEvent(t, conn)
	require.Equal(t, name, ev.EventName())
	return ev
}

// ExpectNoEvent requires that nothing arrives on conn within wait. A timed
// out gorilla connection cannot be read again, so call it last.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %s", raw)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr, "expected a read timeout, got %v", err)
	require.True(t, netErr.Timeout())
}

// SendFrame writes a client frame as JSON.
func SendFrame(conn *websocket.Conn, frame events.ClientFrame) error {
	return conn.WriteJSON(frame)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request with an optional JSON
// body and bearer token. It fails the test if the request cannot be made.
func MakeRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// DecodeJSON decodes a response body into a value of type T.
func DecodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	require.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	require.Equal(t, expected, resp.Header.Get("Content-Type"))
}
