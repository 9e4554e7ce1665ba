// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/teamsync/internal/auth"
	"github.com/Tyrowin/teamsync/internal/events"
)

// Client is one authenticated WebSocket connection. It owns a buffered send
// queue drained by writePump; readPump handles inbound frames and drives the
// disconnect path when the transport goes away.
type Client struct {
	id        ConnID
	principal *auth.Principal
	conn      *websocket.Conn
	hub       *Hub
	addr      string
	send      chan []byte
	limiter   *rate.Limiter
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a Client for an authenticated principal. conn may be nil
// in tests that only observe the send queue.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, principal *auth.Principal) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := ConnID(uuid.NewString())
	every := cfg.RateLimit.RefillInterval / time.Duration(cfg.RateLimit.Burst)

	return &Client{
		id:        id,
		principal: principal,
		conn:      conn,
		hub:       hub,
		addr:      addr,
		send:      make(chan []byte, cfg.SendBufferSize),
		limiter:   rate.NewLimiter(rate.Every(every), cfg.RateLimit.Burst),
		logger: hub.logger.With(
			zap.String("connID", string(id)),
			zap.String("identity", string(principal.Identity)),
			zap.String("addr", addr),
		),
	}
}

// ID returns the transport-assigned connection identifier.
func (c *Client) ID() ConnID { return c.id }

// Identity returns the identity the connection authenticated as.
func (c *Client) Identity() auth.Identity { return c.principal.Identity }

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// enqueue hands msg to the write pump without blocking.
func (c *Client) enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// closeSend closes the send queue once; writePump then sends a close frame.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	timeout := c.hub.cfg.Heartbeat.PongTimeout
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		c.logger.Warn("set initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(timeout))
	})
}

// handleReadError logs the reason a read loop ended.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("message exceeded maximum size", zap.Int64("limit", c.hub.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Info("websocket read ended", zap.Error(err))
	}
}

// processMessage handles one inbound frame and reports whether it was acted on.
func (c *Client) processMessage(raw []byte) bool {
	frame, err := events.ParseFrame(raw)
	if err != nil {
		c.logger.Debug("ignoring invalid frame", zap.Error(err))
		return false
	}

	switch frame.Type {
	case events.FrameTyping, events.FrameStopTyping:
		return c.hub.relayTyping(c, frame)
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.logger.Info("rate limit exceeded; discarding message",
				zap.Int("burst", c.hub.cfg.RateLimit.Burst),
				zap.Duration("interval", c.hub.cfg.RateLimit.RefillInterval))
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.Heartbeat.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the underlying transport, ignoring expected errors.
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("close connection", zap.Error(err))
	}
}

// handleMessage writes one queued frame, or a close frame once the queue is
// closed, and returns false if the pump should stop.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.Heartbeat.WriteWait)); err != nil {
		c.logger.Warn("set write deadline", zap.Error(err))
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("write close message", zap.Error(err))
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("write message", zap.Error(err))
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.Heartbeat.WriteWait)); err != nil {
		c.logger.Warn("set write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Debug("write ping", zap.Error(err))
		return false
	}
	return true
}
