package realtime

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pigeonchat/pigeon/internal/model"
	"go.uber.org/zap"
)

// wire is the subset of *websocket.Conn the hub depends on. Tests swap
// in an in-memory implementation.
type wire interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const sendBuffer = 64

// Conn is one user's active realtime connection: a write pump draining a
// buffered send channel plus the pending-ack table for ack-required pushes.
type Conn struct {
	userID string
	ws     wire
	send   chan []byte
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]chan model.Ack

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(userID string, ws wire, logger *zap.Logger) *Conn {
	return &Conn{
		userID:  userID,
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		logger:  logger,
		pending: make(map[string]chan model.Ack),
		closed:  make(chan struct{}),
	}
}

// UserID returns the identity this connection belongs to.
func (c *Conn) UserID() string { return c.userID }

// enqueue queues frame bytes for the write pump. Frames to a slow
// consumer are dropped rather than blocking the caller.
func (c *Conn) enqueue(data []byte) {
	select {
	case <-c.closed:
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping frame", zap.String("user_id", c.userID))
	}
}

// writePump drains the send channel onto the socket until close.
func (c *Conn) writePump() {
	for {
		select {
		case data := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// addPending registers an ack waiter for the given correlation ID.
func (c *Conn) addPending(id string) chan model.Ack {
	ch := make(chan model.Ack, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// removePending drops the waiter for id.
func (c *Conn) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolveAck routes an inbound ack frame to its waiter, if still present.
func (c *Conn) resolveAck(id string, payload json.RawMessage) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		// Late ack after timeout; nothing is waiting.
		return
	}
	var ack model.Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		c.logger.Warn("malformed ack payload", zap.String("user_id", c.userID), zap.Error(err))
	}
	ch <- ack
}

// close shuts the connection down once. Pending ack waiters observe the
// closed channel and resolve as not-connected.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
