package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pigeonchat/pigeon/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected means the target user has no presence entry. This
	// is the expected recipient-offline branch, not a failure.
	ErrNotConnected = errors.New("user not connected")
	// ErrAckTimeout means the acknowledgement round-trip did not
	// complete within the bounded wait.
	ErrAckTimeout = errors.New("acknowledgement timed out")
)

// Hub is the delivery channel: it owns the presence registry and emits
// typed events to specific users or to everyone, with an optional
// acknowledgement round-trip.
type Hub struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHub creates a hub with an empty presence registry.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{registry: NewRegistry(), logger: logger}
}

// OnlineUsers returns the current online-user list.
func (h *Hub) OnlineUsers() []string {
	return h.registry.Snapshot()
}

// Serve registers userID's connection, pumps it until the peer goes
// away, then unregisters. Each register/unregister broadcasts the full
// online-user list to every connection, the acting user's included.
func (h *Hub) Serve(userID string, ws wire) {
	c := newConn(userID, ws, h.logger)
	if prev := h.registry.Register(userID, c); prev != nil {
		// Last-connected-wins: drop the stale connection.
		prev.close()
	}
	h.logger.Info("user connected", zap.String("user_id", userID))
	h.Broadcast(model.EventOnlineUsers, h.registry.Snapshot())

	go c.writePump()
	h.readPump(c)

	c.close()
	if h.registry.Unregister(userID, c) {
		h.logger.Info("user disconnected", zap.String("user_id", userID))
		h.Broadcast(model.EventOnlineUsers, h.registry.Snapshot())
	}
}

// readPump dispatches inbound frames until the connection errors.
func (h *Hub) readPump(c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.logger.Warn("malformed frame", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}
		switch f.Event {
		case model.EventAck:
			c.resolveAck(f.ID, f.Payload)
		case model.EventStartTyping, model.EventStopTyping:
			h.relayTyping(c.userID, f.Event, f.Payload)
		default:
			h.logger.Warn("unknown event", zap.String("user_id", c.userID), zap.String("event", f.Event))
		}
	}
}

// EmitTo sends an event to one user. If the user has no presence entry
// the emission is silently dropped: logged, not retried, not queued.
func (h *Hub) EmitTo(userID, event string, payload any) {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		h.logger.Debug("emit dropped, user offline", zap.String("user_id", userID), zap.String("event", event))
		return
	}
	f, err := NewFrame(event, "", payload)
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	data, err := f.Encode()
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(data)
}

// EmitToWithAck sends an ack-required event and suspends the calling
// goroutine until the target acknowledges or the timeout elapses. Other
// connections are unaffected. The wait always resolves; it is not
// cancellable beyond ctx.
func (h *Hub) EmitToWithAck(ctx context.Context, userID, event string, payload any, timeout time.Duration) (model.Ack, error) {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		return model.Ack{}, ErrNotConnected
	}

	id := uuid.New().String()
	f, err := NewFrame(event, id, payload)
	if err != nil {
		return model.Ack{}, err
	}
	data, err := f.Encode()
	if err != nil {
		return model.Ack{}, err
	}

	ch := c.addPending(id)
	defer c.removePending(id)
	c.enqueue(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		return ack, nil
	case <-timer.C:
		return model.Ack{}, ErrAckTimeout
	case <-c.closed:
		return model.Ack{}, ErrNotConnected
	case <-ctx.Done():
		return model.Ack{}, ctx.Err()
	}
}

// Broadcast sends an event to every connected user.
func (h *Hub) Broadcast(event string, payload any) {
	f, err := NewFrame(event, "", payload)
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	data, err := f.Encode()
	if err != nil {
		h.logger.Error("encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	for _, c := range h.registry.All() {
		c.enqueue(data)
	}
}
