package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pigeonchat/pigeon/internal/bus"
	"github.com/pigeonchat/pigeon/internal/client/status"
	"github.com/pigeonchat/pigeon/internal/model"
	"github.com/pigeonchat/pigeon/internal/realtime"
)

const maxReconnectWait = 30 * time.Second

// Client maintains the realtime websocket connection. Inbound frames
// are published on the bus under the "rt." namespace; connection state
// changes go through the state machine, which publishes under "conn.".
type Client struct {
	wsURL         string
	selfID        string
	bus           *bus.Bus
	machine       *status.Machine
	logger        *zap.Logger
	reconnectWait time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed chan struct{}
	once   sync.Once
}

// DialURL converts a server base URL into the websocket endpoint with
// the bearer token attached.
func DialURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// New creates a socket client. Run must be called to connect.
func New(wsURL, selfID string, b *bus.Bus, m *status.Machine, logger *zap.Logger, reconnectWait time.Duration) *Client {
	return &Client{
		wsURL:         wsURL,
		selfID:        selfID,
		bus:           b,
		machine:       m,
		logger:        logger,
		reconnectWait: reconnectWait,
		closed:        make(chan struct{}),
	}
}

// Run dials the server and services the connection, reconnecting with
// capped backoff until Close is called or the context is cancelled.
func (c *Client) Run(ctx context.Context) {
	wait := c.reconnectWait
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			c.Close()
			return
		default:
		}

		if err := c.machine.Transition(status.Connecting); err != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			c.logger.Warn("websocket dial failed", zap.Error(err))
			c.transition(status.Reconnecting)
			if !c.sleep(ctx, wait) {
				return
			}
			wait = min(wait*2, maxReconnectWait)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.transition(status.Ready)
		wait = c.reconnectWait

		// Cancellation must interrupt a healthy connection too, not
		// just the dial and backoff waits.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		c.readLoop(conn)
		stop()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-c.closed:
			return
		default:
		}
		c.transition(status.Reconnecting)
		if !c.sleep(ctx, wait) {
			return
		}
	}
}

// Close tears the connection down and stops the reconnect loop.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.mu.Unlock()
		c.transition(status.Closed)
	})
}

func (c *Client) transition(to status.State) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("state transition skipped", zap.Error(err))
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.closed:
		return false
	case <-ctx.Done():
		c.Close()
		return false
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			_ = conn.Close()
			return
		}
		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(&frame)
	}
}

func (c *Client) dispatch(frame *realtime.Frame) {
	switch frame.Event {
	case model.EventNewMessage:
		// Ack first. The server's delivery timer is running and a slow
		// local pipeline must not turn a received message into a miss.
		if err := c.writeFrame(model.EventAck, frame.ID, model.Ack{Status: model.AckOK}); err != nil {
			c.logger.Warn("writing ack failed", zap.Error(err))
		}
		var msg model.Message
		if err := json.Unmarshal(frame.Payload, &msg); err != nil || !msg.Valid() {
			c.logger.Warn("dropping malformed message push",
				zap.String("id", frame.ID), zap.Error(err))
			return
		}
		c.bus.Publish("rt.newMessage", msg)

	case model.EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(frame.Payload, &ids); err != nil {
			c.logger.Warn("dropping malformed online list", zap.Error(err))
			return
		}
		c.bus.Publish("rt.onlineUsers", ids)

	case model.EventBeginTyping, model.EventEndTyping:
		var notice model.TypingNotice
		if err := json.Unmarshal(frame.Payload, &notice); err != nil || notice.FromUserID == "" {
			c.logger.Warn("dropping malformed typing notice", zap.Error(err))
			return
		}
		c.bus.Publish("rt."+frame.Event, notice)

	case model.EventMessageDelivered:
		var notice model.DeliveredNotice
		if err := json.Unmarshal(frame.Payload, &notice); err != nil || notice.MessageID == "" {
			c.logger.Warn("dropping malformed delivery notice", zap.Error(err))
			return
		}
		c.bus.Publish("rt.messageDelivered", notice)

	default:
		c.logger.Debug("ignoring unknown event", zap.String("event", frame.Event))
	}
}

// EmitStartTyping tells the server the user started typing to toUserID.
func (c *Client) EmitStartTyping(toUserID string) {
	c.emitTyping(model.EventStartTyping, toUserID)
}

// EmitStopTyping tells the server the user stopped typing to toUserID.
func (c *Client) EmitStopTyping(toUserID string) {
	c.emitTyping(model.EventStopTyping, toUserID)
}

func (c *Client) emitTyping(event, toUserID string) {
	sig := model.TypingSignal{FromUserID: c.selfID, ToUserID: toUserID}
	if err := c.writeFrame(event, "", sig); err != nil {
		c.logger.Debug("typing signal not sent", zap.String("event", event), zap.Error(err))
	}
}

// writeFrame serializes a frame and writes it under the write mutex.
// Offline writes fail silently at the caller's discretion.
func (c *Client) writeFrame(event, id string, payload any) error {
	frame, err := realtime.NewFrame(event, id, payload)
	if err != nil {
		return err
	}
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
