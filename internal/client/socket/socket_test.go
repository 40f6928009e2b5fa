package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pigeonchat/pigeon/internal/bus"
	"github.com/pigeonchat/pigeon/internal/client/status"
	"github.com/pigeonchat/pigeon/internal/model"
	"github.com/pigeonchat/pigeon/internal/realtime"
)

// testServer upgrades one websocket connection and hands it to the test.
func testServer(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)

	wsURL, err := DialURL(srv.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}
	return wsURL, conns
}

func startClient(t *testing.T, wsURL string, b *bus.Bus) *Client {
	t.Helper()
	c := New(wsURL, "self", b, status.NewMachine(b), zap.NewNop(), 50*time.Millisecond)
	go c.Run(context.Background())
	t.Cleanup(c.Close)
	return c
}

func serverFrame(t *testing.T, event, id string, payload any) []byte {
	t.Helper()
	f, err := realtime.NewFrame(event, id, payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := f.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func readFrame(t *testing.T, conn *websocket.Conn) *realtime.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var f realtime.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	return &f
}

func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestDialURL(t *testing.T) {
	got, err := DialURL("http://127.0.0.1:8484", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ws://127.0.0.1:8484/ws?token=abc" {
		t.Errorf("DialURL = %q", got)
	}
	got, err = DialURL("https://pigeon.example/", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "wss://pigeon.example/ws?") {
		t.Errorf("DialURL = %q, want wss scheme", got)
	}
}

func TestNewMessageAckedAndPublished(t *testing.T) {
	wsURL, conns := testServer(t)
	b := bus.New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	startClient(t, wsURL, b)
	conn := <-conns

	msg := model.Message{ID: "m1", SenderID: "other", ReceiverID: "self", Text: "hi", CreatedAt: 1000}
	if err := conn.WriteMessage(websocket.TextMessage, serverFrame(t, model.EventNewMessage, "corr-1", msg)); err != nil {
		t.Fatal(err)
	}

	ack := readFrame(t, conn)
	if ack.Event != model.EventAck || ack.ID != "corr-1" {
		t.Errorf("ack frame = %+v, want ack with id corr-1", ack)
	}
	var ackPayload model.Ack
	if err := json.Unmarshal(ack.Payload, &ackPayload); err != nil || ackPayload.Status != model.AckOK {
		t.Errorf("ack payload = %s, want status ok", ack.Payload)
	}

	evt := waitEvent(t, ch, "rt.newMessage")
	got, ok := evt.Payload.(model.Message)
	if !ok || got.ID != "m1" {
		t.Errorf("payload = %#v, want message m1", evt.Payload)
	}
}

func TestMalformedPushAckedButDropped(t *testing.T) {
	wsURL, conns := testServer(t)
	b := bus.New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	startClient(t, wsURL, b)
	conn := <-conns

	// Missing sender and receiver IDs.
	bad := model.Message{Text: "??", CreatedAt: 1000}
	if err := conn.WriteMessage(websocket.TextMessage, serverFrame(t, model.EventNewMessage, "corr-2", bad)); err != nil {
		t.Fatal(err)
	}

	// The ack still goes out; the mandatory protocol step does not
	// depend on the payload being usable.
	ack := readFrame(t, conn)
	if ack.Event != model.EventAck || ack.ID != "corr-2" {
		t.Errorf("ack frame = %+v, want ack with id corr-2", ack)
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected bus event %s for malformed push", evt.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPresenceAndTypingPublished(t *testing.T) {
	wsURL, conns := testServer(t)
	b := bus.New()
	ch, unsub := b.Subscribe("rt.", 10)
	defer unsub()

	startClient(t, wsURL, b)
	conn := <-conns

	if err := conn.WriteMessage(websocket.TextMessage, serverFrame(t, model.EventOnlineUsers, "", []string{"self", "other"})); err != nil {
		t.Fatal(err)
	}
	evt := waitEvent(t, ch, "rt.onlineUsers")
	if ids, ok := evt.Payload.([]string); !ok || len(ids) != 2 {
		t.Errorf("payload = %#v, want two ids", evt.Payload)
	}

	if err := conn.WriteMessage(websocket.TextMessage, serverFrame(t, model.EventBeginTyping, "", model.TypingNotice{FromUserID: "other"})); err != nil {
		t.Fatal(err)
	}
	evt = waitEvent(t, ch, "rt.beginTyping")
	if n, ok := evt.Payload.(model.TypingNotice); !ok || n.FromUserID != "other" {
		t.Errorf("payload = %#v, want notice from other", evt.Payload)
	}
}

func TestContextCancelStopsConnectedRun(t *testing.T) {
	wsURL, conns := testServer(t)
	b := bus.New()
	connCh, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := New(wsURL, "self", b, status.NewMachine(b), zap.NewNop(), 50*time.Millisecond)
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(c.Close)
	<-conns

	// Cancel only once the connection is live: the read loop, not the
	// dial or backoff wait, must observe it.
	for {
		evt := waitEvent(t, connCh, "conn.status_changed")
		if change, ok := evt.Payload.(status.StatusChange); ok && change.To == status.Ready {
			break
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancel while connected")
	}
}

func TestTypingEmitsSignal(t *testing.T) {
	wsURL, conns := testServer(t)
	b := bus.New()
	connCh, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	c := startClient(t, wsURL, b)
	conn := <-conns

	// Wait for READY so the write lands on a live connection.
	for {
		evt := waitEvent(t, connCh, "conn.status_changed")
		if change, ok := evt.Payload.(status.StatusChange); ok && change.To == status.Ready {
			break
		}
	}

	c.EmitStartTyping("other")
	f := readFrame(t, conn)
	if f.Event != model.EventStartTyping {
		t.Fatalf("event = %q, want startTyping", f.Event)
	}
	var sig model.TypingSignal
	if err := json.Unmarshal(f.Payload, &sig); err != nil {
		t.Fatal(err)
	}
	if sig.FromUserID != "self" || sig.ToUserID != "other" {
		t.Errorf("signal = %+v, want self -> other", sig)
	}
}
