package model

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pigeonchat/pigeon/internal/bus"
	"github.com/pigeonchat/pigeon/internal/client/api"
	"github.com/pigeonchat/pigeon/internal/client/engine"
	"github.com/pigeonchat/pigeon/internal/client/status"
	core "github.com/pigeonchat/pigeon/internal/model"
)

// ViewModel caches realtime and conversation state for the TUI and
// signals UI refreshes. Bus events mutate it through Consume; views
// read it through snapshot accessors.
type ViewModel struct {
	mu sync.RWMutex

	selfID string
	api    *api.Client
	engine *engine.Engine
	logger *zap.Logger

	users     []core.User
	online    map[string]struct{}
	typing    map[string]struct{}
	connState status.State
	sending   bool
	Flash     Flash

	refreshCh chan struct{}
}

// NewViewModel creates a view model over the REST client and engine.
func NewViewModel(selfID string, a *api.Client, e *engine.Engine, logger *zap.Logger) *ViewModel {
	return &ViewModel{
		selfID:    selfID,
		api:       a,
		engine:    e,
		logger:    logger,
		online:    make(map[string]struct{}),
		typing:    make(map[string]struct{}),
		connState: status.Disconnected,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Consume applies bus events until the context ends or the channel
// closes. Run it on its own goroutine.
func (vm *ViewModel) Consume(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			vm.handle(evt)
		}
	}
}

func (vm *ViewModel) handle(evt bus.Event) {
	switch evt.Kind {
	case "rt.onlineUsers":
		ids, ok := evt.Payload.([]string)
		if !ok {
			return
		}
		online := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			online[id] = struct{}{}
		}
		vm.mu.Lock()
		vm.online = online
		vm.mu.Unlock()

	case "rt.beginTyping":
		notice, ok := evt.Payload.(core.TypingNotice)
		if !ok {
			return
		}
		vm.mu.Lock()
		vm.typing[notice.FromUserID] = struct{}{}
		vm.mu.Unlock()

	case "rt.endTyping":
		notice, ok := evt.Payload.(core.TypingNotice)
		if !ok {
			return
		}
		vm.mu.Lock()
		delete(vm.typing, notice.FromUserID)
		vm.mu.Unlock()

	case "rt.newMessage":
		msg, ok := evt.Payload.(core.Message)
		if !ok {
			return
		}
		vm.engine.IngestPush(msg)

	case "rt.messageDelivered":
		notice, ok := evt.Payload.(core.DeliveredNotice)
		if !ok {
			return
		}
		vm.engine.IngestDeliveryConfirmation(notice.MessageID, notice.ReceiverID, notice.DeliveredAt)

	case "conn.status_changed":
		change, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return
		}
		vm.mu.Lock()
		vm.connState = change.To
		// Typing indicators are ephemeral and the end signals may have
		// been lost with the old connection.
		if change.To != status.Ready {
			vm.typing = make(map[string]struct{})
		}
		vm.mu.Unlock()

	default:
		return
	}
	vm.signalRefresh()
}

// LoadUsers fetches the user directory.
func (vm *ViewModel) LoadUsers(ctx context.Context) error {
	users, err := vm.api.Users(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.users = users
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SelectConversation opens a conversation, zeroing its unread count and
// reconciling its history. A fetch failure with cached history still
// renders and flashes; with no history it flashes and leaves the
// selection in place for a retry.
func (vm *ViewModel) SelectConversation(ctx context.Context, otherUserID string) {
	vm.engine.SetSelectedConversation(otherUserID)
	vm.signalRefresh()
	if otherUserID == "" {
		return
	}
	if _, err := vm.engine.LoadConversation(ctx, otherUserID); err != nil {
		vm.logger.Warn("loading conversation failed",
			zap.String("otherUserId", otherUserID), zap.Error(err))
		vm.Flash.Set("Could not refresh conversation", 3*time.Second)
	}
	vm.signalRefresh()
}

// Send posts a message to the open conversation.
func (vm *ViewModel) Send(ctx context.Context, req api.SendRequest) error {
	other := vm.engine.Selected()
	if other == "" {
		return nil
	}
	vm.setSending(true)
	defer vm.setSending(false)

	msg, err := vm.api.SendMessage(ctx, other, req)
	if err != nil {
		vm.Flash.Set("Send failed", 3*time.Second)
		vm.signalRefresh()
		return err
	}
	vm.engine.AppendSent(*msg)
	vm.signalRefresh()
	return nil
}

func (vm *ViewModel) setSending(v bool) {
	vm.mu.Lock()
	vm.sending = v
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Users returns the directory sorted online-first, otherwise keeping
// the server's order.
func (vm *ViewModel) Users() []core.User {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	users := make([]core.User, len(vm.users))
	copy(users, vm.users)
	sort.SliceStable(users, func(i, j int) bool {
		_, iOn := vm.online[users[i].ID]
		_, jOn := vm.online[users[j].ID]
		return iOn && !jOn
	})
	return users
}

// Messages returns the open conversation's messages.
func (vm *ViewModel) Messages() []core.Message {
	return vm.engine.Messages()
}

// Selected returns the open conversation's user ID, or "".
func (vm *ViewModel) Selected() string {
	return vm.engine.Selected()
}

// UnreadFor returns the unread count for a user.
func (vm *ViewModel) UnreadFor(userID string) int {
	return vm.engine.UnreadFor(userID)
}

// IsOnline reports whether a user is currently connected.
func (vm *ViewModel) IsOnline(userID string) bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	_, ok := vm.online[userID]
	return ok
}

// IsTyping reports whether a user is currently typing to us.
func (vm *ViewModel) IsTyping(userID string) bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	_, ok := vm.typing[userID]
	return ok
}

// ConnState returns the connection state for the status bar.
func (vm *ViewModel) ConnState() status.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.connState
}

// Sending reports whether a send call is in flight.
func (vm *ViewModel) Sending() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.sending
}

// SelfID returns the authenticated user's ID.
func (vm *ViewModel) SelfID() string {
	return vm.selfID
}
