package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pigeonchat/pigeon/internal/client/cache"
	"github.com/pigeonchat/pigeon/internal/model"
)

// Fetcher is the slice of the REST client the engine needs to pull
// conversation history.
type Fetcher interface {
	Conversation(ctx context.Context, otherUserID string) ([]model.Message, error)
	ConversationSince(ctx context.Context, otherUserID string, since int64) ([]model.Message, error)
}

// Engine reconciles the local conversation cache with server history
// and live-pushed events. All operations are serialized by a single
// mutex; the cache is read-modified-written under that lock.
type Engine struct {
	selfID  string
	cache   *cache.Cache
	fetcher Fetcher
	logger  *zap.Logger

	mu       sync.Mutex
	selected string
	msgs     []model.Message
	unread   map[string]int
}

// New creates an engine for the given user. The unread map is loaded
// eagerly so counts survive restarts.
func New(selfID string, c *cache.Cache, f Fetcher, logger *zap.Logger) *Engine {
	return &Engine{
		selfID:  selfID,
		cache:   c,
		fetcher: f,
		logger:  logger,
		unread:  c.LoadUnread(),
	}
}

// LoadConversation surfaces the cached history for otherUserID
// immediately, then reconciles it with the server. When the cache is
// non-empty only messages at or after the latest cached timestamp are
// fetched; fetched messages whose IDs are already present locally are
// discarded. The merged, sorted list is persisted and becomes the open
// conversation.
//
// The lock is not held across the fetch: the cached copy is published
// as the open conversation before the network round-trip, so a slow
// server never blocks Messages or the push/confirmation paths. Pushes
// that land mid-fetch are folded in by merging against the state found
// on re-acquire, not the pre-fetch snapshot.
//
// On fetch failure the cached copy, when non-empty, is returned along
// with the error so the caller can render stale history and flash the
// failure. An empty cache plus a failed fetch returns only the error.
func (e *Engine) LoadConversation(ctx context.Context, otherUserID string) ([]model.Message, error) {
	e.mu.Lock()
	local := e.cache.LoadConversation(otherUserID)
	e.setOpen(otherUserID, local)
	e.mu.Unlock()

	var (
		fetched []model.Message
		err     error
	)
	if len(local) > 0 {
		latest := local[0].CreatedAt
		for _, m := range local[1:] {
			if m.CreatedAt > latest {
				latest = m.CreatedAt
			}
		}
		fetched, err = e.fetcher.ConversationSince(ctx, otherUserID, latest)
	} else {
		fetched, err = e.fetcher.Conversation(ctx, otherUserID)
	}
	if err != nil {
		if len(local) > 0 {
			e.logger.Warn("conversation fetch failed, serving cached copy",
				zap.String("otherUserId", otherUserID), zap.Error(err))
			return snapshot(local), fmt.Errorf("refreshing conversation: %w", err)
		}
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.cache.LoadConversation(otherUserID)
	if e.selected == otherUserID && len(e.msgs) > 0 {
		current = e.msgs
	}
	merged := merge(current, fetched)
	if err := e.cache.SaveConversation(otherUserID, merged); err != nil {
		e.logger.Warn("persisting conversation cache failed",
			zap.String("otherUserId", otherUserID), zap.Error(err))
	}
	e.setOpen(otherUserID, merged)
	return snapshot(merged), nil
}

// merge unions local with fetched, keeping the local copy of any
// message present in both, and sorts the result.
func merge(local, fetched []model.Message) []model.Message {
	seen := make(map[string]struct{}, len(local))
	merged := make([]model.Message, 0, len(local)+len(fetched))
	for _, m := range local {
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range fetched {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		merged = append(merged, m)
	}
	model.SortByCreation(merged)
	return merged
}

func (e *Engine) setOpen(otherUserID string, msgs []model.Message) {
	if e.selected == otherUserID {
		e.msgs = msgs
	}
}

// AppendSent records a message the user just sent to the open
// conversation. The server assigns timestamps monotonically for a
// sender, so the list stays ordered without a re-sort.
func (e *Engine) AppendSent(msg model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	other := msg.OtherParty(e.selfID)
	msgs := e.cache.LoadConversation(other)
	if other == e.selected && len(e.msgs) > 0 {
		msgs = e.msgs
	}
	msgs = append(msgs, msg)
	if err := e.cache.SaveConversation(other, msgs); err != nil {
		e.logger.Warn("persisting sent message failed",
			zap.String("otherUserId", other), zap.Error(err))
	}
	if other == e.selected {
		e.msgs = msgs
	}
}

// IngestPush folds a live-pushed message into client state. A push for
// the open conversation is appended (unless its ID is already present
// there) and re-sorted; a push for any other conversation increments
// that conversation's unread count, except messages the user sent to
// themselves. Returns whether anything changed.
func (e *Engine) IngestPush(msg model.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !msg.Involves(e.selfID) {
		return false
	}
	other := msg.OtherParty(e.selfID)

	if other == e.selected {
		if len(e.msgs) == 0 {
			e.msgs = e.cache.LoadConversation(other)
		}
		for _, m := range e.msgs {
			if m.ID == msg.ID {
				return false
			}
		}
		e.msgs = append(e.msgs, msg)
		model.SortByCreation(e.msgs)
		if err := e.cache.SaveConversation(other, e.msgs); err != nil {
			e.logger.Warn("persisting pushed message failed",
				zap.String("otherUserId", other), zap.Error(err))
		}
		return true
	}

	if msg.SenderID == e.selfID && msg.ReceiverID == e.selfID {
		return false
	}
	e.unread[other]++
	if err := e.cache.SaveUnread(e.unread); err != nil {
		e.logger.Warn("persisting unread counts failed", zap.Error(err))
	}
	return true
}

// IngestDeliveryConfirmation stamps DeliveredAt on the cached copy of a
// message the user sent. The confirmation names the receiver, which is
// the key of the conversation file the message lives in. Unknown caches
// or message IDs are a no-op.
func (e *Engine) IngestDeliveryConfirmation(messageID, receiverID string, deliveredAt int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs := e.cache.LoadConversation(receiverID)
	if e.selected == receiverID && len(e.msgs) > 0 {
		msgs = e.msgs
	}
	changed := false
	for i := range msgs {
		if msgs[i].ID == messageID {
			if msgs[i].DeliveredAt == nil {
				ts := deliveredAt
				msgs[i].DeliveredAt = &ts
				changed = true
			}
			break
		}
	}
	if !changed {
		return false
	}
	if err := e.cache.SaveConversation(receiverID, msgs); err != nil {
		e.logger.Warn("persisting delivery confirmation failed",
			zap.String("receiverId", receiverID), zap.Error(err))
	}
	if e.selected == receiverID {
		e.msgs = msgs
	}
	return true
}

// SetSelectedConversation switches the open conversation and zeroes its
// unread count. The message list is emptied until the next load.
func (e *Engine) SetSelectedConversation(otherUserID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selected = otherUserID
	e.msgs = nil
	if otherUserID == "" {
		return
	}
	if e.unread[otherUserID] != 0 {
		delete(e.unread, otherUserID)
		if err := e.cache.SaveUnread(e.unread); err != nil {
			e.logger.Warn("persisting unread counts failed", zap.Error(err))
		}
	}
}

// Selected returns the open conversation's user ID, or "".
func (e *Engine) Selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Messages returns a snapshot of the open conversation.
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e.msgs)
}

// UnreadFor returns the unread count for a conversation.
func (e *Engine) UnreadFor(userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread[userID]
}

// Unread returns a snapshot of the unread-count map.
func (e *Engine) Unread() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := make(map[string]int, len(e.unread))
	for k, v := range e.unread {
		counts[k] = v
	}
	return counts
}

func snapshot(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}
