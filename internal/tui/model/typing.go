package model

import (
	"sync"
	"time"
)

// Signaler sends typing signals to the server. The socket client
// implements it.
type Signaler interface {
	EmitStartTyping(toUserID string)
	EmitStopTyping(toUserID string)
}

// TypingEmitter debounces composer input into at most one start signal
// per typing burst and one stop signal per quiet period. Every input
// change while typing re-arms the quiet window; the stop fires when it
// expires, when the input is cleared or submitted, or on teardown.
type TypingEmitter struct {
	signaler Signaler
	window   time.Duration

	mu     sync.Mutex
	active bool
	target string
	timer  *time.Timer
	gen    int
}

// NewTypingEmitter creates an emitter with the given quiet window.
func NewTypingEmitter(s Signaler, window time.Duration) *TypingEmitter {
	return &TypingEmitter{signaler: s, window: window}
}

// InputChanged reports the composer's current text addressed to
// toUserID. Empty text counts as clearing the input.
func (t *TypingEmitter) InputChanged(toUserID, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if text == "" {
		t.stopLocked()
		return
	}
	if t.active && t.target != toUserID {
		t.stopLocked()
	}
	if !t.active {
		t.active = true
		t.target = toUserID
		t.signaler.EmitStartTyping(toUserID)
	}
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.window, func() { t.expire(gen) })
}

// Stop ends the current burst immediately. Called on submit and on
// composer teardown. A no-op when no burst is active.
func (t *TypingEmitter) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// expire fires from the timer goroutine. The generation check discards
// timers that were superseded by a re-arm racing the callback.
func (t *TypingEmitter) expire(gen int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.stopLocked()
}

func (t *TypingEmitter) stopLocked() {
	if !t.active {
		return
	}
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.signaler.EmitStopTyping(t.target)
}
