package model

import (
	"sync"
	"time"
)

// Flash is a transient status-bar notice with a deadline. Fetch and
// send failures surface through it instead of interrupting the view.
type Flash struct {
	mu    sync.RWMutex
	text  string
	until time.Time
}

// Set replaces the current notice and schedules it to clear after d.
func (f *Flash) Set(text string, d time.Duration) {
	f.mu.Lock()
	f.text = text
	f.until = time.Now().Add(d)
	f.mu.Unlock()
}

// Get returns the active notice, or "" once the deadline has passed.
func (f *Flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !time.Now().Before(f.until) {
		return ""
	}
	return f.text
}
