// Package state tracks what the daemon believes about the watched channels
// and the EventSub session, and fans out change callbacks.
package state

import (
	"sync"
	"time"
)

// SessionStatus describes the EventSub connection.
type SessionStatus int

const (
	SessionDisconnected SessionStatus = iota
	SessionConnected
)

// LiveChannel is one watched channel currently broadcasting.
type LiveChannel struct {
	UserID       string
	UserLogin    string
	UserName     string
	CategoryID   string
	CategoryName string
	Title        string
	StartedAt    time.Time
}

// ChangeCallback is invoked after every tracked transition.
type ChangeCallback func()

// Tracker holds the watch-list state. All methods are safe for concurrent
// use; callbacks run on the mutating goroutine.
type Tracker struct {
	mu sync.RWMutex

	status    SessionStatus
	sessionID string

	live map[string]LiveChannel // userID -> channel

	callbacks []ChangeCallback
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{live: make(map[string]LiveChannel)}
}

// OnChange registers a callback for state transitions.
func (t *Tracker) OnChange(cb ChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

func (t *Tracker) notify() {
	t.mu.RLock()
	callbacks := make([]ChangeCallback, len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.mu.RUnlock()

	for _, cb := range callbacks {
		cb()
	}
}

// SetSession records a session transition. It returns true when the status
// or the session ID actually changed.
func (t *Tracker) SetSession(status SessionStatus, sessionID string) bool {
	t.mu.Lock()
	changed := t.status != status || t.sessionID != sessionID
	t.status = status
	t.sessionID = sessionID
	t.mu.Unlock()

	if changed {
		t.notify()
	}
	return changed
}

// Session returns the current session status and ID.
func (t *Tracker) Session() (SessionStatus, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.sessionID
}

// MarkLive records a channel as live. It returns true if the channel was
// not live before, i.e. this is a fresh live transition.
func (t *Tracker) MarkLive(ch LiveChannel) bool {
	t.mu.Lock()
	_, wasLive := t.live[ch.UserID]
	t.live[ch.UserID] = ch
	t.mu.Unlock()

	if !wasLive {
		t.notify()
	}
	return !wasLive
}

// MarkOffline removes a channel from the live set. It returns the last
// known entry and whether the channel had been live.
func (t *Tracker) MarkOffline(userID string) (LiveChannel, bool) {
	t.mu.Lock()
	ch, wasLive := t.live[userID]
	delete(t.live, userID)
	t.mu.Unlock()

	if wasLive {
		t.notify()
	}
	return ch, wasLive
}

// UpdateCategory records a category change for a live channel. It returns
// the previous category name and whether the channel was live with a
// different category.
func (t *Tracker) UpdateCategory(userID, categoryID, categoryName, title string) (previous string, changed bool) {
	t.mu.Lock()
	ch, live := t.live[userID]
	if live {
		previous = ch.CategoryName
		changed = ch.CategoryID != "" && ch.CategoryID != categoryID
		ch.CategoryID = categoryID
		ch.CategoryName = categoryName
		ch.Title = title
		t.live[userID] = ch
	}
	t.mu.Unlock()

	if changed {
		t.notify()
	}
	return previous, changed
}

// Live returns a snapshot of the live channels.
func (t *Tracker) Live() []LiveChannel {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]LiveChannel, 0, len(t.live))
	for _, ch := range t.live {
		result = append(result, ch)
	}
	return result
}

// IsLive reports whether a channel is currently marked live.
func (t *Tracker) IsLive(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.live[userID]
	return ok
}

// Reset clears the live set and session, typically after the session was
// lost and deliveries may have been missed.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.live = make(map[string]LiveChannel)
	t.status = SessionDisconnected
	t.sessionID = ""
	t.mu.Unlock()

	t.notify()
}
