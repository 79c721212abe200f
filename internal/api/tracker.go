package api

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusWatcher/internal/focus"
)

// WindowStatus is the JSON view of the last delivery attempt
type WindowStatus struct {
	AppID    string    `json:"app_id"`
	Title    string    `json:"title"`
	At       time.Time `json:"at"`
	TimedOut bool      `json:"timed_out"`
	Error    string    `json:"error,omitempty"`
}

func statusFromDelivery(d focus.Delivery) WindowStatus {
	s := WindowStatus{
		AppID:    d.Window.AppID,
		Title:    d.Window.Title,
		At:       d.At,
		TimedOut: d.TimedOut,
	}
	if d.Err != nil {
		s.Error = d.Err.Error()
	}
	return s
}

// Tracker records reporter deliveries for the status API. Observe is meant
// to be passed to focus.WithObserver.
type Tracker struct {
	mu        sync.RWMutex
	current   *WindowStatus
	listeners []chan WindowStatus
	closed    bool
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe stores d and fans it out to subscribers. Slow subscribers miss
// updates rather than stall the reporter.
func (t *Tracker) Observe(d focus.Delivery) {
	status := statusFromDelivery(d)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = &status
	for _, listener := range t.listeners {
		select {
		case listener <- status:
		default:
			// Skip if channel is full
		}
	}
}

// Current returns the last recorded delivery
func (t *Tracker) Current() (WindowStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.current == nil {
		return WindowStatus{}, false
	}
	return *t.current, true
}

// Subscribe adds a listener for deliveries. The channel is closed by
// Unsubscribe or Close.
func (t *Tracker) Subscribe() chan WindowStatus {
	ch := make(chan WindowStatus, 10)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		close(ch)
		return ch
	}
	t.listeners = append(t.listeners, ch)
	return ch
}

// Unsubscribe removes a listener
func (t *Tracker) Unsubscribe(ch chan WindowStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, listener := range t.listeners {
		if listener == ch {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close ends all subscriptions
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for _, listener := range t.listeners {
		close(listener)
	}
	t.listeners = nil
}
