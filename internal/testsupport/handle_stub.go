package testsupport

import (
	"sync"
	"time"
)

// Notification records a single call to the device session handle.
type Notification struct {
	Text     string
	Duration time.Duration
}

// HandleStub is an in-memory session.Handle implementation intended for
// tests. It records every notification for later inspection and is safe for
// concurrent use.
type HandleStub struct {
	mu            sync.Mutex
	notifications []Notification
}

// NewHandleStub constructs a HandleStub with empty state.
func NewHandleStub() *HandleStub {
	return &HandleStub{}
}

// Notify records the notification.
func (h *HandleStub) Notify(text string, duration time.Duration) {
	h.mu.Lock()
	h.notifications = append(h.notifications, Notification{Text: text, Duration: duration})
	h.mu.Unlock()
}

// Notifications returns a copy of the recorded notifications in order.
func (h *HandleStub) Notifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.notifications))
	copy(out, h.notifications)
	return out
}

// LastNotification returns the most recent notification and whether one exists.
func (h *HandleStub) LastNotification() (Notification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.notifications) == 0 {
		return Notification{}, false
	}
	return h.notifications[len(h.notifications)-1], true
}

// Reset clears the recorded notifications.
func (h *HandleStub) Reset() {
	h.mu.Lock()
	h.notifications = nil
	h.mu.Unlock()
}
