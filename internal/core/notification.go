package core

import (
	"sync"
	"time"
)

// DefaultNotificationTTL is how long a notification stays visible when no
// TTL is configured.
const DefaultNotificationTTL = 5 * time.Second

// NotificationKind classifies a status message.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient status message with an absolute expiry.
type Notification struct {
	Kind      NotificationKind
	Message   string
	ExpiresAt time.Time
}

// NotificationSink holds at most one current notification. A new message
// replaces the previous one together with its expiry, so an older expiry can
// never clear a newer message. Expiry is evaluated when the sink is read.
type NotificationSink struct {
	mu      sync.Mutex
	current *Notification
	ttl     time.Duration
	now     func() time.Time
}

// NewNotificationSink creates a sink whose messages live for ttl. A
// non-positive ttl falls back to DefaultNotificationTTL.
func NewNotificationSink(ttl time.Duration) *NotificationSink {
	if ttl <= 0 {
		ttl = DefaultNotificationTTL
	}
	return &NotificationSink{ttl: ttl, now: time.Now}
}

// Show replaces the current notification.
func (s *NotificationSink) Show(kind NotificationKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &Notification{
		Kind:      kind,
		Message:   message,
		ExpiresAt: s.now().Add(s.ttl),
	}
}

// Success shows a success message.
func (s *NotificationSink) Success(message string) { s.Show(NotifySuccess, message) }

// Error shows an error message built from err.
func (s *NotificationSink) Error(err error) {
	if err == nil {
		return
	}
	s.Show(NotifyError, err.Error())
}

// Current returns the visible notification, or false when there is none or
// it has expired.
func (s *NotificationSink) Current() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Notification{}, false
	}
	if !s.now().Before(s.current.ExpiresAt) {
		s.current = nil
		return Notification{}, false
	}
	return *s.current, true
}

// Clear drops the current notification.
func (s *NotificationSink) Clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}
