// Package notify models transient toast notifications shared by both
// surfaces.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity of a toast.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// DefaultDuration is how long a toast stays up unless configured otherwise.
const DefaultDuration = 3 * time.Second

// Toast is one notification. A mirrored copy keeps the ID and duration and
// runs its own dismiss timer.
type Toast struct {
	ID       string        `json:"id"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// New builds a toast with a fresh id. A non-positive duration uses
// DefaultDuration.
func New(severity Severity, message string, duration time.Duration) Toast {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return Toast{
		ID:       uuid.NewString(),
		Severity: severity,
		Message:  message,
		Duration: duration,
	}
}

// Notifier fans toasts out to listeners, e.g. the control panel and the
// bridge mirror.
type Notifier struct {
	mu        sync.Mutex
	listeners []func(Toast)
	duration  time.Duration
	muted     bool
}

// NewNotifier uses duration for toasts created through Info, Success,
// Warn and Error.
func NewNotifier(duration time.Duration) *Notifier {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Notifier{duration: duration}
}

// Listen registers fn. Listeners run on the emitting goroutine.
func (n *Notifier) Listen(fn func(Toast)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

// SetMuted suppresses non-error toasts, following the show_notifications
// preference.
func (n *Notifier) SetMuted(muted bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.muted = muted
}

// SetDuration changes the duration of toasts created from now on.
func (n *Notifier) SetDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.duration = d
}

// Emit delivers t to every listener and reports whether it was delivered.
func (n *Notifier) Emit(t Toast) bool {
	n.mu.Lock()
	if n.muted && t.Severity != Error {
		n.mu.Unlock()
		return false
	}
	listeners := append([]func(Toast){}, n.listeners...)
	n.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
	return true
}

func (n *Notifier) emit(sev Severity, message string) Toast {
	n.mu.Lock()
	d := n.duration
	n.mu.Unlock()
	t := New(sev, message, d)
	n.Emit(t)
	return t
}

func (n *Notifier) Info(message string) Toast    { return n.emit(Info, message) }
func (n *Notifier) Success(message string) Toast { return n.emit(Success, message) }
func (n *Notifier) Warn(message string) Toast    { return n.emit(Warning, message) }
func (n *Notifier) Error(message string) Toast   { return n.emit(Error, message) }

// Stack holds the toasts currently on screen for one surface, newest last.
type Stack struct {
	items []Toast
	limit int
}

// NewStack keeps at most limit toasts; older ones are dropped first.
func NewStack(limit int) *Stack {
	if limit <= 0 {
		limit = 3
	}
	return &Stack{limit: limit}
}

// Push adds t, replacing a toast with the same id.
func (s *Stack) Push(t Toast) {
	s.Dismiss(t.ID)
	s.items = append(s.items, t)
	if over := len(s.items) - s.limit; over > 0 {
		s.items = append([]Toast(nil), s.items[over:]...)
	}
}

// Dismiss removes the toast with id and reports whether it was present.
func (s *Stack) Dismiss(id string) bool {
	for i, t := range s.items {
		if t.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns the visible toasts, oldest first.
func (s *Stack) Items() []Toast {
	return append([]Toast(nil), s.items...)
}

// Len reports how many toasts are visible.
func (s *Stack) Len() int { return len(s.items) }
