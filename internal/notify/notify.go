// Package notify schedules the short-lived toasts shown after cart actions.
//
// Each notification moves Created -> Visible immediately and then to
// Retired exactly once: when its display timer fires or when the user
// dismisses it, whichever happens first. There is no cap on how many are
// visible at once and no deduplication by content. Retired notifications
// are kept for inspection up to a history limit, oldest dropped first.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/cartsync/internal/clock"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/metrics"
)

// DefaultTimeout is how long a notification stays visible.
const DefaultTimeout = 3000 * time.Millisecond

// DefaultHistory is how many notifications All keeps once retired ones
// start being dropped.
const DefaultHistory = 100

// Severity classifies a notification.
type Severity int

const (
	Success Severity = iota + 1
	Error
	Info
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Error:
		return "error"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Class returns the toast style class for the severity.
func (s Severity) Class() string {
	if s == Error {
		return "danger"
	}
	return s.String()
}

// State is a notification's lifecycle position.
type State int

const (
	Created State = iota
	Visible
	Retired
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Visible:
		return "visible"
	default:
		return "retired"
	}
}

// RetireReason records why a notification left the screen.
type RetireReason string

const (
	ReasonTimeout   RetireReason = "timeout"
	ReasonDismissed RetireReason = "dismissed"
)

// Notification is one user-facing message.
type Notification struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Severity  Severity     `json:"-"`
	CreatedAt time.Time    `json:"createdAt"`
	State     State        `json:"-"`
	RetiredAt time.Time    `json:"retiredAt,omitzero"`
	Reason    RetireReason `json:"reason,omitempty"`
}

type entry struct {
	n     Notification
	timer clock.Timer
}

// Scheduler owns the notification surface.
//
// Thread-safety: all methods are safe for concurrent use. Timer callbacks
// may arrive on any goroutine.
type Scheduler struct {
	mu      sync.Mutex
	clock   clock.Clock
	timeout time.Duration
	history int
	ids     engine.IDGenerator
	metrics *metrics.Recorder
	logger  *slog.Logger

	entries map[string]*entry
	order   []string // every id, creation order
	visible []string // creation order
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for timestamps and timers.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHistory overrides DefaultHistory.
func WithHistory(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.history = n
		}
	}
}

// WithIDGenerator sets the notification id source.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(s *Scheduler) { s.ids = g }
}

// WithMetrics counts notifications by severity.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Scheduler) { s.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler using the real clock and UUIDv7 ids by default.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   clock.Real{},
		timeout: DefaultTimeout,
		history: DefaultHistory,
		ids:     engine.UUIDv7Generator{},
		logger:  slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the display duration.
func (s *Scheduler) Timeout() time.Duration {
	return s.timeout
}

// Notify shows a new notification and starts its retirement timer.
func (s *Scheduler) Notify(title, body string, severity Severity) Notification {
	s.mu.Lock()
	id := s.ids.Generate()
	e := &entry{n: Notification{
		ID:        id,
		Title:     title,
		Body:      body,
		Severity:  severity,
		CreatedAt: s.clock.Now(),
		State:     Created,
	}}
	s.entries[id] = e
	s.order = append(s.order, id)

	e.n.State = Visible
	s.visible = append(s.visible, id)
	e.timer = s.clock.AfterFunc(s.timeout, func() { s.retire(id, ReasonTimeout) })
	n := e.n
	s.prune()
	s.mu.Unlock()

	s.metrics.Notified(severity.String())
	s.logger.Debug("notification shown", "id", id, "severity", severity.String(), "title", title)
	return n
}

// Dismiss retires a visible notification immediately and cancels its
// timer. It reports whether the notification was visible.
func (s *Scheduler) Dismiss(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && e.n.State == Visible && e.timer != nil {
		e.timer.Stop()
	}
	s.mu.Unlock()

	return s.retire(id, ReasonDismissed)
}

// retire moves id to Retired. Retiring an already retired notification is
// a no-op.
func (s *Scheduler) retire(id string, reason RetireReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.n.State != Visible {
		return false
	}

	e.n.State = Retired
	e.n.RetiredAt = s.clock.Now()
	e.n.Reason = reason
	e.timer = nil

	for i, v := range s.visible {
		if v == id {
			s.visible = append(s.visible[:i], s.visible[i+1:]...)
			break
		}
	}

	s.prune()
	s.logger.Debug("notification retired", "id", id, "reason", string(reason))
	return true
}

// prune drops the oldest retired notifications while the history is over
// its limit. Visible ones are never dropped. Callers hold s.mu.
func (s *Scheduler) prune() {
	excess := len(s.order) - s.history
	if excess <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if excess > 0 && s.entries[id].n.State == Retired {
			delete(s.entries, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	clear(s.order[len(kept):])
	s.order = kept
}

// Visible returns the visible notifications in creation order.
func (s *Scheduler) Visible() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.visible))
	for _, id := range s.visible {
		out = append(out, s.entries[id].n)
	}
	return out
}

// Get returns the notification with id, in whatever state it is.
func (s *Scheduler) Get(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Notification{}, false
	}
	return e.n, true
}

// All returns the notifications still held, in creation order: every
// visible one plus the most recent retired ones.
func (s *Scheduler) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].n)
	}
	return out
}
