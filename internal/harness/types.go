package harness

import (
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/store"
	"github.com/roach88/cartsync/internal/view"
)

// Trace event types.
const (
	EventIssued    = "issued"
	EventRejected  = "rejected"
	EventResponded = "responded"
	EventAdvanced  = "advanced"
	EventDismissed = "dismissed"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step     int               `json:"step"`
	Type     string            `json:"type"`
	Ref      string            `json:"ref,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	IssuedAt int64             `json:"issuedAt,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
	Status   int               `json:"status,omitempty"`
	Error    string            `json:"error,omitempty"`
	Advance  string            `json:"advance,omitempty"`
	Toast    string            `json:"toast,omitempty"`
	Visible  bool              `json:"visible,omitempty"`
}

// Toast is a notification as it appears in a snapshot.
type Toast struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
}

func toToasts(ns []notify.Notification) []Toast {
	out := make([]Toast, 0, len(ns))
	for _, n := range ns {
		out = append(out, Toast{
			ID:       n.ID,
			Title:    n.Title,
			Body:     n.Body,
			Severity: n.Severity.String(),
			State:    n.State.String(),
			Reason:   string(n.Reason),
		})
	}
	return out
}

// Snapshot is everything a scenario run left behind. It is the content of
// a scenario's golden file.
type Snapshot struct {
	Scenario      string        `json:"scenario"`
	Session       string        `json:"session"`
	Trace         []TraceEvent  `json:"trace"`
	Page          view.Page     `json:"page"`
	Toasts        []Toast       `json:"toasts"`
	Notifications []Toast       `json:"notifications"`
	Journal       []store.Entry `json:"journal"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as scripted and every
	// assertion held.
	Pass bool `json:"pass"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	Snapshot Snapshot `json:"snapshot"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Errors:   []string{},
		Snapshot: Snapshot{Trace: []TraceEvent{}},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Snapshot.Trace = append(r.Snapshot.Trace, e)
}
