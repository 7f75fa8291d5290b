// Package metrics exposes Prometheus counters for the cart client.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cartsync"

// Recorder holds the client's counters.
type Recorder struct {
	dispatched    *prometheus.CounterVec
	stale         *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Mutation requests dispatched, by kind and result.",
		}, []string{"kind", "result"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Responses discarded because a newer response was already applied to the scope.",
		}, []string{"scope"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications shown to the user, by severity.",
		}, []string{"severity"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{r.dispatched, r.stale, r.notifications} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register collector: %w", err)
			}
		}
	}
	return r, nil
}

// Dispatched counts one completed dispatch.
func (r *Recorder) Dispatched(kind, result string) {
	if r == nil {
		return
	}
	r.dispatched.WithLabelValues(kind, result).Inc()
}

// Stale counts one discarded response for scope.
func (r *Recorder) Stale(scope string) {
	if r == nil {
		return
	}
	r.stale.WithLabelValues(scope).Inc()
}

// Notified counts one notification.
func (r *Recorder) Notified(severity string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(severity).Inc()
}
