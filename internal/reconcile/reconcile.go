// Package reconcile applies store-confirmed outcomes to the displayed cart.
//
// Many requests can be in flight at once and their responses can arrive in
// any order. For each presentation scope the reconciler remembers the
// issuedAt of the last response it applied, and only a response with a
// strictly greater issuedAt may overwrite that scope. Older responses are
// dropped without telling the user; losing that race is expected.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/cartsync/internal/metrics"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/view"
)

// ErrorTitle is the title of every failure notification.
const ErrorTitle = "Error"

// Notifier surfaces a message to the user.
type Notifier interface {
	Notify(title, body string, severity notify.Severity) notify.Notification
}

// Journal records responses that lost the ordering race. Writes happen off
// the caller's goroutine.
type Journal interface {
	MarkStale(ctx context.Context, issuedAt int64, scope string) error
}

// Result reports what Apply did.
type Result struct {
	Applied []mutation.Scope
	Stale   []mutation.Scope
	Failed  bool
	Reason  string
	// Emptied is set when the outcome moved the cart into the empty state.
	Emptied bool
}

// Reconciler owns the last-applied bookkeeping for one page.
//
// Not safe for concurrent use: call it only from the engine loop, which
// also owns the cart it writes.
type Reconciler struct {
	cart        *view.Cart
	notifier    Notifier
	journal     Journal
	metrics     *metrics.Recorder
	logger      *slog.Logger
	lastApplied map[mutation.Scope]int64
	writes      sync.WaitGroup
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithJournal records stale discards.
func WithJournal(j Journal) Option {
	return func(r *Reconciler) { r.journal = j }
}

// WithMetrics counts stale discards, labelled by scope kind.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a reconciler writing into cart.
func New(cart *view.Cart, notifier Notifier, opts ...Option) *Reconciler {
	r := &Reconciler{
		cart:        cart,
		notifier:    notifier,
		logger:      slog.Default(),
		lastApplied: make(map[mutation.Scope]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LastApplied returns the issuedAt last written to scope, or 0.
func (r *Reconciler) LastApplied(scope mutation.Scope) int64 {
	return r.lastApplied[scope]
}

// Apply writes a successful outcome into each scope the ordering rule
// admits. A failed outcome, or a success missing a field one of the scopes
// needs, writes nothing and raises an Error notification carrying
// failureMessage.
func (r *Reconciler) Apply(ctx context.Context, o mutation.Outcome, failureMessage string, scopes ...mutation.Scope) Result {
	if !o.OK {
		return r.Fail(ctx, o, failureMessage)
	}

	writes, err := r.prepare(o.Payload, scopes)
	if err != nil {
		o = mutation.Failure(o.Request, o.Status, err.Error(), o.Payload)
		return r.Fail(ctx, o, failureMessage)
	}

	var res Result
	for i, scope := range scopes {
		if r.admit(ctx, o.Request, scope) {
			writes[i]()
			res.Applied = append(res.Applied, scope)
		} else {
			res.Stale = append(res.Stale, scope)
		}
	}
	return res
}

// ApplyRemoval handles a successful line item removal: the row is taken
// out of the list, the cart total and counter are reconciled, and if the
// admitted counter reaches zero the whole list is replaced by the empty
// placeholder.
func (r *Reconciler) ApplyRemoval(ctx context.Context, o mutation.Outcome, itemID, failureMessage string) Result {
	if !o.OK {
		return r.Fail(ctx, o, failureMessage)
	}
	if _, err := r.prepare(o.Payload, []mutation.Scope{mutation.CartTotal(), mutation.CartCounter()}); err != nil {
		o = mutation.Failure(o.Request, o.Status, err.Error(), o.Payload)
		return r.Fail(ctx, o, failureMessage)
	}

	r.cart.RemoveRow(itemID)

	res := r.Apply(ctx, o, failureMessage, mutation.CartTotal(), mutation.CartCounter())
	for _, scope := range res.Applied {
		if scope == mutation.CartCounter() && r.cart.Count == 0 {
			r.cart.ShowEmpty()
			res.Emptied = true
		}
	}
	return res
}

// Fail performs no state change and raises one Error notification.
func (r *Reconciler) Fail(ctx context.Context, o mutation.Outcome, message string) Result {
	r.logger.WarnContext(ctx, "mutation failed",
		"kind", o.Request.Kind.String(),
		"target", o.Request.TargetID,
		"issued_at", o.Request.IssuedAt,
		"status", o.Status,
		"reason", o.Reason,
	)
	r.notifier.Notify(ErrorTitle, message, notify.Error)
	return Result{Failed: true, Reason: o.Reason}
}

// admit applies the ordering rule for one scope and advances the
// bookkeeping when the response is newer.
func (r *Reconciler) admit(ctx context.Context, req mutation.Request, scope mutation.Scope) bool {
	last := r.lastApplied[scope]
	if req.IssuedAt <= last {
		r.logger.DebugContext(ctx, "stale response discarded",
			"scope", scope.String(),
			"issued_at", req.IssuedAt,
			"last_applied", last,
		)
		r.metrics.Stale(string(scope.Kind))
		r.markStale(ctx, req.IssuedAt, scope.String())
		return false
	}
	r.lastApplied[scope] = req.IssuedAt
	return true
}

func (r *Reconciler) markStale(ctx context.Context, issuedAt int64, scope string) {
	if r.journal == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()
		if err := r.journal.MarkStale(ctx, issuedAt, scope); err != nil {
			r.logger.WarnContext(ctx, "journal stale write failed", "error", err, "issued_at", issuedAt, "scope", scope)
		}
	}()
}

// Flush waits for pending journal writes. Like Apply it must run on the
// loop, or after the loop has stopped.
func (r *Reconciler) Flush() {
	r.writes.Wait()
}

// prepare decodes every value up front so that an outcome is applied to
// all of its scopes or to none.
func (r *Reconciler) prepare(p mutation.Payload, scopes []mutation.Scope) ([]func(), error) {
	writes := make([]func(), len(scopes))
	for i, scope := range scopes {
		switch scope.Kind {
		case mutation.ScopeCartCounter:
			n, err := p.Int(scope.Field())
			if err != nil {
				return nil, err
			}
			writes[i] = func() { r.cart.SetCount(n) }

		case mutation.ScopeCartTotal, mutation.ScopeDiscount, mutation.ScopeLineItemTotal:
			a, err := p.Amount(scope.Field())
			if err != nil {
				return nil, err
			}
			switch scope.Kind {
			case mutation.ScopeCartTotal:
				writes[i] = func() { r.cart.SetTotal(a) }
			case mutation.ScopeDiscount:
				writes[i] = func() { r.cart.SetDiscount(a) }
			default:
				itemID := scope.ItemID
				writes[i] = func() { r.cart.SetItemTotal(itemID, a) }
			}

		default:
			return nil, fmt.Errorf("unknown scope %q", scope.Kind)
		}
	}
	return writes, nil
}
