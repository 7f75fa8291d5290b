package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/roach88/cartsync/internal/actions"
	"github.com/roach88/cartsync/internal/clock"
	"github.com/roach88/cartsync/internal/csrf"
	"github.com/roach88/cartsync/internal/dispatch"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/reconcile"
	"github.com/roach88/cartsync/internal/store"
	"github.com/roach88/cartsync/internal/testutil"
	"github.com/roach88/cartsync/internal/view"
)

// Origin is the store origin every scenario runs against.
const Origin = "http://store.test"

// Token is the anti-forgery token the scenario's cookie carries.
const Token = "harness-token"

// stepTimeout bounds every wait on the loop or the transport.
const stepTimeout = 5 * time.Second

// Harness is the test execution engine for one scenario run.
type Harness struct {
	loop      *engine.Loop
	clock     *clock.Fake
	transport *ScriptedTransport
	notifier  *notify.Scheduler
	bindings  *actions.Bindings
	issued    *issueRecorder
	store     *store.Store
	session   *store.Session
	refs      map[string]*inflight
	logger    *slog.Logger
}

type inflight struct {
	req      mutation.Request
	exchange *Exchange
	pending  engine.Pending
}

// issueRecorder remembers the request most recently issued through it.
type issueRecorder struct {
	*dispatch.Dispatcher

	mu   sync.Mutex
	last mutation.Request
}

func (r *issueRecorder) Issue(kind mutation.Kind, targetID string, payload map[string]string, opts ...dispatch.IssueOption) (mutation.Request, error) {
	req, err := r.Dispatcher.Issue(kind, targetID, payload, opts...)
	if err == nil {
		r.mu.Lock()
		r.last = req
		r.mu.Unlock()
	}
	return req, err
}

func (r *issueRecorder) lastIssued() mutation.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal with a fixed
// session id and a fake clock. Execution flow:
//  1. Seed the page from scenario.Cart
//  2. Execute the steps in order
//  3. Snapshot the page, notifications and journal
//  4. Evaluate assertions against the snapshot
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	seed, err := scenario.Cart.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("seed cart: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionID := testutil.NewFixedSessionGenerator(scenario.Session).Generate()

	h := &Harness{
		loop:      engine.NewLoop(engine.WithLogger(logger)),
		clock:     testutil.NewFakeClock(),
		transport: NewScriptedTransport(),
		store:     st,
		session:   st.Session(sessionID),
		refs:      make(map[string]*inflight),
		logger:    logger,
	}
	defer h.transport.Close()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = h.loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	origin, _ := url.Parse(Origin)
	tokens := csrf.SourceFunc(func() (string, bool) { return Token, true })
	h.issued = &issueRecorder{Dispatcher: dispatch.New(origin, tokens,
		dispatch.WithClient(&http.Client{Transport: h.transport}),
		dispatch.WithJournal(h.session),
		dispatch.WithLogger(logger),
	)}
	h.notifier = notify.New(
		notify.WithClock(h.clock),
		notify.WithIDGenerator(engine.NewSequenceGenerator("toast")),
		notify.WithLogger(logger),
	)
	h.bindings = actions.New(actions.Config{
		Loop:       h.loop,
		Dispatcher: h.issued,
		Notifier:   h.notifier,
		Page:       view.NewPage(seed),
		Reconcile:  []reconcile.Option{reconcile.WithJournal(h.session)},
		Logger:     logger,
	})

	result := NewResult()
	result.Snapshot.Scenario = scenario.Name
	result.Snapshot.Session = sessionID

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Snapshot: &result.Snapshot,
		IssuedAt: h.issuedAt,
		LastApplied: func(scope mutation.Scope) (int64, error) {
			var last int64
			err := h.loop.Do(ctx, func() { last = h.bindings.Reconciler().LastApplied(scope) })
			return last, err
		},
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) issuedAt(ref string) (int64, bool) {
	in, ok := h.refs[ref]
	if !ok {
		return 0, false
	}
	return in.req.IssuedAt, true
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	switch step.kind() {
	case StepIssue:
		return h.issue(ctx, index, step, result)
	case StepRespond:
		return h.respond(ctx, index, step, result)
	case StepAdvance:
		h.clock.Advance(step.Advance)
		result.AddTrace(TraceEvent{Step: index, Type: EventAdvanced, Advance: step.Advance.String()})
		return nil
	case StepDismiss:
		visible := h.notifier.Dismiss(step.Dismiss)
		result.AddTrace(TraceEvent{Step: index, Type: EventDismissed, Toast: step.Dismiss, Visible: visible})
		return nil
	default:
		return fmt.Errorf("empty step")
	}
}

func (h *Harness) issue(ctx context.Context, index int, step Step, result *Result) error {
	kind, err := mutation.ParseKind(step.Issue)
	if err != nil {
		return err
	}

	pending, err := h.invoke(ctx, kind, step.Args)
	if err != nil {
		if !errors.Is(err, actions.ErrValidation) {
			return err
		}
		result.AddTrace(TraceEvent{Step: index, Type: EventRejected, Kind: kind.String(), Error: err.Error()})
		if !step.ExpectRejected {
			result.AddError(fmt.Sprintf("steps[%d]: %s rejected: %v", index, kind, err))
		}
		return nil
	}
	if step.ExpectRejected {
		result.AddError(fmt.Sprintf("steps[%d]: %s was issued, expected rejection", index, kind))
	}

	req := h.issued.lastIssued()
	wctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	ex, err := h.transport.Next(wctx)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}

	if step.Ref != "" {
		h.refs[step.Ref] = &inflight{req: req, exchange: ex, pending: pending}
	}
	result.AddTrace(TraceEvent{
		Step:     index,
		Type:     EventIssued,
		Ref:      step.Ref,
		Kind:     kind.String(),
		IssuedAt: req.IssuedAt,
		Payload:  req.Payload,
	})
	return nil
}

func (h *Harness) invoke(ctx context.Context, kind mutation.Kind, args map[string]string) (engine.Pending, error) {
	switch kind {
	case mutation.Add:
		return h.bindings.AddToCart(ctx, actions.AddToCartInput{
			ProductID: args[mutation.FieldProductID],
			Quantity:  args[mutation.FieldQuantity],
		})
	case mutation.UpdateQty:
		return h.bindings.UpdateQuantity(ctx, actions.UpdateQuantityInput{
			ItemID:   args[mutation.FieldItemID],
			Quantity: args[mutation.FieldQuantity],
		})
	case mutation.Remove:
		return h.bindings.RemoveItem(ctx, args[mutation.FieldItemID])
	case mutation.ApplyCoupon:
		return h.bindings.ApplyCoupon(ctx, args[mutation.FieldCode])
	case mutation.Subscribe:
		return h.bindings.SubscribeNewsletter(ctx, actions.SubscribeInput{
			Email:  args[mutation.FieldEmail],
			Action: args["action"],
		})
	default:
		return engine.Pending{}, fmt.Errorf("unsupported kind %s", kind)
	}
}

func (h *Harness) respond(ctx context.Context, index int, step Step, result *Result) error {
	in, ok := h.refs[step.Respond]
	if !ok {
		return fmt.Errorf("unknown ref %q", step.Respond)
	}

	event := TraceEvent{Step: index, Type: EventResponded, Ref: step.Respond, IssuedAt: in.req.IssuedAt}
	if step.NetworkError != "" {
		in.exchange.Fail(errors.New(step.NetworkError))
		event.Error = step.NetworkError
	} else {
		body, err := responseBody(step)
		if err != nil {
			return err
		}
		in.exchange.Respond(step.Status, body)
		event.Status = step.Status
	}

	wctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()
	if err := in.pending.Wait(wctx); err != nil {
		return fmt.Errorf("waiting for %s: %w", step.Respond, err)
	}
	result.AddTrace(event)
	return nil
}

func responseBody(step Step) ([]byte, error) {
	switch {
	case step.RawBody != "":
		return []byte(step.RawBody), nil
	case step.Body != nil:
		data, err := json.Marshal(step.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return data, nil
	default:
		return nil, nil
	}
}

func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	state, err := h.bindings.State(ctx)
	if err != nil {
		return err
	}
	if err := h.loop.Do(ctx, h.bindings.Reconciler().Flush); err != nil {
		return err
	}
	journal, err := h.store.Journal(ctx, h.session.ID(), 0)
	if err != nil {
		return err
	}

	snap := &result.Snapshot
	snap.Page = state.Page
	snap.Toasts = toToasts(state.Toasts)
	snap.Notifications = toToasts(h.notifier.All())
	snap.Journal = journal
	return nil
}
