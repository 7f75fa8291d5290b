// Package actions binds the five user-triggered operations to the
// dispatcher, reconciler and notification scheduler.
//
// Every binding runs its synchronous part (validation, issuing the request,
// disabling controls) as a task on the engine loop. The network call runs
// off the loop and its continuation is posted back, so presentation state is
// only ever touched from the loop.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/roach88/cartsync/internal/csrf"
	"github.com/roach88/cartsync/internal/dispatch"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/reconcile"
	"github.com/roach88/cartsync/internal/view"
)

// User-facing messages.
const (
	SuccessTitle       = "Success"
	MsgAdded           = "Product added to cart!"
	MsgAddFailed       = "Failed to add product to cart."
	MsgUpdateFailed    = "Failed to update quantity."
	MsgRemoveFailed    = "Failed to remove item."
	MsgCouponApplied   = "Coupon applied successfully!"
	MsgCouponInvalid   = "Invalid coupon code."
	MsgCouponFailed    = "Failed to apply coupon."
	MsgSubscribeFailed = "An error occurred. Please try again."
)

// Dispatcher issues and sends requests.
type Dispatcher interface {
	Issue(kind mutation.Kind, targetID string, payload map[string]string, opts ...dispatch.IssueOption) (mutation.Request, error)
	Dispatch(ctx context.Context, req mutation.Request) mutation.Outcome
}

// Observer sees every outcome on the loop before the binding handles it.
type Observer interface {
	OnOutcome(o mutation.Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(mutation.Outcome)

// OnOutcome calls f.
func (f ObserverFunc) OnOutcome(o mutation.Outcome) { f(o) }

// Config wires a Bindings.
type Config struct {
	Loop       *engine.Loop
	Dispatcher Dispatcher
	Notifier   *notify.Scheduler
	Page       *view.Page
	// FormField names the newsletter form's hidden anti-forgery field.
	FormField string
	Reconcile []reconcile.Option
	Observer  Observer
	Logger    *slog.Logger
}

// Bindings owns one page's action handlers.
type Bindings struct {
	loop       *engine.Loop
	dispatcher Dispatcher
	notifier   *notify.Scheduler
	page       *view.Page
	reconciler *reconcile.Reconciler
	formField  string
	observer   Observer
	logger     *slog.Logger
}

// New creates the bindings for cfg.Page.
func New(cfg Config) *Bindings {
	b := &Bindings{
		loop:       cfg.Loop,
		dispatcher: cfg.Dispatcher,
		notifier:   cfg.Notifier,
		page:       cfg.Page,
		formField:  cfg.FormField,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
	}
	if b.formField == "" {
		b.formField = csrf.DefaultFormField
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	opts := append([]reconcile.Option{reconcile.WithLogger(b.logger)}, cfg.Reconcile...)
	b.reconciler = reconcile.New(&b.page.Cart, b.notifier, opts...)
	return b
}

// Reconciler exposes the page's reconciler.
func (b *Bindings) Reconciler() *reconcile.Reconciler {
	return b.reconciler
}

// AddToCartInput is the product page's add button plus quantity box.
type AddToCartInput struct {
	ProductID string
	Quantity  string
}

// AddToCart adds a product. Quantity defaults to 1.
func (b *Bindings) AddToCart(ctx context.Context, in AddToCartInput) (engine.Pending, error) {
	productID, err := requireID(mutation.FieldProductID, in.ProductID)
	if err != nil {
		return engine.Pending{}, fmt.Errorf("add to cart: %w", err)
	}
	qty, err := parseQuantity(mutation.FieldQuantity, in.Quantity, true)
	if err != nil {
		return engine.Pending{}, fmt.Errorf("add to cart: %w", err)
	}

	payload := map[string]string{
		mutation.FieldProductID: productID,
		mutation.FieldQuantity:  strconv.Itoa(qty),
	}
	return b.start(ctx, mutation.Add, productID, payload, nil, func(ctx context.Context, o mutation.Outcome) {
		res := b.reconciler.Apply(ctx, o, MsgAddFailed, mutation.CartCounter())
		if !res.Failed {
			b.notifier.Notify(SuccessTitle, MsgAdded, notify.Success)
		}
	})
}

// UpdateQuantityInput is a cart row's quantity box after a change.
type UpdateQuantityInput struct {
	ItemID   string
	Quantity string
}

// UpdateQuantity changes a line item's quantity.
func (b *Bindings) UpdateQuantity(ctx context.Context, in UpdateQuantityInput) (engine.Pending, error) {
	itemID, err := requireID(mutation.FieldItemID, in.ItemID)
	if err != nil {
		return engine.Pending{}, fmt.Errorf("update quantity: %w", err)
	}
	qty, err := parseQuantity(mutation.FieldQuantity, in.Quantity, false)
	if err != nil {
		return engine.Pending{}, fmt.Errorf("update quantity: %w", err)
	}

	payload := map[string]string{
		mutation.FieldItemID:   itemID,
		mutation.FieldQuantity: strconv.Itoa(qty),
	}
	return b.start(ctx, mutation.UpdateQty, itemID, payload, nil, func(ctx context.Context, o mutation.Outcome) {
		b.reconciler.Apply(ctx, o, MsgUpdateFailed,
			mutation.LineItemTotal(itemID), mutation.CartTotal(), mutation.CartCounter())
	})
}

// RemoveItem deletes a line item.
func (b *Bindings) RemoveItem(ctx context.Context, itemID string) (engine.Pending, error) {
	itemID, err := requireID(mutation.FieldItemID, itemID)
	if err != nil {
		return engine.Pending{}, fmt.Errorf("remove item: %w", err)
	}

	payload := map[string]string{mutation.FieldItemID: itemID}
	return b.start(ctx, mutation.Remove, itemID, payload, nil, func(ctx context.Context, o mutation.Outcome) {
		b.reconciler.ApplyRemoval(ctx, o, itemID, MsgRemoveFailed)
	})
}

// ApplyCoupon redeems a coupon code. A 2xx response with valid=false is a
// failure for the user and leaves the totals alone.
func (b *Bindings) ApplyCoupon(ctx context.Context, code string) (engine.Pending, error) {
	code, err := validateCoupon(code)
	if err != nil {
		return engine.Pending{}, fmt.Errorf("apply coupon: %w", err)
	}

	payload := map[string]string{mutation.FieldCode: code}
	return b.start(ctx, mutation.ApplyCoupon, "", payload, nil, func(ctx context.Context, o mutation.Outcome) {
		if !o.OK {
			b.reconciler.Fail(ctx, o, MsgCouponFailed)
			return
		}
		// The store omits "valid" when it rejects a code.
		valid := false
		if o.Payload.Has(mutation.FieldValid) {
			v, err := o.Payload.Bool(mutation.FieldValid)
			if err != nil {
				b.reconciler.Fail(ctx, mutation.Failure(o.Request, o.Status, err.Error(), o.Payload), MsgCouponFailed)
				return
			}
			valid = v
		}
		if !valid {
			b.reconciler.Fail(ctx, mutation.Failure(o.Request, o.Status, "coupon rejected", o.Payload), MsgCouponInvalid)
			return
		}
		res := b.reconciler.Apply(ctx, o, MsgCouponFailed, mutation.CartTotal(), mutation.Discount())
		if !res.Failed {
			b.notifier.Notify(SuccessTitle, MsgCouponApplied, notify.Success)
		}
	})
}

// start issues the request on the loop, then dispatches it off the loop and
// posts handle back.
func (b *Bindings) start(
	ctx context.Context,
	kind mutation.Kind,
	targetID string,
	payload map[string]string,
	issueOpts []dispatch.IssueOption,
	handle func(context.Context, mutation.Outcome),
) (engine.Pending, error) {
	var pending engine.Pending
	var issueErr error

	err := b.loop.Do(ctx, func() {
		pending, issueErr = b.launch(ctx, kind, targetID, payload, issueOpts, func(ctx context.Context, o mutation.Outcome) {
			b.observe(o)
			handle(ctx, o)
		})
	})
	if err != nil {
		return engine.Pending{}, fmt.Errorf("%s: %w", kind, err)
	}
	if issueErr != nil {
		return engine.Pending{}, issueErr
	}
	return pending, nil
}

// launch must run on the loop.
func (b *Bindings) launch(
	ctx context.Context,
	kind mutation.Kind,
	targetID string,
	payload map[string]string,
	issueOpts []dispatch.IssueOption,
	handle func(context.Context, mutation.Outcome),
) (engine.Pending, error) {
	req, err := b.dispatcher.Issue(kind, targetID, payload, issueOpts...)
	if err != nil {
		return engine.Pending{}, fmt.Errorf("%s: %w", kind, err)
	}
	b.logger.DebugContext(ctx, "mutation issued", "kind", kind.String(), "target", targetID, "issued_at", req.IssuedAt)

	// A later user action never aborts an in-flight request.
	dctx := context.WithoutCancel(ctx)
	return engine.Spawn(dctx, b.loop,
		func(ctx context.Context) mutation.Outcome { return b.dispatcher.Dispatch(ctx, req) },
		func(o mutation.Outcome) { handle(dctx, o) },
	), nil
}

func (b *Bindings) observe(o mutation.Outcome) {
	if b.observer != nil {
		b.observer.OnOutcome(o)
	}
}
