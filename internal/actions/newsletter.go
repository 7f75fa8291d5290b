package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/cartsync/internal/dispatch"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/view"
)

// Newsletter response statuses.
const (
	statusSubscribed = "success"
	statusInfo       = "info"
)

// ErrBusy is returned for a submit while the previous one is still in
// flight. Nothing is sent and the form is left as it is.
var ErrBusy = errors.New("submit already in progress")

// SubscribeInput is a newsletter form submission.
type SubscribeInput struct {
	Email string
	// Action is the form's action URL. Empty uses the configured route.
	Action string
}

// SubscribeNewsletter intercepts the newsletter form.
//
// The form is never submitted natively; the only request made is the one
// dispatched here. Invalid input marks the form invalid and returns an
// ErrValidation without touching the submit control. A submit while the
// control is disabled returns ErrBusy. Otherwise the control
// is disabled until the response is handled and is re-enabled on every
// path, including a panicking handler.
func (b *Bindings) SubscribeNewsletter(ctx context.Context, in SubscribeInput) (engine.Pending, error) {
	var pending engine.Pending
	var submitErr error

	err := b.loop.Do(ctx, func() {
		pending, submitErr = b.submitNewsletter(ctx, in)
	})
	if err != nil {
		return engine.Pending{}, fmt.Errorf("subscribe: %w", err)
	}
	return pending, submitErr
}

// submitNewsletter must run on the loop.
func (b *Bindings) submitNewsletter(ctx context.Context, in SubscribeInput) (engine.Pending, error) {
	form := &b.page.Newsletter
	if form.Submit.Disabled {
		return engine.Pending{}, fmt.Errorf("subscribe: %w", ErrBusy)
	}
	form.Email = in.Email
	form.Validated = true

	email, err := validateEmail(in.Email)
	if err != nil {
		form.Invalid = true
		return engine.Pending{}, fmt.Errorf("subscribe: %w", err)
	}
	form.Invalid = false

	payload := map[string]string{mutation.FieldEmail: email}
	opts := []dispatch.IssueOption{dispatch.WithFormToken(b.formField)}
	if in.Action != "" {
		opts = append(opts, dispatch.ToURL(in.Action))
	}

	form.Busy()
	pending, err := b.launch(ctx, mutation.Subscribe, "", payload, opts, func(ctx context.Context, o mutation.Outcome) {
		defer form.Restore()
		defer func() {
			if r := recover(); r != nil {
				b.logger.ErrorContext(ctx, "newsletter handler failed", "panic", r)
				form.Show(view.PanelError, view.ErrorTitle, MsgSubscribeFailed)
			}
		}()

		b.observe(o)
		b.handleSubscription(o)
	})
	if err != nil {
		form.Restore()
		return engine.Pending{}, fmt.Errorf("subscribe: %w", err)
	}
	return pending, nil
}

// handleSubscription renders the acknowledgement panel for o.
func (b *Bindings) handleSubscription(o mutation.Outcome) {
	form := &b.page.Newsletter

	if !o.OK {
		msg, ok := o.Message()
		if !ok {
			msg = MsgSubscribeFailed
		}
		form.Show(view.PanelError, view.ErrorTitle, msg)
		return
	}

	status, _ := o.Payload.String(mutation.FieldStatus)
	switch status {
	case statusSubscribed, statusInfo:
		msg, ok := o.Message()
		if !ok {
			b.logger.Warn("newsletter response without message", "status", status)
			form.Show(view.PanelError, view.ErrorTitle, MsgSubscribeFailed)
			return
		}
		if status == statusSubscribed {
			form.Show(view.PanelSuccess, view.SuccessTitle, msg)
			form.Email = ""
		} else {
			form.Show(view.PanelInfo, view.InfoTitle, msg)
		}
	default:
		form.ClearPanel()
	}
}
