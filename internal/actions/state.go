package actions

import (
	"context"
	"fmt"

	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/view"
)

// State is a point-in-time copy of everything the user can see.
type State struct {
	Page   view.Page             `json:"page"`
	Toasts []notify.Notification `json:"toasts"`
}

// State copies the page on the loop, so the result is consistent with
// every continuation that has already run.
func (b *Bindings) State(ctx context.Context) (State, error) {
	var st State
	err := b.loop.Do(ctx, func() {
		st.Page = copyPage(b.page)
		st.Toasts = b.notifier.Visible()
	})
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	return st, nil
}

// PreferenceStore persists the theme preference.
type PreferenceStore interface {
	SetDarkMode(ctx context.Context, enabled bool) error
}

// SetDarkMode switches the page theme and persists the choice. The page
// changes on the loop; the write happens after, on the caller's goroutine.
func (b *Bindings) SetDarkMode(ctx context.Context, enabled bool, prefs PreferenceStore) error {
	if err := b.loop.Do(ctx, func() { b.page.DarkMode = enabled }); err != nil {
		return fmt.Errorf("set dark mode: %w", err)
	}
	if prefs == nil {
		return nil
	}
	return prefs.SetDarkMode(ctx, enabled)
}

func copyPage(p *view.Page) view.Page {
	out := *p
	out.Cart.Rows = append([]view.Row(nil), p.Cart.Rows...)
	if out.Cart.Rows == nil {
		out.Cart.Rows = []view.Row{}
	}
	if p.Newsletter.Panel != nil {
		panel := *p.Newsletter.Panel
		out.Newsletter.Panel = &panel
	}
	return out
}
