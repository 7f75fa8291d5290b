package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/cartsync/internal/actions"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/view"
)

// PageOptions seeds the page the way the server rendered it.
type PageOptions struct {
	Count int64
	Total string
	Items map[string]string // item id -> line total
}

func (p *PageOptions) bind(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&p.Count, "cart-count", 0, "cart counter as rendered")
	cmd.Flags().StringVar(&p.Total, "cart-total", "0.00", "cart total as rendered")
	cmd.Flags().StringToStringVar(&p.Items, "item", nil, "rendered cart row as id=total (repeatable)")
}

// snapshot builds the seed, adding ensure as a row when it is missing so the
// targeted row exists on the page.
func (p *PageOptions) snapshot(ensure string) (mutation.CartSnapshot, error) {
	total, err := money.Parse(p.Total)
	if err != nil {
		return mutation.CartSnapshot{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --cart-total: %v", err))
	}
	items := make(map[string]money.Amount, len(p.Items)+1)
	for id, raw := range p.Items {
		a, err := money.Parse(raw)
		if err != nil {
			return mutation.CartSnapshot{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --item %s: %v", id, err))
		}
		items[id] = a
	}
	if _, ok := items[ensure]; ensure != "" && !ok {
		items[ensure] = money.Zero()
	}
	count := p.Count
	if count < int64(len(items)) {
		count = int64(len(items))
	}
	return mutation.CartSnapshot{ItemCount: count, Total: total, PerItemTotals: items}, nil
}

type trigger func(ctx context.Context, b *actions.Bindings) (engine.Pending, error)

// runAction opens a session, fires one binding, waits for its continuation
// and prints what the page shows afterwards. An error notification or
// error panel exits with ExitFailure.
func runAction(cmd *cobra.Command, opts *RootOptions, seed mutation.CartSnapshot, fire trigger) error {
	ctx := cmd.Context()

	s, err := OpenSession(ctx, opts, seed)
	if err != nil {
		return err
	}
	defer s.Close()

	out := opts.printer(cmd, s.ID)
	out.Debugf("session %s against %s", s.ID, s.Config.BaseURL)

	pending, err := fire(ctx, s.Bindings)
	var verr *actions.ValidationError
	if errors.As(err, &verr) {
		if ferr := out.Fail(CodeValidation, err.Error(), map[string]string{"field": verr.Field}, nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "rejected before dispatch", err)
	}
	if err != nil {
		return err
	}
	if err := pending.Wait(ctx); err != nil {
		return err
	}

	st, err := s.Bindings.State(ctx)
	if err != nil {
		return err
	}
	if opts.Metrics {
		if err := s.WriteMetrics(cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	render := func(w io.Writer) { printState(w, st) }
	if msg, failed := failure(st); failed {
		if err := out.Fail(CodeActionFailed, msg, st, render); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return out.Emit(st, render)
}

// failure returns the message of the first error the user would see.
func failure(st actions.State) (string, bool) {
	for _, n := range st.Toasts {
		if n.Severity == notify.Error {
			return n.Body, true
		}
	}
	if p := st.Page.Newsletter.Panel; p != nil && p.Kind == view.PanelError {
		return p.Message, true
	}
	return "", false
}

func printState(w io.Writer, st actions.State) {
	for _, n := range st.Toasts {
		fmt.Fprintf(w, "[%s] %s: %s\n", n.Severity, n.Title, n.Body)
	}
	if p := st.Page.Newsletter.Panel; p != nil {
		fmt.Fprintf(w, "[%s] %s: %s\n", p.Kind, p.Title, p.Message)
	}

	cart := st.Page.Cart
	fmt.Fprintf(w, "Cart: %d item(s), total %s\n", cart.Count, cart.Total)
	if cart.HasDiscount {
		fmt.Fprintf(w, "Discount: %s\n", cart.Discount)
	}
	if cart.Empty {
		fmt.Fprintln(w, view.EmptyCartMessage)
		return
	}
	rows := append([]view.Row(nil), cart.Rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ItemID < rows[j].ItemID })
	for _, r := range rows {
		fmt.Fprintf(w, "  item %s: %s\n", r.ItemID, r.Total)
	}
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	page := &PageOptions{}
	var quantity string

	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Long: `Add a product to the cart and update the header counter.

Examples:
  cartctl add 7
  cartctl add 7 --quantity 3 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := page.snapshot("")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, seed, func(ctx context.Context, b *actions.Bindings) (engine.Pending, error) {
				return b.AddToCart(ctx, actions.AddToCartInput{ProductID: args[0], Quantity: quantity})
			})
		},
	}
	cmd.Flags().StringVarP(&quantity, "quantity", "q", "", "quantity to add (default 1)")
	page.bind(cmd)
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	page := &PageOptions{}

	cmd := &cobra.Command{
		Use:   "update <item-id> <quantity>",
		Short: "Change a line item's quantity",
		Long: `Change a line item's quantity and reconcile the row, cart total and
counter from the store's response.

Examples:
  cartctl update 3 2
  cartctl update 3 2 --item 3=12.50 --cart-total 12.50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := page.snapshot(args[0])
			if err != nil {
				return err
			}
			return runAction(cmd, opts, seed, func(ctx context.Context, b *actions.Bindings) (engine.Pending, error) {
				return b.UpdateQuantity(ctx, actions.UpdateQuantityInput{ItemID: args[0], Quantity: args[1]})
			})
		},
	}
	page.bind(cmd)
	return cmd
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(opts *RootOptions) *cobra.Command {
	page := &PageOptions{}

	cmd := &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove a line item from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := page.snapshot(args[0])
			if err != nil {
				return err
			}
			return runAction(cmd, opts, seed, func(ctx context.Context, b *actions.Bindings) (engine.Pending, error) {
				return b.RemoveItem(ctx, args[0])
			})
		},
	}
	page.bind(cmd)
	return cmd
}

// NewCouponCommand creates the coupon command.
func NewCouponCommand(opts *RootOptions) *cobra.Command {
	page := &PageOptions{}

	cmd := &cobra.Command{
		Use:   "coupon <code>",
		Short: "Apply a coupon code to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := page.snapshot("")
			if err != nil {
				return err
			}
			return runAction(cmd, opts, seed, func(ctx context.Context, b *actions.Bindings) (engine.Pending, error) {
				return b.ApplyCoupon(ctx, args[0])
			})
		},
	}
	page.bind(cmd)
	return cmd
}

// NewSubscribeCommand creates the subscribe command.
func NewSubscribeCommand(opts *RootOptions) *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "subscribe <email>",
		Short: "Subscribe an address to the newsletter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, opts, mutation.CartSnapshot{}, func(ctx context.Context, b *actions.Bindings) (engine.Pending, error) {
				return b.SubscribeNewsletter(ctx, actions.SubscribeInput{Email: args[0], Action: action})
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "form action URL (default: configured newsletter endpoint)")
	return cmd
}
