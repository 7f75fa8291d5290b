package actions_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartsync/internal/actions"
	"github.com/roach88/cartsync/internal/clock"
	"github.com/roach88/cartsync/internal/csrf"
	"github.com/roach88/cartsync/internal/dispatch"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/testutil"
	"github.com/roach88/cartsync/internal/view"
)

const token = "tok123"

type fixture struct {
	store    *testutil.FakeStore
	clock    *clock.Fake
	notifier *notify.Scheduler
	page     *view.Page
	b        *actions.Bindings
	outcomes chan mutation.Outcome
}

func newFixture(t *testing.T, seed func(*testutil.FakeStore)) *fixture {
	t.Helper()

	store, srv := testutil.StartFakeStore(t, token)
	store.AddProduct("7", money.MustParse("12.50"))
	store.AddProduct("8", money.MustParse("4"))
	if seed != nil {
		seed(store)
	}

	origin, err := url.Parse(srv.URL)
	require.NoError(t, err)

	tokens := csrf.SourceFunc(func() (string, bool) { return token, true })
	fc := testutil.NewFakeClock()
	f := &fixture{
		store: store,
		clock: fc,
		notifier: notify.New(
			notify.WithClock(fc),
			notify.WithIDGenerator(engine.NewSequenceGenerator("n")),
		),
		page:     view.NewPage(store.Snapshot()),
		outcomes: make(chan mutation.Outcome, 16),
	}
	f.b = actions.New(actions.Config{
		Loop:       testutil.StartLoop(t),
		Dispatcher: dispatch.New(origin, tokens, dispatch.WithClient(srv.Client())),
		Notifier:   f.notifier,
		Page:       f.page,
		Observer:   actions.ObserverFunc(func(o mutation.Outcome) { f.outcomes <- o }),
	})
	return f
}

func (f *fixture) state(t *testing.T) actions.State {
	t.Helper()
	st, err := f.b.State(testutil.Context(t))
	require.NoError(t, err)
	return st
}

func wait(t *testing.T, p engine.Pending, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NoError(t, p.Wait(testutil.Context(t)))
}

func TestAddToCart_Success(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testutil.Context(t)

	p, err := f.b.AddToCart(ctx, actions.AddToCartInput{ProductID: "7"})
	wait(t, p, err)

	st := f.state(t)
	assert.Equal(t, int64(1), st.Page.Cart.Count)
	require.Len(t, st.Toasts, 1)
	assert.Equal(t, actions.SuccessTitle, st.Toasts[0].Title)
	assert.Equal(t, actions.MsgAdded, st.Toasts[0].Body)
	assert.Equal(t, notify.Success, st.Toasts[0].Severity)

	reqs := f.store.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "1", reqs[0].Form[mutation.FieldQuantity], "quantity defaults to 1")
	assert.Equal(t, token, reqs[0].Token)
}

func TestAddToCart_UnknownProductFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testutil.Context(t)

	p, err := f.b.AddToCart(ctx, actions.AddToCartInput{ProductID: "99", Quantity: "2"})
	wait(t, p, err)

	st := f.state(t)
	assert.Equal(t, int64(0), st.Page.Cart.Count, "counter untouched")
	require.Len(t, st.Toasts, 1)
	assert.Equal(t, "Error", st.Toasts[0].Title)
	assert.Equal(t, actions.MsgAddFailed, st.Toasts[0].Body)
	assert.Equal(t, notify.Error, st.Toasts[0].Severity)
}

func TestAddToCart_ToastRetiresAfterTimeout(t *testing.T) {
	f := newFixture(t, nil)

	p, err := f.b.AddToCart(testutil.Context(t), actions.AddToCartInput{ProductID: "7"})
	wait(t, p, err)
	require.Len(t, f.state(t).Toasts, 1)

	f.clock.Advance(notify.DefaultTimeout - time.Millisecond)
	assert.Len(t, f.state(t).Toasts, 1)

	f.clock.Advance(time.Millisecond)
	assert.Empty(t, f.state(t).Toasts)
}

func TestValidationRejectsBeforeDispatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := testutil.Context(t)

	_, err := f.b.AddToCart(ctx, actions.AddToCartInput{ProductID: "7", Quantity: "0"})
	assert.ErrorIs(t, err, actions.ErrValidation)

	_, err = f.b.AddToCart(ctx, actions.AddToCartInput{ProductID: " "})
	assert.ErrorIs(t, err, actions.ErrValidation)

	_, err = f.b.UpdateQuantity(ctx, actions.UpdateQuantityInput{ItemID: "1", Quantity: ""})
	assert.ErrorIs(t, err, actions.ErrValidation)

	_, err = f.b.UpdateQuantity(ctx, actions.UpdateQuantityInput{ItemID: "1", Quantity: "abc"})
	var verr *actions.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, mutation.FieldQuantity, verr.Field)

	_, err = f.b.RemoveItem(ctx, "")
	assert.ErrorIs(t, err, actions.ErrValidation)

	_, err = f.b.ApplyCoupon(ctx, "   ")
	assert.ErrorIs(t, err, actions.ErrValidation)

	assert.Empty(t, f.store.Requests())
	assert.Empty(t, f.state(t).Toasts)
}

func TestUpdateQuantity_OutOfOrderResponsesKeepNewest(t *testing.T) {
	var item string
	f := newFixture(t, func(s *testutil.FakeStore) { item = s.AddItem("7", 1) })
	ctx := testutil.Context(t)
	route := dispatch.DefaultRoutes[mutation.UpdateQty]

	release := f.store.Hold(route)
	first, err := f.b.UpdateQuantity(ctx, actions.UpdateQuantityInput{ItemID: item, Quantity: "2"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.store.Requests()) == 1 }, testutil.WaitFor, testutil.Tick)

	second, err := f.b.UpdateQuantity(ctx, actions.UpdateQuantityInput{ItemID: item, Quantity: "3"})
	wait(t, second, err)

	release()
	require.NoError(t, first.Wait(ctx))

	st := f.state(t)
	row, ok := st.Page.Cart.Row(item)
	require.True(t, ok)
	assert.Equal(t, "37.50", row.Total.String())
	assert.Equal(t, "37.50", st.Page.Cart.Total.String())
	assert.Empty(t, st.Toasts, "stale responses are never user-visible")

	o1, o2 := <-f.outcomes, <-f.outcomes
	assert.Greater(t, o1.Request.IssuedAt, o2.Request.IssuedAt, "second request completed first")
	assert.Equal(t, o1.Request.IssuedAt, f.b.Reconciler().LastApplied(mutation.LineItemTotal(item)))
}

func TestUpdateQuantity_FailureLeavesRowAlone(t *testing.T) {
	var item string
	f := newFixture(t, func(s *testutil.FakeStore) { item = s.AddItem("7", 1) })
	f.store.FailNext(dispatch.DefaultRoutes[mutation.UpdateQty], http.StatusInternalServerError)

	p, err := f.b.UpdateQuantity(testutil.Context(t), actions.UpdateQuantityInput{ItemID: item, Quantity: "5"})
	wait(t, p, err)

	st := f.state(t)
	require.Len(t, st.Page.Cart.Rows, 1)
	assert.Equal(t, "12.50", st.Page.Cart.Rows[0].Total.String())
	require.Len(t, st.Toasts, 1)
	assert.Equal(t, actions.MsgUpdateFailed, st.Toasts[0].Body)
}

func TestRemoveItem_LastItemEmptiesCart(t *testing.T) {
	var item string
	f := newFixture(t, func(s *testutil.FakeStore) { item = s.AddItem("7", 2) })
	require.False(t, f.state(t).Page.Cart.Empty)

	p, err := f.b.RemoveItem(testutil.Context(t), item)
	wait(t, p, err)

	st := f.state(t)
	assert.Empty(t, st.Page.Cart.Rows)
	assert.True(t, st.Page.Cart.Empty)
	assert.Equal(t, int64(0), st.Page.Cart.Count)
	assert.Equal(t, "0.00", st.Page.Cart.Total.String())
	assert.Empty(t, st.Toasts)
}

func TestRemoveItem_OtherItemsRemain(t *testing.T) {
	var a, b string
	f := newFixture(t, func(s *testutil.FakeStore) {
		a = s.AddItem("7", 1)
		b = s.AddItem("8", 2)
	})

	p, err := f.b.RemoveItem(testutil.Context(t), a)
	wait(t, p, err)

	st := f.state(t)
	require.Len(t, st.Page.Cart.Rows, 1)
	assert.Equal(t, b, st.Page.Cart.Rows[0].ItemID)
	assert.False(t, st.Page.Cart.Empty)
	assert.Equal(t, int64(1), st.Page.Cart.Count)
	assert.Equal(t, "8.00", st.Page.Cart.Total.String())
}

func TestRemoveItem_FailureKeepsRow(t *testing.T) {
	f := newFixture(t, func(s *testutil.FakeStore) { s.AddItem("7", 1) })

	p, err := f.b.RemoveItem(testutil.Context(t), "404")
	wait(t, p, err)

	st := f.state(t)
	assert.Len(t, st.Page.Cart.Rows, 1)
	require.Len(t, st.Toasts, 1)
	assert.Equal(t, actions.MsgRemoveFailed, st.Toasts[0].Body)
}

func TestApplyCoupon(t *testing.T) {
	seed := func(s *testutil.FakeStore) {
		s.AddItem("7", 2)
		s.AddCoupon("SAVE5", money.MustParse("5"))
	}

	t.Run("valid", func(t *testing.T) {
		f := newFixture(t, seed)
		p, err := f.b.ApplyCoupon(testutil.Context(t), " SAVE5 ")
		wait(t, p, err)

		st := f.state(t)
		assert.Equal(t, "20.00", st.Page.Cart.Total.String())
		assert.Equal(t, "5.00", st.Page.Cart.Discount.String())
		assert.True(t, st.Page.Cart.HasDiscount)
		require.Len(t, st.Toasts, 1)
		assert.Equal(t, actions.MsgCouponApplied, st.Toasts[0].Body)
		assert.Equal(t, "SAVE5", f.store.Requests()[0].Form[mutation.FieldCode], "code is trimmed")
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture(t, seed)
		p, err := f.b.ApplyCoupon(testutil.Context(t), "BOGUS")
		wait(t, p, err)

		st := f.state(t)
		assert.Equal(t, "25.00", st.Page.Cart.Total.String())
		assert.False(t, st.Page.Cart.HasDiscount)
		require.Len(t, st.Toasts, 1)
		assert.Equal(t, actions.MsgCouponInvalid, st.Toasts[0].Body)
		assert.Equal(t, notify.Error, st.Toasts[0].Severity)
	})

	t.Run("server error", func(t *testing.T) {
		f := newFixture(t, seed)
		f.store.FailNext(dispatch.DefaultRoutes[mutation.ApplyCoupon], http.StatusBadGateway)
		p, err := f.b.ApplyCoupon(testutil.Context(t), "SAVE5")
		wait(t, p, err)

		st := f.state(t)
		require.Len(t, st.Toasts, 1)
		assert.Equal(t, actions.MsgCouponFailed, st.Toasts[0].Body)
	})
}

// stubDispatcher answers every request with a canned payload.
type stubDispatcher struct {
	clock   *engine.Clock
	status  int
	payload mutation.Payload
	err     string
}

func (s *stubDispatcher) Issue(kind mutation.Kind, target string, payload map[string]string, _ ...dispatch.IssueOption) (mutation.Request, error) {
	return mutation.Request{Kind: kind, TargetID: target, Payload: payload, Method: http.MethodPost, IssuedAt: s.clock.Next()}, nil
}

func (s *stubDispatcher) Dispatch(_ context.Context, req mutation.Request) mutation.Outcome {
	if s.err != "" {
		return mutation.Failure(req, s.status, s.err, s.payload)
	}
	return mutation.Success(req, s.status, s.payload)
}

func newStubBindings(t *testing.T, d *stubDispatcher, obs actions.Observer) (*actions.Bindings, *view.Page) {
	t.Helper()
	d.clock = engine.NewClock()
	page := view.NewPage(mutation.CartSnapshot{ItemCount: 1, Total: money.MustParse("10"), PerItemTotals: map[string]money.Amount{"1": money.MustParse("10")}})
	b := actions.New(actions.Config{
		Loop:       testutil.StartLoop(t),
		Dispatcher: d,
		Notifier:   notify.New(notify.WithClock(testutil.NewFakeClock())),
		Page:       page,
		Observer:   obs,
	})
	return b, page
}

func TestApplyCoupon_MissingDiscountIsFailure(t *testing.T) {
	d := &stubDispatcher{status: 200, payload: mutation.Payload{"valid": true, "cart_total": "5.00"}}
	b, _ := newStubBindings(t, d, nil)

	p, err := b.ApplyCoupon(testutil.Context(t), "X")
	wait(t, p, err)

	st, err := b.State(testutil.Context(t))
	require.NoError(t, err)
	assert.Equal(t, "10.00", st.Page.Cart.Total.String(), "partial payload writes nothing")
	require.Len(t, st.Toasts, 1)
	assert.Equal(t, actions.MsgCouponFailed, st.Toasts[0].Body)
}

func TestApplyCoupon_ValidFalse(t *testing.T) {
	d := &stubDispatcher{status: 200, payload: mutation.Payload{"valid": false}}
	b, _ := newStubBindings(t, d, nil)

	p, err := b.ApplyCoupon(testutil.Context(t), "X")
	wait(t, p, err)

	st, err := b.State(testutil.Context(t))
	require.NoError(t, err)
	require.Len(t, st.Toasts, 1)
	assert.Equal(t, actions.MsgCouponInvalid, st.Toasts[0].Body)
}

func TestSetDarkMode(t *testing.T) {
	f := newFixture(t, nil)
	prefs := &memPrefs{}

	require.NoError(t, f.b.SetDarkMode(testutil.Context(t), true, prefs))
	assert.True(t, f.state(t).Page.DarkMode)
	assert.Equal(t, []bool{true}, prefs.saved)

	require.NoError(t, f.b.SetDarkMode(testutil.Context(t), false, nil))
	assert.False(t, f.state(t).Page.DarkMode)
}

type memPrefs struct{ saved []bool }

func (m *memPrefs) SetDarkMode(_ context.Context, on bool) error {
	m.saved = append(m.saved, on)
	return nil
}

type blockingPrefs struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingPrefs) SetDarkMode(ctx context.Context, _ bool) error {
	close(p.entered)
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSetDarkMode_SlowStoreLeavesLoopFree(t *testing.T) {
	f := newFixture(t, nil)
	prefs := &blockingPrefs{entered: make(chan struct{}), release: make(chan struct{})}

	done := make(chan error, 1)
	go func() { done <- f.b.SetDarkMode(testutil.Context(t), true, prefs) }()

	select {
	case <-prefs.entered:
	case <-time.After(time.Second):
		t.Fatal("preference write never started")
	}

	// The write is still in progress, yet the page answers.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	st, err := f.b.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.Page.DarkMode)

	close(prefs.release)
	require.NoError(t, <-done)
}

func TestSetDarkMode_StoreErrorReturned(t *testing.T) {
	f := newFixture(t, nil)
	errDisk := errors.New("disk full")

	err := f.b.SetDarkMode(testutil.Context(t), true, failingPrefs{errDisk})
	assert.ErrorIs(t, err, errDisk)
	assert.True(t, f.state(t).Page.DarkMode, "the page follows the user even when the write fails")
}

type failingPrefs struct{ err error }

func (p failingPrefs) SetDarkMode(context.Context, bool) error { return p.err }
