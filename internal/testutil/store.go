package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/cartsync/internal/csrf"
	"github.com/roach88/cartsync/internal/dispatch"
	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/mutation"
)

// RecordedRequest is one request the fake store received.
type RecordedRequest struct {
	Method    string
	Path      string
	Form      map[string]string
	Token     string
	HasToken  bool
	FormToken string
}

type cartItem struct {
	id        string
	productID string
	qty       int64
	price     money.Amount
}

// FakeStore is an in-process implementation of the store's cart and
// newsletter endpoints.
//
// Responses can be held back per path with Hold to force out-of-order
// completion, and failed with FailNext.
//
// Thread-safety: all methods are safe for concurrent use.
type FakeStore struct {
	mu          sync.Mutex
	token       string
	products    map[string]money.Amount
	items       []*cartItem
	nextItem    int
	coupons     map[string]money.Amount
	applied     string
	subscribers map[string]bool
	requests    []RecordedRequest
	holds       map[string][]chan struct{}
	failures    map[string]int

	router chi.Router
}

// NewFakeStore creates an empty store. A non-empty token is required on
// every POST, either as the X-CSRFToken header or the csrfmiddlewaretoken
// form field.
func NewFakeStore(token string) *FakeStore {
	f := &FakeStore{
		token:       token,
		products:    make(map[string]money.Amount),
		coupons:     make(map[string]money.Amount),
		subscribers: make(map[string]bool),
		holds:       make(map[string][]chan struct{}),
		failures:    make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(f.intercept, f.checkToken)
	r.Post(dispatch.DefaultRoutes[mutation.Add], f.handleAdd)
	r.Post(dispatch.DefaultRoutes[mutation.UpdateQty], f.handleUpdate)
	r.Post(dispatch.DefaultRoutes[mutation.Remove], f.handleRemove)
	r.Post(dispatch.DefaultRoutes[mutation.ApplyCoupon], f.handleCoupon)
	r.Post(dispatch.DefaultRoutes[mutation.Subscribe], f.handleSubscribe)
	f.router = r
	return f
}

// StartFakeStore serves a new FakeStore until the test ends.
func StartFakeStore(t testing.TB, token string) (*FakeStore, *httptest.Server) {
	t.Helper()
	f := NewFakeStore(token)
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

// ServeHTTP implements http.Handler.
func (f *FakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

// AddProduct registers a product and its unit price.
func (f *FakeStore) AddProduct(id string, price money.Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id] = price
}

// AddItem puts a product straight into the cart and returns the item id.
func (f *FakeStore) AddItem(productID string, qty int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addItemLocked(productID, qty).id
}

// AddCoupon registers a fixed-amount coupon.
func (f *FakeStore) AddCoupon(code string, discount money.Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coupons[code] = discount
}

// AddSubscriber marks an email as already subscribed.
func (f *FakeStore) AddSubscriber(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[email] = true
}

// FailNext makes the next request to path answer status with an error body.
func (f *FakeStore) FailNext(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = status
}

// Hold makes the next request to path wait, after it has been applied to
// the store's state, until release is called. Holds queue up: calling
// Hold twice holds the next two requests.
func (f *FakeStore) Hold(path string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.holds[path] = append(f.holds[path], ch)
	f.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Requests returns every request received so far.
func (f *FakeStore) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Snapshot returns the authoritative cart.
func (f *FakeStore) Snapshot() mutation.CartSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	totals := make(map[string]money.Amount, len(f.items))
	for _, it := range f.items {
		totals[it.id] = it.price.Mul(it.qty)
	}
	return mutation.CartSnapshot{ItemCount: int64(len(f.items)), Total: f.totalLocked(), PerItemTotals: totals}
}

// Subscribers returns the subscribed emails, sorted.
func (f *FakeStore) Subscribers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subscribers))
	for e := range f.subscribers {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// intercept records the request, then either answers an injected failure
// or runs the handler. A pending hold on the path is claimed in the same
// critical section as the recording, so holds bind in arrival order, and
// the handler's response is buffered until the hold is released.
func (f *FakeStore) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		_, hasToken := r.Header[http.CanonicalHeaderKey(csrf.DefaultHeaderName)]

		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			Form:      form,
			Token:     r.Header.Get(csrf.DefaultHeaderName),
			HasToken:  hasToken,
			FormToken: r.PostForm.Get(csrf.DefaultFormField),
		})
		status, fail := f.failures[r.URL.Path]
		delete(f.failures, r.URL.Path)
		var hold chan struct{}
		if q := f.holds[r.URL.Path]; len(q) > 0 {
			hold = q[0]
			f.holds[r.URL.Path] = q[1:]
		}
		f.mu.Unlock()

		if hold == nil {
			serveOrFail(w, r, next, status, fail)
			return
		}

		rec := httptest.NewRecorder()
		serveOrFail(rec, r, next, status, fail)
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
		for k, v := range rec.Header() {
			w.Header()[k] = v
		}
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	})
}

func serveOrFail(w http.ResponseWriter, r *http.Request, next http.Handler, status int, fail bool) {
	if fail {
		writeJSON(w, status, map[string]any{"status": "error", "message": "Injected failure."})
		return
	}
	next.ServeHTTP(w, r)
}

func (f *FakeStore) checkToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.token != "" && r.Method == http.MethodPost {
			header := r.Header.Get(csrf.DefaultHeaderName)
			field := r.PostForm.Get(csrf.DefaultFormField)
			if header != f.token && field != f.token {
				writeJSON(w, http.StatusForbidden, map[string]any{"detail": "CSRF verification failed."})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeStore) handleAdd(w http.ResponseWriter, r *http.Request) {
	productID := r.PostForm.Get(mutation.FieldProductID)
	qty, err := strconv.ParseInt(r.PostForm.Get(mutation.FieldQuantity), 10, 64)
	if err != nil || qty < 1 {
		qty = 1
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.products[productID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "Product not found"})
		return
	}
	for _, it := range f.items {
		if it.productID == productID {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":     "exists",
				"message":    "Product is already in your cart",
				"cart_count": len(f.items),
			})
			return
		}
	}
	f.addItemLocked(productID, qty)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    "Product added to cart successfully",
		"cart_count": len(f.items),
	})
}

func (f *FakeStore) handleUpdate(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.ParseInt(r.PostForm.Get(mutation.FieldQuantity), 10, 64)
	if err != nil || qty < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Invalid quantity value"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	it := f.itemLocked(r.PostForm.Get(mutation.FieldItemID))
	if it == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Not found"})
		return
	}
	it.qty = qty
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"cart_count": len(f.items),
		"cart_total": f.totalLocked().String(),
		"item_total": it.price.Mul(it.qty).String(),
	})
}

func (f *FakeStore) handleRemove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PostForm.Get(mutation.FieldItemID)
	for i, it := range f.items {
		if it.id == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]any{
				"success":    true,
				"cart_count": len(f.items),
				"cart_total": f.totalLocked().String(),
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Not found"})
}

func (f *FakeStore) handleCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get(mutation.FieldCode)
	if code == "" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": "Coupon code is required"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.coupons[code]; !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "error", "message": "Invalid coupon code"})
		return
	}
	f.applied = code
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"valid":           true,
		"message":         "Coupon applied successfully",
		"discount_amount": f.discountLocked().String(),
		"cart_total":      f.totalLocked().String(),
		"cart_count":      len(f.items),
	})
}

func (f *FakeStore) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.PostForm.Get(mutation.FieldEmail)
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "Email is required."})
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "Please enter a valid email address."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribers[email] {
		writeJSON(w, http.StatusOK, map[string]any{"status": "info", "message": "You are already subscribed to our newsletter!"})
		return
	}
	f.subscribers[email] = true
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Thank you for subscribing to our newsletter!"})
}

func (f *FakeStore) addItemLocked(productID string, qty int64) *cartItem {
	f.nextItem++
	it := &cartItem{
		id:        strconv.Itoa(f.nextItem),
		productID: productID,
		qty:       qty,
		price:     f.products[productID],
	}
	f.items = append(f.items, it)
	return it
}

func (f *FakeStore) itemLocked(id string) *cartItem {
	for _, it := range f.items {
		if it.id == id {
			return it
		}
	}
	return nil
}

func (f *FakeStore) subtotalLocked() money.Amount {
	sum := money.Zero()
	for _, it := range f.items {
		sum = sum.Add(it.price.Mul(it.qty))
	}
	return sum
}

func (f *FakeStore) discountLocked() money.Amount {
	if f.applied == "" {
		return money.Zero()
	}
	discount := f.coupons[f.applied]
	subtotal := f.subtotalLocked()
	if subtotal.Sub(discount).IsZero() {
		return subtotal
	}
	return discount
}

func (f *FakeStore) totalLocked() money.Amount {
	return f.subtotalLocked().Sub(f.discountLocked())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
