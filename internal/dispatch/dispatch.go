// Package dispatch sends mutation requests to the store and resolves each
// one to a Success or Failure outcome.
//
// A dispatch makes exactly one HTTP call. Nothing is retried and no
// timeout is applied; a slow response simply loses the ordering race when
// it finally arrives.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/roach88/cartsync/internal/csrf"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/metrics"
	"github.com/roach88/cartsync/internal/mutation"
)

// maxResponseBody caps the amount of response data read from the store.
const maxResponseBody int64 = 1 << 20

// ErrNoRoute is returned by Issue for a kind with no configured endpoint.
var ErrNoRoute = errors.New("no endpoint for mutation kind")

// DefaultRoutes are the store's endpoint paths.
var DefaultRoutes = map[mutation.Kind]string{
	mutation.Add:         "/mainapp/cart/add/",
	mutation.UpdateQty:   "/mainapp/cart/update/",
	mutation.Remove:      "/mainapp/cart/remove/",
	mutation.ApplyCoupon: "/mainapp/cart/apply-coupon/",
	mutation.Subscribe:   "/newsletter/subscribe/",
}

// Journal records requests and their outcomes.
type Journal interface {
	RecordRequest(ctx context.Context, req mutation.Request) error
	RecordOutcome(ctx context.Context, o mutation.Outcome) error
}

// Dispatcher issues and sends mutation requests.
//
// Thread-safety: Issue and Dispatch are safe for concurrent use.
type Dispatcher struct {
	client     *http.Client
	origin     *url.URL
	routes     map[mutation.Kind]string
	tokens     csrf.Source
	headerName string
	clock      *engine.Clock
	journal    Journal
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClient sets the HTTP client. Its Timeout should be zero.
func WithClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRoutes overrides endpoint paths per kind. Unset kinds keep their
// default.
func WithRoutes(routes map[mutation.Kind]string) Option {
	return func(d *Dispatcher) {
		for k, v := range routes {
			if v != "" {
				d.routes[k] = v
			}
		}
	}
}

// WithHeaderName sets the anti-forgery header name.
func WithHeaderName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.headerName = name
		}
	}
}

// WithClock sets the logical clock used for issuedAt.
func WithClock(c *engine.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithJournal records every request and outcome.
func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// WithMetrics counts dispatch results.
func WithMetrics(m *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher for the store at origin. tokens is consulted
// on every mutating same-origin request.
func New(origin *url.URL, tokens csrf.Source, opts ...Option) *Dispatcher {
	if tokens == nil {
		tokens = csrf.None
	}
	d := &Dispatcher{
		client:     &http.Client{},
		origin:     origin,
		routes:     make(map[mutation.Kind]string, len(DefaultRoutes)),
		tokens:     tokens,
		headerName: csrf.DefaultHeaderName,
		clock:      engine.NewClock(),
		logger:     slog.Default(),
	}
	for k, v := range DefaultRoutes {
		d.routes[k] = v
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IssueOption adjusts a request while it is issued.
type IssueOption func(*mutation.Request)

// ToURL sends the request to target instead of the kind's route. target
// may be relative to the store origin or absolute.
func ToURL(target string) IssueOption {
	return func(r *mutation.Request) { r.URL = target }
}

// WithFormToken also sends the anti-forgery token as the form field named
// field, under the same rule as the header.
func WithFormToken(field string) IssueOption {
	return func(r *mutation.Request) { r.TokenField = field }
}

// WithMethod overrides the default POST.
func WithMethod(method string) IssueOption {
	return func(r *mutation.Request) { r.Method = strings.ToUpper(method) }
}

// Issue creates a request and stamps its issuedAt. Every call returns a
// strictly greater issuedAt than the calls before it.
func (d *Dispatcher) Issue(kind mutation.Kind, targetID string, payload map[string]string, opts ...IssueOption) (mutation.Request, error) {
	req := mutation.Request{
		Kind:     kind,
		TargetID: targetID,
		Payload:  copyPayload(payload),
		Method:   http.MethodPost,
		URL:      d.routes[kind],
	}
	for _, opt := range opts {
		opt(&req)
	}
	if req.URL == "" {
		return mutation.Request{}, fmt.Errorf("issue %s: %w", kind, ErrNoRoute)
	}

	resolved, err := d.resolve(req.URL)
	if err != nil {
		return mutation.Request{}, fmt.Errorf("issue %s: %w", kind, err)
	}
	req.URL = resolved.String()
	req.IssuedAt = d.clock.Next()
	return req, nil
}

// Dispatch sends req once and resolves its outcome. It never returns an
// error: transport faults and non-2xx statuses become Failure outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, req mutation.Request) mutation.Outcome {
	if d.journal != nil {
		if err := d.journal.RecordRequest(ctx, req); err != nil {
			d.logger.WarnContext(ctx, "journal request write failed", "error", err, "issued_at", req.IssuedAt)
		}
	}

	o := d.send(ctx, req)

	d.metrics.Dispatched(req.Kind.String(), o.Result())
	d.logger.DebugContext(ctx, "mutation dispatched",
		"kind", req.Kind.String(),
		"target", req.TargetID,
		"issued_at", req.IssuedAt,
		"status", o.Status,
		"result", o.Result(),
	)

	if d.journal != nil {
		if err := d.journal.RecordOutcome(ctx, o); err != nil {
			d.logger.WarnContext(ctx, "journal outcome write failed", "error", err, "issued_at", req.IssuedAt)
		}
	}
	return o
}

func (d *Dispatcher) send(ctx context.Context, req mutation.Request) mutation.Outcome {
	httpReq, err := d.build(ctx, req)
	if err != nil {
		return mutation.Failure(req, 0, err.Error(), nil)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return mutation.Failure(req, 0, fmt.Sprintf("transport: %v", err), nil)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return mutation.Failure(req, resp.StatusCode, fmt.Sprintf("read response: %v", err), nil)
	}

	payload, decodeErr := decodePayload(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A failure body is only kept when it is a JSON object.
		if decodeErr != nil {
			payload = nil
		}
		return mutation.Failure(req, resp.StatusCode, fmt.Sprintf("status %d", resp.StatusCode), payload)
	}
	if decodeErr != nil {
		return mutation.Failure(req, resp.StatusCode, decodeErr.Error(), nil)
	}
	return mutation.Success(req, resp.StatusCode, payload)
}

func (d *Dispatcher) build(ctx context.Context, req mutation.Request) (*http.Request, error) {
	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	sameOrigin := d.sameOrigin(target)
	token, hasToken := "", false
	if ShouldAttachToken(req.Method, sameOrigin) {
		token, hasToken = d.tokens.CurrentToken()
	}

	form := url.Values{}
	for k, v := range req.Payload {
		form.Set(k, v)
	}
	if hasToken && req.TokenField != "" {
		form.Set(req.TokenField, token)
	}

	var body io.Reader
	if req.Mutating() {
		body = bytes.NewBufferString(form.Encode())
	} else if len(form) > 0 {
		target.RawQuery = form.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	httpReq.Header.Set("Accept", "application/json")

	if sameOrigin {
		httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	if hasToken {
		httpReq.Header.Set(d.headerName, token)
	}
	return httpReq, nil
}

// ShouldAttachToken reports whether the anti-forgery header may be sent:
// only for mutating methods and only to the store's own origin.
func ShouldAttachToken(method string, sameOrigin bool) bool {
	return sameOrigin && !mutation.SafeMethod(method)
}

func (d *Dispatcher) resolve(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", target, err)
	}
	if d.origin == nil {
		return u, nil
	}
	return d.origin.ResolveReference(u), nil
}

func (d *Dispatcher) sameOrigin(u *url.URL) bool {
	if d.origin == nil {
		return false
	}
	return Origin(u) == Origin(d.origin)
}

// Origin returns scheme://host:port with default ports made explicit.
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return scheme + "://" + strings.ToLower(u.Hostname()) + ":" + port
}

func decodePayload(body []byte) (mutation.Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return mutation.Payload{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload mutation.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("decode response: not a JSON object")
	}
	return payload, nil
}

func copyPayload(p map[string]string) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
