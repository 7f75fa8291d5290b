package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// ErrTransportClosed answers every exchange still held when the transport
// is closed.
var ErrTransportClosed = errors.New("scripted transport closed")

// Exchange is one request held by a ScriptedTransport until answered.
type Exchange struct {
	Method string
	URL    string
	Header http.Header
	Form   url.Values

	reply chan reply
	once  sync.Once
}

type reply struct {
	status int
	body   []byte
	err    error
}

// Respond answers the request with status and body.
func (e *Exchange) Respond(status int, body []byte) {
	e.send(reply{status: status, body: body})
}

// Fail answers the request with a transport error.
func (e *Exchange) Fail(err error) {
	e.send(reply{err: err})
}

func (e *Exchange) send(r reply) {
	e.once.Do(func() { e.reply <- r })
}

// ScriptedTransport is an http.RoundTripper that holds every request until
// the test answers it, so responses can be delivered in any order.
//
// Thread-safety: all methods are safe for concurrent use.
type ScriptedTransport struct {
	arrived chan *Exchange

	mu     sync.Mutex
	held   []*Exchange
	closed bool
}

// NewScriptedTransport creates a transport.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{arrived: make(chan *Exchange, 64)}
}

// RoundTrip implements http.RoundTripper.
func (t *ScriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ex := &Exchange{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		reply:  make(chan reply, 1),
	}
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		form, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse request body: %w", err)
		}
		ex.Form = form
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.held = append(t.held, ex)
	t.mu.Unlock()

	t.arrived <- ex

	var r reply
	select {
	case r = <-ex.reply:
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.status, http.StatusText(r.status)),
		StatusCode:    r.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(r.body)),
		ContentLength: int64(len(r.body)),
		Request:       req,
	}, nil
}

// Next waits for the next request to arrive.
func (t *ScriptedTransport) Next(ctx context.Context) (*Exchange, error) {
	select {
	case ex := <-t.arrived:
		return ex, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for request: %w", ctx.Err())
	}
}

// Close fails every held request and rejects new ones.
func (t *ScriptedTransport) Close() {
	t.mu.Lock()
	t.closed = true
	held := t.held
	t.held = nil
	t.mu.Unlock()

	for _, ex := range held {
		ex.Fail(ErrTransportClosed)
	}
}
