package mutation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/cartsync/internal/money"
)

var (
	// ErrMissingField is returned when a success payload lacks a field the
	// caller depends on.
	ErrMissingField = errors.New("missing field")

	// ErrFieldType is returned when a field has an unusable type.
	ErrFieldType = errors.New("unexpected field type")
)

// Payload is a decoded JSON object. Numbers are kept as json.Number.
type Payload map[string]any

// Has reports whether key is present and not null.
func (p Payload) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

func (p Payload) get(key string) (any, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, key)
	}
	return v, nil
}

// Int reads a non-negative integer. Numeric strings are accepted.
func (p Payload) Int(key string) (int64, error) {
	v, err := p.get(key)
	if err != nil {
		return 0, err
	}

	var n int64
	switch x := v.(type) {
	case json.Number:
		n, err = x.Int64()
	case string:
		n, err = strconv.ParseInt(x, 10, 64)
	case float64:
		n = int64(x)
		if float64(n) != x {
			err = fmt.Errorf("not an integer: %v", x)
		}
	case int:
		n = int64(x)
	case int64:
		n = x
	default:
		err = fmt.Errorf("%T", v)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrFieldType, key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s: negative %d", ErrFieldType, key, n)
	}
	return n, nil
}

// Amount reads a decimal amount encoded as a string or number.
func (p Payload) Amount(key string) (money.Amount, error) {
	v, err := p.get(key)
	if err != nil {
		return money.Amount{}, err
	}
	a, err := money.FromJSON(v)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: %s: %v", ErrFieldType, key, err)
	}
	return a, nil
}

// Bool reads a JSON boolean.
func (p Payload) Bool(key string) (bool, error) {
	v, err := p.get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s: %T", ErrFieldType, key, v)
	}
	return b, nil
}

// String reads a JSON string.
func (p Payload) String(key string) (string, error) {
	v, err := p.get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s: %T", ErrFieldType, key, v)
	}
	return s, nil
}

// Outcome is the resolved result of a dispatched request.
//
// A Success carries the decoded response body. A Failure carries an opaque
// reason and, when the server sent a JSON body, that body.
type Outcome struct {
	Request Request
	OK      bool
	Status  int
	Payload Payload
	Reason  string
}

// Success builds a successful outcome.
func Success(req Request, status int, payload Payload) Outcome {
	if payload == nil {
		payload = Payload{}
	}
	return Outcome{Request: req, OK: true, Status: status, Payload: payload}
}

// Failure builds a failed outcome. body may be nil.
func Failure(req Request, status int, reason string, body Payload) Outcome {
	return Outcome{Request: req, Status: status, Payload: body, Reason: reason}
}

// Require turns a success whose payload lacks any of fields into a
// failure. Failures are returned unchanged.
func (o Outcome) Require(fields ...string) Outcome {
	if !o.OK {
		return o
	}
	for _, f := range fields {
		if !o.Payload.Has(f) {
			return Failure(o.Request, o.Status, fmt.Sprintf("%s: %s", ErrMissingField, f), o.Payload)
		}
	}
	return o
}

// Message returns the server-supplied "message" string, if any.
func (o Outcome) Message() (string, bool) {
	if o.Payload == nil {
		return "", false
	}
	s, err := o.Payload.String(FieldMessage)
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}

// Result labels the outcome for logs, metrics and the journal.
func (o Outcome) Result() string {
	if o.OK {
		return "success"
	}
	return "failure"
}
