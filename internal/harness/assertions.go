package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/cartsync/internal/mutation"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case EventIssued:
			fmt.Fprintf(&buf, "  [%d] issue %s #%d %v\n", event.Step, event.Kind, event.IssuedAt, event.Payload)
		case EventResponded:
			if event.Error != "" {
				fmt.Fprintf(&buf, "  [%d] respond #%d error %q\n", event.Step, event.IssuedAt, event.Error)
			} else {
				fmt.Fprintf(&buf, "  [%d] respond #%d status %d\n", event.Step, event.IssuedAt, event.Status)
			}
		default:
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Step, event.Type)
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions need beyond the snapshot.
type AssertionContext struct {
	Ctx      context.Context
	Snapshot *Snapshot

	// IssuedAt resolves a step ref to its request's issuedAt.
	IssuedAt func(ref string) (int64, bool)

	// LastApplied reads the reconciler's bookkeeping for a scope.
	LastApplied func(mutation.Scope) (int64, error)
}

// EvaluateAssertions evaluates all assertions.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(actx.Snapshot, assertion)
		case AssertStale:
			err = assertStale(actx, assertion)
		case AssertLastApplied:
			err = assertLastApplied(actx, assertion)
		case AssertRequestCount:
			err = assertRequestCount(actx.Snapshot, assertion)
		case AssertToastCount:
			err = assertToastCount(actx.Snapshot, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// assertFinalState looks up a dotted path in the JSON form of the
// snapshot and compares it with the expected value.
func assertFinalState(snap *Snapshot, assertion Assertion) error {
	doc, err := toGeneric(snap)
	if err != nil {
		return err
	}
	expected, err := toGeneric(assertion.Expect)
	if err != nil {
		return err
	}

	actual, err := lookup(doc, assertion.Path)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", assertion.Path, expected),
			Actual:   err.Error(),
			Trace:    snap.Trace,
		}
	}
	if !reflect.DeepEqual(expected, actual) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %v", assertion.Path, expected),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    snap.Trace,
		}
	}
	return nil
}

func assertStale(actx *AssertionContext, assertion Assertion) error {
	issuedAt, ok := actx.IssuedAt(assertion.Ref)
	if !ok {
		return fmt.Errorf("stale: unknown ref %q", assertion.Ref)
	}
	for _, e := range actx.Snapshot.Journal {
		if e.IssuedAt != issuedAt {
			continue
		}
		if slices.Contains(e.Stale, assertion.Scope) {
			return nil
		}
		return &AssertionError{
			Type:     AssertStale,
			Expected: fmt.Sprintf("%s (#%d) discarded for %s", assertion.Ref, issuedAt, assertion.Scope),
			Actual:   fmt.Sprintf("stale scopes %v", e.Stale),
			Trace:    actx.Snapshot.Trace,
		}
	}
	return &AssertionError{
		Type:     AssertStale,
		Expected: fmt.Sprintf("%s (#%d) in journal", assertion.Ref, issuedAt),
		Actual:   "not recorded",
		Trace:    actx.Snapshot.Trace,
	}
}

func assertLastApplied(actx *AssertionContext, assertion Assertion) error {
	issuedAt, ok := actx.IssuedAt(assertion.Ref)
	if !ok {
		return fmt.Errorf("last_applied: unknown ref %q", assertion.Ref)
	}
	scope, err := mutation.ParseScope(assertion.Scope)
	if err != nil {
		return err
	}
	last, err := actx.LastApplied(scope)
	if err != nil {
		return err
	}
	if last != issuedAt {
		return &AssertionError{
			Type:     AssertLastApplied,
			Expected: fmt.Sprintf("%s last applied from %s (#%d)", assertion.Scope, assertion.Ref, issuedAt),
			Actual:   fmt.Sprintf("#%d", last),
			Trace:    actx.Snapshot.Trace,
		}
	}
	return nil
}

func assertRequestCount(snap *Snapshot, assertion Assertion) error {
	count := 0
	for _, e := range snap.Journal {
		if e.Kind == assertion.Kind {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%d %s requests", assertion.Count, assertion.Kind),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    snap.Trace,
		}
	}
	return nil
}

func assertToastCount(snap *Snapshot, assertion Assertion) error {
	count := 0
	for _, t := range snap.Toasts {
		if assertion.Severity == "" || t.Severity == assertion.Severity {
			count++
		}
	}
	if count != assertion.Count {
		what := "visible toasts"
		if assertion.Severity != "" {
			what = fmt.Sprintf("visible %s toasts", assertion.Severity)
		}
		return &AssertionError{
			Type:     AssertToastCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    snap.Trace,
		}
	}
	return nil
}

// toGeneric round-trips v through JSON so that values decoded from YAML
// and values read from the snapshot compare with the same types.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return out, nil
}

// lookup walks a dotted path. Numeric segments index into arrays.
func lookup(doc any, path string) (any, error) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("no key %q", seg)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range (len %d)", seg, len(node))
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", cur, seg)
		}
	}
	return cur, nil
}
