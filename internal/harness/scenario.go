package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/mutation"
)

// Scenario is one scripted session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is the journal session id. Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// Cart is the page as first rendered by the server.
	Cart CartSeed `yaml:"cart,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// CartSeed is the initial cart.
type CartSeed struct {
	Count int64             `yaml:"count"`
	Total string            `yaml:"total"`
	Items map[string]string `yaml:"items"`
}

// Snapshot converts the seed to the cart snapshot the page starts from.
func (c CartSeed) Snapshot() (mutation.CartSnapshot, error) {
	snap := mutation.CartSnapshot{ItemCount: c.Count, Total: money.Zero(), PerItemTotals: map[string]money.Amount{}}
	if c.Total != "" {
		total, err := money.Parse(c.Total)
		if err != nil {
			return mutation.CartSnapshot{}, fmt.Errorf("cart.total: %w", err)
		}
		snap.Total = total
	}
	for id, raw := range c.Items {
		a, err := money.Parse(raw)
		if err != nil {
			return mutation.CartSnapshot{}, fmt.Errorf("cart.items[%s]: %w", id, err)
		}
		snap.PerItemTotals[id] = a
	}
	return snap, nil
}

// Step is one scripted event. Exactly one of Issue, Respond, Advance and
// Dismiss is set.
type Step struct {
	Issue string            `yaml:"issue,omitempty"`
	Ref   string            `yaml:"ref,omitempty"`
	Args  map[string]string `yaml:"args,omitempty"`

	// ExpectRejected marks an issue whose input must fail validation.
	ExpectRejected bool `yaml:"expect_rejected,omitempty"`

	Respond      string         `yaml:"respond,omitempty"`
	Status       int            `yaml:"status,omitempty"`
	Body         map[string]any `yaml:"body,omitempty"`
	RawBody      string         `yaml:"raw_body,omitempty"`
	NetworkError string         `yaml:"network_error,omitempty"`

	Advance time.Duration `yaml:"advance,omitempty"`

	Dismiss string `yaml:"dismiss,omitempty"`
}

func (s Step) kind() string {
	switch {
	case s.Issue != "":
		return StepIssue
	case s.Respond != "":
		return StepRespond
	case s.Advance != 0:
		return StepAdvance
	case s.Dismiss != "":
		return StepDismiss
	default:
		return ""
	}
}

// Step kinds.
const (
	StepIssue   = "issue"
	StepRespond = "respond"
	StepAdvance = "advance"
	StepDismiss = "dismiss"
)

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Path is a dotted path into the final snapshot (final_state).
	Path string `yaml:"path,omitempty"`

	// Expect is the expected value at Path (final_state).
	Expect any `yaml:"expect,omitempty"`

	// Ref names an issued request (stale, last_applied).
	Ref string `yaml:"ref,omitempty"`

	// Scope is a presentation scope such as "cart_total" or
	// "line_item_total:3" (stale, last_applied).
	Scope string `yaml:"scope,omitempty"`

	// Kind is a mutation kind (request_count).
	Kind string `yaml:"kind,omitempty"`

	// Severity filters toast_count to success, error or info.
	Severity string `yaml:"severity,omitempty"`

	// Count is the expected number (request_count, toast_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState   = "final_state"
	AssertStale        = "stale"
	AssertLastApplied  = "last_applied"
	AssertRequestCount = "request_count"
	AssertToastCount   = "toast_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: empty document")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if _, err := s.Cart.Snapshot(); err != nil {
		return err
	}

	refs := make(map[string]bool)
	for i, step := range s.Steps {
		if n := step.fieldsSet(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of issue, respond, advance, dismiss is required", i)
		}
		switch step.kind() {
		case StepIssue:
			if _, err := mutation.ParseKind(step.Issue); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
			if step.ExpectRejected {
				continue
			}
			if step.Ref == "" {
				return fmt.Errorf("steps[%d]: ref is required for issue", i)
			}
			if refs[step.Ref] {
				return fmt.Errorf("steps[%d]: duplicate ref %q", i, step.Ref)
			}
			refs[step.Ref] = true
		case StepRespond:
			if !refs[step.Respond] {
				return fmt.Errorf("steps[%d]: respond to unknown ref %q", i, step.Respond)
			}
			if step.NetworkError == "" && step.Status == 0 {
				return fmt.Errorf("steps[%d]: status or network_error is required", i)
			}
			if step.Body != nil && step.RawBody != "" {
				return fmt.Errorf("steps[%d]: body and raw_body are exclusive", i)
			}
		case StepAdvance:
			if step.Advance < 0 {
				return fmt.Errorf("steps[%d]: advance must be positive", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, refs); err != nil {
			return err
		}
	}
	return nil
}

func (s Step) fieldsSet() int {
	n := 0
	for _, set := range []bool{s.Issue != "", s.Respond != "", s.Advance != 0, s.Dismiss != ""} {
		if set {
			n++
		}
	}
	return n
}

func validateAssertion(index int, a Assertion, refs map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFinalState:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for final_state", index)
		}
	case AssertStale, AssertLastApplied:
		if !refs[a.Ref] {
			return fmt.Errorf("assertions[%d]: unknown ref %q", index, a.Ref)
		}
		if _, err := mutation.ParseScope(a.Scope); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertRequestCount:
		if _, err := mutation.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertToastCount:
		switch a.Severity {
		case "", "success", "error", "info":
		default:
			return fmt.Errorf("assertions[%d]: unknown severity %q", index, a.Severity)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
