package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes returned by cartctl.
const (
	ExitSuccess      = 0 // the action succeeded
	ExitFailure      = 1 // the user saw an error (toast, panel, rejected input, failed scenario)
	ExitCommandError = 2 // bad flags, unreadable config, missing database
)

// Error codes used in JSON responses.
const (
	CodeValidation     = "E_VALIDATION"
	CodeActionFailed   = "E_ACTION_FAILED"
	CodeScenarioFailed = "E_SCENARIO_FAILED"
)

// ExitError carries the process exit code for a command's error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors without a code are
// failures.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope every command prints in json format.
type Response struct {
	Status  string     `json:"status"` // "ok" or "error"
	Session string     `json:"session,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes why a command failed.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Printer writes command results as a JSON envelope or as text.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer // diagnostics; never mixed into Out
	Verbose bool
	Session string
}

// JSON reports whether output is the JSON envelope.
func (p *Printer) JSON() bool {
	return p.Format == "json"
}

// Emit prints a successful result. In text format text renders it.
func (p *Printer) Emit(data any, text func(w io.Writer)) error {
	if p.JSON() {
		return p.encode(Response{Status: "ok", Session: p.Session, Data: data})
	}
	if text != nil {
		text(p.Out)
	}
	return nil
}

// Fail prints a failed result. In text format text renders what the user
// would see; nil prints the code and message.
func (p *Printer) Fail(code, message string, details any, text func(w io.Writer)) error {
	if p.JSON() {
		return p.encode(Response{
			Status:  "error",
			Session: p.Session,
			Error:   &ErrorBody{Code: code, Message: message, Details: details},
		})
	}
	if text != nil {
		text(p.Out)
		return nil
	}
	fmt.Fprintf(p.Out, "Error [%s]: %s\n", code, message)
	return nil
}

// Debugf writes a diagnostic line when verbose.
func (p *Printer) Debugf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = io.Discard
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func (p *Printer) encode(r Response) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
