package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartsync/internal/actions"
	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/notify"
	"github.com/roach88/cartsync/internal/view"
)

func sampleState() actions.State {
	return actions.State{
		Page: view.Page{Cart: view.Cart{
			Count: 2,
			Total: money.MustParse("25.00"),
			Rows:  []view.Row{{ItemID: "3", Total: money.MustParse("25.00")}},
		}},
		Toasts: []notify.Notification{},
	}
}

func TestPrinter_EmitJSONCarriesSessionAndState(t *testing.T) {
	var out bytes.Buffer
	p := &Printer{Format: "json", Out: &out, Session: "cli-test"}

	require.NoError(t, p.Emit(sampleState(), func(w io.Writer) { t.Fatal("text renderer used in json format") }))

	var resp struct {
		Status  string        `json:"status"`
		Session string        `json:"session"`
		Data    actions.State `json:"data"`
		Error   *ErrorBody    `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "cli-test", resp.Session)
	assert.Nil(t, resp.Error)
	assert.Equal(t, int64(2), resp.Data.Page.Cart.Count)
	assert.Equal(t, "25.00", resp.Data.Page.Cart.Total.String())
	require.Len(t, resp.Data.Page.Cart.Rows, 1)
	assert.Equal(t, "3", resp.Data.Page.Cart.Rows[0].ItemID)
}

func TestPrinter_EmitTextUsesRenderer(t *testing.T) {
	var out bytes.Buffer
	p := &Printer{Format: "text", Out: &out}

	st := sampleState()
	require.NoError(t, p.Emit(st, func(w io.Writer) { printState(w, st) }))

	assert.Contains(t, out.String(), "Cart: 2 item(s), total 25.00")
	assert.Contains(t, out.String(), "item 3: 25.00")
	assert.NotContains(t, out.String(), `"status"`)
}

func TestPrinter_FailJSONKeepsDetails(t *testing.T) {
	var out bytes.Buffer
	p := &Printer{Format: "json", Out: &out, Session: "cli-test"}

	require.NoError(t, p.Fail(CodeValidation, "quantity must be positive", map[string]string{"field": "quantity"}, nil))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "cli-test", resp.Session)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeValidation, resp.Error.Code)
	assert.Equal(t, "quantity must be positive", resp.Error.Message)
	assert.Equal(t, map[string]any{"field": "quantity"}, resp.Error.Details)
}

func TestPrinter_FailTextShowsWhatTheUserSaw(t *testing.T) {
	var out bytes.Buffer
	p := &Printer{Format: "text", Out: &out}

	st := sampleState()
	st.Toasts = []notify.Notification{{Title: "Cart", Body: "Item is out of stock", Severity: notify.Error}}
	require.NoError(t, p.Fail(CodeActionFailed, "Item is out of stock", st, func(w io.Writer) { printState(w, st) }))

	assert.Contains(t, out.String(), "Cart: Item is out of stock")
	assert.NotContains(t, out.String(), "Error [")
}

func TestPrinter_FailTextWithoutRenderer(t *testing.T) {
	var out bytes.Buffer
	p := &Printer{Format: "text", Out: &out}

	require.NoError(t, p.Fail(CodeValidation, "email is required", nil, nil))
	assert.Equal(t, "Error [E_VALIDATION]: email is required\n", out.String())
}

func TestPrinter_Debugf(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"verbose", true, "session s1 against http://shop.test\n"},
		{"quiet", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, diag bytes.Buffer
			p := &Printer{Format: "json", Out: &out, Diag: &diag, Verbose: tt.verbose}

			p.Debugf("session %s against %s", "s1", "http://shop.test")

			assert.Equal(t, tt.want, diag.String())
			assert.Empty(t, out.String(), "diagnostics never reach the json stream")
		})
	}
}

func TestPrinter_DebugfWithoutDiagWriter(t *testing.T) {
	p := &Printer{Verbose: true}
	assert.NotPanics(t, func() { p.Debugf("nothing to write to") })
}

func TestGetExitCode(t *testing.T) {
	rejected := NewExitError(ExitFailure, "rejected before dispatch")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("add: %w", rejected), ExitFailure},
		{"wrapping exit error", WrapExitError(ExitCommandError, "failed to load config", errors.New("no such file")), ExitCommandError},
		{"plain error", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("no such file")
	err := WrapExitError(ExitCommandError, "failed to load config", cause)

	assert.Equal(t, "failed to load config: no such file", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())
}
