package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/testutil"
)

const cliToken = "tok123"

type cliEnv struct {
	store  *testutil.FakeStore
	config string
}

// newCLIEnv starts a fake store and writes a config pointing at it. With
// withDB the journal lives in a temp directory; otherwise it is disabled.
func newCLIEnv(t *testing.T, withDB bool) *cliEnv {
	t.Helper()

	f, srv := testutil.StartFakeStore(t, cliToken)
	f.AddProduct("7", money.MustParse("12.50"))

	dir := t.TempDir()
	db := ""
	if withDB {
		db = filepath.Join(dir, "journal.db")
	}
	cfg := fmt.Sprintf("baseURL: %s\ncookies: \"csrftoken=%s\"\nsession: cli-test\ndatabase: %q\n", srv.URL, cliToken, db)
	path := filepath.Join(dir, "cartsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	return &cliEnv{store: f, config: path}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeResponse(t *testing.T, out string) (Response, map[string]any) {
	t.Helper()

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data, _ := resp.Data.(map[string]any)
	if resp.Error != nil {
		data, _ = resp.Error.Details.(map[string]any)
	}
	return resp, data
}

func TestAdd_Success(t *testing.T) {
	env := newCLIEnv(t, false)

	out, _, err := env.run(t, "add", "7", "--quantity", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "[success] Success: Product added to cart!")
	assert.Contains(t, out, "Cart: 1 item(s)")

	reqs := env.store.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, cliToken, reqs[0].Token, "token comes from the seeded cookie")
	assert.Equal(t, "2", reqs[0].Form[mutation.FieldQuantity])
}

func TestAdd_JSON(t *testing.T) {
	env := newCLIEnv(t, false)

	out, _, err := env.run(t, "--format", "json", "add", "7")
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "cli-test", resp.Session)
	page := data["page"].(map[string]any)
	cart := page["cart"].(map[string]any)
	assert.EqualValues(t, 1, cart["count"])
}

func TestAdd_UnknownProductFails(t *testing.T) {
	env := newCLIEnv(t, false)

	out, _, err := env.run(t, "add", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "[error] Error: Failed to add product to cart.")
}

func TestUpdate_ReconcilesRow(t *testing.T) {
	env := newCLIEnv(t, false)
	item := env.store.AddItem("7", 1)

	out, _, err := env.run(t, "update", item, "3", "--item", item+"=12.50", "--cart-total", "12.50")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart: 1 item(s), total 37.50")
	assert.Contains(t, out, "item "+item+": 37.50")
}

func TestUpdate_ValidationRejectsBeforeDispatch(t *testing.T) {
	env := newCLIEnv(t, false)
	item := env.store.AddItem("7", 1)

	out, _, err := env.run(t, "--format", "json", "update", item, "0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, details := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeValidation, resp.Error.Code)
	assert.Equal(t, mutation.FieldQuantity, details["field"])
	assert.Empty(t, env.store.Requests())
}

func TestRemove_LastItemEmptiesCart(t *testing.T) {
	env := newCLIEnv(t, false)
	item := env.store.AddItem("7", 1)

	out, _, err := env.run(t, "remove", item, "--item", item+"=12.50", "--cart-total", "12.50")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart: 0 item(s), total 0.00")
	assert.Contains(t, out, "Your cart is empty.")
}

func TestCoupon_InvalidCodeFails(t *testing.T) {
	env := newCLIEnv(t, false)
	env.store.AddItem("7", 1)

	out, _, err := env.run(t, "coupon", "NOPE", "--cart-total", "12.50")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Invalid coupon code.")
	assert.NotContains(t, out, "Discount:")
}

func TestCoupon_Valid(t *testing.T) {
	env := newCLIEnv(t, false)
	env.store.AddItem("7", 2)
	env.store.AddCoupon("SAVE5", money.MustParse("5"))

	out, _, err := env.run(t, "coupon", "SAVE5", "--cart-total", "25.00")
	require.NoError(t, err)
	assert.Contains(t, out, "Coupon applied successfully!")
	assert.Contains(t, out, "Discount: 5.00")
	assert.Contains(t, out, "total 20.00")
}

func TestSubscribe(t *testing.T) {
	env := newCLIEnv(t, false)

	out, _, err := env.run(t, "subscribe", "reader@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "[success] Thank You!: Thank you for subscribing to our newsletter!")
	assert.Equal(t, []string{"reader@example.com"}, env.store.Subscribers())

	reqs := env.store.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, cliToken, reqs[0].FormToken)
}

func TestSubscribe_InvalidEmail(t *testing.T) {
	env := newCLIEnv(t, false)

	_, _, err := env.run(t, "subscribe", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, env.store.Requests())
}

func TestMetricsFlag(t *testing.T) {
	env := newCLIEnv(t, false)

	_, stderr, err := env.run(t, "--metrics", "add", "7")
	require.NoError(t, err)
	assert.Contains(t, stderr, "cartsync_dispatch_total")
	assert.Contains(t, stderr, "cartsync_notifications_total")
}

func TestJournal_RecordsAcrossRuns(t *testing.T) {
	env := newCLIEnv(t, true)
	item := env.store.AddItem("7", 1)

	_, _, err := env.run(t, "update", item, "2")
	require.NoError(t, err)
	_, _, err = env.run(t, "remove", item)
	require.NoError(t, err)

	out, _, err := env.run(t, "--format", "json", "journal", "--session", "cli-test")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, mutation.UpdateQty.String(), resp.Data[0]["kind"])
	assert.Equal(t, mutation.Remove.String(), resp.Data[1]["kind"])
	assert.Equal(t, "success", resp.Data[1]["result"])
	assert.Greater(t, resp.Data[1]["issuedAt"], resp.Data[0]["issuedAt"], "the clock resumes past the journal")
}

func TestJournal_NeedsDatabase(t *testing.T) {
	env := newCLIEnv(t, false)

	_, _, err := env.run(t, "journal")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDarkMode_Persists(t *testing.T) {
	env := newCLIEnv(t, true)

	out, _, err := env.run(t, "darkmode")
	require.NoError(t, err)
	assert.Equal(t, "Dark mode: off\n", out)

	_, _, err = env.run(t, "darkmode", "on")
	require.NoError(t, err)

	out, _, err = env.run(t, "--format", "json", "darkmode")
	require.NoError(t, err)
	_, data := decodeResponse(t, out)
	assert.Equal(t, true, data["darkMode"])
}

func TestDarkMode_RejectsBadArgument(t *testing.T) {
	env := newCLIEnv(t, true)

	_, _, err := env.run(t, "darkmode", "maybe")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenario_RunsHarnessScenarios(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"scenario", filepath.Join("..", "harness", "testdata", "scenarios")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "✓ add_to_cart")
	assert.Contains(t, out.String(), "All scenarios passed")
}

func TestScenario_UpdateWritesGolden(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "scenarios", "add_to_cart.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "add_to_cart.yaml"), src, 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"scenario", dir, "--update"})
	require.NoError(t, cmd.Execute())

	golden := filepath.Join(dir, "golden", "add_to_cart.golden")
	require.FileExists(t, golden)

	// A tampered golden file fails the next run.
	require.NoError(t, os.WriteFile(golden, []byte("{}"), 0o644))
	cmd = NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"scenario", dir})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "does not match golden file")
}

func TestScenario_FilterMatchesNothing(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"scenario", filepath.Join("..", "harness", "testdata", "scenarios"), "--filter", "nothing_*"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "No scenarios found.")
}

func TestScenario_MissingDirectory(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"scenario", filepath.Join(t.TempDir(), "missing")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
