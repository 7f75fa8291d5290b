package view

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/mutation"
	"github.com/roach88/cartsync/internal/notify"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func seededPage() *Page {
	return NewPage(mutation.CartSnapshot{
		ItemCount: 3,
		Total:     money.New(3000, 100),
		PerItemTotals: map[string]money.Amount{
			"10": money.New(1000, 100),
			"9":  money.New(2000, 100),
		},
	})
}

func TestNewPage_OrdersRowsNumerically(t *testing.T) {
	p := seededPage()

	require.Len(t, p.Cart.Rows, 2)
	assert.Equal(t, "9", p.Cart.Rows[0].ItemID)
	assert.Equal(t, "10", p.Cart.Rows[1].ItemID)
	assert.False(t, p.Cart.Empty)
	assert.Equal(t, SubscribeLabel, p.Newsletter.Submit.Label)
	assert.False(t, p.Newsletter.Submit.Disabled)
}

func TestNewPage_EmptyCart(t *testing.T) {
	p := NewPage(mutation.CartSnapshot{})
	assert.True(t, p.Cart.Empty)
}

func TestCart_RowOperations(t *testing.T) {
	c := seededPage().Cart

	assert.True(t, c.SetItemTotal("9", money.New(4000, 100)))
	row, ok := c.Row("9")
	require.True(t, ok)
	assert.Equal(t, "40.00", row.Total.String())

	assert.True(t, c.RemoveRow("9"))
	assert.False(t, c.RemoveRow("9"))
	assert.False(t, c.SetItemTotal("9", money.Zero()))

	c.ShowEmpty()
	assert.Empty(t, c.Rows)
	assert.True(t, c.Empty)
}

func TestCart_Snapshot(t *testing.T) {
	c := seededPage().Cart
	c.SetCount(4)

	snap := c.Snapshot()
	assert.Equal(t, int64(4), snap.ItemCount)
	assert.Equal(t, "30.00", snap.Total.String())
	assert.Len(t, snap.PerItemTotals, 2)
}

func TestNewsletter_BusyRestore(t *testing.T) {
	n := NewNewsletter()

	n.Busy()
	assert.Equal(t, Button{Label: BusyLabel, Disabled: true}, n.Submit)

	n.Restore()
	assert.Equal(t, Button{Label: SubscribeLabel}, n.Submit)

	n.Show(PanelInfo, InfoTitle, "x")
	require.NotNil(t, n.Panel)
	n.ClearPanel()
	assert.Nil(t, n.Panel)
}

func TestRenderPanel_Golden(t *testing.T) {
	g := newGoldie(t)

	tests := []struct {
		name  string
		panel *Panel
	}{
		{"panel_success", &Panel{Kind: PanelSuccess, Title: SuccessTitle, Message: "Thank you for subscribing to our newsletter!"}},
		{"panel_info", &Panel{Kind: PanelInfo, Title: InfoTitle, Message: "You are already subscribed to our newsletter!"}},
		{"panel_error_sanitized", &Panel{Kind: PanelError, Title: ErrorTitle, Message: `<b>Bad</b> email<script>alert(1)</script>`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := RenderPanel(tt.panel)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(out))
		})
	}
}

func TestRenderPanel_Nil(t *testing.T) {
	out, err := RenderPanel(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderToasts_Golden(t *testing.T) {
	g := newGoldie(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	out, err := RenderToasts([]notify.Notification{
		{ID: "n-1", Title: "Success", Body: "Product added to cart!", Severity: notify.Success, CreatedAt: now},
		{ID: "n-2", Title: "Error", Body: "Failed to remove item.", Severity: notify.Error, CreatedAt: now},
	})
	require.NoError(t, err)
	g.Assert(t, "toasts", []byte(out))
}

func TestRenderCart_Golden(t *testing.T) {
	g := newGoldie(t)

	p := seededPage()
	p.Cart.SetDiscount(money.New(500, 100))
	out, err := RenderCart(p.Cart)
	require.NoError(t, err)
	g.Assert(t, "cart_rows", []byte(out))

	p.Cart.SetCount(0)
	p.Cart.SetTotal(money.Zero())
	p.Cart.ShowEmpty()
	out, err = RenderCart(p.Cart)
	require.NoError(t, err)
	g.Assert(t, "cart_empty", []byte(out))
}

func TestSanitizeMessage(t *testing.T) {
	assert.Equal(t, "plain", string(SanitizeMessage("plain")))
	assert.NotContains(t, string(SanitizeMessage(`<img src=x onerror=alert(1)>`)), "onerror")
}
