// Package view is the presentation model the bindings mutate: the cart
// widget, the newsletter form and the page theme.
//
// Nothing in this package is safe for concurrent use. Every method must be
// called from a task running on the engine loop.
package view

import (
	"sort"
	"strconv"

	"github.com/roach88/cartsync/internal/money"
	"github.com/roach88/cartsync/internal/mutation"
)

// EmptyCartMessage replaces the line item list once the cart is empty.
const EmptyCartMessage = "Your cart is empty."

// Row is one line item in the cart table.
type Row struct {
	ItemID string       `json:"itemId"`
	Total  money.Amount `json:"total"`
}

// Cart is the displayed cart state.
type Cart struct {
	Count       int64        `json:"count"`
	Total       money.Amount `json:"total"`
	Discount    money.Amount `json:"discount"`
	HasDiscount bool         `json:"hasDiscount"`
	Rows        []Row        `json:"rows"`
	Empty       bool         `json:"empty"`
}

// SetCount writes the header badge.
func (c *Cart) SetCount(n int64) {
	c.Count = n
}

// SetTotal writes the cart summary total.
func (c *Cart) SetTotal(a money.Amount) {
	c.Total = a
}

// SetDiscount writes the coupon discount display.
func (c *Cart) SetDiscount(a money.Amount) {
	c.Discount = a
	c.HasDiscount = true
}

// SetItemTotal writes a row's subtotal. Returns false if the row is gone.
func (c *Cart) SetItemTotal(itemID string, a money.Amount) bool {
	for i := range c.Rows {
		if c.Rows[i].ItemID == itemID {
			c.Rows[i].Total = a
			return true
		}
	}
	return false
}

// Row returns the row for itemID.
func (c *Cart) Row(itemID string) (Row, bool) {
	for _, r := range c.Rows {
		if r.ItemID == itemID {
			return r, true
		}
	}
	return Row{}, false
}

// RemoveRow deletes a row. Returns false if it was not present.
func (c *Cart) RemoveRow(itemID string) bool {
	for i, r := range c.Rows {
		if r.ItemID == itemID {
			c.Rows = append(c.Rows[:i], c.Rows[i+1:]...)
			return true
		}
	}
	return false
}

// ShowEmpty replaces the whole line item list with the empty placeholder.
// This is terminal for the page: no row survives it.
func (c *Cart) ShowEmpty() {
	c.Rows = []Row{}
	c.Empty = true
}

// Snapshot returns the cart as a CartSnapshot.
func (c *Cart) Snapshot() mutation.CartSnapshot {
	totals := make(map[string]money.Amount, len(c.Rows))
	for _, r := range c.Rows {
		totals[r.ItemID] = r.Total
	}
	return mutation.CartSnapshot{ItemCount: c.Count, Total: c.Total, PerItemTotals: totals}
}

// Page is the full presentation model of one open page.
type Page struct {
	Cart       Cart       `json:"cart"`
	Newsletter Newsletter `json:"newsletter"`
	DarkMode   bool       `json:"darkMode"`
}

// NewPage seeds a page from the cart as rendered by the server.
// Rows are ordered by item id, numerically when ids are numbers.
func NewPage(initial mutation.CartSnapshot) *Page {
	ids := make([]string, 0, len(initial.PerItemTotals))
	for id := range initial.PerItemTotals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })

	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, Row{ItemID: id, Total: initial.PerItemTotals[id]})
	}

	return &Page{
		Cart: Cart{
			Count: initial.ItemCount,
			Total: initial.Total,
			Rows:  rows,
			Empty: len(rows) == 0 && initial.ItemCount == 0,
		},
		Newsletter: NewNewsletter(),
	}
}

func lessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
