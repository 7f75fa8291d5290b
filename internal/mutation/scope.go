package mutation

import (
	"fmt"
	"strings"

	"github.com/roach88/cartsync/internal/money"
)

// ScopeKind names a shared presentation field.
type ScopeKind string

const (
	ScopeCartCounter   ScopeKind = "cart_counter"
	ScopeCartTotal     ScopeKind = "cart_total"
	ScopeLineItemTotal ScopeKind = "line_item_total"
	ScopeDiscount      ScopeKind = "discount"
)

// Scope identifies the presentation field a reconciled value lands in.
// Scopes are comparable and usable as map keys.
type Scope struct {
	Kind   ScopeKind
	ItemID string
}

// CartCounter is the header badge showing the number of items.
func CartCounter() Scope { return Scope{Kind: ScopeCartCounter} }

// CartTotal is the cart summary total.
func CartTotal() Scope { return Scope{Kind: ScopeCartTotal} }

// Discount is the coupon discount display.
func Discount() Scope { return Scope{Kind: ScopeDiscount} }

// LineItemTotal is the subtotal cell of one cart row.
func LineItemTotal(itemID string) Scope {
	return Scope{Kind: ScopeLineItemTotal, ItemID: itemID}
}

// Field returns the response field that feeds this scope.
func (s Scope) Field() string {
	switch s.Kind {
	case ScopeCartCounter:
		return FieldCartCount
	case ScopeCartTotal:
		return FieldCartTotal
	case ScopeLineItemTotal:
		return FieldItemTotal
	case ScopeDiscount:
		return FieldDiscountAmount
	default:
		return ""
	}
}

func (s Scope) String() string {
	if s.ItemID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.ItemID
}

// ParseScope is the inverse of Scope.String.
func ParseScope(s string) (Scope, error) {
	kind, itemID, hasItem := strings.Cut(s, ":")
	switch ScopeKind(kind) {
	case ScopeCartCounter, ScopeCartTotal, ScopeDiscount:
		if hasItem {
			return Scope{}, fmt.Errorf("scope %q takes no item id", kind)
		}
		return Scope{Kind: ScopeKind(kind)}, nil
	case ScopeLineItemTotal:
		if itemID == "" {
			return Scope{}, fmt.Errorf("scope %q needs an item id", kind)
		}
		return LineItemTotal(itemID), nil
	default:
		return Scope{}, fmt.Errorf("unknown scope %q", s)
	}
}

// CartSnapshot is the authoritative cart state as last confirmed by the
// store.
type CartSnapshot struct {
	ItemCount     int64                   `json:"itemCount"`
	Total         money.Amount            `json:"total"`
	PerItemTotals map[string]money.Amount `json:"perItemTotals"`
}
